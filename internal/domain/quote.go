package domain

import (
	"time"

	"github.com/google/uuid"
)

// Quote is the current state of one tradable symbol.
// Volume, MarketCap and Sector are optional and encode as null when absent.
type Quote struct {
	ID            uuid.UUID `json:"id"`
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        *float64  `json:"volume"`
	MarketCap     *float64  `json:"marketCap"`
	Sector        *string   `json:"sector"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// Clone returns a deep copy so callers never share optional fields with the table.
func (q Quote) Clone() Quote {
	c := q
	if q.Volume != nil {
		v := *q.Volume
		c.Volume = &v
	}
	if q.MarketCap != nil {
		m := *q.MarketCap
		c.MarketCap = &m
	}
	if q.Sector != nil {
		s := *q.Sector
		c.Sector = &s
	}
	return c
}

// HasVolume reports whether the quote carries a defined, positive volume.
func (q Quote) HasVolume() bool {
	return q.Volume != nil && *q.Volume > 0
}

// QuoteUpdate is a partial quote. Nil fields are left untouched on merge.
type QuoteUpdate struct {
	Name          *string
	Price         *float64
	Change        *float64
	ChangePercent *float64
	Volume        *float64
	MarketCap     *float64
	Sector        *string
}

// Ptr returns a pointer to v. Used to build QuoteUpdate literals.
func Ptr[T any](v T) *T {
	return &v
}
