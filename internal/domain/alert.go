package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AlertCondition string

const (
	AlertAbove AlertCondition = "above"
	AlertBelow AlertCondition = "below"
)

// PriceAlert fires when Symbol crosses TargetPrice in the given direction.
type PriceAlert struct {
	ID          uuid.UUID      `json:"id"`
	UserID      string         `json:"userId"`
	Symbol      string         `json:"symbol"`
	TargetPrice float64        `json:"targetPrice"`
	Condition   AlertCondition `json:"condition"`
	IsActive    bool           `json:"isActive"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type NewPriceAlert struct {
	UserID      string
	Symbol      string
	TargetPrice float64
	Condition   AlertCondition
}

func (n NewPriceAlert) Validate() error {
	if strings.TrimSpace(n.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidAlert)
	}
	if n.TargetPrice <= 0 {
		return fmt.Errorf("%w: targetPrice must be positive", ErrInvalidAlert)
	}
	if n.Condition != AlertAbove && n.Condition != AlertBelow {
		return fmt.Errorf("%w: condition must be above or below", ErrInvalidAlert)
	}
	return nil
}

// AlertStore persists price alerts.
type AlertStore interface {
	List(ctx context.Context, userID string) ([]PriceAlert, error)
	Create(ctx context.Context, in NewPriceAlert) (*PriceAlert, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
