package market

import (
	"fmt"
	"os"

	"github.com/pscheid92/marketpulse/internal/domain"
	"gopkg.in/yaml.v2"
)

// SeedQuote is one entry of the initial price table.
type SeedQuote struct {
	Symbol        string   `yaml:"symbol"`
	Name          string   `yaml:"name"`
	Price         float64  `yaml:"price"`
	Change        float64  `yaml:"change"`
	ChangePercent float64  `yaml:"changePercent"`
	Volume        *float64 `yaml:"volume"`
	MarketCap     *float64 `yaml:"marketCap"`
	Sector        *string  `yaml:"sector"`
}

type seedFile struct {
	Quotes []SeedQuote `yaml:"quotes"`
}

// DefaultSeed returns the built-in starting quotes.
func DefaultSeed() []SeedQuote {
	return []SeedQuote{
		{Symbol: "NIFTY", Name: "NIFTY 50", Price: 19674.25, Change: 124.50, ChangePercent: 0.63, Volume: domain.Ptr(0.0), MarketCap: domain.Ptr(0.0), Sector: domain.Ptr("Index")},
		{Symbol: "BANKNIFTY", Name: "BANK NIFTY", Price: 44234.80, Change: -87.20, ChangePercent: -0.20, Volume: domain.Ptr(0.0), MarketCap: domain.Ptr(0.0), Sector: domain.Ptr("Index")},
		{Symbol: "RELIANCE", Name: "Reliance Industries Ltd", Price: 2456.75, Change: 12.30, ChangePercent: 0.50, Volume: domain.Ptr(1250000.0), MarketCap: domain.Ptr(1660000000000.0), Sector: domain.Ptr("Oil & Gas")},
		{Symbol: "TCS", Name: "Tata Consultancy Services", Price: 3687.90, Change: -45.20, ChangePercent: -1.21, Volume: domain.Ptr(890000.0), MarketCap: domain.Ptr(1340000000000.0), Sector: domain.Ptr("IT")},
	}
}

// LoadSeedFile reads seed quotes from a YAML document with a top-level "quotes" list.
func LoadSeedFile(path string) ([]SeedQuote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) ([]SeedQuote, error) {
	var f seedFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Quotes))
	for i, q := range f.Quotes {
		if q.Symbol == "" {
			return nil, fmt.Errorf("seed entry %d: symbol is required", i)
		}
		if _, dup := seen[q.Symbol]; dup {
			return nil, fmt.Errorf("seed entry %d: duplicate symbol %q", i, q.Symbol)
		}
		if q.Price < 0 {
			return nil, fmt.Errorf("seed entry %d: price must not be negative", i)
		}
		seen[q.Symbol] = struct{}{}
	}
	return f.Quotes, nil
}

// Seed upserts every entry into the table in order.
func (t *PriceTable) Seed(quotes []SeedQuote) {
	for _, q := range quotes {
		t.Upsert(q.Symbol, q.update())
	}
}

// ApplyAll merges every entry into the table under one write lock and returns how many
// were applied. Symbols the table does not already hold are skipped.
func (t *PriceTable) ApplyAll(quotes []SeedQuote) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	applied := 0
	for _, sq := range quotes {
		q, ok := t.quotes[sq.Symbol]
		if !ok {
			continue
		}
		applyUpdate(q, sq.update())
		t.touchLocked(q)
		applied++
	}
	return applied
}

func (q SeedQuote) update() domain.QuoteUpdate {
	return domain.QuoteUpdate{
		Name:          domain.Ptr(q.Name),
		Price:         domain.Ptr(q.Price),
		Change:        domain.Ptr(q.Change),
		ChangePercent: domain.Ptr(q.ChangePercent),
		Volume:        q.Volume,
		MarketCap:     q.MarketCap,
		Sector:        q.Sector,
	}
}

// SeedFromQuotes turns previously published quotes back into seed entries,
// so a restart can resume from the last mirrored prices.
func SeedFromQuotes(quotes []domain.Quote) []SeedQuote {
	out := make([]SeedQuote, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, SeedQuote{
			Symbol:        q.Symbol,
			Name:          q.Name,
			Price:         q.Price,
			Change:        q.Change,
			ChangePercent: q.ChangePercent,
			Volume:        q.Volume,
			MarketCap:     q.MarketCap,
			Sector:        q.Sector,
		})
	}
	return out
}
