package market

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/marketpulse/internal/domain"
)

// DefaultLimit is used by the ranking queries when the caller passes limit <= 0.
const DefaultLimit = 10

// PriceTable is the in-memory store of quotes keyed by symbol.
// Every read returns copies; callers never observe a quote mid-mutation.
type PriceTable struct {
	mu     sync.RWMutex
	clock  clockwork.Clock
	quotes map[string]*domain.Quote
	order  []string
}

func NewPriceTable(clock clockwork.Clock) *PriceTable {
	return &PriceTable{
		clock:  clock,
		quotes: make(map[string]*domain.Quote),
	}
}

// Get returns all quotes in insertion order, or only those named in symbols.
// Unknown symbols are omitted. A nil or empty slice means all.
func (t *PriceTable) Get(symbols []string) []domain.Quote {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(symbols) == 0 {
		return t.snapshotLocked()
	}

	wanted := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		wanted[s] = struct{}{}
	}

	result := make([]domain.Quote, 0, len(wanted))
	for _, symbol := range t.order {
		if _, ok := wanted[symbol]; ok {
			result = append(result, t.quotes[symbol].Clone())
		}
	}
	return result
}

func (t *PriceTable) GetBySymbol(symbol string) (domain.Quote, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	q, ok := t.quotes[symbol]
	if !ok {
		return domain.Quote{}, false
	}
	return q.Clone(), true
}

// Upsert merges the non-nil fields of u into the quote for symbol, creating it if needed.
// LastUpdated is always refreshed.
func (t *PriceTable) Upsert(symbol string, u domain.QuoteUpdate) domain.Quote {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.quotes[symbol]
	if !ok {
		q = &domain.Quote{ID: uuid.New(), Symbol: symbol}
		t.quotes[symbol] = q
		t.order = append(t.order, symbol)
	}

	applyUpdate(q, u)
	t.touchLocked(q)
	return q.Clone()
}

// UpdateAll applies fn to every quote under a single write lock.
// Quotes whose fn returns true get a fresh LastUpdated.
func (t *PriceTable) UpdateAll(fn func(q *domain.Quote) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, symbol := range t.order {
		q := t.quotes[symbol]
		if fn(q) {
			t.touchLocked(q)
		}
	}
}

// TopByChangePercent ranks quotes by ChangePercent, descending unless ascending is set.
// Ties keep insertion order.
func (t *PriceTable) TopByChangePercent(limit int, ascending bool) []domain.Quote {
	all := t.Get(nil)
	sort.SliceStable(all, func(i, j int) bool {
		if ascending {
			return all[i].ChangePercent < all[j].ChangePercent
		}
		return all[i].ChangePercent > all[j].ChangePercent
	})
	return truncate(all, limit)
}

// TopByVolume ranks quotes with a positive volume, highest first.
func (t *PriceTable) TopByVolume(limit int) []domain.Quote {
	all := t.Get(nil)
	withVolume := all[:0]
	for _, q := range all {
		if q.HasVolume() {
			withVolume = append(withVolume, q)
		}
	}
	sort.SliceStable(withVolume, func(i, j int) bool {
		return *withVolume[i].Volume > *withVolume[j].Volume
	})
	return truncate(withVolume, limit)
}

func (t *PriceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

func (t *PriceTable) snapshotLocked() []domain.Quote {
	result := make([]domain.Quote, 0, len(t.order))
	for _, symbol := range t.order {
		result = append(result, t.quotes[symbol].Clone())
	}
	return result
}

// touchLocked keeps LastUpdated strictly increasing even when the clock has not moved.
func (t *PriceTable) touchLocked(q *domain.Quote) {
	now := t.clock.Now()
	if !now.After(q.LastUpdated) {
		now = q.LastUpdated.Add(1)
	}
	q.LastUpdated = now
}

func applyUpdate(q *domain.Quote, u domain.QuoteUpdate) {
	if u.Name != nil {
		q.Name = *u.Name
	}
	if u.Price != nil {
		q.Price = *u.Price
	}
	if u.Change != nil {
		q.Change = *u.Change
	}
	if u.ChangePercent != nil {
		q.ChangePercent = *u.ChangePercent
	}
	if u.Volume != nil {
		v := *u.Volume
		q.Volume = &v
	}
	if u.MarketCap != nil {
		m := *u.MarketCap
		q.MarketCap = &m
	}
	if u.Sector != nil {
		s := *u.Sector
		q.Sector = &s
	}
}

func truncate(quotes []domain.Quote, limit int) []domain.Quote {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(quotes) > limit {
		return quotes[:limit]
	}
	return quotes
}
