package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/marketpulse/internal/domain"
)

// AlertStore keeps price alerts in insertion order.
type AlertStore struct {
	mu     sync.RWMutex
	clock  clockwork.Clock
	alerts map[uuid.UUID]domain.PriceAlert
	order  []uuid.UUID
}

func NewAlertStore(clock clockwork.Clock) *AlertStore {
	return &AlertStore{
		clock:  clock,
		alerts: make(map[uuid.UUID]domain.PriceAlert),
	}
}

func (s *AlertStore) List(_ context.Context, userID string) ([]domain.PriceAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PriceAlert, 0, len(s.order))
	for _, id := range s.order {
		if a := s.alerts[id]; a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Create stores a new active alert. The symbol is upper-cased.
func (s *AlertStore) Create(_ context.Context, in domain.NewPriceAlert) (*domain.PriceAlert, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		in.UserID = domain.DefaultUserID
	}

	a := domain.PriceAlert{
		ID:          uuid.New(),
		UserID:      in.UserID,
		Symbol:      strings.ToUpper(strings.TrimSpace(in.Symbol)),
		TargetPrice: in.TargetPrice,
		Condition:   in.Condition,
		IsActive:    true,
		CreatedAt:   s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = a
	s.order = append(s.order, a.ID)
	return &a, nil
}

func (s *AlertStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[id]; !ok {
		return domain.ErrAlertNotFound
	}
	delete(s.alerts, id)
	s.order = removeID(s.order, id)
	return nil
}
