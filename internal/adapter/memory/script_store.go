package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/marketpulse/internal/domain"
)

// ScriptStore keeps pine scripts in insertion order.
type ScriptStore struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	scripts map[uuid.UUID]*domain.PineScript
	order   []uuid.UUID
}

func NewScriptStore(clock clockwork.Clock) *ScriptStore {
	return &ScriptStore{
		clock:   clock,
		scripts: make(map[uuid.UUID]*domain.PineScript),
	}
}

// List returns every script, or only those owned by userID when it is non-empty.
func (s *ScriptStore) List(_ context.Context, userID string) ([]domain.PineScript, error) {
	return s.filter(func(p *domain.PineScript) bool {
		return userID == "" || p.UserID == userID
	}), nil
}

// Search matches query case-insensitively against name and description.
func (s *ScriptStore) Search(_ context.Context, query string, category *domain.ScriptCategory) ([]domain.PineScript, error) {
	q := strings.ToLower(query)
	return s.filter(func(p *domain.PineScript) bool {
		if category != nil && p.Category != *category {
			return false
		}
		if strings.Contains(strings.ToLower(p.Name), q) {
			return true
		}
		return p.Description != nil && strings.Contains(strings.ToLower(*p.Description), q)
	}), nil
}

func (s *ScriptStore) Get(_ context.Context, id uuid.UUID) (*domain.PineScript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.scripts[id]
	if !ok {
		return nil, domain.ErrScriptNotFound
	}
	out := clonePineScript(p)
	return &out, nil
}

func (s *ScriptStore) Create(_ context.Context, in domain.NewPineScript) (*domain.PineScript, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		in.UserID = domain.DefaultUserID
	}

	now := s.clock.Now()
	p := &domain.PineScript{
		ID:          uuid.New(),
		UserID:      in.UserID,
		Name:        in.Name,
		Description: copyString(in.Description),
		Category:    in.Category,
		Code:        in.Code,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[p.ID] = p
	s.order = append(s.order, p.ID)

	out := clonePineScript(p)
	return &out, nil
}

func (s *ScriptStore) Update(_ context.Context, id uuid.UUID, patch domain.PineScriptPatch) (*domain.PineScript, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.scripts[id]
	if !ok {
		return nil, domain.ErrScriptNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = copyString(patch.Description)
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Code != nil {
		p.Code = *patch.Code
	}
	p.UpdatedAt = s.clock.Now()

	out := clonePineScript(p)
	return &out, nil
}

func (s *ScriptStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scripts[id]; !ok {
		return domain.ErrScriptNotFound
	}
	delete(s.scripts, id)
	s.order = removeID(s.order, id)
	return nil
}

func (s *ScriptStore) IncrementViews(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.scripts[id]
	if !ok {
		return domain.ErrScriptNotFound
	}
	p.Views++
	return nil
}

func (s *ScriptStore) filter(keep func(*domain.PineScript) bool) []domain.PineScript {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PineScript, 0, len(s.order))
	for _, id := range s.order {
		p := s.scripts[id]
		if keep(p) {
			out = append(out, clonePineScript(p))
		}
	}
	return out
}

func clonePineScript(p *domain.PineScript) domain.PineScript {
	out := *p
	out.Description = copyString(p.Description)
	return out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
