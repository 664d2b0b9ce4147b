package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultUserID owns every script and alert until authentication exists.
const DefaultUserID = "default-user"

type ScriptCategory string

const (
	ScriptCategoryStrategy  ScriptCategory = "strategy"
	ScriptCategoryIndicator ScriptCategory = "indicator"
	ScriptCategoryStudy     ScriptCategory = "study"
)

func (c ScriptCategory) Valid() bool {
	switch c {
	case ScriptCategoryStrategy, ScriptCategoryIndicator, ScriptCategoryStudy:
		return true
	default:
		return false
	}
}

// PineScript is a user-authored TradingView script kept alongside the dashboard.
type PineScript struct {
	ID          uuid.UUID      `json:"id"`
	UserID      string         `json:"userId"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	Category    ScriptCategory `json:"category"`
	Code        string         `json:"code"`
	Views       int            `json:"views"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// NewPineScript is the input for creating a script.
type NewPineScript struct {
	UserID      string
	Name        string
	Description *string
	Category    ScriptCategory
	Code        string
}

func (n NewPineScript) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScript)
	}
	if strings.TrimSpace(n.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidScript)
	}
	if !n.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidScript, n.Category)
	}
	return nil
}

// PineScriptPatch carries a partial update. Nil fields are left untouched.
type PineScriptPatch struct {
	Name        *string
	Description *string
	Category    *ScriptCategory
	Code        *string
}

func (p PineScriptPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidScript)
	}
	if p.Code != nil && strings.TrimSpace(*p.Code) == "" {
		return fmt.Errorf("%w: code must not be empty", ErrInvalidScript)
	}
	if p.Category != nil && !p.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidScript, *p.Category)
	}
	return nil
}

// ScriptStore persists pine scripts.
type ScriptStore interface {
	List(ctx context.Context, userID string) ([]PineScript, error)
	Search(ctx context.Context, query string, category *ScriptCategory) ([]PineScript, error)
	Get(ctx context.Context, id uuid.UUID) (*PineScript, error)
	Create(ctx context.Context, in NewPineScript) (*PineScript, error)
	Update(ctx context.Context, id uuid.UUID, patch PineScriptPatch) (*PineScript, error)
	Delete(ctx context.Context, id uuid.UUID) error
	IncrementViews(ctx context.Context, id uuid.UUID) error
}
