package policy

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a policy does not exist.
	ErrNotFound = errors.New("policy not found")
	// ErrNoActivePolicy is returned when no active policy covers a
	// (category, subtype). Schedule generation is skipped and retried on a
	// later sync pass.
	ErrNoActivePolicy = errors.New("no active policy for category/subtype")
)

type Repository interface {
	Create(ctx context.Context, p *Policy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Policy, error)
	Update(ctx context.Context, p *Policy) error
	List(ctx context.Context, limit, offset int) ([]*Policy, int, error)
	// GetActive returns the single active policy for (category, subtype),
	// or ErrNoActivePolicy.
	GetActive(ctx context.Context, category, subtype string) (*Policy, error)
	// Activate marks the policy active and demotes any sibling policy for
	// the same (category, subtype) in the same unit of work.
	Activate(ctx context.Context, id uuid.UUID) error
}
