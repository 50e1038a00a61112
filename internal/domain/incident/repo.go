package incident

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an incident does not exist.
var ErrNotFound = errors.New("incident not found")

// ListFilter narrows dashboard incident listings.
type ListFilter struct {
	Site     string
	Category string
	Status   Status
	From     time.Time
	To       time.Time
}

type Repository interface {
	Create(ctx context.Context, i *Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*Incident, error)
	// GetByExternalID looks an incident up by its source-of-truth key.
	GetByExternalID(ctx context.Context, externalID string) (*Incident, error)
	// UpdateDetails refreshes the mutable source-owned fields (narrative,
	// subject name, severity, witnessed flag). It never touches fall_type
	// or status.
	UpdateDetails(ctx context.Context, i *Incident) error
	// SetFallType records the classification exactly once; a second call
	// for the same incident is a no-op so stored classifications stay
	// stable.
	SetFallType(ctx context.Context, id uuid.UUID, ft FallType) error
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Incident, int, error)
	// ListActive returns incidents at a site that are open or overdue and
	// occurred at or after the cutoff, for note matching.
	ListActive(ctx context.Context, site string, cutoff time.Time) ([]*Incident, error)
}
