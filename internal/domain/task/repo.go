package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrAlreadyCompleted is returned when completing a task twice.
	ErrAlreadyCompleted = errors.New("task is already completed")
)

type Repository interface {
	// CreateBatch inserts tasks, silently skipping rows whose composite key
	// (incident_id, phase_index, visit_index) already exists. Duplicate
	// generation attempts therefore no-op instead of racing. Returns the
	// number of rows actually inserted.
	CreateBatch(ctx context.Context, tasks []*Task) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	// ListByIncident returns all tasks for the incident ordered by
	// (phase_index, visit_index).
	ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*Task, error)
	CountByIncident(ctx context.Context, incidentID uuid.UUID) (int, error)
	// Complete transitions a pending task to completed. Completing an
	// already-completed task returns ErrAlreadyCompleted.
	Complete(ctx context.Context, id uuid.UUID, completedAt time.Time, completedBy string) error
}
