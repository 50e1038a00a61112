package incident

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jihoon2park/falltrack/internal/domain/task"
	"github.com/jihoon2park/falltrack/internal/platform/db"
)

// ErrTaskMismatch is returned when a task does not belong to the incident
// named in the request.
var ErrTaskMismatch = errors.New("task does not belong to incident")

type Service struct {
	repo  Repository
	tasks task.Repository
	pool  *pgxpool.Pool
	now   func() time.Time
}

func NewService(repo Repository, tasks task.Repository, pool *pgxpool.Pool) *Service {
	return &Service{repo: repo, tasks: tasks, pool: pool, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Incident, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Incident, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Tasks(ctx context.Context, incidentID uuid.UUID) ([]*task.Task, error) {
	if _, err := s.repo.GetByID(ctx, incidentID); err != nil {
		return nil, err
	}
	return s.tasks.ListByIncident(ctx, incidentID)
}

// RecomputeStatus re-derives and persists the incident's status from its
// current task state. The write is skipped when nothing changed.
func (s *Service) RecomputeStatus(ctx context.Context, incidentID uuid.UUID) (Status, error) {
	inc, err := s.repo.GetByID(ctx, incidentID)
	if err != nil {
		return "", err
	}
	tasks, err := s.tasks.ListByIncident(ctx, incidentID)
	if err != nil {
		return "", err
	}
	status := DeriveStatus(tasks, s.now())
	if status == inc.Status {
		return status, nil
	}
	if err := s.repo.SetStatus(ctx, incidentID, status); err != nil {
		return "", err
	}
	return status, nil
}

// CompleteTask marks a visit task done on behalf of a staff member and
// recomputes the incident status in the same transaction. This is the manual
// path used when a visit happened but no progress note was filed in the
// source system.
func (s *Service) CompleteTask(ctx context.Context, incidentID, taskID uuid.UUID, completedBy string) (*task.Task, error) {
	t, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.IncidentID != incidentID {
		return nil, ErrTaskMismatch
	}

	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.tasks.Complete(ctx, taskID, s.now(), completedBy); err != nil {
			return err
		}
		_, err := s.RecomputeStatus(ctx, incidentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.tasks.GetByID(ctx, taskID)
}
