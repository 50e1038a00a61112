package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jihoon2park/falltrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const taskCols = `id, incident_id, policy_id, phase_index, visit_index, due_at,
	assigned_role, instructions, status, completed_at, completed_by, created_at`

func (r *repoPG) scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.IncidentID, &t.PolicyID, &t.PhaseIndex, &t.VisitIndex, &t.DueAt,
		&t.AssignedRole, &t.Instructions, &t.Status, &t.CompletedAt, &t.CompletedBy, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) CreateBatch(ctx context.Context, tasks []*Task) (int, error) {
	inserted := 0
	for _, t := range tasks {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		tag, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO task (id, incident_id, policy_id, phase_index, visit_index,
				due_at, assigned_role, instructions, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (incident_id, phase_index, visit_index) DO NOTHING`,
			t.ID, t.IncidentID, t.PolicyID, t.PhaseIndex, t.VisitIndex,
			t.DueAt, t.AssignedRole, t.Instructions, StatusPending)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	return r.scanTask(r.conn(ctx).QueryRow(ctx,
		`SELECT `+taskCols+` FROM task WHERE id = $1`, id))
}

func (r *repoPG) ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]*Task, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+taskCols+` FROM task
		WHERE incident_id = $1 ORDER BY phase_index, visit_index`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Task
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *repoPG) CountByIncident(ctx context.Context, incidentID uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM task WHERE incident_id = $1`, incidentID).Scan(&count)
	return count, err
}

func (r *repoPG) Complete(ctx context.Context, id uuid.UUID, completedAt time.Time, completedBy string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE task SET status = $2, completed_at = $3, completed_by = $4
		WHERE id = $1 AND status = $5`,
		id, StatusCompleted, completedAt, completedBy, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		t, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if t.Status == StatusCompleted {
			return ErrAlreadyCompleted
		}
		return ErrNotFound
	}
	return nil
}
