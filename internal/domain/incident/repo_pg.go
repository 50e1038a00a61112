package incident

import (
	"context"
	"fmt"
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

const incidentCols = `id, external_id, site, category, subject_id, subject_name, narrative,
	occurred_at, witnessed, severity, fall_type, status, created_at, updated_at`

func (r *repoPG) scanIncident(row pgx.Row) (*Incident, error) {
	var i Incident
	err := row.Scan(&i.ID, &i.ExternalID, &i.Site, &i.Category, &i.SubjectID, &i.SubjectName,
		&i.Narrative, &i.OccurredAt, &i.Witnessed, &i.Severity, &i.FallType, &i.Status,
		&i.CreatedAt, &i.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *repoPG) Create(ctx context.Context, i *Incident) error {
	i.ID = uuid.New()
	if i.Status == "" {
		i.Status = StatusOpen
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO incident (id, external_id, site, category, subject_id, subject_name,
			narrative, occurred_at, witnessed, severity, fall_type, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		i.ID, i.ExternalID, i.Site, i.Category, i.SubjectID, i.SubjectName,
		i.Narrative, i.OccurredAt, i.Witnessed, i.Severity, i.FallType, i.Status)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Incident, error) {
	return r.scanIncident(r.conn(ctx).QueryRow(ctx,
		`SELECT `+incidentCols+` FROM incident WHERE id = $1`, id))
}

func (r *repoPG) GetByExternalID(ctx context.Context, externalID string) (*Incident, error) {
	return r.scanIncident(r.conn(ctx).QueryRow(ctx,
		`SELECT `+incidentCols+` FROM incident WHERE external_id = $1`, externalID))
}

func (r *repoPG) UpdateDetails(ctx context.Context, i *Incident) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE incident SET subject_name=$2, narrative=$3, witnessed=$4, severity=$5,
			updated_at=NOW()
		WHERE id = $1`,
		i.ID, i.SubjectName, i.Narrative, i.Witnessed, i.Severity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SetFallType(ctx context.Context, id uuid.UUID, ft FallType) error {
	// fall_type is write-once: the guard keeps historical classifications
	// stable even if this is called again with a different result.
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE incident SET fall_type = $2, updated_at = NOW()
		WHERE id = $1 AND fall_type = ''`, id, ft)
	return err
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE incident SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Incident, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	n := 0
	add := func(clause string, val interface{}) {
		n++
		where += fmt.Sprintf(" AND %s $%d", clause, n)
		args = append(args, val)
	}

	if f.Site != "" {
		add("site =", f.Site)
	}
	if f.Category != "" {
		add("category =", f.Category)
	}
	if f.Status != "" {
		add("status =", f.Status)
	}
	if !f.From.IsZero() {
		add("occurred_at >=", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <", f.To)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM incident `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM incident %s ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d`,
		incidentCols, where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Incident
	for rows.Next() {
		i, err := r.scanIncident(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, i)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListActive(ctx context.Context, site string, cutoff time.Time) ([]*Incident, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+incidentCols+` FROM incident
		WHERE site = $1 AND status IN ($2, $3) AND occurred_at >= $4
		ORDER BY occurred_at`, site, StatusOpen, StatusOverdue, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Incident
	for rows.Next() {
		i, err := r.scanIncident(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
