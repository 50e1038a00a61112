package policy

import (
	"context"
	"encoding/json"
	"fmt"

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

const policyCols = `id, code, category, subtype, phases, common_assessment, assigned_role,
	active, version, created_at, updated_at`

func (r *repoPG) scanPolicy(row pgx.Row) (*Policy, error) {
	var p Policy
	var phasesJSON []byte
	err := row.Scan(&p.ID, &p.Code, &p.Category, &p.Subtype, &phasesJSON, &p.CommonAssessment,
		&p.AssignedRole, &p.Active, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(phasesJSON, &p.Phases); err != nil {
		return nil, fmt.Errorf("decode phases for policy %s: %w", p.Code, err)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Policy) error {
	p.ID = uuid.New()
	phasesJSON, err := json.Marshal(p.Phases)
	if err != nil {
		return fmt.Errorf("encode phases: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO policy (id, code, category, subtype, phases, common_assessment,
			assigned_role, active, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Code, p.Category, p.Subtype, phasesJSON, p.CommonAssessment,
		p.AssignedRole, p.Active, p.Version)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Policy, error) {
	return r.scanPolicy(r.conn(ctx).QueryRow(ctx,
		`SELECT `+policyCols+` FROM policy WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Policy) error {
	phasesJSON, err := json.Marshal(p.Phases)
	if err != nil {
		return fmt.Errorf("encode phases: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE policy SET code=$2, category=$3, subtype=$4, phases=$5,
			common_assessment=$6, assigned_role=$7, version=$8, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Code, p.Category, p.Subtype, phasesJSON,
		p.CommonAssessment, p.AssignedRole, p.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Policy, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM policy`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+policyCols+` FROM policy
		ORDER BY category, subtype, version DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Policy
	for rows.Next() {
		p, err := r.scanPolicy(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) GetActive(ctx context.Context, category, subtype string) (*Policy, error) {
	p, err := r.scanPolicy(r.conn(ctx).QueryRow(ctx,
		`SELECT `+policyCols+` FROM policy
		 WHERE category = $1 AND subtype = $2 AND active = TRUE`, category, subtype))
	if err == ErrNotFound {
		return nil, ErrNoActivePolicy
	}
	return p, err
}

func (r *repoPG) Activate(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)

		var category, subtype string
		err := tx.QueryRow(ctx, `SELECT category, subtype FROM policy WHERE id = $1`, id).
			Scan(&category, &subtype)
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE policy SET active = FALSE, updated_at = NOW()
			WHERE category = $1 AND subtype = $2 AND active = TRUE`, category, subtype); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE policy SET active = TRUE, updated_at = NOW()
			WHERE id = $1`, id)
		return err
	})
}
