package sync

import (
	"context"
	"time"

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

type cursorRepoPG struct{ pool *pgxpool.Pool }

func NewCursorRepoPG(pool *pgxpool.Pool) CursorRepository {
	return &cursorRepoPG{pool: pool}
}

func (r *cursorRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *cursorRepoPG) Get(ctx context.Context, site, category string) (*Cursor, error) {
	c := &Cursor{Site: site, Category: category}
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT position, updated_at FROM sync_cursor
		WHERE site = $1 AND category = $2`, site, category).
		Scan(&c.Position, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *cursorRepoPG) Advance(ctx context.Context, site, category string, position time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO sync_cursor (site, category, position, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (site, category) DO UPDATE
		SET position = EXCLUDED.position, updated_at = NOW()
		WHERE sync_cursor.position < EXCLUDED.position`,
		site, category, position)
	return err
}
