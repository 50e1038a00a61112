package sync

import (
	"context"
	"time"
)

// Cursor categories. Incidents and notes advance independently per site.
const (
	CursorIncidents = "incidents"
	CursorNotes     = "notes"
)

// Cursor records the high-water mark of a site's sync stream. It only ever
// moves forward; re-querying behind it is done with a fixed overlap window,
// not by rewinding the stored value.
type Cursor struct {
	Site      string    `db:"site" json:"site"`
	Category  string    `db:"category" json:"category"`
	Position  time.Time `db:"position" json:"position"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CursorRepository persists per-(site, category) sync positions. Get returns
// a zero-Position cursor for streams that have never synced.
type CursorRepository interface {
	Get(ctx context.Context, site, category string) (*Cursor, error)
	// Advance moves the cursor forward to position. A position at or behind
	// the stored one is a no-op, which keeps cursors monotonic under
	// concurrent passes.
	Advance(ctx context.Context, site, category string, position time.Time) error
}
