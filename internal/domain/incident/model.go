package incident

import (
	"time"

	"github.com/google/uuid"
)

// Status is the compliance rollup for an incident, derived purely from its
// tasks. Only the status derivation writes it.
type Status string

const (
	StatusOpen    Status = "open"
	StatusOverdue Status = "overdue"
	StatusClosed  Status = "closed"
)

// FallType classifies how a fall was discovered. Empty means the incident
// has not been classified yet.
type FallType string

const (
	FallWitnessed   FallType = "witnessed"
	FallUnwitnessed FallType = "unwitnessed"
	FallUnknown     FallType = "unknown"
)

// Incident maps to the incident table. external_id is the source-of-truth
// key used for upsert dedup; incidents are never deleted, only superseded by
// status transitions.
type Incident struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ExternalID  string     `db:"external_id" json:"external_id"`
	Site        string     `db:"site" json:"site"`
	Category    string     `db:"category" json:"category"`
	SubjectID   string     `db:"subject_id" json:"subject_id"`
	SubjectName string     `db:"subject_name" json:"subject_name"`
	Narrative   string     `db:"narrative" json:"narrative"`
	OccurredAt  time.Time  `db:"occurred_at" json:"occurred_at"`
	Witnessed   *bool      `db:"witnessed" json:"witnessed,omitempty"`
	Severity    string     `db:"severity" json:"severity,omitempty"`
	FallType    FallType   `db:"fall_type" json:"fall_type,omitempty"`
	Status      Status     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Classified reports whether a fall type has been assigned. Once set it is
// never recomputed, so historical classifications stay stable even if the
// narrative is later edited.
func (i *Incident) Classified() bool {
	return i.FallType != ""
}
