package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is the completion state of a follow-up visit task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Task maps to the task table: one concrete, due-dated follow-up visit
// generated from a policy for a specific incident. The composite key
// (incident_id, phase_index, visit_index) is unique, which is what makes
// schedule generation idempotent.
type Task struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	IncidentID   uuid.UUID  `db:"incident_id" json:"incident_id"`
	PolicyID     uuid.UUID  `db:"policy_id" json:"policy_id"`
	PhaseIndex   int        `db:"phase_index" json:"phase_index"`
	VisitIndex   int        `db:"visit_index" json:"visit_index"`
	DueAt        time.Time  `db:"due_at" json:"due_at"`
	AssignedRole string     `db:"assigned_role" json:"assigned_role"`
	Instructions string     `db:"instructions" json:"instructions,omitempty"`
	Status       Status     `db:"status" json:"status"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CompletedBy  string     `db:"completed_by" json:"completed_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Pending reports whether the task still awaits a visit.
func (t *Task) Pending() bool {
	return t.Status == StatusPending
}
