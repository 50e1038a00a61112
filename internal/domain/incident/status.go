package incident

import (
	"time"

	"github.com/jihoon2park/falltrack/internal/domain/task"
)

// DeriveStatus recomputes an incident's compliance status from the full
// current state of its tasks. It is a pure re-derivation rather than an
// incremental transition table, so the status can never drift out of sync
// with task reality.
//
// Rules, in order:
//   - all tasks completed            -> closed
//   - last-due task past due and at  -> overdue
//     least one task still pending
//   - otherwise                      -> open
//
// An incident with no tasks yet (awaiting classification or an active
// policy) stays open; the dashboard distinguishes it by task count.
func DeriveStatus(tasks []*task.Task, now time.Time) Status {
	if len(tasks) == 0 {
		return StatusOpen
	}

	allCompleted := true
	anyPending := false
	var lastDue time.Time
	for _, t := range tasks {
		if t.Pending() {
			allCompleted = false
			anyPending = true
		}
		if t.DueAt.After(lastDue) {
			lastDue = t.DueAt
		}
	}

	if allCompleted {
		return StatusClosed
	}
	if anyPending && lastDue.Before(now) {
		return StatusOverdue
	}
	return StatusOpen
}
