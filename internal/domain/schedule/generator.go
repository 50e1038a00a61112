// Package schedule turns an activated visit policy into the concrete set of
// due-dated follow-up tasks for one incident.
package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jihoon2park/falltrack/internal/domain/policy"
	"github.com/jihoon2park/falltrack/internal/domain/task"
)

// Generate expands a policy's phases into tasks anchored at the incident's
// occurrence time. Within a phase, visit v (0-based) is due at
// phaseStart + (v+1)*interval: the first visit comes one interval after the
// phase opens, and the last lands on the phase boundary when the interval
// divides the duration evenly. Phase k+1 starts where phase k's duration
// ends.
//
// The function is deterministic: the same policy and occurrence time always
// produce the same due times, so regenerating is safe against the task
// table's composite-key dedup.
func Generate(pol *policy.Policy, incidentID uuid.UUID, occurredAt time.Time) []*task.Task {
	var tasks []*task.Task
	phaseStart := occurredAt
	for pi, ph := range pol.Phases {
		interval := time.Duration(ph.IntervalMinutes()) * time.Minute
		for v := 0; v < ph.Visits(); v++ {
			tasks = append(tasks, &task.Task{
				IncidentID:   incidentID,
				PolicyID:     pol.ID,
				PhaseIndex:   pi,
				VisitIndex:   v,
				DueAt:        phaseStart.Add(time.Duration(v+1) * interval),
				AssignedRole: pol.AssignedRole,
				Instructions: instructions(pol, pi),
				Status:       task.StatusPending,
			})
		}
		phaseStart = phaseStart.Add(time.Duration(ph.DurationMinutes()) * time.Minute)
	}
	return tasks
}

func instructions(pol *policy.Policy, phaseIndex int) string {
	ph := pol.Phases[phaseIndex]
	text := fmt.Sprintf("Visit every %d %s for %d %s.",
		ph.Interval, ph.IntervalUnit, ph.Duration, ph.DurationUnit)
	if pol.CommonAssessment != "" {
		text += " " + pol.CommonAssessment
	}
	return text
}
