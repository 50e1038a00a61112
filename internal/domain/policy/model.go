package policy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Unit is a time unit used in visit schedule rules.
type Unit string

const (
	UnitMinutes Unit = "minutes"
	UnitHours   Unit = "hours"
	UnitDays    Unit = "days"
)

// Minutes returns the number of minutes in one unit and whether the unit is
// known.
func (u Unit) Minutes() (int, bool) {
	switch u {
	case UnitMinutes:
		return 1, true
	case UnitHours:
		return 60, true
	case UnitDays:
		return 24 * 60, true
	default:
		return 0, false
	}
}

// Phase is one contiguous segment of a visit schedule: visits every Interval
// for a total of Duration. Phase k+1 begins exactly when phase k's duration
// elapses.
type Phase struct {
	Interval     int  `json:"interval"`
	IntervalUnit Unit `json:"interval_unit"`
	Duration     int  `json:"duration"`
	DurationUnit Unit `json:"duration_unit"`
}

// IntervalMinutes returns the visit interval normalized to minutes.
func (p Phase) IntervalMinutes() int {
	m, _ := p.IntervalUnit.Minutes()
	return p.Interval * m
}

// DurationMinutes returns the phase duration normalized to minutes.
func (p Phase) DurationMinutes() int {
	m, _ := p.DurationUnit.Minutes()
	return p.Duration * m
}

// Visits returns the number of visits the phase requires:
// ceil(duration / interval). A phase whose interval is at least its duration
// yields exactly one visit.
func (p Phase) Visits() int {
	interval := p.IntervalMinutes()
	duration := p.DurationMinutes()
	if interval <= 0 || duration <= 0 {
		return 0
	}
	return (duration + interval - 1) / interval
}

// Policy maps to the policy table. At most one policy is active per
// (category, subtype); superseded versions are retained for audit.
type Policy struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Code             string    `db:"code" json:"code"`
	Category         string    `db:"category" json:"category"`
	Subtype          string    `db:"subtype" json:"subtype"`
	Phases           []Phase   `db:"phases" json:"phases"`
	CommonAssessment string    `db:"common_assessment" json:"common_assessment"`
	AssignedRole     string    `db:"assigned_role" json:"assigned_role"`
	Active           bool      `db:"active" json:"active"`
	Version          int       `db:"version" json:"version"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// TotalDurationMinutes is the full schedule window covered by all phases.
func (p *Policy) TotalDurationMinutes() int {
	total := 0
	for _, ph := range p.Phases {
		total += ph.DurationMinutes()
	}
	return total
}

// Validate checks the policy fully at load/create time so malformed rules
// fail fast administratively instead of corrupting schedules.
func (p *Policy) Validate() error {
	if p.Code == "" {
		return fmt.Errorf("code is required")
	}
	if p.Category == "" {
		return fmt.Errorf("category is required")
	}
	if p.Subtype == "" {
		return fmt.Errorf("subtype is required")
	}
	if len(p.Phases) == 0 {
		return fmt.Errorf("policy %s: at least one phase is required", p.Code)
	}
	for i, ph := range p.Phases {
		if _, ok := ph.IntervalUnit.Minutes(); !ok {
			return fmt.Errorf("policy %s phase %d: unknown interval unit %q", p.Code, i, ph.IntervalUnit)
		}
		if _, ok := ph.DurationUnit.Minutes(); !ok {
			return fmt.Errorf("policy %s phase %d: unknown duration unit %q", p.Code, i, ph.DurationUnit)
		}
		if ph.Interval <= 0 {
			return fmt.Errorf("policy %s phase %d: interval must be positive, got %d", p.Code, i, ph.Interval)
		}
		if ph.Duration <= 0 {
			return fmt.Errorf("policy %s phase %d: duration must be positive, got %d", p.Code, i, ph.Duration)
		}
	}
	return nil
}
