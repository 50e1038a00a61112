// Package source is the client boundary to the external clinical record
// system. The external system is read-only from our side: we poll it for
// safety incidents and clinical progress notes per site.
package source

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks transient source failures (timeouts, 5xx). Callers
// leave their sync cursor unadvanced and retry on the next poll.
var ErrUnavailable = errors.New("clinical record source unavailable")

// Incident is a safety incident as reported by the external system.
type Incident struct {
	ExternalID  string     `json:"id"`
	Category    string     `json:"category"`
	OccurredAt  time.Time  `json:"occurred_at"`
	SubjectID   string     `json:"subject_id"`
	SubjectName string     `json:"subject_name"`
	Narrative   string     `json:"narrative"`
	Witnessed   *bool      `json:"witnessed,omitempty"`
	Severity    string     `json:"severity,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Note is a clinical progress note authored in the external system.
type Note struct {
	ExternalID string    `json:"id"`
	AuthoredAt time.Time `json:"authored_at"`
	Author     string    `json:"author"`
	Category   string    `json:"category"`
	Text       string    `json:"text"`
}

// Client queries the external clinical record system. An empty result slice
// is a normal outcome, not an error.
type Client interface {
	// QueryIncidents returns incidents for a site changed within [since, until).
	QueryIncidents(ctx context.Context, site string, since, until time.Time) ([]Incident, error)
	// QueryNotes returns notes of the given category authored for a subject
	// within [since, until).
	QueryNotes(ctx context.Context, site, subjectID, category string, since, until time.Time) ([]Note, error)
}
