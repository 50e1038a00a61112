// Package sync polls the external clinical record system, mirrors fall
// incidents locally, generates follow-up task schedules from the active
// policy, and matches progress notes back onto due tasks.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jihoon2park/falltrack/internal/config"
	"github.com/jihoon2park/falltrack/internal/domain/incident"
	"github.com/jihoon2park/falltrack/internal/domain/policy"
	"github.com/jihoon2park/falltrack/internal/domain/schedule"
	"github.com/jihoon2park/falltrack/internal/domain/task"
	"github.com/jihoon2park/falltrack/internal/platform/db"
	"github.com/jihoon2park/falltrack/internal/platform/telemetry"
	"github.com/jihoon2park/falltrack/internal/source"
)

// PolicyFinder resolves the active policy for a fall classification.
// Satisfied by the policy service.
type PolicyFinder interface {
	ActiveFor(ctx context.Context, category, subtype string) (*policy.Policy, error)
}

// Result summarizes one incident sync pass over a site.
type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

type Syncer struct {
	cfg       *config.Config
	client    source.Client
	incidents incident.Repository
	tasks     task.Repository
	policies  PolicyFinder
	cursors   CursorRepository
	pool      *pgxpool.Pool
	metrics   *telemetry.Provider
	log       zerolog.Logger
	now       func() time.Time
}

func NewSyncer(cfg *config.Config, client source.Client, incidents incident.Repository,
	tasks task.Repository, policies PolicyFinder, cursors CursorRepository,
	pool *pgxpool.Pool, metrics *telemetry.Provider, log zerolog.Logger) *Syncer {
	return &Syncer{
		cfg:       cfg,
		client:    client,
		incidents: incidents,
		tasks:     tasks,
		policies:  policies,
		cursors:   cursors,
		pool:      pool,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

// SyncIncidents pulls incidents changed since the site's cursor (minus an
// overlap window) and mirrors them locally. The cursor only advances after
// the whole batch has been persisted, so a failure mid-batch re-queries the
// same records next pass; every write path is idempotent, which makes the
// re-query safe.
func (s *Syncer) SyncIncidents(ctx context.Context, site string, full bool) (Result, error) {
	var res Result
	now := s.now()

	cursor, err := s.cursors.Get(ctx, site, CursorIncidents)
	if err != nil {
		return res, fmt.Errorf("load incident cursor for %s: %w", site, err)
	}

	since := now.Add(-s.cfg.SeedWindow())
	if !full && !cursor.Position.IsZero() {
		since = cursor.Position.Add(-s.cfg.CursorOverlap())
	}

	records, err := s.client.QueryIncidents(ctx, site, since, now)
	if err != nil {
		s.metrics.IncCounter(telemetry.MetricSyncFailures, 1, "site", site, "stream", CursorIncidents)
		return res, fmt.Errorf("query incidents for %s: %w", site, err)
	}

	var highWater time.Time
	for _, rec := range records {
		if err := validateRecord(rec); err != nil {
			s.metrics.IncCounter(telemetry.MetricRecordsRejected, 1, "site", site)
			s.log.Warn().Str("site", site).Str("external_id", rec.ExternalID).
				Err(err).Msg("skipping malformed incident record")
			res.Skipped++
			continue
		}

		created, err := s.processIncident(ctx, site, rec)
		if err != nil {
			s.metrics.IncCounter(telemetry.MetricSyncFailures, 1, "site", site, "stream", CursorIncidents)
			return res, fmt.Errorf("process incident %s: %w", rec.ExternalID, err)
		}
		if created {
			res.Created++
			s.metrics.IncCounter(telemetry.MetricIncidentsCreated, 1, "site", site)
		} else {
			res.Updated++
			s.metrics.IncCounter(telemetry.MetricIncidentsUpdated, 1, "site", site)
		}

		if pos := recordPosition(rec); pos.After(highWater) {
			highWater = pos
		}
	}

	if !highWater.IsZero() {
		if err := s.cursors.Advance(ctx, site, CursorIncidents, highWater); err != nil {
			return res, fmt.Errorf("advance incident cursor for %s: %w", site, err)
		}
	}

	s.log.Info().Str("site", site).
		Int("created", res.Created).Int("updated", res.Updated).Int("skipped", res.Skipped).
		Time("since", since).Msg("incident sync pass complete")
	return res, nil
}

// processIncident mirrors one source record inside its own transaction:
// upsert, classify once, generate the schedule if absent, re-derive status.
func (s *Syncer) processIncident(ctx context.Context, site string, rec source.Incident) (created bool, err error) {
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		inc, err := s.incidents.GetByExternalID(ctx, rec.ExternalID)
		switch {
		case errors.Is(err, incident.ErrNotFound):
			inc = &incident.Incident{
				ExternalID:  rec.ExternalID,
				Site:        site,
				Category:    rec.Category,
				SubjectID:   rec.SubjectID,
				SubjectName: rec.SubjectName,
				Narrative:   rec.Narrative,
				OccurredAt:  rec.OccurredAt,
				Witnessed:   rec.Witnessed,
				Severity:    rec.Severity,
				FallType:    incident.ClassifyFall(rec.Witnessed, rec.Narrative),
				Status:      incident.StatusOpen,
			}
			if err := s.incidents.Create(ctx, inc); err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			inc.SubjectName = rec.SubjectName
			inc.Narrative = rec.Narrative
			inc.Witnessed = rec.Witnessed
			inc.Severity = rec.Severity
			if err := s.incidents.UpdateDetails(ctx, inc); err != nil {
				return err
			}
			if !inc.Classified() {
				inc.FallType = incident.ClassifyFall(rec.Witnessed, rec.Narrative)
				if err := s.incidents.SetFallType(ctx, inc.ID, inc.FallType); err != nil {
					return err
				}
			}
		}

		if err := s.ensureSchedule(ctx, inc); err != nil {
			return err
		}
		return s.recomputeStatus(ctx, inc)
	})
	return created, err
}

// ensureSchedule generates the incident's follow-up tasks when none exist
// yet. A missing active policy is logged and skipped, not failed: the task
// count is re-checked every pass, so the schedule appears as soon as an
// administrator activates a policy.
func (s *Syncer) ensureSchedule(ctx context.Context, inc *incident.Incident) error {
	count, err := s.tasks.CountByIncident(ctx, inc.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	pol, err := s.policies.ActiveFor(ctx, inc.Category, policySubtype(inc.FallType))
	if errors.Is(err, policy.ErrNoActivePolicy) {
		s.log.Warn().Str("incident_id", inc.ID.String()).
			Str("category", inc.Category).Str("fall_type", string(inc.FallType)).
			Msg("no active policy; schedule generation deferred")
		return nil
	}
	if err != nil {
		return err
	}

	generated := schedule.Generate(pol, inc.ID, inc.OccurredAt)
	inserted, err := s.tasks.CreateBatch(ctx, generated)
	if err != nil {
		return err
	}
	if inserted > 0 {
		s.metrics.IncCounter(telemetry.MetricTasksGenerated, int64(inserted), "site", inc.Site)
		s.log.Info().Str("incident_id", inc.ID.String()).Str("policy", pol.Code).
			Int("tasks", inserted).Msg("generated follow-up schedule")
	}
	return nil
}

func (s *Syncer) recomputeStatus(ctx context.Context, inc *incident.Incident) error {
	tasks, err := s.tasks.ListByIncident(ctx, inc.ID)
	if err != nil {
		return err
	}
	status := incident.DeriveStatus(tasks, s.now())
	if status == inc.Status {
		return nil
	}
	inc.Status = status
	return s.incidents.SetStatus(ctx, inc.ID, status)
}

/// Resync forces a full-window pass for a site: incidents first, then note
// matching. Used by the dashboard's manual resync endpoint.
func (s *Syncer) Resync(ctx context.Context, site string) (created, updated int, err error) {
	res, err := s.SyncIncidents(ctx, site, true)
	if err != nil {
		return res.Created, res.Updated, err
	}
	if _, err := s.MatchNotes(ctx, site); err != nil {
		return res.Created, res.Updated, err
	}
	return res.Created, res.Updated, nil
}

// policySubtype maps a fall classification to the policy variant that governs
// it. Unclassifiable falls get the unwitnessed schedule: it is the more
// intensive of the two, so uncertainty errs toward more observation.
func policySubtype(ft incident.FallType) string {
	if ft == incident.FallWitnessed {
		return string(incident.FallWitnessed)
	}
	return string(incident.FallUnwitnessed)
}

func validateRecord(rec source.Incident) error {
	if rec.ExternalID == "" {
		return fmt.Errorf("missing external id")
	}
	if rec.SubjectID == "" {
		return fmt.Errorf("missing subject id")
	}
	if rec.Category == "" {
		return fmt.Errorf("missing category")
	}
	if rec.OccurredAt.IsZero() {
		return fmt.Errorf("missing occurrence time")
	}
	return nil
}

// recordPosition is the timestamp a record contributes to the cursor:
// updated_at when the source supplies it, occurrence time otherwise.
func recordPosition(rec source.Incident) time.Time {
	if rec.UpdatedAt != nil {
		return *rec.UpdatedAt
	}
	return rec.OccurredAt
}
