package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jihoon2park/falltrack/internal/domain/incident"
	"github.com/jihoon2park/falltrack/internal/domain/task"
	"github.com/jihoon2park/falltrack/internal/platform/db"
	"github.com/jihoon2park/falltrack/internal/platform/telemetry"
	"github.com/jihoon2park/falltrack/internal/source"
)

// MatchNotes queries recent progress notes for every active incident at a
// site and completes the visit task each note evidences. A note completes at
// most one task and a task is completed by at most one note; the match is
// the pending task whose due time lies closest to the note's authored time
// within the configured tolerance, with ties going to the earlier due time.
//
// Every active incident also has its status re-derived on each pass, notes
// or not, so a schedule that lapses between passes is surfaced as overdue
// without waiting for new source activity.
func (s *Syncer) MatchNotes(ctx context.Context, site string) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.cfg.NoteLookback())

	active, err := s.incidents.ListActive(ctx, site, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list active incidents for %s: %w", site, err)
	}
	if len(active) == 0 {
		return 0, nil
	}

	cursor, err := s.cursors.Get(ctx, site, CursorNotes)
	if err != nil {
		return 0, fmt.Errorf("load note cursor for %s: %w", site, err)
	}
	baseSince := cutoff
	if !cursor.Position.IsZero() {
		if p := cursor.Position.Add(-s.cfg.CursorOverlap()); p.After(baseSince) {
			baseSince = p
		}
	}

	matched := 0
	var highWater time.Time
	for _, inc := range active {
		tasks, err := s.tasks.ListByIncident(ctx, inc.ID)
		if err != nil {
			return matched, err
		}

		// The site cursor only tracks notes already seen for incidents that
		// were active at the time. An incident that syncs in later may need
		// notes authored behind that watermark, so the query window is
		// widened per incident to cover its earliest open match window.
		var notes []source.Note
		if since, ok := noteWindowStart(tasks, baseSince, s.cfg.MatchTolerance()); ok {
			notes, err = s.client.QueryNotes(ctx, site, inc.SubjectID, s.cfg.NoteCategory, since, now)
			if err != nil {
				s.metrics.IncCounter(telemetry.MetricSyncFailures, 1, "site", site, "stream", CursorNotes)
				return matched, fmt.Errorf("query notes for subject %s: %w", inc.SubjectID, err)
			}
		}

		n, err := s.matchIncidentNotes(ctx, inc, notes)
		if err != nil {
			return matched, err
		}
		matched += n
		if n > 0 {
			s.metrics.IncCounter(telemetry.MetricNotesMatched, int64(n), "site", site)
		}

		for _, note := range notes {
			if note.AuthoredAt.After(highWater) {
				highWater = note.AuthoredAt
			}
		}
	}

	if !highWater.IsZero() {
		if err := s.cursors.Advance(ctx, site, CursorNotes, highWater); err != nil {
			return matched, fmt.Errorf("advance note cursor for %s: %w", site, err)
		}
	}

	if matched > 0 {
		s.log.Info().Str("site", site).Int("matched", matched).Msg("note matching pass complete")
	}
	return matched, nil
}

// noteWindowStart returns the query window start for one incident: the site
// cursor's base window, pulled back if needed so the earliest pending visit's
// tolerance window is fully covered. Returns false when no pending task
// exists, in which case there is nothing a note could complete.
func noteWindowStart(tasks []*task.Task, baseSince time.Time, tolerance time.Duration) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, t := range tasks {
		if !t.Pending() {
			continue
		}
		if !found || t.DueAt.Before(earliest) {
			earliest = t.DueAt
			found = true
		}
	}
	if !found {
		return time.Time{}, false
	}

	since := baseSince
	if w := earliest.Add(-tolerance); w.Before(since) {
		since = w
	}
	return since, true
}

// matchIncidentNotes pairs one incident's notes against its pending tasks in
// a single transaction and re-derives the incident status, so a pass with no
// notes still picks up a schedule that has lapsed since the last derivation.
func (s *Syncer) matchIncidentNotes(ctx context.Context, inc *incident.Incident, notes []source.Note) (int, error) {
	matched := 0
	err := db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		tasks, err := s.tasks.ListByIncident(ctx, inc.ID)
		if err != nil {
			return err
		}

		used := make(map[uuid.UUID]bool)
		for _, note := range notes {
			if alreadyApplied(tasks, note) {
				continue
			}
			t := closestPendingTask(tasks, used, note.AuthoredAt, s.cfg.MatchTolerance())
			if t == nil {
				continue
			}
			if err := s.tasks.Complete(ctx, t.ID, note.AuthoredAt, note.Author); err != nil {
				return err
			}
			t.Status = task.StatusCompleted
			at := note.AuthoredAt
			t.CompletedAt = &at
			t.CompletedBy = note.Author
			used[t.ID] = true
			matched++
		}

		return s.recomputeStatus(ctx, inc)
	})
	return matched, err
}

// alreadyApplied reports whether this note has completed a task in an
// earlier pass. The cursor overlap window re-delivers recent notes; matching
// one of them against a different pending task would double-count the visit.
func alreadyApplied(tasks []*task.Task, note source.Note) bool {
	for _, t := range tasks {
		if t.CompletedAt != nil && t.CompletedAt.Equal(note.AuthoredAt) && t.CompletedBy == note.Author {
			return true
		}
	}
	return false
}

// closestPendingTask picks the match target: among unclaimed pending tasks
// whose due time is within tolerance of authoredAt, the one with the
// smallest absolute offset, breaking ties toward the earlier due time.
func closestPendingTask(tasks []*task.Task, used map[uuid.UUID]bool, authoredAt time.Time, tolerance time.Duration) *task.Task {
	var best *task.Task
	var bestDiff time.Duration
	for _, t := range tasks {
		if !t.Pending() || used[t.ID] {
			continue
		}
		diff := authoredAt.Sub(t.DueAt)
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			continue
		}
		if best == nil || diff < bestDiff || (diff == bestDiff && t.DueAt.Before(best.DueAt)) {
			best = t
			bestDiff = diff
		}
	}
	return best
}
