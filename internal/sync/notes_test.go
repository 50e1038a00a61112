package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jihoon2park/falltrack/internal/domain/incident"
	"github.com/jihoon2park/falltrack/internal/domain/policy"
	"github.com/jihoon2park/falltrack/internal/domain/task"
	"github.com/jihoon2park/falltrack/internal/source"
)

func obsNote(id string, authoredAt time.Time) source.Note {
	return source.Note{
		ExternalID: id,
		AuthoredAt: authoredAt,
		Author:     "nurse-7",
		Category:   "Post Fall Observation",
		Text:       "Neuro obs completed, resident settled.",
	}
}

// singleVisitPolicy schedules exactly one visit at T+12h, which makes
// tolerance-boundary cases unambiguous.
func singleVisitPolicy() *policy.Policy {
	return &policy.Policy{
		ID:           uuid.New(),
		Code:         "FALL-MINOR-V1",
		Category:     "Fall",
		Subtype:      "unwitnessed",
		AssignedRole: "nurse",
		Phases: []policy.Phase{
			{Interval: 12, IntervalUnit: policy.UnitHours, Duration: 12, DurationUnit: policy.UnitHours},
		},
	}
}

// seedSyncedIncident runs a sync pass so the fixture holds one classified
// incident with its generated schedule.
func seedSyncedIncident(t *testing.T, f *fixture, pol *policy.Policy, occurred time.Time) *incident.Incident {
	t.Helper()
	f.policies.add(pol)
	f.client.incidents["riverside"] = []source.Incident{fallRecord("ext-1", occurred)}
	if _, err := f.syncer.SyncIncidents(context.Background(), "riverside", false); err != nil {
		t.Fatal(err)
	}
	inc, err := f.incidents.GetByExternalID(context.Background(), "ext-1")
	if err != nil {
		t.Fatal(err)
	}
	return inc
}

func taskDueAt(t *testing.T, f *fixture, incidentID uuid.UUID, due time.Time) *task.Task {
	t.Helper()
	for _, tk := range f.tasks.tasks {
		if tk.IncidentID == incidentID && tk.DueAt.Equal(due) {
			return tk
		}
	}
	t.Fatalf("no task due at %v", due)
	return nil
}

func TestMatchNotes_CompletesClosestTask(t *testing.T) {
	occurred := time.Date(2025, 10, 13, 7, 0, 0, 0, time.UTC)
	f := newFixture(occurred.Add(2 * time.Hour))
	inc := seedSyncedIncident(t, f, standardPolicy(), occurred)

	// Note at 07:29 sits 1 minute before the 07:30 visit and 31 minutes
	// before the 08:00 one: it completes the first.
	f.client.notes["res-42"] = []source.Note{
		obsNote("note-1", occurred.Add(29*time.Minute)),
	}

	matched, err := f.syncer.MatchNotes(context.Background(), "riverside")
	if err != nil {
		t.Fatalf("MatchNotes() returned error: %v", err)
	}
	if matched != 1 {
		t.Fatalf("expected 1 match, got %d", matched)
	}

	first := taskDueAt(t, f, inc.ID, occurred.Add(30*time.Minute))
	if first.Status != task.StatusCompleted {
		t.Errorf("expected 07:30 task completed, got %q", first.Status)
	}
	if first.CompletedBy != "nurse-7" {
		t.Errorf("expected completion attributed to note author, got %q", first.CompletedBy)
	}
	if first.CompletedAt == nil || !first.CompletedAt.Equal(occurred.Add(29*time.Minute)) {
		t.Error("completion time must be the note's authored time")
	}
	second := taskDueAt(t, f, inc.ID, occurred.Add(time.Hour))
	if second.Status != task.StatusPending {
		t.Errorf("08:00 task must stay pending, got %q", second.Status)
	}
}

func TestMatchNotes_ToleranceBoundary(t *testing.T) {
	occurred := time.Date(2025, 10, 13, 7, 0, 0, 0, time.UTC)
	due := occurred.Add(12 * time.Hour)

	tests := []struct {
		name       string
		authoredAt time.Time
		wantMatch  bool
	}{
		{"well before due", due.Add(-5 * time.Minute), true},
		{"just inside after", due.Add(29*time.Minute + 59*time.Second), true},
		{"exactly at tolerance", due.Add(30 * time.Minute), true},
		{"just outside after", due.Add(30*time.Minute + 1*time.Second), false},
		{"just outside before", due.Add(-30*time.Minute - 1*time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(occurred.Add(14 * time.Hour))
			seedSyncedIncident(t, f, singleVisitPolicy(), occurred)
			f.client.notes["res-42"] = []source.Note{obsNote("note-1", tt.authoredAt)}

			matched, err := f.syncer.MatchNotes(context.Background(), "riverside")
			if err != nil {
				t.Fatal(err)
			}
			if (matched == 1) != tt.wantMatch {
				t.Errorf("matched=%d, want match=%v", matched, tt.wantMatch)
			}
		})
	}
}

func TestMatchNotes_TiePrefersEarlierDue(t *testing.T) {
	occurred := time.Date(2025, 10, 13, 7, 0, 0, 0, time.UTC)
	f := newFixture(occurred.Add(3 * time.Hour))
	inc := seedSyncedIncident(t, f, standardPolicy(), occurred)

	// 07:45 is equidistant from the 07:30 and 08:00 visits; the earlier due
	// time wins.
	f.client.notes["res-42"] = []source.Note{
		obsNote("note-1", occurred.Add(45*time.Minute)),
	}
	if _, err := f.syncer.MatchNotes(context.Background(), "riverside"); err != nil {
		t.Fatal(err)
	}

	first := taskDueAt(t, f, inc.ID, occurred.Add(30*time.Minute))
	if first.Status != task.StatusCompleted {
		t.Errorf("tie must complete the earlier visit, got %q", first.Status)
	}
	second := taskDueAt(t, f, inc.ID, occurred.Add(time.Hour))
	if second.Status != task.StatusPending {
		t.Errorf("later visit must stay pending on a tie, got %q", second.Status)
	}
}

func TestMatchNotes_OneNoteOneTask(t *testing.T) {
	occurred := time.Date(2025, 10, 13, 7, 0, 0, 0, time.UTC)
	f := newFixture(occurred.Add(3 * time.Hour))
	inc := seedSyncedIncident(t, f, standardPolicy(), occurred)

	// Two notes near the same visit: the first claims it, the second falls
	// through to the next pending visit within tolerance.
	f.client.notes["res-42"] = []source.Note{
		obsNote("note-1", occurred.Add(29*time.Minute)),
		obsNote("note-2", occurred.Add(33*time.Minute)),
	}
	matched, err := f.syncer.MatchNotes(context.Background(), "riverside")
	if err != nil {
		t.Fatal(err)
	}
	if matched != 2 {
		t.Fatalf("expected 2 matches, got %d", matched)
	}

	first := taskDueAt(t, f, inc.ID, occurred.Add(30*time.Minute))
	second := taskDueAt(t, f, inc.ID, occurred.Add(time.Hour))
	if first.Status != task.StatusCompleted || second.Status != task.StatusCompleted {
		t.Errorf("expected both early visits completed, got %q and %q", first.Status, second.Status)
	}
}

func TestMatchNotes_ReplayedNoteNotRematched(t *testing.T) {
	occurred := time.Date(2025, 10, 13, 7, 0, 0, 0, time.UTC)
	f := newFixture(occurred.Add(3 * time.Hour))
	inc := seedSyncedIncident(t, f, standardPolicy(), occurred)

	f.client.notes["res-42"] = []source.Note{
		obsNote("note-1", occurred.Add(29*time.Minute)),
	}
	if _, err := f.syncer.MatchNotes(context.Background(), "riverside"); err != nil {
		t.Fatal(err)
	}

	// The overlap window re-delivers the same note next pass; it must not
	// claim a second task.
	f.cursors.cursors["riverside/notes"] = time.Time{}
	matched, err := f.syncer.MatchNotes(context.Background(), "riverside")
	if err != nil {
		t.Fatal(err)
	}
	if matched != 0 {
		t.Errorf("replayed note matched %d tasks, want 0", matched)
	}
	second := taskDueAt(t, f, inc.ID, occurred.Add(time.Hour))
	if second.Status != task.StatusPending {
		t.Errorf("replayed note stole the next visit: %q", second.Status)
	}
}

func TestMatchNotes_LateSyncedIncidentGetsOlderNotes(t *testing.T) {
	now := time.Date(2025, 10, 13, 12, 0, 0, 0, time.UTC)
	f := newFixture(now)
	f.policies.add(standardPolicy())

	// First incident syncs and its 10:00 note matches, advancing the site
	// note cursor to 10:00.
	occurredA := time.Date(2025, 10, 13, 9, 30, 0, 0, time.UTC)
	f.client.incidents["riverside"] = []source.Incident{fallRecord("ext-a", occurredA)}
	if _, err := f.syncer.SyncIncidents(context.Background(), "riverside", false); err != nil {
		t.Fatal(err)
	}
	f.client.notes["res-42"] = []source.Note{obsNote("note-a", occurredA.Add(30*time.Minute))}
	if _, err := f.syncer.MatchNotes(context.Background(), "riverside"); err != nil {
		t.Fatal(err)
	}
	if got := f.cursors.cursors["riverside/notes"]; !got.Equal(occurredA.Add(30 * time.Minute)) {
		t.Fatalf("cursor position %v, want %v", got, occurredA.Add(30*time.Minute))
	}

	// A 07:00 incident only lands on a later full pass. Its observation note
	// was authored at 07:30, well behind the site cursor, and must still
	// complete the 07:30 visit.
	occurredB := time.Date(2025, 10, 13, 7, 0, 0, 0, time.UTC)
	recB := fallRecord("ext-b", occurredB)
	recB.SubjectID = "res-77"
	f.client.incidents["riverside"] = []source.Incident{recB}
	if _, err := f.syncer.SyncIncidents(context.Background(), "riverside", true); err != nil {
		t.Fatal(err)
	}
	f.client.notes["res-77"] = []source.Note{obsNote("note-b", occurredB.Add(30*time.Minute))}

	matched, err := f.syncer.MatchNotes(context.Background(), "riverside")
	if err != nil {
		t.Fatal(err)
	}
	if matched != 1 {
		t.Fatalf("expected the older note to match, got %d", matched)
	}
	incB, err := f.incidents.GetByExternalID(context.Background(), "ext-b")
	if err != nil {
		t.Fatal(err)
	}
	first := taskDueAt(t, f, incB.ID, occurredB.Add(30*time.Minute))
	if first.Status != task.StatusCompleted {
		t.Errorf("expected 07:30 visit completed from the older note, got %q", first.Status)
	}
}

func TestMatchNotes_RederivesStatusWithoutNotes(t *testing.T) {
	occurred := time.Date(2025, 10, 13, 7, 0, 0, 0, time.UTC)
	f := newFixture(occurred.Add(2 * time.Hour))
	inc := seedSyncedIncident(t, f, singleVisitPolicy(), occurred)
	if inc.Status != incident.StatusOpen {
		t.Fatalf("expected open before the visit is due, got %q", inc.Status)
	}

	// The 19:00 visit lapses with no new source activity; a matcher pass
	// with zero notes must still flip the persisted status to overdue.
	f.now = occurred.Add(14 * time.Hour)
	matched, err := f.syncer.MatchNotes(context.Background(), "riverside")
	if err != nil {
		t.Fatal(err)
	}
	if matched != 0 {
		t.Fatalf("expected no matches, got %d", matched)
	}
	stored, err := f.incidents.GetByID(context.Background(), inc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != incident.StatusOverdue {
		t.Errorf("expected overdue after the visit lapsed, got %q", stored.Status)
	}
}

func TestMatchNotes_ClosesIncidentWhenAllVisitsDone(t *testing.T) {
	occurred := time.Date(2025, 10, 13, 7, 0, 0, 0, time.UTC)
	f := newFixture(occurred.Add(14 * time.Hour))
	inc := seedSyncedIncident(t, f, singleVisitPolicy(), occurred)
	if inc.Status != incident.StatusOverdue {
		t.Fatalf("expected overdue before matching, got %q", inc.Status)
	}

	f.client.notes["res-42"] = []source.Note{
		obsNote("note-1", occurred.Add(12*time.Hour+5*time.Minute)),
	}
	matched, err := f.syncer.MatchNotes(context.Background(), "riverside")
	if err != nil {
		t.Fatal(err)
	}
	if matched != 1 {
		t.Fatalf("expected 1 match, got %d", matched)
	}
	if inc.Status != incident.StatusClosed {
		t.Errorf("expected closed after final visit, got %q", inc.Status)
	}
}

func TestMatchNotes_IgnoresClosedIncidents(t *testing.T) {
	occurred := time.Date(2025, 10, 13, 7, 0, 0, 0, time.UTC)
	f := newFixture(occurred.Add(14 * time.Hour))
	inc := seedSyncedIncident(t, f, singleVisitPolicy(), occurred)
	_ = f.incidents.SetStatus(context.Background(), inc.ID, incident.StatusClosed)

	f.client.notes["res-42"] = []source.Note{
		obsNote("note-1", occurred.Add(12 * time.Hour)),
	}
	matched, err := f.syncer.MatchNotes(context.Background(), "riverside")
	if err != nil {
		t.Fatal(err)
	}
	if matched != 0 {
		t.Errorf("closed incidents must not be matched, got %d", matched)
	}
}
