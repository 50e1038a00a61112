package policy

import "testing"

func validPolicy() *Policy {
	return &Policy{
		Code:     "FALL-UNWITNESSED",
		Category: "Fall",
		Subtype:  "unwitnessed",
		Phases: []Phase{
			{Interval: 30, IntervalUnit: UnitMinutes, Duration: 2, DurationUnit: UnitHours},
			{Interval: 1, IntervalUnit: UnitHours, Duration: 2, DurationUnit: UnitHours},
			{Interval: 4, IntervalUnit: UnitHours, Duration: 24, DurationUnit: UnitHours},
		},
		AssignedRole: "nurse",
		Version:      1,
	}
}

func TestUnitMinutes(t *testing.T) {
	tests := []struct {
		unit    Unit
		want    int
		known   bool
	}{
		{UnitMinutes, 1, true},
		{UnitHours, 60, true},
		{UnitDays, 1440, true},
		{Unit("weeks"), 0, false},
		{Unit(""), 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.unit.Minutes()
		if got != tt.want || ok != tt.known {
			t.Errorf("Minutes(%q) = %d, %v; want %d, %v", tt.unit, got, ok, tt.want, tt.known)
		}
	}
}

func TestPhaseVisits(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		want  int
	}{
		{
			name:  "exact division",
			phase: Phase{Interval: 30, IntervalUnit: UnitMinutes, Duration: 2, DurationUnit: UnitHours},
			want:  4,
		},
		{
			name:  "remainder rounds up",
			phase: Phase{Interval: 45, IntervalUnit: UnitMinutes, Duration: 2, DurationUnit: UnitHours},
			want:  3,
		},
		{
			name:  "interval equals duration",
			phase: Phase{Interval: 2, IntervalUnit: UnitHours, Duration: 2, DurationUnit: UnitHours},
			want:  1,
		},
		{
			name:  "interval exceeds duration yields one visit",
			phase: Phase{Interval: 4, IntervalUnit: UnitHours, Duration: 2, DurationUnit: UnitHours},
			want:  1,
		},
		{
			name:  "day-denominated phase",
			phase: Phase{Interval: 4, IntervalUnit: UnitHours, Duration: 1, DurationUnit: UnitDays},
			want:  6,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.phase.Visits(); got != tt.want {
				t.Errorf("Visits() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPolicyTotalDuration(t *testing.T) {
	p := validPolicy()
	// 2h + 2h + 24h = 28h
	if got := p.TotalDurationMinutes(); got != 28*60 {
		t.Errorf("TotalDurationMinutes() = %d, want %d", got, 28*60)
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr bool
	}{
		{"valid", func(p *Policy) {}, false},
		{"missing code", func(p *Policy) { p.Code = "" }, true},
		{"missing category", func(p *Policy) { p.Category = "" }, true},
		{"missing subtype", func(p *Policy) { p.Subtype = "" }, true},
		{"no phases", func(p *Policy) { p.Phases = nil }, true},
		{"zero interval", func(p *Policy) { p.Phases[0].Interval = 0 }, true},
		{"negative duration", func(p *Policy) { p.Phases[1].Duration = -2 }, true},
		{"unknown interval unit", func(p *Policy) { p.Phases[2].IntervalUnit = "fortnights" }, true},
		{"unknown duration unit", func(p *Policy) { p.Phases[0].DurationUnit = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPolicy()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
