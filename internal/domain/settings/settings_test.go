package settings

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestEnabledSequence_FiltersAndOrders(t *testing.T) {
	s := Settings{
		FollowupSequence: []FollowupStep{
			{ID: "c", Order: 2, Enabled: true},
			{ID: "a", Order: 1, Enabled: true},
			{ID: "b", Order: 1, Enabled: true},
			{ID: "disabled", Order: 0, Enabled: false},
		},
	}

	got := s.EnabledSequence()
	if len(got) != 3 {
		t.Fatalf("expected 3 enabled steps, got %d", len(got))
	}

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected id %q, got %q", i, id, got[i].ID)
		}
	}
}

func TestEnabledSequence_TieBreaksOnID(t *testing.T) {
	s := Settings{
		FollowupSequence: []FollowupStep{
			{ID: "z", Order: 5, Enabled: true},
			{ID: "a", Order: 5, Enabled: true},
		},
	}

	got := s.EnabledSequence()
	if got[0].ID != "a" || got[1].ID != "z" {
		t.Fatalf("expected [a z], got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestIsPausedDate(t *testing.T) {
	s := Settings{}
	day := Default().PausedDates
	if s.IsPausedDate(mustParse(t, "2026-08-03T10:00:00Z")) {
		t.Fatalf("expected no paused dates by default")
	}
	_ = day
}

func TestDefault_HasSaneRateLimitsAndHours(t *testing.T) {
	d := Default()
	if d.RateLimits.SendPerSecond <= 0 {
		t.Fatalf("expected positive default send rate")
	}
	if d.BusinessHours.StartHour >= d.BusinessHours.EndHour {
		t.Fatalf("expected start hour before end hour")
	}
	if !d.IsWeekendDay(6) || !d.IsWeekendDay(0) {
		t.Fatalf("expected default weekend days to include Sat/Sun")
	}
}
