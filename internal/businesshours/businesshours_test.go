package businesshours

import (
	"testing"
	"time"

	"github.com/geocoder89/leadflow/internal/domain/settings"
)

func hours() settings.BusinessHours {
	return settings.BusinessHours{
		StartHour:     9,
		EndHour:       18,
		WeekendDays:   []time.Weekday{time.Saturday, time.Sunday},
		WindowMinutes: 15,
	}
}

func TestNextSlot_InsideWindow_RoundsUp(t *testing.T) {
	// Monday 10:03 should round up to 10:15, same day.
	candidate := time.Date(2026, 8, 3, 10, 3, 0, 0, time.UTC)
	got := NextSlot("UTC", candidate, hours(), nil)

	want := time.Date(2026, 8, 3, 10, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextSlot_BeforeOpen_PushesToOpen(t *testing.T) {
	candidate := time.Date(2026, 8, 3, 6, 0, 0, 0, time.UTC)
	got := NextSlot("UTC", candidate, hours(), nil)

	want := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextSlot_AfterClose_PushesToNextDayOpen(t *testing.T) {
	candidate := time.Date(2026, 8, 3, 19, 0, 0, 0, time.UTC)
	got := NextSlot("UTC", candidate, hours(), nil)

	want := time.Date(2026, 8, 4, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextSlot_SkipsWeekend(t *testing.T) {
	// Saturday 10:00 -> should land on Monday 9:00.
	candidate := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	got := NextSlot("UTC", candidate, hours(), nil)

	want := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextSlot_SkipsPausedDate(t *testing.T) {
	candidate := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	paused := []time.Time{time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)}

	got := NextSlot("UTC", candidate, hours(), paused)

	want := time.Date(2026, 8, 4, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNextSlot_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	candidate := time.Date(2026, 8, 3, 10, 3, 0, 0, time.UTC)
	got := NextSlot("Not/A/Zone", candidate, hours(), nil)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC fallback, got location %v", got.Location())
	}
}
