// Package settings models the singleton, runtime-editable Settings row
// (§3, §6): rate limits, business hours, the followup sequence, paused
// dates, retry config, gateway credentials and the webhook rulebook.
package settings

import "time"

const GlobalID = "global"

type BusinessHours struct {
	StartHour    int // inclusive, 0-23
	EndHour      int // exclusive, 0-23
	WeekendDays  []time.Weekday
	WindowMinutes int // rounding granularity for nextBusinessHourSlot
}

type FollowupStep struct {
	ID         string
	Name       string
	Order      int
	DelayDays  float64
	TemplateID *string
	Enabled    bool
}

type RetryConfig struct {
	MaxAttempts          int
	SoftBounceDelayHours float64
}

type RateLimits struct {
	SendPerSecond      float64
	FollowupPerSecond  float64
	AnalyticsPerSecond float64
}

type GatewayCreds struct {
	BaseURL string
	APIKey  string
	Sender  string
}

// Rulebook lets operators steer the ambiguous webhook-event mappings the
// spec calls out as an open question (spam vs complaint) without a code
// change.
type Rulebook struct {
	SpamMapsToComplaint bool
}

type Settings struct {
	ID               string
	RateLimits       RateLimits
	BusinessHours    BusinessHours
	FollowupSequence []FollowupStep
	PausedDates      []time.Time
	Retry            RetryConfig
	Gateway          GatewayCreds
	Rulebook         Rulebook
	UpdatedAt        time.Time
}

func Default() Settings {
	return Settings{
		ID: GlobalID,
		RateLimits: RateLimits{
			SendPerSecond:      10,
			FollowupPerSecond:  5,
			AnalyticsPerSecond: 10,
		},
		BusinessHours: BusinessHours{
			StartHour:     9,
			EndHour:       18,
			WeekendDays:   []time.Weekday{time.Saturday, time.Sunday},
			WindowMinutes: 15,
		},
		Retry: RetryConfig{
			MaxAttempts:          5,
			SoftBounceDelayHours: 2,
		},
	}
}

// IsPausedDate reports whether t's calendar date (UTC) is in PausedDates.
func (s Settings) IsPausedDate(t time.Time) bool {
	y, m, d := t.UTC().Date()
	for _, p := range s.PausedDates {
		py, pm, pd := p.Date()
		if y == py && m == pm && d == pd {
			return true
		}
	}
	return false
}

// IsWeekendDay reports whether the given weekday is configured as a
// non-working day.
func (s Settings) IsWeekendDay(w time.Weekday) bool {
	for _, wd := range s.BusinessHours.WeekendDays {
		if wd == w {
			return true
		}
	}
	return false
}

// EnabledSequence returns the followup steps that are enabled, sorted by
// Order with a tie-break on lower ID winning (§4.1).
func (s Settings) EnabledSequence() []FollowupStep {
	out := make([]FollowupStep, 0, len(s.FollowupSequence))
	for _, step := range s.FollowupSequence {
		if step.Enabled {
			out = append(out, step)
		}
	}
	sortSteps(out)
	return out
}

func sortSteps(steps []FollowupStep) {
	// insertion sort: sequences are short (a handful of followups), and the
	// tie-break rule (lower id wins on equal order) is easiest to keep
	// correct with a stable, explicit comparator.
	for i := 1; i < len(steps); i++ {
		j := i
		for j > 0 && less(steps[j], steps[j-1]) {
			steps[j], steps[j-1] = steps[j-1], steps[j]
			j--
		}
	}
}

func less(a, b FollowupStep) bool {
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	return a.ID < b.ID
}
