// Package lead holds the Lead aggregate: identity, profile, engagement
// counters and the recomputed aggregate status label.
package lead

import (
	"fmt"
	"strings"
	"time"
)

type Counters struct {
	Sent    int
	Opened  int
	Clicked int
	Bounced int
}

// AggregateStatus is the structured {step, state} pair design-note D.9
// asks for; Format renders it into the free-form API-boundary string such
// as "First Followup:delivered".
type AggregateStatus struct {
	Step  string
	State string
}

func (a AggregateStatus) Format() string {
	if a.Step == "" {
		return a.State
	}
	return fmt.Sprintf("%s:%s", a.Step, a.State)
}

// ParseAggregateStatus is the inverse of Format, for callers that only
// have the flattened string form. It splits at the last colon, since a
// step such as "conditional:<name>" may itself contain one.
func ParseAggregateStatus(s string) AggregateStatus {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return AggregateStatus{State: s}
	}
	return AggregateStatus{Step: s[:i], State: s[i+1:]}
}

type Lead struct {
	ID      string
	Email   string // case-folded
	Name    string
	Company string
	City    string
	Country string
	TZ      string

	Counters Counters
	Score    int
	Tags     []string

	Status       AggregateStatus
	FrozenUntil  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeEmail case-folds a lead's email for identity purposes, per §3.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsFrozen reports whether the lead is currently outside an active
// scheduling window (e.g. unsubscribed cooldown, manual freeze).
func (l Lead) IsFrozen(now time.Time) bool {
	return l.FrozenUntil != nil && now.Before(*l.FrozenUntil)
}
