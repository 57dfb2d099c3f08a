// Package statusmachine enforces the status hierarchy described in §4.5:
// no downgrades, timestamp back-fill, and lead aggregate recomputation.
package statusmachine

import (
	"time"

	"github.com/geocoder89/leadflow/internal/domain/emailjob"
	"github.com/geocoder89/leadflow/internal/domain/lead"
)

// rank implements the hierarchy diagram in §4.5. Statuses outside the
// table (errors, terminal states) are accepted unconditionally by Accepts,
// matching "OR the new status is outside the hierarchy".
var rank = map[emailjob.Status]int{
	emailjob.StatusScheduled: 1,
	emailjob.StatusQueued:    2,
	emailjob.StatusSending:   2,
	emailjob.StatusSent:      3,
	emailjob.StatusDelivered: 4,
	emailjob.StatusOpened:    5,
	emailjob.StatusClicked:   6,
}

// Rank returns a status's position in the hierarchy and true, or 0 and
// false if it sits outside it (soft_bounce, hard/terminal failures,
// cancellations, etc.)
func Rank(s emailjob.Status) (int, bool) {
	r, ok := rank[s]
	return r, ok
}

// Accepts decides whether transitioning a job from current to next is a
// legal move per §4.5 rule 1: accepted when the new rank >= current rank,
// or when either status sits outside the ranked hierarchy.
func Accepts(current, next emailjob.Status) bool {
	curRank, curRanked := rank[current]
	nextRank, nextRanked := rank[next]

	if !curRanked || !nextRanked {
		return true
	}
	return nextRank >= curRank
}

// Timestamps tracks which lifecycle timestamp field corresponds to which
// status, for the "set only if currently null" rule.
type Timestamps struct {
	SentAt      *time.Time
	DeliveredAt *time.Time
	OpenedAt    *time.Time
	ClickedAt   *time.Time
	BouncedAt   *time.Time
	FailedAt    *time.Time
	DeferredAt  *time.Time
}

// ApplyTimestamp back-fills the timestamp field owned by status, only if
// it is currently nil, and back-fills SentAt for failure events whose
// SentAt is still null (§4.5 rule: "the gateway accepted the message
// before failure").
func ApplyTimestamp(ts *Timestamps, status emailjob.Status, at time.Time) {
	set := func(field **time.Time) {
		if *field == nil {
			t := at
			*field = &t
		}
	}

	switch status {
	case emailjob.StatusSent, emailjob.StatusSending:
		set(&ts.SentAt)
	case emailjob.StatusDelivered:
		set(&ts.DeliveredAt)
	case emailjob.StatusOpened:
		set(&ts.OpenedAt)
	case emailjob.StatusClicked:
		set(&ts.ClickedAt)
	case emailjob.StatusSoftBounce, emailjob.StatusHardBounce:
		set(&ts.BouncedAt)
	case emailjob.StatusDeferred:
		set(&ts.DeferredAt)
	case emailjob.StatusFailed, emailjob.StatusBlocked, emailjob.StatusSpam,
		emailjob.StatusComplaint, emailjob.StatusUnsubscribed, emailjob.StatusInvalid, emailjob.StatusError:
		set(&ts.FailedAt)
	}

	if status.HardFailure() || status == emailjob.StatusFailed {
		set(&ts.SentAt)
	}
}

// IsRescheduleSignal reports the §4.5 rule: soft_bounce/deferred tag the
// job metadata with rescheduled:true for the retry policy.
func IsRescheduleSignal(status emailjob.Status) bool {
	return status == emailjob.StatusSoftBounce || status == emailjob.StatusDeferred
}

// RecomputeLeadStatus derives the aggregate label from a single job: the
// most recently updated one that is not a rescheduled/cancelled/skipped
// predecessor. It does not rank pending jobs above failures and does not
// consult the lead's counters.
//
// jobs must be the full current set of EmailJob rows for the lead.
func RecomputeLeadStatus(jobs []emailjob.Job) lead.AggregateStatus {
	if len(jobs) == 0 {
		return lead.AggregateStatus{State: "new"}
	}

	// Prefer the most recently updated job whose status is not itself a
	// housekeeping artifact (rescheduled/cancelled predecessors).
	var best emailjob.Job
	found := false
	for _, j := range jobs {
		if j.Status == emailjob.StatusRescheduled || j.Status == emailjob.StatusCancelled || j.Status == emailjob.StatusSkipped {
			continue
		}
		if !found || j.UpdatedAt.After(best.UpdatedAt) {
			best = j
			found = true
		}
	}
	if !found {
		// every job for the lead has been superseded; fall back to the most
		// recent row regardless of kind so the label still reflects history.
		best = jobs[0]
		for _, j := range jobs {
			if j.UpdatedAt.After(best.UpdatedAt) {
				best = j
			}
		}
	}

	return lead.AggregateStatus{Step: best.Type, State: string(best.Status)}
}
