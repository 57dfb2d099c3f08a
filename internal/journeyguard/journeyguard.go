// Package journeyguard implements the three atomic predicates composed as
// canSchedule (§4.2): lock acquisition, hasBeenSent, isPending. It also
// hosts markSendAttempt, the worker's atomic claim step.
package journeyguard

import (
	"context"
	"time"

	"github.com/geocoder89/leadflow/internal/lock"
)

type Reason string

const (
	ReasonNone            Reason = ""
	ReasonConcurrent      Reason = "concurrent"
	ReasonAlreadySent     Reason = "already-sent"
	ReasonAlreadyPending  Reason = "already-pending"
)

// Decision is canSchedule's result. Release must be called by the caller
// after persisting (or aborting) the candidate job — see §4.2.
type Decision struct {
	Allowed bool
	Reason  Reason
	Release func(ctx context.Context)
}

// JobLookup is the minimal read surface the guard needs from the
// email-jobs repository.
type JobLookup interface {
	ExistsSuccessfullySent(ctx context.Context, leadID, emailType string) (bool, error)
	ExistsInActiveSet(ctx context.Context, leadID, emailType string) (bool, error)
}

type Guard struct {
	locker  *lock.Locker
	jobs    JobLookup
	lockTTL time.Duration
}

func New(locker *lock.Locker, jobs JobLookup, lockTTL time.Duration) *Guard {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Guard{locker: locker, jobs: jobs, lockTTL: lockTTL}
}

// CanSchedule composes the three predicates in §4.2. On success the lock
// is retained and returned as Decision.Release; the caller MUST call it
// after persisting or aborting the new job.
func (g *Guard) CanSchedule(ctx context.Context, leadID, emailType string) (Decision, error) {
	key := lock.Key(leadID, emailType)

	token, ok, err := g.locker.Acquire(ctx, key, g.lockTTL)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Allowed: false, Reason: ReasonConcurrent, Release: noop}, nil
	}

	release := func(releaseCtx context.Context) {
		_ = g.locker.Release(releaseCtx, key, token)
	}

	sent, err := g.jobs.ExistsSuccessfullySent(ctx, leadID, emailType)
	if err != nil {
		release(ctx)
		return Decision{}, err
	}
	if sent {
		release(ctx)
		return Decision{Allowed: false, Reason: ReasonAlreadySent, Release: noop}, nil
	}

	pending, err := g.jobs.ExistsInActiveSet(ctx, leadID, emailType)
	if err != nil {
		release(ctx)
		return Decision{}, err
	}
	if pending {
		release(ctx)
		return Decision{Allowed: false, Reason: ReasonAlreadyPending, Release: noop}, nil
	}

	return Decision{Allowed: true, Reason: ReasonNone, Release: release}, nil
}

func noop(context.Context) {}

// SendAttemptClaimer is implemented by the email-jobs repository's atomic
// conditional UPDATE described in §4.2: status := sending WHERE id=? AND
// status IN (active-set).
type SendAttemptClaimer interface {
	MarkSendAttempt(ctx context.Context, jobID string, at time.Time) (bool, error)
}

// MarkSendAttempt performs the worker's atomic claim step. false means
// another worker already claimed the job; the caller must skip it.
func MarkSendAttempt(ctx context.Context, claimer SendAttemptClaimer, jobID string) (bool, error) {
	return claimer.MarkSendAttempt(ctx, jobID, time.Now().UTC())
}
