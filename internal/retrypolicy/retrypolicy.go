// Package retrypolicy implements §4.8: soft_bounce/deferred/failed events
// either spawn a successor EmailJob with a back-off delay, or exhaust into
// a terminal `dead` state.
package retrypolicy

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/geocoder89/leadflow/internal/domain/emailjob"
	"github.com/geocoder89/leadflow/internal/domain/settings"
)

const reasonMaxRetriesExceeded = "Max retries exceeded"

// EmailJobsStore is the subset of EmailJobsRepo the retry policy needs.
type EmailJobsStore interface {
	Create(ctx context.Context, j emailjob.Job) error
	MarkCancelled(ctx context.Context, id, reason string) error
	SetStatus(ctx context.Context, id string, status emailjob.Status) error
	MarkRescheduled(ctx context.Context, id string) error
}

type SettingsLookup interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type Policy struct {
	jobs     EmailJobsStore
	settings SettingsLookup
}

func New(jobs EmailJobsStore, sett SettingsLookup) *Policy {
	return &Policy{jobs: jobs, settings: sett}
}

// Apply runs the §4.8 decision for one failed job event. originalJob must
// be the just-failed job (already carrying the incremented retryCount
// semantics are handled here: RetryCount is the count BEFORE this event).
func (p *Policy) Apply(ctx context.Context, originalJob emailjob.Job, eventType string) error {
	sett, err := p.settings.Get(ctx)
	if err != nil {
		return err
	}

	maxAttempts := sett.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	if originalJob.RetryCount >= maxAttempts {
		return p.jobs.SetStatus(ctx, originalJob.ID, emailjob.StatusDead)
	}

	delay := p.delayFor(eventType, sett, originalJob.RetryCount)

	successor := emailjob.New(emailjob.CreateRequest{
		LeadID:       originalJob.LeadID,
		Email:        originalJob.Email,
		Type:         originalJob.Type,
		Category:     originalJob.Category,
		TemplateID:   originalJob.TemplateID,
		ScheduledFor: time.Now().UTC().Add(delay),
		Metadata: emailjob.Metadata{
			Rescheduled: true,
			RetryReason: eventType,
		},
		Attempt: originalJob.RetryCount + 1,
	})
	successor.RetryCount = originalJob.RetryCount + 1

	if err := p.jobs.Create(ctx, successor); err != nil {
		return err
	}

	return p.jobs.MarkRescheduled(ctx, originalJob.ID)
}

func (p *Policy) delayFor(eventType string, sett settings.Settings, retryCount int) time.Duration {
	softBounceHours := sett.Retry.SoftBounceDelayHours
	if softBounceHours <= 0 {
		softBounceHours = 2
	}

	switch eventType {
	case "soft_bounce":
		return hours(softBounceHours)
	case "deferred":
		return time.Hour
	case "failed":
		delay := softBounceHours * math.Pow(2, float64(retryCount))
		if delay > 48 {
			delay = 48
		}
		return hours(delay)
	default:
		return hours(softBounceHours)
	}
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// IsHardFailure reports the §4.8 non-retriable set that must propagate to
// a lead-terminal state instead of spawning a successor.
func IsHardFailure(status emailjob.Status) bool {
	return status.HardFailure()
}

var ErrNotRetriable = errors.New("retrypolicy: status is not retriable")
