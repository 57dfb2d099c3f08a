// Package scheduler implements §4.1: decide the next EmailJob for a lead
// and materialise it through the journey guard and the delayed queue.
//
// Grounded on bravo1goingdark-mailgrid's scheduler.Scheduler (the overall
// decide-then-enqueue shape) and the teacher's jobs_repo.Create for the
// persistence half of scheduleEmailJob.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/leadflow/internal/businesshours"
	"github.com/geocoder89/leadflow/internal/dispatchqueue"
	"github.com/geocoder89/leadflow/internal/domain/emailjob"
	"github.com/geocoder89/leadflow/internal/domain/lead"
	"github.com/geocoder89/leadflow/internal/domain/settings"
	"github.com/geocoder89/leadflow/internal/journeyguard"
)

var ErrConcurrent = errors.New("scheduler: concurrent scheduling attempt")

const typeInitial = "Initial Email"

// EmailJobsStore is the subset of EmailJobsRepo the scheduler needs.
type EmailJobsStore interface {
	Create(ctx context.Context, j emailjob.Job) error
	ActiveJobsExcludingConditional(ctx context.Context, leadID string) ([]emailjob.Job, error)
	TypesWithAnyJob(ctx context.Context, leadID string) (map[string]bool, error)
	LatestJobOfType(ctx context.Context, leadID, emailType string) (emailjob.Job, error)
}

type LeadLookup interface {
	GetByID(ctx context.Context, id string) (lead.Lead, error)
}

type SettingsLookup interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type Queue interface {
	Enqueue(ctx context.Context, req dispatchqueue.EnqueueRequest) error
}

type Scheduler struct {
	guard    *journeyguard.Guard
	jobs     EmailJobsStore
	leads    LeadLookup
	settings SettingsLookup
	queue    Queue
}

func New(guard *journeyguard.Guard, jobs EmailJobsStore, leads LeadLookup, sett SettingsLookup, queue Queue) *Scheduler {
	return &Scheduler{guard: guard, jobs: jobs, leads: leads, settings: sett, queue: queue}
}

type ScheduleJobParams struct {
	LeadID       string
	Type         string
	Category     emailjob.Category
	ScheduledFor time.Time
	TemplateID   *string
	Metadata     emailjob.Metadata
	Attempt      int
}

// ScheduleEmailJob is the low-level primitive from §4.1: always routed
// through the journey guard so at most one active job per (lead, type)
// can ever exist.
func (s *Scheduler) ScheduleEmailJob(ctx context.Context, p ScheduleJobParams) (emailjob.Job, error) {
	decision, err := s.guard.CanSchedule(ctx, p.LeadID, p.Type)
	if err != nil {
		return emailjob.Job{}, err
	}
	if !decision.Allowed {
		return emailjob.Job{}, ErrConcurrent
	}
	defer decision.Release(ctx)

	l, err := s.leads.GetByID(ctx, p.LeadID)
	if err != nil {
		return emailjob.Job{}, err
	}

	scheduledFor := businesshours.NextSlot(l.TZ, p.ScheduledFor, settingsHoursOrDefault(ctx, s.settings), pausedDatesOrEmpty(ctx, s.settings))

	j := emailjob.New(emailjob.CreateRequest{
		LeadID:       p.LeadID,
		Email:        l.Email,
		Type:         p.Type,
		Category:     p.Category,
		TemplateID:   p.TemplateID,
		ScheduledFor: scheduledFor,
		Metadata:     p.Metadata,
		Attempt:      p.Attempt,
	})

	if err := s.jobs.Create(ctx, j); err != nil {
		return emailjob.Job{}, err
	}

	if err := s.queue.Enqueue(ctx, dispatchqueue.EnqueueRequest{
		Queue:  dispatchqueue.QueueEmailSend,
		JobKey: j.IdempotencyKey,
		Payload: dispatchqueue.EmailSendPayload{
			EmailJobID: j.ID,
			LeadID:     j.LeadID,
			LeadEmail:  j.Email,
			EmailType:  j.Type,
		},
		Delay: time.Until(scheduledFor),
	}); err != nil {
		return emailjob.Job{}, err
	}

	return j, nil
}

// ScheduleNextEmail implements §4.1's higher-level decision: if the lead
// already has an active (non-conditional) job, do nothing. Otherwise pick
// the first enabled followup step not yet represented and materialise it,
// or the initial email if the lead has no Initial Email job yet.
func (s *Scheduler) ScheduleNextEmail(ctx context.Context, leadID string) (*emailjob.Job, error) {
	active, err := s.jobs.ActiveJobsExcludingConditional(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, nil
	}

	sett, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	existingTypes, err := s.jobs.TypesWithAnyJob(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if !existingTypes[typeInitial] {
		j, err := s.ScheduleEmailJob(ctx, ScheduleJobParams{
			LeadID:       leadID,
			Type:         typeInitial,
			Category:     emailjob.CategoryInitial,
			ScheduledFor: time.Now().UTC(),
		})
		if err != nil {
			if errors.Is(err, ErrConcurrent) {
				return nil, nil
			}
			return nil, err
		}
		return &j, nil
	}

	prevType := typeInitial
	for _, step := range sett.EnabledSequence() {
		if existingTypes[step.Name] {
			prevType = step.Name
			continue
		}

		scheduledFor, err := s.delayForStep(ctx, leadID, prevType, step)
		if err != nil {
			return nil, err
		}

		j, err := s.ScheduleEmailJob(ctx, ScheduleJobParams{
			LeadID:       leadID,
			Type:         step.Name,
			Category:     emailjob.CategoryFollowup,
			ScheduledFor: scheduledFor,
			TemplateID:   step.TemplateID,
		})
		if err != nil {
			if errors.Is(err, ErrConcurrent) {
				return nil, nil
			}
			return nil, err
		}
		return &j, nil
	}

	return nil, nil
}

// delayForStep anchors the Nth followup's delay off the previous step's
// job scheduledFor; if none exists, off now (§4.1).
func (s *Scheduler) delayForStep(ctx context.Context, leadID, prevType string, step settings.FollowupStep) (time.Time, error) {
	prev, err := s.jobs.LatestJobOfType(ctx, leadID, prevType)
	if err != nil {
		if errors.Is(err, emailjob.ErrNotFound) {
			return time.Now().UTC().Add(dayDuration(step.DelayDays)), nil
		}
		return time.Time{}, err
	}
	return prev.ScheduledFor.Add(dayDuration(step.DelayDays)), nil
}

func dayDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}

func settingsHoursOrDefault(ctx context.Context, s SettingsLookup) settings.BusinessHours {
	sett, err := s.Get(ctx)
	if err != nil {
		return settings.Default().BusinessHours
	}
	return sett.BusinessHours
}

func pausedDatesOrEmpty(ctx context.Context, s SettingsLookup) []time.Time {
	sett, err := s.Get(ctx)
	if err != nil {
		return nil
	}
	return sett.PausedDates
}
