// Package conditional implements the trigger engine from §4.7: given a
// delivery/engagement event, materialise any configured ConditionalEmail
// that matches and has not already fired for this lead.
package conditional

import (
	"context"
	"time"

	"github.com/geocoder89/leadflow/internal/businesshours"
	"github.com/geocoder89/leadflow/internal/dispatchqueue"
	"github.com/geocoder89/leadflow/internal/domain/conditional"
	"github.com/geocoder89/leadflow/internal/domain/emailjob"
	"github.com/geocoder89/leadflow/internal/domain/lead"
	"github.com/geocoder89/leadflow/internal/domain/settings"
)

type ConfigStore interface {
	ListEnabledByTrigger(ctx context.Context, triggerEvent string) ([]conditional.Email, error)
	HasFired(ctx context.Context, conditionalEmailID, leadID string) (bool, error)
	RecordFired(ctx context.Context, link conditional.EmailJob) error
}

type EmailJobsStore interface {
	Create(ctx context.Context, j emailjob.Job) error
	CancelAllPendingForLead(ctx context.Context, leadID string) ([]string, error)
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

type Engine struct {
	config   ConfigStore
	jobs     EmailJobsStore
	leads    LeadLookup
	settings SettingsLookup
	queue    Queue
}

func New(config ConfigStore, jobs EmailJobsStore, leads LeadLookup, sett SettingsLookup, queue Queue) *Engine {
	return &Engine{config: config, jobs: jobs, leads: leads, settings: sett, queue: queue}
}

// Trigger is the (leadId, triggerEvent, sourceEmailType, sourceJobId)
// tuple that fires the engine from §4.7.
type Trigger struct {
	LeadID          string
	TriggerEvent    string
	SourceEmailType string
	SourceJobID     string
}

// Result reports what the engine did, so the caller (the ingestor) can
// fold it into the same recomputation pass (§4.6 step 8).
type Result struct {
	MaterialisedJobIDs []string
	CancelledFollowups []string
}

func (e *Engine) Fire(ctx context.Context, t Trigger) (Result, error) {
	var result Result

	candidates, err := e.config.ListEnabledByTrigger(ctx, t.TriggerEvent)
	if err != nil {
		return result, err
	}

	l, err := e.leads.GetByID(ctx, t.LeadID)
	if err != nil {
		return result, err
	}

	sett, err := e.settings.Get(ctx)
	if err != nil {
		return result, err
	}

	cancelledOnce := false

	for _, c := range candidates {
		if !c.Matches(t.TriggerEvent, t.SourceEmailType) {
			continue
		}

		fired, err := e.config.HasFired(ctx, c.ID, t.LeadID)
		if err != nil {
			return result, err
		}
		if fired {
			continue
		}

		if c.CancelPending && !cancelledOnce {
			cancelled, err := e.jobs.CancelAllPendingForLead(ctx, t.LeadID)
			if err != nil {
				return result, err
			}
			result.CancelledFollowups = append(result.CancelledFollowups, cancelled...)
			cancelledOnce = true
		}

		scheduledFor := businesshours.NextSlot(
			l.TZ,
			time.Now().UTC().Add(time.Duration(c.DelayHours*float64(time.Hour))),
			sett.BusinessHours,
			sett.PausedDates,
		)

		j := emailjob.New(emailjob.CreateRequest{
			LeadID:       t.LeadID,
			Email:        l.Email,
			Type:         "conditional:" + c.Name,
			Category:     emailjob.CategoryConditional,
			TemplateID:   c.TemplateID,
			ScheduledFor: scheduledFor,
			Metadata: emailjob.Metadata{
				ConditionalJobID: c.ID,
				TriggerEvent:     t.TriggerEvent,
				Extra: map[string]any{
					"sourceJobId": t.SourceJobID,
				},
			},
		})

		if err := e.jobs.Create(ctx, j); err != nil {
			return result, err
		}

		if err := e.queue.Enqueue(ctx, dispatchqueue.EnqueueRequest{
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
			return result, err
		}

		if err := e.config.RecordFired(ctx, conditional.EmailJob{
			ConditionalEmailID: c.ID,
			LeadID:             t.LeadID,
			EmailJobID:         j.ID,
			CreatedAt:          time.Now().UTC(),
		}); err != nil {
			return result, err
		}

		result.MaterialisedJobIDs = append(result.MaterialisedJobIDs, j.ID)
	}

	return result, nil
}
