// Package webhookingest implements §4.6: normalise, dedup, locate the
// owning job, apply the status transition, project the schedule, chain
// followups, fire conditional triggers, run the retry policy, and append
// to the audit trail. A single bad event is logged and skipped so it
// never poisons the rest of the batch (§7 propagation policy).
package webhookingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/leadflow/internal/conditional"
	"github.com/geocoder89/leadflow/internal/dispatchqueue"
	"github.com/geocoder89/leadflow/internal/domain/emailjob"
	"github.com/geocoder89/leadflow/internal/domain/eventstore"
	"github.com/geocoder89/leadflow/internal/domain/lead"
	"github.com/geocoder89/leadflow/internal/domain/schedule"
	"github.com/geocoder89/leadflow/internal/domain/settings"
	"github.com/geocoder89/leadflow/internal/domain/webhookevent"
	"github.com/geocoder89/leadflow/internal/eventbus"
	"github.com/geocoder89/leadflow/internal/repo/postgres"
	"github.com/geocoder89/leadflow/internal/retrypolicy"
	"github.com/geocoder89/leadflow/internal/statusmachine"
)

type ProcessedEvents interface {
	TryMark(ctx context.Context, messageID, eventType string) (bool, error)
}

// StatusUpdate is an alias for the repo's own update shape so this
// package's interface stays satisfied by *postgres.EmailJobsRepo without
// re-declaring a structurally-identical but distinct type.
type StatusUpdate = postgres.StatusUpdate

type EmailJobsStore interface {
	GetByBrevoMessageID(ctx context.Context, messageID string) (emailjob.Job, error)
	FindByEmailScheduledBefore(ctx context.Context, email string, now time.Time) (emailjob.Job, error)
	ApplyStatus(ctx context.Context, id string, u StatusUpdate) error
	ListByLead(ctx context.Context, leadID string) ([]emailjob.Job, error)
}

type LeadsStore interface {
	GetByID(ctx context.Context, id string) (lead.Lead, error)
	UpdateStatus(ctx context.Context, leadID string, status lead.AggregateStatus) error
	IncrementCounter(ctx context.Context, leadID, counter string) error
}

type SchedulesStore interface {
	Get(ctx context.Context, leadID string) (schedule.Schedule, error)
	Upsert(ctx context.Context, s schedule.Schedule) error
}

type EventStore interface {
	Append(ctx context.Context, rec eventstore.Record) error
}

type SettingsLookup interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type Queue interface {
	Enqueue(ctx context.Context, req dispatchqueue.EnqueueRequest) error
}

type AnalyticsInvalidator interface {
	InvalidatePrefix(ctx context.Context) error
}

type Ingestor struct {
	processed  ProcessedEvents
	jobs       EmailJobsStore
	leads      LeadsStore
	schedules  SchedulesStore
	eventStore EventStore
	settings   SettingsLookup
	queue      Queue
	conditional *conditional.Engine
	retry      *retrypolicy.Policy
	analytics  AnalyticsInvalidator
	bus        *eventbus.Bus
}

type Deps struct {
	Processed   ProcessedEvents
	Jobs        EmailJobsStore
	Leads       LeadsStore
	Schedules   SchedulesStore
	EventStore  EventStore
	Settings    SettingsLookup
	Queue       Queue
	Conditional *conditional.Engine
	Retry       *retrypolicy.Policy
	Analytics   AnalyticsInvalidator
	Bus         *eventbus.Bus
}

func New(d Deps) *Ingestor {
	return &Ingestor{
		processed: d.Processed, jobs: d.Jobs, leads: d.Leads, schedules: d.Schedules,
		eventStore: d.EventStore, settings: d.Settings, queue: d.Queue,
		conditional: d.Conditional, retry: d.Retry, analytics: d.Analytics, bus: d.Bus,
	}
}

// Summary is what the handler returns to the always-200 webhook response
// (§6: "responds 200 {processed, skipped}").
type Summary struct {
	Processed int
	Skipped   int
}

// IngestBatch applies each raw event independently; per-event failures
// are logged and counted as skipped, never propagated (§7).
func (ing *Ingestor) IngestBatch(ctx context.Context, raw []webhookevent.Raw) Summary {
	sett, err := ing.settings.Get(ctx)
	if err != nil {
		slog.Default().ErrorContext(ctx, "webhookingest.settings_lookup_failed", "err", err)
		return Summary{Skipped: len(raw)}
	}

	var summary Summary
	for _, r := range raw {
		n := webhookevent.Normalize(r, sett.Rulebook.SpamMapsToComplaint)
		if err := ing.applyOne(ctx, n); err != nil {
			if errors.Is(err, errDropped) {
				summary.Skipped++
				continue
			}
			slog.Default().ErrorContext(ctx, "webhookingest.apply_failed", "message_id", n.MessageID, "err", err)
			summary.Skipped++
			continue
		}
		summary.Processed++
	}
	return summary
}

var errDropped = errors.New("webhookingest: event dropped (dedup or no owner)")

// statusFor maps a normalised webhook event type onto the enumerated
// emailjob.Status domain. Most event types already line up 1:1 with a
// status constant, but unique_opened is a dedup variant of an open
// that has no status of its own (§4.6 step 1 keeps it distinct only so
// the conditional trigger engine can key on it in step 8) — it folds
// onto StatusOpened here so it never lands in email_jobs.status as an
// unenumerated value.
func statusFor(eventType string) (emailjob.Status, bool) {
	if eventType == "unique_opened" {
		return emailjob.StatusOpened, true
	}
	s := emailjob.Status(eventType)
	switch s {
	case emailjob.StatusPending, emailjob.StatusQueued, emailjob.StatusScheduled, emailjob.StatusSending,
		emailjob.StatusSent, emailjob.StatusDelivered, emailjob.StatusOpened, emailjob.StatusClicked,
		emailjob.StatusSoftBounce, emailjob.StatusHardBounce, emailjob.StatusDeferred, emailjob.StatusBlocked,
		emailjob.StatusSpam, emailjob.StatusError, emailjob.StatusInvalid, emailjob.StatusFailed,
		emailjob.StatusUnsubscribed, emailjob.StatusComplaint, emailjob.StatusDead, emailjob.StatusRescheduled,
		emailjob.StatusCancelled, emailjob.StatusSkipped:
		return s, true
	default:
		return "", false
	}
}

func (ing *Ingestor) applyOne(ctx context.Context, n webhookevent.Normalized) error {
	fresh, err := ing.processed.TryMark(ctx, n.MessageID, n.EventType)
	if err != nil {
		return err
	}
	if !fresh {
		return errDropped
	}

	job, err := ing.jobs.GetByBrevoMessageID(ctx, n.MessageID)
	if err != nil {
		if !errors.Is(err, emailjob.ErrNotFound) {
			return err
		}
		job, err = ing.jobs.FindByEmailScheduledBefore(ctx, n.Email, n.At)
		if err != nil {
			return errDropped
		}
	}

	next, ok := statusFor(n.EventType)
	if !ok {
		slog.Default().WarnContext(ctx, "webhookingest.unmapped_event_type", "event_type", n.EventType, "message_id", n.MessageID)
		return errDropped
	}
	if !statusmachine.Accepts(job.Status, next) {
		return nil
	}

	ts := statusmachine.Timestamps{
		SentAt: job.SentAt, DeliveredAt: job.DeliveredAt, OpenedAt: job.OpenedAt,
		ClickedAt: job.ClickedAt, BouncedAt: job.BouncedAt, FailedAt: job.FailedAt, DeferredAt: job.DeferredAt,
	}
	statusmachine.ApplyTimestamp(&ts, next, n.At)

	rescheduled := statusmachine.IsRescheduleSignal(next)
	update := StatusUpdate{
		Status: next, SentAt: ts.SentAt, DeliveredAt: ts.DeliveredAt, OpenedAt: ts.OpenedAt,
		ClickedAt: ts.ClickedAt, BouncedAt: ts.BouncedAt, FailedAt: ts.FailedAt, DeferredAt: ts.DeferredAt,
		BrevoMessageID: &n.MessageID,
	}
	if rescheduled {
		update.Rescheduled = &rescheduled
	}
	if n.Reason != "" {
		update.LastError = &n.Reason
	}

	if err := ing.jobs.ApplyStatus(ctx, job.ID, update); err != nil {
		return err
	}

	if err := ing.projectSchedule(ctx, job.LeadID); err != nil {
		slog.Default().ErrorContext(ctx, "webhookingest.project_schedule_failed", "lead_id", job.LeadID, "err", err)
	}

	if next == emailjob.StatusDelivered {
		if err := ing.queue.Enqueue(ctx, dispatchqueue.EnqueueRequest{
			Queue:  dispatchqueue.QueueFollowup,
			JobKey: job.LeadID + ":followup:" + job.ID,
			Payload: dispatchqueue.FollowupPayload{
				LeadID:             job.LeadID,
				OriginalEmailJobID: &job.ID,
			},
		}); err != nil {
			slog.Default().ErrorContext(ctx, "webhookingest.followup_enqueue_failed", "lead_id", job.LeadID, "err", err)
		}
	}

	switch n.EventType {
	case "delivered", "opened", "unique_opened", "clicked":
		if ing.conditional != nil {
			if _, err := ing.conditional.Fire(ctx, conditional.Trigger{
				LeadID: job.LeadID, TriggerEvent: n.EventType, SourceEmailType: job.Type, SourceJobID: job.ID,
			}); err != nil {
				slog.Default().ErrorContext(ctx, "webhookingest.conditional_fire_failed", "lead_id", job.LeadID, "err", err)
			}
		}
	}

	if next == emailjob.StatusSoftBounce || next == emailjob.StatusDeferred || next == emailjob.StatusFailed {
		if ing.retry != nil {
			if err := ing.retry.Apply(ctx, job, string(next)); err != nil {
				slog.Default().ErrorContext(ctx, "webhookingest.retry_apply_failed", "job_id", job.ID, "err", err)
			}
		}
	}

	if err := ing.recomputeLeadStatus(ctx, job.LeadID); err != nil {
		slog.Default().ErrorContext(ctx, "webhookingest.recompute_lead_status_failed", "lead_id", job.LeadID, "err", err)
	}

	if err := ing.eventStore.Append(ctx, eventstore.Record{
		LeadID: job.LeadID, EmailJobID: job.ID, EventType: n.EventType, MessageID: n.MessageID,
		Payload: map[string]any{"reason": n.Reason, "tag": n.Tag},
		AppliedAt: n.At,
	}); err != nil {
		slog.Default().ErrorContext(ctx, "webhookingest.event_store_append_failed", "job_id", job.ID, "err", err)
	}

	if ing.analytics != nil {
		if err := ing.analytics.InvalidatePrefix(ctx); err != nil {
			slog.Default().ErrorContext(ctx, "webhookingest.analytics_invalidate_failed", "err", err)
		}
	}

	if ing.bus != nil {
		ing.bus.Publish(eventbus.Event{Topic: eventbus.TopicAnalyticsInvalidate, Data: job.LeadID})
	}

	return nil
}

func (ing *Ingestor) projectSchedule(ctx context.Context, leadID string) error {
	jobs, err := ing.jobs.ListByLead(ctx, leadID)
	if err != nil {
		return err
	}

	s := schedule.Schedule{LeadID: leadID}
	for _, j := range jobs {
		switch j.Category {
		case emailjob.CategoryInitial:
			s.InitialStatus = j.Status
		case emailjob.CategoryFollowup:
			s.Followups = append(s.Followups, schedule.FollowupSnapshot{
				Name: j.Type, Status: j.Status, TemplateID: j.TemplateID,
			})
		}
	}

	return ing.schedules.Upsert(ctx, s)
}

func (ing *Ingestor) recomputeLeadStatus(ctx context.Context, leadID string) error {
	jobs, err := ing.jobs.ListByLead(ctx, leadID)
	if err != nil {
		return err
	}
	status := statusmachine.RecomputeLeadStatus(jobs)
	return ing.leads.UpdateStatus(ctx, leadID, status)
}
