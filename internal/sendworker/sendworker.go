// Package sendworker implements the email-send-queue handler from §4.4:
// fetch → skip-if-processed → race-recheck → hasBeenSent guard →
// markSendAttempt claim → late template binding → gateway invoke →
// status/projection updates.
package sendworker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/leadflow/internal/dispatchqueue"
	"github.com/geocoder89/leadflow/internal/domain/emailjob"
	"github.com/geocoder89/leadflow/internal/domain/eventstore"
	"github.com/geocoder89/leadflow/internal/domain/lead"
	"github.com/geocoder89/leadflow/internal/domain/manualmail"
	"github.com/geocoder89/leadflow/internal/domain/settings"
	"github.com/geocoder89/leadflow/internal/gateway"
	"github.com/geocoder89/leadflow/internal/journeyguard"
	"github.com/geocoder89/leadflow/internal/repo/postgres"
	"github.com/geocoder89/leadflow/internal/retrypolicy"
	"github.com/geocoder89/leadflow/internal/statusmachine"
	"github.com/geocoder89/leadflow/internal/workerpool"
)

type EmailJobsStore interface {
	GetByID(ctx context.Context, id string) (emailjob.Job, error)
	ExistsSuccessfullySent(ctx context.Context, leadID, emailType string) (bool, error)
	MarkSendAttempt(ctx context.Context, jobID string, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id, reason string) error
	ApplyStatus(ctx context.Context, id string, u postgres.StatusUpdate) error
	ListByLead(ctx context.Context, leadID string) ([]emailjob.Job, error)
}

type LeadsStore interface {
	GetByID(ctx context.Context, id string) (lead.Lead, error)
	IncrementCounter(ctx context.Context, leadID, counter string) error
	UpdateStatus(ctx context.Context, leadID string, status lead.AggregateStatus) error
}

type ManualMailsStore interface {
	MarkSent(ctx context.Context, emailJobID string, sentAt time.Time) error
}

type SettingsLookup interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type EventStore interface {
	Append(ctx context.Context, rec eventstore.Record) error
}

type CredsSource interface {
	GatewayCreds(ctx context.Context) (gateway.Creds, error)
}

type Sender interface {
	Send(ctx context.Context, creds gateway.Creds, in gateway.SendInput) (gateway.SendResult, error)
}

type Deps struct {
	Jobs        EmailJobsStore
	Leads       LeadsStore
	ManualMails ManualMailsStore
	Settings    SettingsLookup
	EventStore  EventStore
	Creds       CredsSource
	Gateway     Sender
	Retry       *retrypolicy.Policy
}

// NewHandler builds the workerpool.Handler closure this worker pool runs.
func NewHandler(d Deps) workerpool.Handler {
	h := &handler{d: d}
	return h.handle
}

type handler struct {
	d Deps
}

func (h *handler) handle(ctx context.Context, item dispatchqueue.Item) error {
	payload, err := dispatchqueue.DecodeEmailSend(item.Payload)
	if err != nil {
		return err
	}

	log := slog.Default()

	job, err := h.d.Jobs.GetByID(ctx, payload.EmailJobID)
	if err != nil {
		if errors.Is(err, emailjob.ErrNotFound) {
			log.WarnContext(ctx, "sendworker.job_not_found", "job_id", payload.EmailJobID)
			return nil
		}
		return err
	}

	if job.Status.Processed() {
		return nil
	}

	// race-recheck (§4.4 step 3): another worker or webhook may have
	// advanced the job between the producer's claim and this handler.
	job, err = h.d.Jobs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if job.Status.Processed() {
		return nil
	}

	if _, err := h.d.Leads.GetByID(ctx, job.LeadID); err != nil {
		if errors.Is(err, postgres.ErrLeadNotFound) {
			return h.d.Jobs.ApplyStatus(ctx, job.ID, postgres.StatusUpdate{
				Status:    emailjob.StatusFailed,
				LastError: strPtr("lead not found"),
			})
		}
		return err
	}

	sent, err := h.d.Jobs.ExistsSuccessfullySent(ctx, job.LeadID, job.Type)
	if err != nil {
		return err
	}
	if sent {
		return h.d.Jobs.MarkCancelled(ctx, job.ID, "duplicate")
	}

	claimed, err := journeyguard.MarkSendAttempt(ctx, h.d.Jobs, job.ID)
	if err != nil {
		return err
	}
	if !claimed {
		log.InfoContext(ctx, "sendworker.already_claimed", "job_id", job.ID)
		return nil
	}

	templateID := h.resolveTemplate(ctx, job)

	creds, err := h.d.Creds.GatewayCreds(ctx)
	if err != nil {
		return h.markFailed(ctx, job, "credentials unavailable: "+err.Error(), true)
	}

	result, err := h.d.Gateway.Send(ctx, creds, gateway.SendInput{
		Sender:         creds.Sender,
		To:             job.Email,
		Subject:        subjectFor(job, templateID),
		HTMLContent:    "", // rendered by the template service; out of scope here
		IdempotencyKey: job.IdempotencyKey,
	})
	if err != nil {
		var gwErr *gateway.Error
		permanent := errors.As(err, &gwErr) && gwErr.Class == gateway.ClassPermanent
		return h.markFailed(ctx, job, err.Error(), permanent)
	}

	now := time.Now().UTC()
	if err := h.d.Jobs.ApplyStatus(ctx, job.ID, postgres.StatusUpdate{
		Status:         emailjob.StatusSent,
		SentAt:         &now,
		BrevoMessageID: &result.MessageID,
	}); err != nil {
		return err
	}

	if job.Category == emailjob.CategoryManual {
		if err := h.d.ManualMails.MarkSent(ctx, job.ID, now); err != nil {
			log.ErrorContext(ctx, "sendworker.manual_mail_mark_sent_failed", "job_id", job.ID, "err", err)
		}
	}

	if err := h.d.Leads.IncrementCounter(ctx, job.LeadID, "sent"); err != nil {
		log.ErrorContext(ctx, "sendworker.increment_counter_failed", "lead_id", job.LeadID, "err", err)
	}

	if err := h.recomputeLeadStatus(ctx, job.LeadID); err != nil {
		log.ErrorContext(ctx, "sendworker.recompute_lead_status_failed", "lead_id", job.LeadID, "err", err)
	}

	if err := h.d.EventStore.Append(ctx, eventstore.Record{
		LeadID: job.LeadID, EmailJobID: job.ID, EventType: "sent", MessageID: result.MessageID,
		Payload: map[string]any{"emailType": job.Type}, AppliedAt: now,
	}); err != nil {
		log.ErrorContext(ctx, "sendworker.event_store_append_failed", "job_id", job.ID, "err", err)
	}

	return nil
}

// resolveTemplate performs the late-binding rule from §4.4 step 7: manual
// jobs keep their stored templateId, everything else is re-read against
// the current followup sequence so an operator's template edit takes
// effect even for an already-scheduled job.
func (h *handler) resolveTemplate(ctx context.Context, job emailjob.Job) *string {
	if job.Category == emailjob.CategoryManual {
		return job.TemplateID
	}

	sett, err := h.d.Settings.Get(ctx)
	if err != nil {
		return job.TemplateID
	}

	for _, step := range sett.FollowupSequence {
		if step.Name == job.Type && step.TemplateID != nil {
			return step.TemplateID
		}
	}
	return job.TemplateID
}

// markFailed moves job to the failed status and hands it to the retry
// policy (§4.8 governs soft_bounce | deferred | failed). Because a job
// already in the Processed set is a no-op for every later dispatch-queue
// redelivery (§4.4 step 3's race-recheck), this is the only point this
// EmailJob ever reaches "failed" for this send attempt — so Apply must
// fire here rather than waiting on dispatch-queue exhaustion, which would
// never actually observe a second real attempt.
func (h *handler) markFailed(ctx context.Context, job emailjob.Job, reason string, permanent bool) error {
	if err := h.d.Jobs.ApplyStatus(ctx, job.ID, postgres.StatusUpdate{
		Status:    emailjob.StatusFailed,
		LastError: &reason,
	}); err != nil {
		return err
	}

	if h.d.Retry != nil {
		if err := h.d.Retry.Apply(ctx, job, "failed"); err != nil {
			slog.Default().ErrorContext(ctx, "sendworker.retry_apply_failed", "job_id", job.ID, "err", err)
		}
	}

	if permanent {
		return nil
	}
	return errors.New("sendworker: gateway send failed: " + reason)
}

func (h *handler) recomputeLeadStatus(ctx context.Context, leadID string) error {
	jobs, err := h.d.Jobs.ListByLead(ctx, leadID)
	if err != nil {
		return err
	}
	return h.d.Leads.UpdateStatus(ctx, leadID, statusmachine.RecomputeLeadStatus(jobs))
}

func subjectFor(job emailjob.Job, templateID *string) string {
	return job.Type
}

func strPtr(s string) *string { return &s }
