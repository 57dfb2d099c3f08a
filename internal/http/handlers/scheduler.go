package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/leadflow/internal/dispatchqueue"
	"github.com/geocoder89/leadflow/internal/domain/emailjob"
	"github.com/geocoder89/leadflow/internal/repo/postgres"
	"github.com/geocoder89/leadflow/internal/scheduler"
	"github.com/gin-gonic/gin"
)

// SchedulerHandler exposes the §6 internal scheduler RPCs used by dev
// tooling and the controllers: scheduleNext, scheduleJob, cancelByLead,
// fastForward.
type SchedulerHandler struct {
	sch   *scheduler.Scheduler
	jobs  *postgres.EmailJobsRepo
	queue *postgres.DispatchQueueRepo
}

func NewSchedulerHandler(sch *scheduler.Scheduler, jobs *postgres.EmailJobsRepo, queue *postgres.DispatchQueueRepo) *SchedulerHandler {
	return &SchedulerHandler{sch: sch, jobs: jobs, queue: queue}
}

func (h *SchedulerHandler) ScheduleNext(ctx *gin.Context) {
	leadID := ctx.Param("leadId")
	if leadID == "" {
		RespondBadRequest(ctx, "leadId is required", nil)
		return
	}

	job, err := h.sch.ScheduleNextEmail(ctx.Request.Context(), leadID)
	if err != nil {
		RespondInternal(ctx, err.Error())
		return
	}
	if job == nil {
		ctx.JSON(http.StatusOK, gin.H{"job": nil})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"job": job})
}

type scheduleJobRequest struct {
	LeadID       string `json:"leadId" binding:"required"`
	Type         string `json:"type" binding:"required"`
	Category     string `json:"category" binding:"required,oneof=initial followup manual conditional"`
	ScheduledFor string `json:"scheduledFor"`
	TemplateID   string `json:"templateId"`
}

func (h *SchedulerHandler) ScheduleJob(ctx *gin.Context) {
	var req scheduleJobRequest
	if !BindJSON(ctx, &req) {
		return
	}

	scheduledFor := time.Now().UTC()
	if req.ScheduledFor != "" {
		parsed, err := time.Parse(time.RFC3339, req.ScheduledFor)
		if err != nil {
			RespondBadRequest(ctx, "scheduledFor must be RFC3339", nil)
			return
		}
		scheduledFor = parsed
	}

	var templateID *string
	if req.TemplateID != "" {
		templateID = &req.TemplateID
	}

	job, err := h.sch.ScheduleEmailJob(ctx.Request.Context(), scheduler.ScheduleJobParams{
		LeadID:       req.LeadID,
		Type:         req.Type,
		Category:     emailjob.Category(req.Category),
		ScheduledFor: scheduledFor,
		TemplateID:   templateID,
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrConcurrent) {
			RespondConflict(ctx, "concurrent", "another scheduler call is already handling this (lead,type)")
			return
		}
		RespondInternal(ctx, err.Error())
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"job": job})
}

func (h *SchedulerHandler) CancelByLead(ctx *gin.Context) {
	leadID := ctx.Param("leadId")
	if leadID == "" {
		RespondBadRequest(ctx, "leadId is required", nil)
		return
	}

	ids, err := h.jobs.CancelAllPendingForLead(ctx.Request.Context(), leadID)
	if err != nil {
		RespondInternal(ctx, err.Error())
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"cancelledJobIds": ids})
}

// FastForward is a dev-tooling escape hatch: force a job's scheduledFor to
// now so its worker pool picks it up on the next poll, instead of waiting
// out the real delay.
func (h *SchedulerHandler) FastForward(ctx *gin.Context) {
	jobID := ctx.Param("jobId")
	if jobID == "" {
		RespondBadRequest(ctx, "jobId is required", nil)
		return
	}

	job, err := h.jobs.GetByID(ctx.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, emailjob.ErrNotFound) {
			RespondNotFound(ctx, "job not found")
			return
		}
		RespondInternal(ctx, err.Error())
		return
	}

	now := time.Now().UTC()
	if err := h.jobs.ForceScheduledFor(ctx.Request.Context(), job.ID, now); err != nil {
		RespondInternal(ctx, err.Error())
		return
	}

	if err := h.queue.Enqueue(ctx.Request.Context(), dispatchqueue.EnqueueRequest{
		Queue:  dispatchqueue.QueueEmailSend,
		JobKey: job.IdempotencyKey + ":ff",
		Payload: dispatchqueue.EmailSendPayload{
			EmailJobID: job.ID,
			LeadID:     job.LeadID,
			LeadEmail:  job.Email,
			EmailType:  job.Type,
		},
	}); err != nil {
		RespondInternal(ctx, err.Error())
		return
	}

	job.ScheduledFor = now
	ctx.JSON(http.StatusOK, gin.H{"job": job})
}
