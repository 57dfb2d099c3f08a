package handlers

import (
	"net/http"
	"time"

	"github.com/geocoder89/leadflow/internal/domain/emailjob"
	"github.com/geocoder89/leadflow/internal/domain/manualmail"
	"github.com/geocoder89/leadflow/internal/repo/postgres"
	"github.com/geocoder89/leadflow/internal/scheduler"
	"github.com/gin-gonic/gin"
)

// ManualMailHandler exposes the ad-hoc manual-send path referenced in
// §4.1/§4.4 step 8: an operator-triggered EmailJob outside the followup
// sequence, projected into the manual_mails listing table.
type ManualMailHandler struct {
	sch   *scheduler.Scheduler
	mails *postgres.ManualMailsRepo
}

func NewManualMailHandler(sch *scheduler.Scheduler, mails *postgres.ManualMailsRepo) *ManualMailHandler {
	return &ManualMailHandler{sch: sch, mails: mails}
}

type sendManualRequest struct {
	LeadID     string `json:"leadId" binding:"required"`
	TemplateID string `json:"templateId" binding:"required"`
	Subject    string `json:"subject" binding:"required"`
}

func (h *ManualMailHandler) Send(ctx *gin.Context) {
	var req sendManualRequest
	if !BindJSON(ctx, &req) {
		return
	}

	templateID := req.TemplateID
	job, err := h.sch.ScheduleEmailJob(ctx.Request.Context(), scheduler.ScheduleJobParams{
		LeadID:       req.LeadID,
		Type:         "manual",
		Category:     emailjob.CategoryManual,
		ScheduledFor: time.Now().UTC(),
		TemplateID:   &templateID,
		Metadata:     emailjob.Metadata{Manual: true},
	})
	if err != nil {
		if err == scheduler.ErrConcurrent {
			RespondConflict(ctx, "concurrent", "another scheduler call is already handling this (lead,type)")
			return
		}
		RespondInternal(ctx, err.Error())
		return
	}

	if err := h.mails.Create(ctx.Request.Context(), manualmail.ManualMail{
		LeadID:     job.LeadID,
		EmailJobID: job.ID,
		Subject:    req.Subject,
		Status:     "pending",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		RespondInternal(ctx, err.Error())
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"job": job})
}
