package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/leadflow/internal/repo/postgres"
	"github.com/geocoder89/leadflow/internal/utils"
	"github.com/gin-gonic/gin"
)

// EmailJobsHandler lists a lead's EmailJob history for operator tooling,
// keyset-paginated over (updated_at, id) so long journeys page cleanly.
type EmailJobsHandler struct {
	jobs *postgres.EmailJobsRepo
}

func NewEmailJobsHandler(jobs *postgres.EmailJobsRepo) *EmailJobsHandler {
	return &EmailJobsHandler{jobs: jobs}
}

func (h *EmailJobsHandler) ListByLead(ctx *gin.Context) {
	leadID := ctx.Param("leadId")
	if leadID == "" {
		RespondBadRequest(ctx, "leadId is required", nil)
		return
	}

	after := utils.JobCursor{}
	if raw := ctx.Query("cursor"); raw != "" {
		decoded, err := utils.DecodeJobCursor(raw)
		if err != nil {
			RespondBadRequest(ctx, "invalid cursor", nil)
			return
		}
		after = decoded
	}

	limit := 50
	if raw := ctx.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	jobs, err := h.jobs.ListByLeadPaginated(ctx.Request.Context(), leadID, after, limit)
	if err != nil {
		RespondInternal(ctx, err.Error())
		return
	}

	var nextCursor string
	if len(jobs) > 0 {
		last := jobs[len(jobs)-1]
		nextCursor, _ = utils.EncodeJobCursor(updatedAtOrNow(last.UpdatedAt), last.ID)
	}

	ctx.JSON(http.StatusOK, gin.H{"jobs": jobs, "nextCursor": nextCursor})
}

func updatedAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
