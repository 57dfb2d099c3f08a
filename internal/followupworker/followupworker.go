// Package followupworker implements the followup-queue handler from
// §4.4: an asynchronous scheduleNextEmail invocation so delivery events
// don't block the ingestion path.
package followupworker

import (
	"context"
	"log/slog"

	"github.com/geocoder89/leadflow/internal/dispatchqueue"
	"github.com/geocoder89/leadflow/internal/scheduler"
	"github.com/geocoder89/leadflow/internal/workerpool"
)

// NewHandler builds the workerpool.Handler for the followup queue.
func NewHandler(sch *scheduler.Scheduler) workerpool.Handler {
	return func(ctx context.Context, item dispatchqueue.Item) error {
		payload, err := dispatchqueue.DecodeFollowup(item.Payload)
		if err != nil {
			return err
		}

		job, err := sch.ScheduleNextEmail(ctx, payload.LeadID)
		if err != nil {
			return err
		}
		if job == nil {
			slog.Default().InfoContext(ctx, "followupworker.no_next_step", "lead_id", payload.LeadID)
			return nil
		}

		slog.Default().InfoContext(ctx, "followupworker.scheduled", "lead_id", payload.LeadID, "job_id", job.ID, "type", job.Type)
		return nil
	}
}
