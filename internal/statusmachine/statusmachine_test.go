package statusmachine

import (
	"testing"
	"time"

	"github.com/geocoder89/leadflow/internal/domain/emailjob"
)

func TestAccepts_RejectsDowngrade(t *testing.T) {
	if Accepts(emailjob.StatusDelivered, emailjob.StatusSent) {
		t.Fatalf("expected delivered -> sent to be rejected")
	}
}

func TestAccepts_AllowsForwardProgress(t *testing.T) {
	if !Accepts(emailjob.StatusSent, emailjob.StatusDelivered) {
		t.Fatalf("expected sent -> delivered to be accepted")
	}
}

func TestAccepts_AllowsSameRank(t *testing.T) {
	if !Accepts(emailjob.StatusQueued, emailjob.StatusSending) {
		t.Fatalf("expected queued -> sending (same rank) to be accepted")
	}
}

func TestAccepts_OutsideHierarchyAlwaysAccepted(t *testing.T) {
	if !Accepts(emailjob.StatusDelivered, emailjob.StatusSoftBounce) {
		t.Fatalf("expected unranked target status to be accepted unconditionally")
	}
	if !Accepts(emailjob.StatusSoftBounce, emailjob.StatusScheduled) {
		t.Fatalf("expected unranked current status to be accepted unconditionally")
	}
}

func TestApplyTimestamp_OnlyFillsOnce(t *testing.T) {
	ts := &Timestamps{}
	first := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	ApplyTimestamp(ts, emailjob.StatusSent, first)
	ApplyTimestamp(ts, emailjob.StatusSending, second)

	if ts.SentAt == nil || !ts.SentAt.Equal(first) {
		t.Fatalf("expected SentAt to stay at first write, got %v", ts.SentAt)
	}
}

func TestApplyTimestamp_FailureBackfillsSentAt(t *testing.T) {
	ts := &Timestamps{}
	at := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	ApplyTimestamp(ts, emailjob.StatusFailed, at)

	if ts.FailedAt == nil || ts.SentAt == nil {
		t.Fatalf("expected both FailedAt and SentAt to be backfilled, got failed=%v sent=%v", ts.FailedAt, ts.SentAt)
	}
}

func TestIsRescheduleSignal(t *testing.T) {
	if !IsRescheduleSignal(emailjob.StatusSoftBounce) {
		t.Fatalf("expected soft_bounce to be a reschedule signal")
	}
	if !IsRescheduleSignal(emailjob.StatusDeferred) {
		t.Fatalf("expected deferred to be a reschedule signal")
	}
	if IsRescheduleSignal(emailjob.StatusSent) {
		t.Fatalf("expected sent not to be a reschedule signal")
	}
}

func TestRecomputeLeadStatus_EmptyIsNew(t *testing.T) {
	got := RecomputeLeadStatus(nil)
	if got.State != "new" {
		t.Fatalf("expected new state for no jobs, got %q", got.State)
	}
}

func TestRecomputeLeadStatus_PrefersMostRecentNonHousekeepingJob(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	jobs := []emailjob.Job{
		{Type: "initial", Status: emailjob.StatusDelivered, UpdatedAt: base},
		{Type: "followup-1", Status: emailjob.StatusRescheduled, UpdatedAt: base.Add(2 * time.Hour)},
		{Type: "followup-1", Status: emailjob.StatusQueued, UpdatedAt: base.Add(time.Hour)},
	}

	got := RecomputeLeadStatus(jobs)
	if got.Step != "followup-1" || got.State != string(emailjob.StatusQueued) {
		t.Fatalf("expected followup-1/queued, got %+v", got)
	}
}

func TestRecomputeLeadStatus_FallsBackWhenAllSuperseded(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	jobs := []emailjob.Job{
		{Type: "initial", Status: emailjob.StatusCancelled, UpdatedAt: base},
		{Type: "followup-1", Status: emailjob.StatusRescheduled, UpdatedAt: base.Add(time.Hour)},
	}

	got := RecomputeLeadStatus(jobs)
	if got.Step != "followup-1" {
		t.Fatalf("expected fallback to most recent row regardless of kind, got %+v", got)
	}
}
