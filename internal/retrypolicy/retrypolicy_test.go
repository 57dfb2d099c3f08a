package retrypolicy

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/leadflow/internal/domain/emailjob"
	"github.com/geocoder89/leadflow/internal/domain/settings"
)

type fakeJobsStore struct {
	created       []emailjob.Job
	cancelledID   string
	cancelReason  string
	statusSetID   string
	statusSetTo   emailjob.Status
	rescheduledID string
}

func (f *fakeJobsStore) Create(ctx context.Context, j emailjob.Job) error {
	f.created = append(f.created, j)
	return nil
}

func (f *fakeJobsStore) MarkCancelled(ctx context.Context, id, reason string) error {
	f.cancelledID = id
	f.cancelReason = reason
	return nil
}

func (f *fakeJobsStore) SetStatus(ctx context.Context, id string, status emailjob.Status) error {
	f.statusSetID = id
	f.statusSetTo = status
	return nil
}

func (f *fakeJobsStore) MarkRescheduled(ctx context.Context, id string) error {
	f.rescheduledID = id
	return nil
}

type fakeSettings struct {
	s settings.Settings
}

func (f *fakeSettings) Get(ctx context.Context) (settings.Settings, error) {
	return f.s, nil
}

func defaultSettings() *fakeSettings {
	return &fakeSettings{s: settings.Default()}
}

func TestApply_ExhaustsToDeadAtMaxAttempts(t *testing.T) {
	jobs := &fakeJobsStore{}
	sett := defaultSettings()
	policy := New(jobs, sett)

	job := emailjob.Job{ID: "job-1", LeadID: "lead-1", RetryCount: sett.s.Retry.MaxAttempts}

	if err := policy.Apply(context.Background(), job, "soft_bounce"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobs.statusSetID != "job-1" || jobs.statusSetTo != emailjob.StatusDead {
		t.Fatalf("expected job-1 marked dead, got id=%s status=%s", jobs.statusSetID, jobs.statusSetTo)
	}
	if len(jobs.created) != 0 {
		t.Fatalf("expected no successor job created at max attempts")
	}
}

func TestApply_CreatesSuccessorBelowMaxAttempts(t *testing.T) {
	jobs := &fakeJobsStore{}
	sett := defaultSettings()
	policy := New(jobs, sett)

	job := emailjob.Job{
		ID:         "job-1",
		LeadID:     "lead-1",
		Email:      "a@example.com",
		Type:       "initial",
		Category:   emailjob.CategoryInitial,
		RetryCount: 0,
	}

	if err := policy.Apply(context.Background(), job, "soft_bounce"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(jobs.created) != 1 {
		t.Fatalf("expected exactly one successor job, got %d", len(jobs.created))
	}
	successor := jobs.created[0]
	if successor.RetryCount != 1 {
		t.Fatalf("expected successor retry count 1, got %d", successor.RetryCount)
	}
	if !successor.Metadata.Rescheduled || successor.Metadata.RetryReason != "soft_bounce" {
		t.Fatalf("expected successor metadata to carry reschedule info, got %+v", successor.Metadata)
	}
	if jobs.rescheduledID != "job-1" {
		t.Fatalf("expected original job marked rescheduled, got %q", jobs.rescheduledID)
	}
}

func TestApply_FailedBackoffCapsAt48Hours(t *testing.T) {
	jobs := &fakeJobsStore{}
	sett := defaultSettings()
	sett.s.Retry.MaxAttempts = 100
	policy := New(jobs, sett)

	job := emailjob.Job{ID: "job-1", LeadID: "lead-1", RetryCount: 20}

	before := time.Now().UTC()
	if err := policy.Apply(context.Background(), job, "failed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	successor := jobs.created[0]
	delay := successor.ScheduledFor.Sub(before)
	if delay > 49*time.Hour {
		t.Fatalf("expected backoff capped near 48h, got %v", delay)
	}
}
