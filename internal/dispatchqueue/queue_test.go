package dispatchqueue

import (
	"testing"
	"time"
)

func TestEnqueueRequest_RunAtDefaultsToNow(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	req := EnqueueRequest{}
	if got := req.runAt(now); !got.Equal(now) {
		t.Fatalf("expected runAt to default to now, got %v", got)
	}
}

func TestEnqueueRequest_RunAtAppliesDelay(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	req := EnqueueRequest{Delay: 10 * time.Minute}
	want := now.Add(10 * time.Minute)
	if got := req.runAt(now); !got.Equal(want) {
		t.Fatalf("expected runAt to apply delay, got %v want %v", got, want)
	}
}

func TestEnqueueRequest_MaxAttemptsDefault(t *testing.T) {
	req := EnqueueRequest{}
	if got := req.maxAttempts(); got != 5 {
		t.Fatalf("expected default max attempts 5, got %d", got)
	}
}

func TestEnqueueRequest_MaxAttemptsOverride(t *testing.T) {
	req := EnqueueRequest{MaxAttempts: 3}
	if got := req.maxAttempts(); got != 3 {
		t.Fatalf("expected overridden max attempts 3, got %d", got)
	}
}
