package emailjob

import "testing"

func TestNewIdempotencyKey_DistinguishesAttempts(t *testing.T) {
	a := NewIdempotencyKey("lead-1", "Initial Email", 0)
	b := NewIdempotencyKey("lead-1", "Initial Email", 1)
	if a == b {
		t.Fatalf("expected different attempts to produce different keys")
	}
}

func TestNewIdempotencyKey_Deterministic(t *testing.T) {
	a := NewIdempotencyKey("lead-1", "Initial Email", 2)
	b := NewIdempotencyKey("lead-1", "Initial Email", 2)
	if a != b {
		t.Fatalf("expected same inputs to produce the same key, got %q vs %q", a, b)
	}
}

func TestNew_DefaultsScheduledForToNowWhenZero(t *testing.T) {
	j := New(CreateRequest{LeadID: "lead-1", Type: "Initial Email"})
	if j.ScheduledFor.IsZero() {
		t.Fatalf("expected ScheduledFor to default to now")
	}
	if j.Status != StatusPending {
		t.Fatalf("expected new job to start pending, got %s", j.Status)
	}
	if j.ID == "" {
		t.Fatalf("expected a generated ID")
	}
}

func TestStatus_InActiveSet(t *testing.T) {
	active := []Status{StatusPending, StatusQueued, StatusScheduled, StatusSending}
	for _, s := range active {
		if !s.InActiveSet() {
			t.Fatalf("expected %s to be in active set", s)
		}
	}
	if StatusSent.InActiveSet() {
		t.Fatalf("expected sent not to be in active set")
	}
}

func TestStatus_HardFailure(t *testing.T) {
	hard := []Status{StatusHardBounce, StatusBlocked, StatusSpam, StatusUnsubscribed, StatusComplaint, StatusInvalid}
	for _, s := range hard {
		if !s.HardFailure() {
			t.Fatalf("expected %s to be a hard failure", s)
		}
	}
	if StatusSoftBounce.HardFailure() {
		t.Fatalf("expected soft_bounce not to be a hard failure")
	}
}

func TestStatus_SuccessfullySent(t *testing.T) {
	if !StatusDelivered.SuccessfullySent() {
		t.Fatalf("expected delivered to count as successfully sent")
	}
	if StatusFailed.SuccessfullySent() {
		t.Fatalf("expected failed not to count as successfully sent")
	}
}
