// Package emailjob defines the central scheduling entity: a single email
// send attempt for one (leadId, type) journey step.
package emailjob

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusQueued       Status = "queued"
	StatusScheduled    Status = "scheduled"
	StatusSending      Status = "sending"
	StatusSent         Status = "sent"
	StatusDelivered    Status = "delivered"
	StatusOpened       Status = "opened"
	StatusClicked      Status = "clicked"
	StatusSoftBounce   Status = "soft_bounce"
	StatusHardBounce   Status = "hard_bounce"
	StatusDeferred     Status = "deferred"
	StatusBlocked      Status = "blocked"
	StatusSpam         Status = "spam"
	StatusError        Status = "error"
	StatusInvalid      Status = "invalid"
	StatusFailed       Status = "failed"
	StatusUnsubscribed Status = "unsubscribed"
	StatusComplaint    Status = "complaint"
	StatusDead         Status = "dead"
	StatusRescheduled  Status = "rescheduled"
	StatusCancelled    Status = "cancelled"
	StatusSkipped      Status = "skipped"
)

type Category string

const (
	CategoryInitial     Category = "initial"
	CategoryFollowup    Category = "followup"
	CategoryManual      Category = "manual"
	CategoryConditional Category = "conditional"
)

// InActiveSet returns true for a status that still occupies the one
// permitted slot for a (leadId, type) journey.
func (s Status) InActiveSet() bool {
	switch s {
	case StatusPending, StatusQueued, StatusScheduled, StatusSending:
		return true
	default:
		return false
	}
}

// SuccessfullySent is the set consulted by hasBeenSent: once a job for a
// (leadId, type) reaches one of these, no sibling job may ever be created.
func (s Status) SuccessfullySent() bool {
	switch s {
	case StatusSending, StatusSent, StatusDelivered, StatusOpened, StatusClicked:
		return true
	default:
		return false
	}
}

// Processed is the set from which a worker must never dispatch (glossary).
func (s Status) Processed() bool {
	switch s {
	case StatusSending, StatusSent, StatusDelivered, StatusOpened, StatusClicked,
		StatusHardBounce, StatusBlocked, StatusSpam, StatusCancelled, StatusDead,
		StatusUnsubscribed, StatusComplaint, StatusFailed:
		return true
	default:
		return false
	}
}

// HardFailure reports the non-retriable failure statuses (hard bounce,
// blocked, spam, unsubscribed, complaint, invalid).
func (s Status) HardFailure() bool {
	switch s {
	case StatusHardBounce, StatusBlocked, StatusSpam, StatusUnsubscribed, StatusComplaint, StatusInvalid:
		return true
	default:
		return false
	}
}

// Metadata is the tagged extension bag described by the glossary: known
// fields get first-class treatment, everything else lands in Extra.
type Metadata struct {
	Manual           bool           `json:"manual,omitempty"`
	Rescheduled      bool           `json:"rescheduled,omitempty"`
	RetryReason      string         `json:"retryReason,omitempty"`
	TriggerEvent     string         `json:"triggerEvent,omitempty"`
	ConditionalJobID string         `json:"conditionalJobId,omitempty"`
	SendAttemptedAt  *time.Time     `json:"sendAttemptedAt,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

type Job struct {
	ID             string
	LeadID         string
	Email          string
	Type           string
	Category       Category
	TemplateID     *string
	ScheduledFor   time.Time
	Status         Status
	RetryCount     int
	IdempotencyKey string
	BrevoMessageID *string

	SentAt      *time.Time
	DeliveredAt *time.Time
	OpenedAt    *time.Time
	ClickedAt   *time.Time
	BouncedAt   *time.Time
	FailedAt    *time.Time
	DeferredAt  *time.Time

	LastError *string
	Metadata  Metadata

	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateRequest struct {
	LeadID       string
	Email        string
	Type         string
	Category     Category
	TemplateID   *string
	ScheduledFor time.Time
	Metadata     Metadata
	// Attempt distinguishes the idempotency key of a retry successor from
	// its predecessor for the same (LeadID, Type).
	Attempt int
}

// NewIdempotencyKey derives the unique key enforced at the DB layer; it is
// stable for a given (leadId, type) pair's Nth attempt so retries of the
// same logical step never collide on two concurrent creators.
func NewIdempotencyKey(leadID, jobType string, attempt int) string {
	return leadID + ":" + jobType + ":" + itoa(attempt)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func New(req CreateRequest) Job {
	now := time.Now().UTC()
	scheduledFor := req.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	return Job{
		ID:             uuid.NewString(),
		LeadID:         req.LeadID,
		Email:          req.Email,
		Type:           req.Type,
		Category:       req.Category,
		TemplateID:     req.TemplateID,
		ScheduledFor:   scheduledFor,
		Status:         StatusPending,
		RetryCount:     0,
		IdempotencyKey: NewIdempotencyKey(req.LeadID, req.Type, req.Attempt),
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
