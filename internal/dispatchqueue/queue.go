// Package dispatchqueue is the durable job queue from §4.4: a single
// Postgres-backed table partitioned by queue name, keyed by a stable job
// key so duplicate enqueues of the same logical unit of work are dropped.
//
// Grounded on the teacher's internal/jobs (typed-payload registry) and
// internal/repo/postgres/jobs_repo.go (SKIP LOCKED claim, stale requeue,
// exponential-backoff reschedule), generalized from one queue to three.
package dispatchqueue

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	QueueEmailSend = "email-send-queue"
	QueueFollowup  = "followup-queue"
	QueueAnalytics = "analytics-queue"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var ErrNotFound = errors.New("dispatchqueue: no job available")
var ErrDuplicate = errors.New("dispatchqueue: duplicate job key")

// Item is one row of the queue: a typed payload plus delivery bookkeeping.
type Item struct {
	ID          string
	Queue       string
	JobKey      string
	Payload     json.RawMessage
	Status      Status
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LockedAt    *time.Time
	LockedBy    *string
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Counts is the per-queue observability snapshot described in §4.4.
type Counts struct {
	Waiting   int64
	Active    int64
	Completed int64
	Failed    int64
}

// EnqueueRequest is the generic enqueue call; delay is relative to now.
type EnqueueRequest struct {
	Queue       string
	JobKey      string
	Payload     any
	Delay       time.Duration
	MaxAttempts int
}

func (r EnqueueRequest) runAt(now time.Time) time.Time {
	if r.Delay <= 0 {
		return now
	}
	return now.Add(r.Delay)
}

func (r EnqueueRequest) maxAttempts() int {
	if r.MaxAttempts <= 0 {
		return 5
	}
	return r.MaxAttempts
}
