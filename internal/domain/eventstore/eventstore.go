// Package eventstore models the append-only audit record (§3) written by
// the webhook ingestor after every applied event.
package eventstore

import "time"

type Record struct {
	ID          string
	LeadID      string
	EmailJobID  string
	EventType   string
	MessageID   string
	Payload     map[string]any
	AppliedAt   time.Time
}
