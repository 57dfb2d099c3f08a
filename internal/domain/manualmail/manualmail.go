// Package manualmail models the ManualMail projection: a denormalised
// view of ad-hoc manual sends, updated alongside the owning EmailJob so
// operator-facing listings don't need to join the full jobs table (§4.4
// step 8).
package manualmail

import "time"

type ManualMail struct {
	ID         string
	LeadID     string
	EmailJobID string
	Subject    string
	Status     string
	SentAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
