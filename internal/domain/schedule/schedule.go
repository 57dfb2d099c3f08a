// Package schedule models the EmailSchedule UI-convenience projection
// mirrored from EmailJob rows (§3).
package schedule

import "github.com/geocoder89/leadflow/internal/domain/emailjob"

type FollowupSnapshot struct {
	Name       string
	Status     emailjob.Status
	TemplateID *string
}

type Schedule struct {
	LeadID        string
	InitialStatus emailjob.Status
	Followups     []FollowupSnapshot
}
