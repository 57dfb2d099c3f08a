// Package conditional models the ConditionalEmail configuration and its
// materialised ConditionalEmailJob link (§3, §4.7).
package conditional

import "time"

type Email struct {
	ID            string
	Name          string
	TriggerEvent  string
	TriggerStep   *string // nil matches any source email type
	DelayHours    float64
	TemplateID    *string
	CancelPending bool
	Priority      int
	Enabled       bool
}

// Matches reports whether this configuration fires for the given trigger
// event and source email type (§4.7 step 1).
func (e Email) Matches(triggerEvent, sourceEmailType string) bool {
	if !e.Enabled || e.TriggerEvent != triggerEvent {
		return false
	}
	return e.TriggerStep == nil || *e.TriggerStep == sourceEmailType
}

type EmailJob struct {
	ConditionalEmailID string
	LeadID             string
	EmailJobID         string
	CreatedAt          time.Time
}
