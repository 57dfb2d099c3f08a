package dispatchqueue

import "encoding/json"

// EmailSendPayload is the email-send-queue schema from §6: the worker
// looks the job up by EmailJobID and re-validates its status before
// calling the gateway (the race-recheck in step 3 of §4.4).
type EmailSendPayload struct {
	EmailJobID string `json:"emailJobId"`
	LeadID     string `json:"leadId"`
	LeadEmail  string `json:"leadEmail"`
	EmailType  string `json:"emailType"`
}

// FollowupPayload is the followup-queue schema: an asynchronous
// scheduleNextEmail invocation so delivery events don't block ingestion.
type FollowupPayload struct {
	LeadID            string  `json:"leadId"`
	OriginalEmailJobID *string `json:"originalEmailJobId,omitempty"`
}

// AnalyticsPayload is the analytics-queue schema: a raw webhook envelope
// forwarded to the ingestor (§4.6).
type AnalyticsPayload struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData"`
}

func DecodeEmailSend(raw json.RawMessage) (EmailSendPayload, error) {
	var p EmailSendPayload
	err := json.Unmarshal(raw, &p)
	return p, err
}

func DecodeFollowup(raw json.RawMessage) (FollowupPayload, error) {
	var p FollowupPayload
	err := json.Unmarshal(raw, &p)
	return p, err
}

func DecodeAnalytics(raw json.RawMessage) (AnalyticsPayload, error) {
	var p AnalyticsPayload
	err := json.Unmarshal(raw, &p)
	return p, err
}
