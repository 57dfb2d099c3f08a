// Package webhookevent normalises raw gateway webhook payloads into the
// engine's internal event vocabulary (§4.6 step 1, §6).
package webhookevent

import (
	"strings"
	"time"
)

// Raw is the wire shape of one event as posted by the gateway, either
// singly or as part of an array (§6).
type Raw struct {
	Event     string    `json:"event" binding:"required"`
	Email     string    `json:"email" binding:"required,email"`
	MessageID string    `json:"message-id" binding:"required"`
	Date      string    `json:"date"`
	TsEvent   int64     `json:"ts_event"`
	Reason    string    `json:"reason"`
	Tag       string    `json:"tag"`
}

// Normalized is a Raw event after eventType mapping and timestamp parsing.
type Normalized struct {
	EventType string
	Email     string
	MessageID string
	Reason    string
	Tag       string
	At        time.Time
}

// mapping is the fixed gateway-eventType -> internal-status mapping from
// §4.6 step 1. spamMapsToComplaint resolves the open question noted in §9:
// the rulebook picks once, at this layer, rather than letting both
// `spam` and `complaint` float around downstream as synonyms.
var mapping = map[string]string{
	"requests":       "sent",
	"delivered":      "delivered",
	"opened":         "opened",
	"unique_opened":  "unique_opened",
	"click":          "clicked",
	"clicked":        "clicked",
	"softbounce":     "soft_bounce",
	"soft_bounce":    "soft_bounce",
	"hard_bounce":    "hard_bounce",
	"hardbounce":     "hard_bounce",
	"blocked":        "blocked",
	"invalid_email":  "invalid",
	"deferred":       "deferred",
	"error":          "error",
	"unsubscribed":   "unsubscribed",
	"complaint":      "complaint",
	"spam":           "spam",
}

func Normalize(r Raw, spamMapsToComplaint bool) Normalized {
	eventType := mapping[strings.ToLower(strings.TrimSpace(r.Event))]
	if eventType == "" {
		eventType = strings.ToLower(strings.TrimSpace(r.Event))
	}
	if eventType == "spam" && spamMapsToComplaint {
		eventType = "complaint"
	}

	at := time.Unix(r.TsEvent, 0).UTC()
	if r.TsEvent == 0 {
		if parsed, err := time.Parse(time.RFC3339, r.Date); err == nil {
			at = parsed
		} else {
			at = time.Now().UTC()
		}
	}

	return Normalized{
		EventType: eventType,
		Email:     strings.ToLower(strings.TrimSpace(r.Email)),
		MessageID: r.MessageID,
		Reason:    r.Reason,
		Tag:       r.Tag,
		At:        at,
	}
}
