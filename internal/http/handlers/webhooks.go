package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/geocoder89/leadflow/internal/domain/webhookevent"
	"github.com/geocoder89/leadflow/internal/webhookingest"
	"github.com/gin-gonic/gin"
)

// WebhooksHandler serves the §6 inbound gateway webhook: POST /webhooks/brevo
// accepts a single event object or an array. Any payload that decodes as
// JSON gets 200 with processed/skipped counts, whatever the per-event
// outcome; a body that cannot be read or decoded gets 400.
type WebhooksHandler struct {
	ingestor *webhookingest.Ingestor
}

func NewWebhooksHandler(ingestor *webhookingest.Ingestor) *WebhooksHandler {
	return &WebhooksHandler{ingestor: ingestor}
}

func (h *WebhooksHandler) Brevo(ctx *gin.Context) {
	var single webhookevent.Raw
	var batch []webhookevent.Raw

	raw, err := ctx.GetRawData()
	if err != nil {
		RespondBadRequest(ctx, "could not read request body", nil)
		return
	}

	if isJSONArray(raw) {
		if err := bindJSONBytes(raw, &batch); err != nil {
			RespondBadRequest(ctx, "invalid webhook payload", gin.H{"reason": err.Error()})
			return
		}
	} else {
		if err := bindJSONBytes(raw, &single); err != nil {
			RespondBadRequest(ctx, "invalid webhook payload", gin.H{"reason": err.Error()})
			return
		}
		batch = []webhookevent.Raw{single}
	}

	summary := h.ingestor.IngestBatch(ctx.Request.Context(), batch)
	ctx.JSON(http.StatusOK, gin.H{"processed": summary.Processed, "skipped": summary.Skipped})
}

func bindJSONBytes(raw []byte, dest any) error {
	return json.Unmarshal(raw, dest)
}

func isJSONArray(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
