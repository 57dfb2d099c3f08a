// Package analyticsworker implements the analytics-queue handler from
// §4.4: consumes a raw webhook envelope and forwards it to the ingestor.
package analyticsworker

import (
	"context"
	"encoding/json"

	"github.com/geocoder89/leadflow/internal/dispatchqueue"
	"github.com/geocoder89/leadflow/internal/domain/webhookevent"
	"github.com/geocoder89/leadflow/internal/webhookingest"
	"github.com/geocoder89/leadflow/internal/workerpool"
)

// NewHandler builds the workerpool.Handler for the analytics queue.
func NewHandler(ing *webhookingest.Ingestor) workerpool.Handler {
	return func(ctx context.Context, item dispatchqueue.Item) error {
		payload, err := dispatchqueue.DecodeAnalytics(item.Payload)
		if err != nil {
			return err
		}

		var raw webhookevent.Raw
		if err := json.Unmarshal(payload.EventData, &raw); err != nil {
			return err
		}

		ing.IngestBatch(ctx, []webhookevent.Raw{raw})
		return nil
	}
}
