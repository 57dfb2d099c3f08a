package postgres

import (
	"context"
	"time"

	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedEventsRepo is the dedup ledger from §4.6 step 2: a
// (messageId, eventType) unique index consulted before an event is
// applied, so a gateway redelivery never double-counts.
type ProcessedEventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewProcessedEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ProcessedEventsRepo {
	return &ProcessedEventsRepo{pool: pool, prom: prom}
}

func (r *ProcessedEventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// TryMark inserts the (messageID, eventType) pair. false means it was
// already present: the caller must skip applying the event again.
func (r *ProcessedEventsRepo) TryMark(ctx context.Context, messageID, eventType string) (bool, error) {
	op := "processed_events.try_mark"
	var inserted bool
	err := r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO processed_events (message_id, event_type, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (message_id, event_type) DO NOTHING
		`, messageID, eventType, time.Now().UTC())
		if err != nil {
			return err
		}
		inserted = tag.RowsAffected() > 0
		return nil
	})
	return inserted, err
}

// DeleteOlderThan prunes dedup rows past the retention window (§3:
// "ProcessedEvent is pruned after 7 days"). The ledger only needs to
// outlive gateway redelivery windows, not the lifetime of the job it
// guarded, so rows older than cutoff carry no further dedup value.
func (r *ProcessedEventsRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	op := "processed_events.delete_older_than"
	var affected int64
	err := r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM processed_events WHERE created_at < $1`, cutoff)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}
