package postgres

import (
	"context"
	"encoding/json"

	"github.com/geocoder89/leadflow/internal/domain/eventstore"
	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventStoreRepo is the append-only audit trail written after every
// applied webhook event (§3).
type EventStoreRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEventStoreRepo(pool *pgxpool.Pool, prom *observability.Prom) *EventStoreRepo {
	return &EventStoreRepo{pool: pool, prom: prom}
}

func (r *EventStoreRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *EventStoreRepo) Append(ctx context.Context, rec eventstore.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}

	op := "event_store.append"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO event_store (id, lead_id, email_job_id, event_type, message_id, payload, applied_at)
			VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7)
		`, rec.ID, rec.LeadID, rec.EmailJobID, rec.EventType, rec.MessageID, payload, rec.AppliedAt)
		return err
	})
}

func (r *EventStoreRepo) ListByLead(ctx context.Context, leadID string, limit int) ([]eventstore.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	op := "event_store.list_by_lead"
	var out []eventstore.Record
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT id, lead_id, email_job_id, event_type, message_id, payload, applied_at
			FROM event_store WHERE lead_id = $1 ORDER BY applied_at DESC LIMIT $2
		`, leadID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rec eventstore.Record
			var payload []byte
			if err := rows.Scan(&rec.ID, &rec.LeadID, &rec.EmailJobID, &rec.EventType, &rec.MessageID, &payload, &rec.AppliedAt); err != nil {
				return err
			}
			if len(payload) > 0 {
				_ = json.Unmarshal(payload, &rec.Payload)
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}
