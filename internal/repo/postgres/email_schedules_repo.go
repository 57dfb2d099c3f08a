package postgres

import (
	"context"
	"encoding/json"

	"github.com/geocoder89/leadflow/internal/domain/emailjob"
	"github.com/geocoder89/leadflow/internal/domain/schedule"
	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EmailSchedulesRepo persists the EmailSchedule UI-convenience projection
// (§3, §4.6 step 6), one row per lead, upserted by the webhook ingestor
// after each event it applies to an EmailJob.
type EmailSchedulesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEmailSchedulesRepo(pool *pgxpool.Pool, prom *observability.Prom) *EmailSchedulesRepo {
	return &EmailSchedulesRepo{pool: pool, prom: prom}
}

func (r *EmailSchedulesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *EmailSchedulesRepo) Get(ctx context.Context, leadID string) (schedule.Schedule, error) {
	op := "email_schedules.get"
	s := schedule.Schedule{LeadID: leadID}

	err := r.observe(op, func() error {
		var initialStatus string
		var followupsRaw []byte

		err := r.pool.QueryRow(ctx, `
			SELECT initial_status, followups FROM email_schedules WHERE lead_id = $1
		`, leadID).Scan(&initialStatus, &followupsRaw)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil
			}
			return err
		}

		s.InitialStatus = emailjob.Status(initialStatus)
		_ = json.Unmarshal(followupsRaw, &s.Followups)
		return nil
	})

	return s, err
}

func (r *EmailSchedulesRepo) Upsert(ctx context.Context, s schedule.Schedule) error {
	followups, err := json.Marshal(s.Followups)
	if err != nil {
		return err
	}

	op := "email_schedules.upsert"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO email_schedules (lead_id, initial_status, followups, updated_at)
			VALUES ($1, $2, $3::jsonb, NOW())
			ON CONFLICT (lead_id) DO UPDATE SET
				initial_status = EXCLUDED.initial_status,
				followups = EXCLUDED.followups,
				updated_at = NOW()
		`, s.LeadID, string(s.InitialStatus), followups)
		return err
	})
}
