package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/geocoder89/leadflow/internal/domain/settings"
	"github.com/geocoder89/leadflow/internal/gateway"
	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsRepo persists the singleton Settings row (§3, §6) as a set of
// JSONB columns, one per sub-struct, so each concern can evolve
// independently without a wide migration.
type SettingsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewSettingsRepo(pool *pgxpool.Pool, prom *observability.Prom) *SettingsRepo {
	return &SettingsRepo{pool: pool, prom: prom}
}

func (r *SettingsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *SettingsRepo) Get(ctx context.Context) (settings.Settings, error) {
	op := "settings.get"
	s := settings.Default()

	err := r.observe(op, func() error {
		var rateLimits, hours, sequence, paused, retry, gw, rulebook []byte

		err := r.pool.QueryRow(ctx, `
			SELECT rate_limits, business_hours, followup_sequence, paused_dates, retry, gateway, rulebook, updated_at
			FROM settings WHERE id = $1
		`, settings.GlobalID).Scan(&rateLimits, &hours, &sequence, &paused, &retry, &gw, &rulebook, &s.UpdatedAt)

		if err != nil {
			if err == pgx.ErrNoRows {
				return r.seedDefault(ctx)
			}
			return err
		}

		_ = json.Unmarshal(rateLimits, &s.RateLimits)
		_ = json.Unmarshal(hours, &s.BusinessHours)
		_ = json.Unmarshal(sequence, &s.FollowupSequence)
		_ = json.Unmarshal(paused, &s.PausedDates)
		_ = json.Unmarshal(retry, &s.Retry)
		_ = json.Unmarshal(gw, &s.Gateway)
		_ = json.Unmarshal(rulebook, &s.Rulebook)
		s.ID = settings.GlobalID
		return nil
	})

	return s, err
}

func (r *SettingsRepo) seedDefault(ctx context.Context) error {
	d := settings.Default()
	return r.put(ctx, d)
}

func (r *SettingsRepo) Update(ctx context.Context, s settings.Settings) error {
	s.ID = settings.GlobalID
	s.UpdatedAt = time.Now().UTC()
	return r.put(ctx, s)
}

func (r *SettingsRepo) put(ctx context.Context, s settings.Settings) error {
	rateLimits, _ := json.Marshal(s.RateLimits)
	hours, _ := json.Marshal(s.BusinessHours)
	sequence, _ := json.Marshal(s.FollowupSequence)
	paused, _ := json.Marshal(s.PausedDates)
	retry, _ := json.Marshal(s.Retry)
	gw, _ := json.Marshal(s.Gateway)
	rulebook, _ := json.Marshal(s.Rulebook)

	op := "settings.put"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO settings (id, rate_limits, business_hours, followup_sequence, paused_dates, retry, gateway, rulebook, updated_at)
			VALUES ($1,$2::jsonb,$3::jsonb,$4::jsonb,$5::jsonb,$6::jsonb,$7::jsonb,$8::jsonb,$9)
			ON CONFLICT (id) DO UPDATE SET
				rate_limits = EXCLUDED.rate_limits,
				business_hours = EXCLUDED.business_hours,
				followup_sequence = EXCLUDED.followup_sequence,
				paused_dates = EXCLUDED.paused_dates,
				retry = EXCLUDED.retry,
				gateway = EXCLUDED.gateway,
				rulebook = EXCLUDED.rulebook,
				updated_at = EXCLUDED.updated_at
		`, settings.GlobalID, rateLimits, hours, sequence, paused, retry, gw, rulebook, time.Now().UTC())
		return err
	})
}

// GatewayCreds adapts SettingsRepo to gateway.CredsSource.
func (r *SettingsRepo) GatewayCreds(ctx context.Context) (gateway.Creds, error) {
	s, err := r.Get(ctx)
	if err != nil {
		return gateway.Creds{}, err
	}
	return gateway.Creds{BaseURL: s.Gateway.BaseURL, APIKey: s.Gateway.APIKey, Sender: s.Gateway.Sender}, nil
}
