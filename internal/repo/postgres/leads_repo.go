package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/leadflow/internal/domain/lead"
	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrLeadNotFound = errors.New("lead not found")

type LeadsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewLeadsRepo(pool *pgxpool.Pool, prom *observability.Prom) *LeadsRepo {
	return &LeadsRepo{pool: pool, prom: prom}
}

func (r *LeadsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *LeadsRepo) Create(ctx context.Context, l lead.Lead) error {
	op := "leads.create"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO leads (
				id, email, name, company, city, country, tz,
				sent_count, opened_count, clicked_count, bounced_count,
				score, tags, status_step, status_state, frozen_until,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		`, l.ID, l.Email, l.Name, l.Company, l.City, l.Country, l.TZ,
			l.Counters.Sent, l.Counters.Opened, l.Counters.Clicked, l.Counters.Bounced,
			l.Score, l.Tags, l.Status.Step, l.Status.State, l.FrozenUntil, l.CreatedAt, l.UpdatedAt)
		return err
	})
}

func (r *LeadsRepo) GetByID(ctx context.Context, id string) (lead.Lead, error) {
	op := "leads.get_by_id"
	var l lead.Lead
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
		var err error
		l, err = scanLead(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lead.Lead{}, ErrLeadNotFound
		}
		return lead.Lead{}, err
	}
	return l, nil
}

func (r *LeadsRepo) GetByEmail(ctx context.Context, email string) (lead.Lead, error) {
	op := "leads.get_by_email"
	var l lead.Lead
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE email = $1`, lead.NormalizeEmail(email))
		var err error
		l, err = scanLead(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lead.Lead{}, ErrLeadNotFound
		}
		return lead.Lead{}, err
	}
	return l, nil
}

// IncrementCounter bumps one of {sent,opened,clicked,bounced}_count by one.
func (r *LeadsRepo) IncrementCounter(ctx context.Context, leadID, counter string) error {
	col := counterColumn(counter)
	if col == "" {
		return errors.New("leads: unknown counter " + counter)
	}
	op := "leads.increment_counter"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE leads SET `+col+` = `+col+` + 1, updated_at = NOW() WHERE id = $1
		`, leadID)
		return err
	})
}

func counterColumn(counter string) string {
	switch counter {
	case "sent":
		return "sent_count"
	case "opened":
		return "opened_count"
	case "clicked":
		return "clicked_count"
	case "bounced":
		return "bounced_count"
	default:
		return ""
	}
}

func (r *LeadsRepo) UpdateStatus(ctx context.Context, leadID string, status lead.AggregateStatus) error {
	op := "leads.update_status"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE leads SET status_step = $2, status_state = $3, updated_at = NOW() WHERE id = $1
		`, leadID, status.Step, status.State)
		return err
	})
}

func (r *LeadsRepo) Freeze(ctx context.Context, leadID string, until time.Time) error {
	op := "leads.freeze"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE leads SET frozen_until = $2, updated_at = NOW() WHERE id = $1
		`, leadID, until)
		return err
	})
}

const leadColumns = `
	id, email, name, company, city, country, tz,
	sent_count, opened_count, clicked_count, bounced_count,
	score, tags, status_step, status_state, frozen_until, created_at, updated_at
`

func scanLead(row rowScanner) (lead.Lead, error) {
	var l lead.Lead
	err := row.Scan(
		&l.ID, &l.Email, &l.Name, &l.Company, &l.City, &l.Country, &l.TZ,
		&l.Counters.Sent, &l.Counters.Opened, &l.Counters.Clicked, &l.Counters.Bounced,
		&l.Score, &l.Tags, &l.Status.Step, &l.Status.State, &l.FrozenUntil, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}
