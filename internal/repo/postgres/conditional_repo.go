package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/leadflow/internal/domain/conditional"
	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrConditionalEmailNotFound = errors.New("conditional email not found")

// ConditionalRepo persists ConditionalEmail configuration rows and the
// ConditionalEmailJob link table that records which lead/trigger pairs
// already materialised a job (§4.7's "already fired" check).
type ConditionalRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewConditionalRepo(pool *pgxpool.Pool, prom *observability.Prom) *ConditionalRepo {
	return &ConditionalRepo{pool: pool, prom: prom}
}

func (r *ConditionalRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *ConditionalRepo) ListEnabledByTrigger(ctx context.Context, triggerEvent string) ([]conditional.Email, error) {
	op := "conditional.list_enabled_by_trigger"
	var out []conditional.Email
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT id, name, trigger_event, trigger_step, delay_hours, template_id,
			       cancel_pending, priority, enabled
			FROM conditional_emails
			WHERE trigger_event = $1 AND enabled = TRUE
			ORDER BY priority DESC, id ASC
		`, triggerEvent)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e conditional.Email
			if err := rows.Scan(&e.ID, &e.Name, &e.TriggerEvent, &e.TriggerStep, &e.DelayHours,
				&e.TemplateID, &e.CancelPending, &e.Priority, &e.Enabled); err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

func (r *ConditionalRepo) GetByID(ctx context.Context, id string) (conditional.Email, error) {
	op := "conditional.get_by_id"
	var e conditional.Email
	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, name, trigger_event, trigger_step, delay_hours, template_id,
			       cancel_pending, priority, enabled
			FROM conditional_emails WHERE id = $1
		`, id).Scan(&e.ID, &e.Name, &e.TriggerEvent, &e.TriggerStep, &e.DelayHours,
			&e.TemplateID, &e.CancelPending, &e.Priority, &e.Enabled)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conditional.Email{}, ErrConditionalEmailNotFound
		}
		return conditional.Email{}, err
	}
	return e, nil
}

// HasFired reports whether this (conditionalEmailId, leadId) pair has
// already materialised an EmailJob, preventing a trigger from firing
// twice for the same lead (§4.7).
func (r *ConditionalRepo) HasFired(ctx context.Context, conditionalEmailID, leadID string) (bool, error) {
	var exists bool
	op := "conditional.has_fired"
	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM conditional_email_jobs
				WHERE conditional_email_id = $1 AND lead_id = $2
			)
		`, conditionalEmailID, leadID).Scan(&exists)
	})
	return exists, err
}

func (r *ConditionalRepo) RecordFired(ctx context.Context, link conditional.EmailJob) error {
	op := "conditional.record_fired"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO conditional_email_jobs (conditional_email_id, lead_id, email_job_id, created_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (conditional_email_id, lead_id) DO NOTHING
		`, link.ConditionalEmailID, link.LeadID, link.EmailJobID, link.CreatedAt)
		return err
	})
}
