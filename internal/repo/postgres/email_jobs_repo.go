package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/geocoder89/leadflow/internal/domain/emailjob"
	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/geocoder89/leadflow/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EmailJobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEmailJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *EmailJobsRepo {
	return &EmailJobsRepo{pool: pool, prom: prom}
}

func (r *EmailJobsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *EmailJobsRepo) Create(ctx context.Context, j emailjob.Job) error {
	meta, err := json.Marshal(j.Metadata)
	if err != nil {
		return err
	}

	op := "email_jobs.create"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO email_jobs (
				id, lead_id, email, type, category, template_id, scheduled_for,
				status, retry_count, idempotency_key, metadata, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, j.ID, j.LeadID, j.Email, j.Type, string(j.Category), j.TemplateID, j.ScheduledFor,
			string(j.Status), j.RetryCount, j.IdempotencyKey, meta, j.CreatedAt, j.UpdatedAt)
		return err
	})
}

func (r *EmailJobsRepo) ExistsSuccessfullySent(ctx context.Context, leadID, emailType string) (bool, error) {
	var exists bool
	op := "email_jobs.exists_successfully_sent"
	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM email_jobs
				WHERE lead_id = $1 AND type = $2
				AND status IN ('sending','sent','delivered','opened','clicked')
			)
		`, leadID, emailType).Scan(&exists)
	})
	return exists, err
}

func (r *EmailJobsRepo) ExistsInActiveSet(ctx context.Context, leadID, emailType string) (bool, error) {
	var exists bool
	op := "email_jobs.exists_in_active_set"
	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM email_jobs
				WHERE lead_id = $1 AND type = $2
				AND status IN ('pending','queued','scheduled','sending')
			)
		`, leadID, emailType).Scan(&exists)
	})
	return exists, err
}

// ActiveJobsExcludingConditional backs scheduleNextEmail's "active set for
// the lead is non-empty (excluding conditional types)" check (§4.1).
func (r *EmailJobsRepo) ActiveJobsExcludingConditional(ctx context.Context, leadID string) ([]emailjob.Job, error) {
	op := "email_jobs.active_excluding_conditional"
	var out []emailjob.Job
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT `+jobColumns+` FROM email_jobs
			WHERE lead_id = $1
			AND status IN ('pending','queued','scheduled','sending')
			AND category != 'conditional'
		`, leadID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanJobs(rows)
		return err
	})
	return out, err
}

// TypesWithAnyJob returns the set of `type` values that already have at
// least one EmailJob row for the lead (used to find the first followup
// step not yet represented, §4.1).
func (r *EmailJobsRepo) TypesWithAnyJob(ctx context.Context, leadID string) (map[string]bool, error) {
	op := "email_jobs.types_with_any_job"
	out := map[string]bool{}
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `SELECT DISTINCT type FROM email_jobs WHERE lead_id = $1`, leadID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				return err
			}
			out[t] = true
		}
		return rows.Err()
	})
	return out, err
}

// LatestJobOfType returns the most recently created job for (leadID, type),
// used to anchor the Nth followup's delay computation off the previous
// job's scheduledFor (§4.1).
func (r *EmailJobsRepo) LatestJobOfType(ctx context.Context, leadID, emailType string) (emailjob.Job, error) {
	op := "email_jobs.latest_of_type"
	var j emailjob.Job
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `
			SELECT `+jobColumns+` FROM email_jobs
			WHERE lead_id = $1 AND type = $2
			ORDER BY created_at DESC LIMIT 1
		`, leadID, emailType)
		var err error
		j, err = scanJob(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return emailjob.Job{}, emailjob.ErrNotFound
		}
		return emailjob.Job{}, err
	}
	return j, nil
}

func (r *EmailJobsRepo) GetByID(ctx context.Context, id string) (emailjob.Job, error) {
	op := "email_jobs.get_by_id"
	var j emailjob.Job
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM email_jobs WHERE id = $1`, id)
		var err error
		j, err = scanJob(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return emailjob.Job{}, emailjob.ErrNotFound
		}
		return emailjob.Job{}, err
	}
	return j, nil
}

func (r *EmailJobsRepo) GetByBrevoMessageID(ctx context.Context, messageID string) (emailjob.Job, error) {
	op := "email_jobs.get_by_brevo_message_id"
	var j emailjob.Job
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM email_jobs WHERE brevo_message_id = $1`, messageID)
		var err error
		j, err = scanJob(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return emailjob.Job{}, emailjob.ErrNotFound
		}
		return emailjob.Job{}, err
	}
	return j, nil
}

// FindByEmailScheduledBefore is the fallback lookup of §4.6 step 4: by
// (email, scheduledFor <= now), picking the most recently scheduled.
func (r *EmailJobsRepo) FindByEmailScheduledBefore(ctx context.Context, email string, now time.Time) (emailjob.Job, error) {
	op := "email_jobs.find_by_email_scheduled_before"
	var j emailjob.Job
	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `
			SELECT `+jobColumns+` FROM email_jobs
			WHERE email = $1 AND scheduled_for <= $2
			ORDER BY scheduled_for DESC LIMIT 1
		`, email, now)
		var err error
		j, err = scanJob(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return emailjob.Job{}, emailjob.ErrNotFound
		}
		return emailjob.Job{}, err
	}
	return j, nil
}

// MarkSendAttempt is the worker's atomic claim step (§4.2): flips an
// active-set job to sending only if it is still in the active set.
// A zero affected-row count means another worker already claimed it.
func (r *EmailJobsRepo) MarkSendAttempt(ctx context.Context, jobID string, at time.Time) (bool, error) {
	var tag pgconn.CommandTag
	op := "email_jobs.mark_send_attempt"
	err := r.observe(op, func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `
			UPDATE email_jobs
			SET status = 'sending',
			    sent_at = COALESCE(sent_at, $2),
			    metadata = jsonb_set(metadata, '{sendAttemptedAt}', to_jsonb($2::timestamptz)),
			    updated_at = $2
			WHERE id = $1
			AND status IN ('pending','queued','scheduled','sending')
		`, jobID, at)
		return err
	})
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *EmailJobsRepo) MarkCancelled(ctx context.Context, id, reason string) error {
	op := "email_jobs.mark_cancelled"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE email_jobs SET status = 'cancelled', last_error = $2, updated_at = NOW() WHERE id = $1
		`, id, reason)
		return err
	})
}

// ApplyStatus performs the full status-machine write for one event
// application: rank-gated status transition, timestamp back-fill, and
// optional last_error/brevo_message_id/retry_count updates, in one
// statement so concurrent webhook deliveries cannot interleave.
type StatusUpdate struct {
	Status         emailjob.Status
	SentAt         *time.Time
	DeliveredAt    *time.Time
	OpenedAt       *time.Time
	ClickedAt      *time.Time
	BouncedAt      *time.Time
	FailedAt       *time.Time
	DeferredAt     *time.Time
	LastError      *string
	BrevoMessageID *string
	RetryCount     *int
	Rescheduled    *bool
}

// statusRank mirrors statusmachine.rank as a SQL CASE expression so the
// no-downgrade guarantee (§4.5 rule 1, §8 invariant 3) is enforced by the
// UPDATE itself rather than trusted to the caller's in-memory snapshot of
// the row, which two racing webhook deliveries for the same job can each
// be holding stale copies of.
const statusRank = `CASE status
	WHEN 'scheduled' THEN 1 WHEN 'queued' THEN 2 WHEN 'sending' THEN 2 WHEN 'sent' THEN 3
	WHEN 'delivered' THEN 4 WHEN 'opened' THEN 5 WHEN 'clicked' THEN 6 ELSE NULL END`

func (r *EmailJobsRepo) ApplyStatus(ctx context.Context, id string, u StatusUpdate) error {
	op := "email_jobs.apply_status"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE email_jobs SET
				status = $2,
				sent_at = COALESCE(sent_at, $3),
				delivered_at = COALESCE(delivered_at, $4),
				opened_at = COALESCE(opened_at, $5),
				clicked_at = COALESCE(clicked_at, $6),
				bounced_at = COALESCE(bounced_at, $7),
				failed_at = COALESCE(failed_at, $8),
				deferred_at = COALESCE(deferred_at, $9),
				last_error = COALESCE($10, last_error),
				brevo_message_id = COALESCE($11, brevo_message_id),
				retry_count = COALESCE($12, retry_count),
				metadata = CASE WHEN $13::boolean IS TRUE
					THEN jsonb_set(metadata, '{rescheduled}', 'true')
					ELSE metadata END,
				updated_at = NOW()
			WHERE id = $1
			AND (
				`+statusRank+` IS NULL
				OR (CASE $2
					WHEN 'scheduled' THEN 1 WHEN 'queued' THEN 2 WHEN 'sending' THEN 2 WHEN 'sent' THEN 3
					WHEN 'delivered' THEN 4 WHEN 'opened' THEN 5 WHEN 'clicked' THEN 6 ELSE NULL END) IS NULL
				OR (CASE $2
					WHEN 'scheduled' THEN 1 WHEN 'queued' THEN 2 WHEN 'sending' THEN 2 WHEN 'sent' THEN 3
					WHEN 'delivered' THEN 4 WHEN 'opened' THEN 5 WHEN 'clicked' THEN 6 ELSE NULL END) >= `+statusRank+`
			)
		`, id, string(u.Status), u.SentAt, u.DeliveredAt, u.OpenedAt, u.ClickedAt, u.BouncedAt,
			u.FailedAt, u.DeferredAt, u.LastError, u.BrevoMessageID, u.RetryCount, u.Rescheduled)
		return err
	})
}

// SetStatus is a narrow status-only write used by the retry policy for
// terminal transitions (dead) that carry no new timestamp (§4.8).
func (r *EmailJobsRepo) SetStatus(ctx context.Context, id string, status emailjob.Status) error {
	op := "email_jobs.set_status"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE email_jobs SET status = $2, updated_at = NOW() WHERE id = $1
		`, id, string(status))
		return err
	})
}

// ForceScheduledFor is the dev-tooling fastForward primitive: moves a
// still-pending job's scheduledFor to the given time without touching
// status, so its worker pool picks it up on the next poll.
func (r *EmailJobsRepo) ForceScheduledFor(ctx context.Context, id string, scheduledFor time.Time) error {
	op := "email_jobs.force_scheduled_for"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE email_jobs SET scheduled_for = $2, updated_at = NOW()
			WHERE id = $1 AND status IN ('pending','queued','scheduled')
		`, id, scheduledFor)
		return err
	})
}

func (r *EmailJobsRepo) MarkRescheduled(ctx context.Context, id string) error {
	op := "email_jobs.mark_rescheduled"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE email_jobs SET status = 'rescheduled', updated_at = NOW() WHERE id = $1
		`, id)
		return err
	})
}

func (r *EmailJobsRepo) ListByLead(ctx context.Context, leadID string) ([]emailjob.Job, error) {
	op := "email_jobs.list_by_lead"
	var out []emailjob.Job
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM email_jobs WHERE lead_id = $1`, leadID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanJobs(rows)
		return err
	})
	return out, err
}

// ListByLeadPaginated is the keyset-paginated sibling of ListByLead, used
// by the operator-facing job listing endpoint so a lead with a long
// history doesn't have to come back in one response.
func (r *EmailJobsRepo) ListByLeadPaginated(ctx context.Context, leadID string, after utils.JobCursor, limit int) ([]emailjob.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	op := "email_jobs.list_by_lead_paginated"
	var out []emailjob.Job
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT `+jobColumns+` FROM email_jobs
			WHERE lead_id = $1 AND (updated_at, id) > ($2, $3)
			ORDER BY updated_at ASC, id ASC
			LIMIT $4
		`, leadID, after.UpdatedAt, after.ID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanJobs(rows)
		return err
	})
	return out, err
}

func (r *EmailJobsRepo) CancelAllPendingForLead(ctx context.Context, leadID string) ([]string, error) {
	op := "email_jobs.cancel_all_pending_for_lead"
	var ids []string
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
			UPDATE email_jobs SET status = 'cancelled', updated_at = NOW()
			WHERE lead_id = $1 AND status IN ('pending','queued','scheduled')
			RETURNING id
		`, leadID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

const jobColumns = `
	id, lead_id, email, type, category, template_id, scheduled_for, status, retry_count,
	idempotency_key, brevo_message_id, sent_at, delivered_at, opened_at, clicked_at,
	bounced_at, failed_at, deferred_at, last_error, metadata, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (emailjob.Job, error) {
	var j emailjob.Job
	var category, status string
	var metaRaw []byte

	err := row.Scan(
		&j.ID, &j.LeadID, &j.Email, &j.Type, &category, &j.TemplateID, &j.ScheduledFor,
		&status, &j.RetryCount, &j.IdempotencyKey, &j.BrevoMessageID,
		&j.SentAt, &j.DeliveredAt, &j.OpenedAt, &j.ClickedAt, &j.BouncedAt, &j.FailedAt, &j.DeferredAt,
		&j.LastError, &metaRaw, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return emailjob.Job{}, err
	}
	j.Category = emailjob.Category(category)
	j.Status = emailjob.Status(status)
	if len(metaRaw) > 0 {
		_ = json.Unmarshal(metaRaw, &j.Metadata)
	}
	return j, nil
}

func scanJobs(rows pgx.Rows) ([]emailjob.Job, error) {
	var out []emailjob.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
