package postgres

import (
	"context"
	"time"

	"github.com/geocoder89/leadflow/internal/domain/manualmail"
	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ManualMailsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewManualMailsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ManualMailsRepo {
	return &ManualMailsRepo{pool: pool, prom: prom}
}

func (r *ManualMailsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *ManualMailsRepo) Create(ctx context.Context, m manualmail.ManualMail) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	op := "manual_mails.create"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO manual_mails (id, lead_id, email_job_id, subject, status, sent_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, m.ID, m.LeadID, m.EmailJobID, m.Subject, m.Status, m.SentAt, m.CreatedAt, m.UpdatedAt)
		return err
	})
}

// MarkSent updates the projection's status to sent alongside the owning
// EmailJob's send (§4.4 step 8).
func (r *ManualMailsRepo) MarkSent(ctx context.Context, emailJobID string, sentAt time.Time) error {
	op := "manual_mails.mark_sent"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE manual_mails SET status = 'sent', sent_at = $2, updated_at = $2 WHERE email_job_id = $1
		`, emailJobID, sentAt)
		return err
	})
}

func (r *ManualMailsRepo) ListByLead(ctx context.Context, leadID string) ([]manualmail.ManualMail, error) {
	op := "manual_mails.list_by_lead"
	var out []manualmail.ManualMail
	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT id, lead_id, email_job_id, subject, status, sent_at, created_at, updated_at
			FROM manual_mails WHERE lead_id = $1 ORDER BY created_at DESC
		`, leadID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var m manualmail.ManualMail
			if err := rows.Scan(&m.ID, &m.LeadID, &m.EmailJobID, &m.Subject, &m.Status, &m.SentAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}
