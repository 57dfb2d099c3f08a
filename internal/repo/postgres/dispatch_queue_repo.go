package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/geocoder89/leadflow/internal/dispatchqueue"
	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DispatchQueueRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewDispatchQueueRepo(pool *pgxpool.Pool, prom *observability.Prom) *DispatchQueueRepo {
	return &DispatchQueueRepo{pool: pool, prom: prom}
}

func (r *DispatchQueueRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Enqueue drops a duplicate jobKey within the same queue silently (§4.4:
// "jobs with duplicate jobId are dropped by the queue").
func (r *DispatchQueueRepo) Enqueue(ctx context.Context, req dispatchqueue.EnqueueRequest) error {
	op := "dispatchqueue.enqueue"
	now := time.Now().UTC()

	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
		INSERT INTO dispatch_jobs(
			id, queue, job_key, payload, status, attempts, max_attempts,
			run_at, last_error, created_at, updated_at
		) VALUES (
			gen_random_uuid(), $1, $2, $3::jsonb, 'waiting', 0, $4, $5, NULL, $6, $6
		)
		ON CONFLICT (queue, job_key) DO NOTHING
	`, req.Queue, req.JobKey, mustMarshal(req.Payload), req.maxAttempts(), req.runAt(now), now)
		return err
	})
}

func mustMarshal(v any) []byte {
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return raw
}

func (r *DispatchQueueRepo) ClaimNext(ctx context.Context, queue, workerID string) (dispatchqueue.Item, error) {
	var it dispatchqueue.Item
	var status string

	op := "dispatchqueue.claim_next"

	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id
			FROM dispatch_jobs
			WHERE queue = $1
			  AND status = 'waiting'
			  AND run_at <= NOW()
			  AND attempts < max_attempts
			ORDER BY run_at ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE dispatch_jobs
		SET status = 'active',
		    locked_at = NOW(),
		    locked_by = $2,
		    updated_at = NOW()
		WHERE id = (SELECT id FROM next)
		RETURNING id, queue, job_key, payload, status, attempts, max_attempts,
		          run_at, locked_at, locked_by, last_error, created_at, updated_at
	`, queue, workerID).Scan(
			&it.ID, &it.Queue, &it.JobKey, &it.Payload, &status, &it.Attempts, &it.MaxAttempts,
			&it.RunAt, &it.LockedAt, &it.LockedBy, &it.LastError, &it.CreatedAt, &it.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dispatchqueue.Item{}, dispatchqueue.ErrNotFound
		}
		return dispatchqueue.Item{}, err
	}

	it.Status = dispatchqueue.Status(status)
	return it, nil
}

func (r *DispatchQueueRepo) MarkDone(ctx context.Context, id string) error {
	op := "dispatchqueue.mark_done"
	return r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE dispatch_jobs
		SET status = 'completed', locked_at = NULL, locked_by = NULL, last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return dispatchqueue.ErrNotFound
		}
		return nil
	})
}

func (r *DispatchQueueRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	op := "dispatchqueue.mark_failed"
	return r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE dispatch_jobs
		SET status = 'failed', locked_at = NULL, locked_by = NULL, last_error = $2, updated_at = NOW()
		WHERE id = $1
	`, id, errMsg)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return dispatchqueue.ErrNotFound
		}
		return nil
	})
}

func (r *DispatchQueueRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	op := "dispatchqueue.reschedule"
	return r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE dispatch_jobs
		SET status = 'waiting', attempts = attempts + 1, run_at = $2,
		    locked_at = NULL, locked_by = NULL, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, runAt, errMsg)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return dispatchqueue.ErrNotFound
		}
		return nil
	})
}

func (r *DispatchQueueRepo) RequeueStaleProcessing(ctx context.Context, queue string, lockTTL time.Duration) (int64, error) {
	secs := int64(lockTTL.Seconds())
	if secs <= 0 {
		secs = 30
	}

	op := "dispatchqueue.requeue_stale"
	var rows int64
	err := r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE dispatch_jobs
		SET status = 'waiting', locked_at = NULL, locked_by = NULL, updated_at = NOW()
		WHERE queue = $1
		  AND status = 'active'
		  AND locked_at IS NOT NULL
		  AND locked_at < NOW() - ($2 * INTERVAL '1 second')
	`, queue, secs)
		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})
	return rows, err
}

// Counts reports §4.4's observability snapshot {waiting, active, completed, failed}.
func (r *DispatchQueueRepo) Counts(ctx context.Context, queue string) (dispatchqueue.Counts, error) {
	var c dispatchqueue.Counts
	op := "dispatchqueue.counts"

	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'waiting'),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM dispatch_jobs
		WHERE queue = $1
	`, queue).Scan(&c.Waiting, &c.Active, &c.Completed, &c.Failed)
	})

	return c, err
}
