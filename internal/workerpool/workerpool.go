// Package workerpool is the generic concurrent claim-execute-backoff loop
// behind all three §4.4 worker pools (send, followup, analytics).
//
// Grounded on the teacher's internal/queue/worker.Worker: the same
// producer/channel/runWorker shape, health server, requeue loop, and
// exponential backoff, generalized from one hard-coded job type switch to
// a pluggable Handler over dispatchqueue.Item.
package workerpool

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/geocoder89/leadflow/internal/dispatchqueue"
	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repo is the minimal dispatchqueue surface a pool needs.
type Repo interface {
	ClaimNext(ctx context.Context, queue, workerID string) (dispatchqueue.Item, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, queue string, lockTTL time.Duration) (int64, error)
}

// Handler executes one claimed item. A returned error triggers the
// retry/backoff path in §4.4 steps 9 and §7's Transient-error policy.
type Handler func(ctx context.Context, item dispatchqueue.Item) error

// Limiter is satisfied by golang.org/x/time/rate.Limiter; kept as an
// interface so pools without a global rate limit can pass nil-safe no-ops.
type Limiter interface {
	Wait(ctx context.Context) error
}

type Config struct {
	Queue         string
	WorkerName    string // e.g. "sendworker", used as tracer/metric/health namespace
	WorkerID      string
	Concurrency   int
	PollInterval  time.Duration
	ShutdownGrace time.Duration
	LockTTL       time.Duration
	HealthAddr    string
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	return c
}

type Pool struct {
	cfg     Config
	repo    Repo
	handler Handler
	limiter Limiter
	metrics *observability.JobMetrics
	prom    *prometheus.Registry

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo Repo, handler Handler, limiter Limiter, reg *prometheus.Registry) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:     cfg,
		repo:    repo,
		handler: handler,
		limiter: limiter,
		metrics: observability.NewJobMetrics(),
		prom:    reg,
		ready:   true,
	}
}

func (p *Pool) tracer() trace.Tracer {
	return otel.Tracer("leadflow-" + p.cfg.WorkerName)
}

func (p *Pool) Run(ctx context.Context) error {
	srv := &http.Server{Addr: p.cfg.HealthAddr, Handler: p.healthHandler()}
	healthDone := make(chan struct{})

	go func() {
		log.Printf("%s health server starting on %s", p.cfg.WorkerName, p.cfg.HealthAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("%s health server error: %v", p.cfg.WorkerName, err)
		}
		close(healthDone)
	}()

	go func() {
		<-ctx.Done()
		p.readyMu.Lock()
		p.ready = false
		p.readyMu.Unlock()

		time.Sleep(5 * time.Second)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	itemsCh := make(chan dispatchqueue.Item)

	go p.requeueLoop(ctx)
	go p.logMetricsLoop(ctx, 30*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.runWorker(ctx, n, itemsCh)
		}(i + 1)
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

producerLoop:
	for {
		select {
		case <-ctx.Done():
			break producerLoop

		case <-ticker.C:
			for i := 0; i < p.cfg.Concurrency; i++ {
				if p.limiter != nil {
					if err := p.limiter.Wait(ctx); err != nil {
						break producerLoop
					}
				}

				claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				item, err := p.repo.ClaimNext(claimCtx, p.cfg.Queue, p.cfg.WorkerID)
				cancel()

				if err != nil {
					if errors.Is(err, dispatchqueue.ErrNotFound) {
						break
					}
					log.Printf("%s: claim error: %v", p.cfg.WorkerName, err)
					break
				}

				select {
				case itemsCh <- item:
					p.metrics.IncClaimed()
				case <-ctx.Done():
					break producerLoop
				}
			}
		}
	}

	close(itemsCh)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.ShutdownGrace):
		log.Printf("%s: shutdown grace exceeded; exiting", p.cfg.WorkerName)
	}

	select {
	case <-healthDone:
	case <-time.After(7 * time.Second):
	}

	return nil
}

func (p *Pool) runWorker(ctx context.Context, n int, items <-chan dispatchqueue.Item) {
	for item := range items {
		start := time.Now()

		execCtx, span := p.tracer().Start(ctx, p.cfg.WorkerName+".run",
			trace.WithAttributes(
				attribute.String("item.id", item.ID),
				attribute.String("item.queue", item.Queue),
				attribute.Int("item.attempts", item.Attempts),
			),
		)

		func() {
			defer span.End()

			slog.Default().InfoContext(execCtx, p.cfg.WorkerName+".start",
				"worker_num", n, "item_id", item.ID, "queue", item.Queue, "attempts", item.Attempts)

			if err := p.handler(execCtx, item); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				p.handleFailure(execCtx, item, err)

				d := time.Since(start)
				p.metrics.ObserveDuration(d)
				p.metrics.IncFailed()

				slog.Default().ErrorContext(execCtx, p.cfg.WorkerName+".error",
					"item_id", item.ID, "duration_ms", d.Milliseconds(), "err", err)
				return
			}

			if err := p.repo.MarkDone(execCtx, item.ID); err != nil {
				span.RecordError(err)
				_ = p.repo.MarkFailed(execCtx, item.ID, "mark_done_failed: "+err.Error())
				p.metrics.IncFailed()
				return
			}

			d := time.Since(start)
			p.metrics.ObserveDuration(d)
			p.metrics.IncDone()
			span.SetStatus(codes.Ok, "done")

			slog.Default().InfoContext(execCtx, p.cfg.WorkerName+".done",
				"item_id", item.ID, "duration_ms", d.Milliseconds())
		}()
	}
}

func (p *Pool) handleFailure(ctx context.Context, item dispatchqueue.Item, execErr error) {
	errMsg := execErr.Error()
	nextAttempt := item.Attempts + 1

	if nextAttempt < item.MaxAttempts {
		delay := ExponentialBackoff(item.Attempts)
		runAt := time.Now().UTC().Add(delay)

		if err := p.repo.Reschedule(ctx, item.ID, runAt, errMsg); err != nil {
			log.Printf("%s: reschedule error item=%s: %v", p.cfg.WorkerName, item.ID, err)
			_ = p.repo.MarkFailed(ctx, item.ID, "reschedule_failed: "+errMsg)
			return
		}

		p.metrics.IncRetried()
		return
	}

	if err := p.repo.MarkFailed(ctx, item.ID, errMsg); err != nil {
		log.Printf("%s: mark failed error item=%s: %v", p.cfg.WorkerName, item.ID, err)
		return
	}
	p.metrics.IncDeadLettered()
}

func (p *Pool) requeueLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			hctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			n, err := p.repo.RequeueStaleProcessing(hctx, p.cfg.Queue, p.cfg.LockTTL)
			cancel()

			if err != nil {
				log.Printf("%s.requeue_stale error=%v", p.cfg.WorkerName, err)
				continue
			}
			if n > 0 {
				log.Printf("%s.requeue_stale count=%d", p.cfg.WorkerName, n)
			}
		}
	}
}

func (p *Pool) logMetricsLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := p.metrics.Snapshot()
			log.Printf("%s metrics claimed=%d done=%d failed=%d retried=%d dlq=%d",
				p.cfg.WorkerName, s.Claimed, s.Done, s.Failed, s.Retried, s.DeadLettered)
		}
	}
}

func (p *Pool) healthHandler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	r.GET("/readyz", func(c *gin.Context) {
		p.readyMu.RLock()
		ready := p.ready
		p.readyMu.RUnlock()

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if p.prom != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(p.prom, promhttp.HandlerOpts{})))
	} else {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return r
}

// ExponentialBackoff mirrors the teacher's retry delay curve: 2s, 4s, 8s...
// capped at 5 minutes, with a small jitter to avoid thundering herds.
func ExponentialBackoff(attempt int) time.Duration {
	base := 2 * time.Second
	capDelay := 5 * time.Minute

	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > capDelay {
		delay = capDelay
	}
	delay += time.Duration(rand.Intn(250)) * time.Millisecond
	return delay
}
