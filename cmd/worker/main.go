package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/geocoder89/leadflow/internal/analyticsworker"
	"github.com/geocoder89/leadflow/internal/cache"
	"github.com/geocoder89/leadflow/internal/conditional"
	"github.com/geocoder89/leadflow/internal/config"
	"github.com/geocoder89/leadflow/internal/db"
	"github.com/geocoder89/leadflow/internal/dispatchqueue"
	"github.com/geocoder89/leadflow/internal/eventbus"
	"github.com/geocoder89/leadflow/internal/followupworker"
	"github.com/geocoder89/leadflow/internal/gateway"
	"github.com/geocoder89/leadflow/internal/journeyguard"
	"github.com/geocoder89/leadflow/internal/lock"
	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/geocoder89/leadflow/internal/queue/redisclient"
	"github.com/geocoder89/leadflow/internal/ratelimit"
	"github.com/geocoder89/leadflow/internal/rediscache"
	"github.com/geocoder89/leadflow/internal/repo/postgres"
	"github.com/geocoder89/leadflow/internal/retrypolicy"
	"github.com/geocoder89/leadflow/internal/scheduler"
	"github.com/geocoder89/leadflow/internal/sendworker"
	"github.com/geocoder89/leadflow/internal/webhookingest"
	"github.com/geocoder89/leadflow/internal/workerpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) init tracing first (so all spans/logs can attach)
	shutdownTracer, err := observability.InitTracer(context.Background(), "leadflow-worker", "localhost:4317")
	if err != nil {
		log.Fatalf("otel init failed: %v", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	// 2) setup slog + trace handler (so logs include trace_id/span_id)
	base := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(observability.NewTraceHandler(base))
	slog.SetDefault(logger)

	pool, err := db.NewPool(cfg.DBURL)
	if err != nil {
		slog.Default().ErrorContext(ctx, "db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := redisclient.NewFromURL(cfg.RedisURL)
	if err != nil {
		slog.Default().ErrorContext(ctx, "redis connect failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	settingsRepo := postgres.NewSettingsRepo(pool, prom)
	leadsRepo := postgres.NewLeadsRepo(pool, prom)
	jobsRepo := postgres.NewEmailJobsRepo(pool, prom)
	dispatchRepo := postgres.NewDispatchQueueRepo(pool, prom)
	conditionalRepo := postgres.NewConditionalRepo(pool, prom)
	processedRepo := postgres.NewProcessedEventsRepo(pool, prom)
	eventStoreRepo := postgres.NewEventStoreRepo(pool, prom)
	schedulesRepo := postgres.NewEmailSchedulesRepo(pool, prom)
	manualMailsRepo := postgres.NewManualMailsRepo(pool, prom)

	analyticsCache := rediscache.New(rdb.Raw(), "analytics", rediscache.AnalyticsTTL)

	locker := lock.New(rdb.Raw())
	guard := journeyguard.New(locker, jobsRepo, cfg.LockTTL)

	sch := scheduler.New(guard, jobsRepo, leadsRepo, settingsRepo, dispatchRepo)
	conditionalEngine := conditional.New(conditionalRepo, jobsRepo, leadsRepo, settingsRepo, dispatchRepo)
	retryPolicy := retrypolicy.New(jobsRepo, settingsRepo)
	bus := eventbus.New()

	ingestor := webhookingest.New(webhookingest.Deps{
		Processed:   processedRepo,
		Jobs:        jobsRepo,
		Leads:       leadsRepo,
		Schedules:   schedulesRepo,
		EventStore:  eventStoreRepo,
		Settings:    settingsRepo,
		Queue:       dispatchRepo,
		Conditional: conditionalEngine,
		Retry:       retryPolicy,
		Analytics:   analyticsCache,
		Bus:         bus,
	})

	gatewayClient := gateway.NewClient(cfg.GatewayTimeout)
	protectedGateway := gateway.NewProtectedGateway(gatewayClient, gateway.CircuitConfig{
		Timeout: cfg.GatewayTimeout,
	})
	credsSource := gateway.NewCachedCredsSource(settingsRepo, cache.New(60*time.Second))

	sendHandler := sendworker.NewHandler(sendworker.Deps{
		Jobs:        jobsRepo,
		Leads:       leadsRepo,
		ManualMails: manualMailsRepo,
		Settings:    settingsRepo,
		EventStore:  eventStoreRepo,
		Creds:       credsSource,
		Gateway:     protectedGateway,
		Retry:       retryPolicy,
	})
	followupHandler := followupworker.NewHandler(sch)
	analyticsHandler := analyticsworker.NewHandler(ingestor)

	host, _ := os.Hostname()
	pid := strconv.Itoa(os.Getpid())

	sendPool := workerpool.New(workerpool.Config{
		Queue:        dispatchqueue.QueueEmailSend,
		WorkerName:   "sendworker",
		WorkerID:     host + "-send-" + pid,
		Concurrency:  cfg.SendWorker.Concurrency,
		PollInterval: cfg.SendWorker.PollInterval,
		LockTTL:      cfg.LockTTL,
		HealthAddr:   cfg.SendWorker.HealthAddr,
	}, dispatchRepo, sendHandler, ratelimit.NewLocal(cfg.SendWorker.RatePerSec), reg)

	followupPool := workerpool.New(workerpool.Config{
		Queue:        dispatchqueue.QueueFollowup,
		WorkerName:   "followupworker",
		WorkerID:     host + "-followup-" + pid,
		Concurrency:  cfg.FollowupWorker.Concurrency,
		PollInterval: cfg.FollowupWorker.PollInterval,
		LockTTL:      cfg.LockTTL,
		HealthAddr:   cfg.FollowupWorker.HealthAddr,
	}, dispatchRepo, followupHandler, ratelimit.NewLocal(cfg.FollowupWorker.RatePerSec), reg)

	analyticsPool := workerpool.New(workerpool.Config{
		Queue:        dispatchqueue.QueueAnalytics,
		WorkerName:   "analyticsworker",
		WorkerID:     host + "-analytics-" + pid,
		Concurrency:  cfg.AnalyticsWorker.Concurrency,
		PollInterval: cfg.AnalyticsWorker.PollInterval,
		LockTTL:      cfg.LockTTL,
		HealthAddr:   cfg.AnalyticsWorker.HealthAddr,
	}, dispatchRepo, analyticsHandler, ratelimit.NewLocal(cfg.AnalyticsWorker.RatePerSec), reg)

	pools := map[string]*workerpool.Pool{
		"send":      sendPool,
		"followup":  followupPool,
		"analytics": analyticsPool,
	}

	// queue-depth janitor: every 30s, log each queue's backlog so an
	// operator watching logs can see a stuck queue before alerts fire.
	depthCron := cron.New()
	_, err = depthCron.AddFunc("@every 30s", func() {
		for name, queue := range map[string]string{
			"send":      dispatchqueue.QueueEmailSend,
			"followup":  dispatchqueue.QueueFollowup,
			"analytics": dispatchqueue.QueueAnalytics,
		} {
			counts, err := dispatchRepo.Counts(ctx, queue)
			if err != nil {
				slog.Default().WarnContext(ctx, "queue_depth.check_failed", "pool", name, "err", err)
				continue
			}
			slog.Default().InfoContext(ctx, "queue_depth",
				"pool", name, "waiting", counts.Waiting, "active", counts.Active, "failed", counts.Failed)
		}
	})
	if err != nil {
		slog.Default().ErrorContext(ctx, "queue_depth.schedule_failed", "err", err)
	}
	depthCron.Start()
	defer depthCron.Stop()

	// processed-events janitor: daily, delete dedup rows past the 7-day
	// retention window (§3) so the ledger doesn't grow unbounded.
	const processedEventRetention = 7 * 24 * time.Hour
	pruneCron := cron.New()
	_, err = pruneCron.AddFunc("@daily", func() {
		cutoff := time.Now().UTC().Add(-processedEventRetention)
		n, err := processedRepo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			slog.Default().ErrorContext(ctx, "processed_events_prune.failed", "err", err)
			return
		}
		slog.Default().InfoContext(ctx, "processed_events_prune.done", "deleted", n, "cutoff", cutoff)
	})
	if err != nil {
		slog.Default().ErrorContext(ctx, "processed_events_prune.schedule_failed", "err", err)
	}
	pruneCron.Start()
	defer pruneCron.Stop()

	var wg sync.WaitGroup
	for name, p := range pools {
		wg.Add(1)
		go func(name string, p *workerpool.Pool) {
			defer wg.Done()
			slog.Default().InfoContext(ctx, "worker_pool.start", "pool", name)
			if err := p.Run(ctx); err != nil {
				slog.Default().ErrorContext(ctx, "worker_pool.run_failed", "pool", name, "err", err)
			}
		}(name, p)
	}

	wg.Wait()
	slog.Default().InfoContext(context.Background(), "worker.shutdown_complete")
}
