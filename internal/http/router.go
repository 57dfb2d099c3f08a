package http

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/geocoder89/leadflow/internal/conditional"
	"github.com/geocoder89/leadflow/internal/config"
	"github.com/geocoder89/leadflow/internal/eventbus"
	"github.com/geocoder89/leadflow/internal/http/handlers"
	"github.com/geocoder89/leadflow/internal/http/middlewares"
	"github.com/geocoder89/leadflow/internal/journeyguard"
	"github.com/geocoder89/leadflow/internal/lock"
	"github.com/geocoder89/leadflow/internal/observability"
	"github.com/geocoder89/leadflow/internal/queue/redisclient"
	"github.com/geocoder89/leadflow/internal/rediscache"
	"github.com/geocoder89/leadflow/internal/repo/postgres"
	"github.com/geocoder89/leadflow/internal/retrypolicy"
	"github.com/geocoder89/leadflow/internal/scheduler"
	"github.com/geocoder89/leadflow/internal/webhookingest"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter wires every repository, coordination-store client, and domain
// service behind the §6 HTTP surface: the inbound Brevo webhook and the
// internal scheduler RPCs used by dev tooling and the controllers.
func NewRouter(log *slog.Logger, pool *pgxpool.Pool, cfg config.Config) *gin.Engine {
	if os.Getenv("APP_ENV") != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	rdb, err := redisclient.NewFromURL(cfg.RedisURL)
	if err != nil {
		log.Error("redis client build failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("leadflow-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.CORSMiddleware([]string{"http://localhost:3000"}))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(1 << 20)) // 1MB max body
	r.Use(middlewares.RequireJSON())
	r.Use(prom.GinHandleMiddleware())

	readyCheck := func() error {
		if pool != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				return err
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		return rdb.Ping(ctx)
	}
	health := handlers.NewHealthHandler(readyCheck)

	// repositories
	settingsRepo := postgres.NewSettingsRepo(pool, prom)
	leadsRepo := postgres.NewLeadsRepo(pool, prom)
	jobsRepo := postgres.NewEmailJobsRepo(pool, prom)
	dispatchRepo := postgres.NewDispatchQueueRepo(pool, prom)
	conditionalRepo := postgres.NewConditionalRepo(pool, prom)
	processedRepo := postgres.NewProcessedEventsRepo(pool, prom)
	eventStoreRepo := postgres.NewEventStoreRepo(pool, prom)
	schedulesRepo := postgres.NewEmailSchedulesRepo(pool, prom)
	manualMailsRepo := postgres.NewManualMailsRepo(pool, prom)

	// coordination-store cache: §5's 5m analytics cache, invalidated by the
	// ingestor whenever a delivery/engagement event changes a lead's status
	analyticsCache := rediscache.New(rdb.Raw(), "analytics", rediscache.AnalyticsTTL)

	// §4.2/§4.3 locking and journey guard
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

	// The outbound gateway client/circuit-breaker/creds-cache trio is wired
	// in cmd/worker's send worker pool, not here; this router never calls
	// out to the email gateway directly.

	webhooksHandler := handlers.NewWebhooksHandler(ingestor)
	schedulerHandler := handlers.NewSchedulerHandler(sch, jobsRepo, dispatchRepo)
	manualMailHandler := handlers.NewManualMailHandler(sch, manualMailsRepo)
	emailJobsHandler := handlers.NewEmailJobsHandler(jobsRepo)

	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/docs", handlers.SwaggerUI)

	r.POST("/webhooks/brevo", webhooksHandler.Brevo)
	r.POST("/manual-mails", manualMailHandler.Send)
	r.GET("/leads/:leadId/jobs", emailJobsHandler.ListByLead)

	internalGroup := r.Group("/internal/scheduler")
	{
		internalGroup.POST("/next/:leadId", schedulerHandler.ScheduleNext)
		internalGroup.POST("/job", schedulerHandler.ScheduleJob)
		internalGroup.POST("/cancel/:leadId", schedulerHandler.CancelByLead)
		internalGroup.POST("/fast-forward/:jobId", schedulerHandler.FastForward)
	}

	return r
}
