package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lendgate/internal/aggregation"
	agghandler "lendgate/internal/aggregation/handler"
	aggmetrics "lendgate/internal/aggregation/metrics"
	"lendgate/internal/banks"
	"lendgate/internal/gateway"
	"lendgate/internal/platform/config"
	"lendgate/internal/platform/httpserver"
	"lendgate/internal/platform/logger"
	"lendgate/internal/platform/metrics"
	"lendgate/internal/platform/postgres"
	"lendgate/internal/platform/redis"
	rlmetrics "lendgate/internal/ratelimit/metrics"
	ratelimitmw "lendgate/internal/ratelimit/middleware"
	"lendgate/internal/ratelimit/models"
	"lendgate/internal/ratelimit/store/bucket"
	"lendgate/internal/simulation"
	simhandler "lendgate/internal/simulation/handler"
	simmetrics "lendgate/internal/simulation/metrics"
	audit "lendgate/pkg/platform/audit"
	auditmemory "lendgate/pkg/platform/audit/store/memory"
	auditpostgres "lendgate/pkg/platform/audit/store/postgres"
	"lendgate/pkg/platform/circuit"
)

const sweepInterval = 5 * time.Minute

// main wires config, stores, the two gateway paths and the router, then
// runs the server until SIGINT/SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()

	registry, err := banks.FromConfig(cfg.Banks)
	if err != nil {
		return err
	}

	engine, err := aggregation.New(registry, aggregation.NewHTTPFetcher(&http.Client{}),
		aggregation.WithLogger(log),
		aggregation.WithMetrics(aggmetrics.New(reg.Registerer())),
		aggregation.WithTimeout(cfg.Aggregation.Timeout),
		aggregation.WithBreakers(cfg.Aggregation.BreakerThreshold, cfg.Aggregation.BreakerCooldown),
	)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	auditStore, err := newAuditStore(ctx, db, log)
	if err != nil {
		return err
	}

	processor, err := simulation.NewHTTPProcessor(&http.Client{}, cfg.Simulation.ProcessorURL)
	if err != nil {
		return err
	}
	simGateway, err := simulation.New(processor,
		simulation.WithLogger(log),
		simulation.WithMetrics(simmetrics.New(reg.Registerer())),
		simulation.WithAuditStore(auditStore),
		simulation.WithTimeout(cfg.Simulation.Timeout),
	)
	if err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	rlm := rlmetrics.New(reg.Registerer())
	memoryBuckets := bucket.NewInMemoryBucketStore()
	go memoryBuckets.RunSweeper(ctx, sweepInterval)

	var limiter *ratelimitmw.ResilientLimiter
	if redisClient != nil {
		limiter = ratelimitmw.NewResilientLimiter(
			bucket.NewRedisBucketStore(redisClient.Client),
			memoryBuckets,
			circuit.New("ratelimit-redis", circuit.WithCooldown(30*time.Second)),
			log, rlm,
		)
		log.Info("rate limiting backed by redis")
	} else {
		limiter = ratelimitmw.NewResilientLimiter(memoryBuckets, nil, nil, log, rlm)
	}
	rateLimit := ratelimitmw.New(limiter, log,
		ratelimitmw.WithDisabled(cfg.RateLimit.Disabled),
		ratelimitmw.WithMetrics(rlm),
		ratelimitmw.WithLimit(models.ClassRead, models.PerMinute(cfg.RateLimit.ReadPerMinute)),
		ratelimitmw.WithLimit(models.ClassSensitive, models.PerMinute(cfg.RateLimit.SensitivePerMinute)),
	)

	health := gateway.NewHealthHandler(registry, engine, log)
	if redisClient != nil {
		health.WithCheck("redis", redisClient.Health)
	}
	if db != nil {
		health.WithCheck("postgres", db.PingContext)
	}

	router := gateway.NewRouter(gateway.Routes{
		Logger:            log,
		HTTPMetrics:       metrics.NewHTTPMetrics(reg.Registerer()),
		Metrics:           reg.Handler(),
		RateLimit:         rateLimit,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		Applications:      agghandler.New(engine, log),
		Simulation:        simhandler.New(simGateway, log),
		Fallback:          gateway.NewFallbackHandler(log),
		Health:            health,
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting lendgate",
			"addr", cfg.Server.Addr,
			"banks", registry.Len(),
			"processor", processor.Endpoint(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newAuditStore(ctx context.Context, db *sql.DB, log *slog.Logger) (audit.Store, error) {
	if db == nil {
		log.Info("simulation audit kept in memory")
		return auditmemory.NewInMemoryStore(), nil
	}
	store := auditpostgres.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
