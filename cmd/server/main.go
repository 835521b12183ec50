package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"hemotrack/internal/donation"
	"hemotrack/internal/eligibility"
	"hemotrack/internal/notify"
	"hemotrack/internal/platform/config"
	"hemotrack/internal/platform/httpserver"
	"hemotrack/internal/platform/logger"
	"hemotrack/internal/platform/postgres"
	redisclient "hemotrack/internal/platform/redis"
	"hemotrack/internal/reconcile"
	reconcilemetrics "hemotrack/internal/reconcile/metrics"
	"hemotrack/internal/recordstore"
	httpapi "hemotrack/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	// Record store: PostgreSQL when configured, in-memory otherwise.
	var store recordstore.Client
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		if err := recordstore.Migrate(ctx, pool); err != nil {
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		store = recordstore.NewPostgresClient(pool)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory record store")
		store = recordstore.NewInMemoryClient()
	}
	repo := donation.NewRepository(store)

	// Notification pipeline: Kafka when configured, postgres outbox as the
	// durable fallback, in-memory last.
	var sink notify.Sink
	switch {
	case len(cfg.KafkaBrokers) > 0:
		kafkaSink, err := notify.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka sink init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	case cfg.DatabaseURL != "":
		outbox, err := notify.NewOutboxSink(cfg.DatabaseURL)
		if err != nil {
			log.Error("outbox sink init failed", "error", err)
			os.Exit(1)
		}
		defer outbox.Close()
		sink = outbox
	default:
		sink = notify.NewInMemorySink()
	}

	publisher := notify.NewPublisher(0, log)
	worker := notify.NewWorker(sink, publisher.Inbox(), log)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go func() {
		if err := worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Error("notification worker stopped", "error", err)
		}
	}()

	// Engine, sweep, and read models.
	m := reconcilemetrics.New()
	engine, err := reconcile.NewService(repo,
		reconcile.WithLogger(log),
		reconcile.WithMetrics(m),
		reconcile.WithEmitter(publisher),
	)
	if err != nil {
		log.Error("engine init failed", "error", err)
		os.Exit(1)
	}

	var locker reconcile.Locker
	redisCli, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	if redisCli != nil {
		defer redisCli.Close()
		locker = reconcile.NewRedisLocker(redisCli.Client, cfg.SweepLockTTL)
	} else {
		log.Warn("REDIS_URL not set, sweeps are not serialized")
	}
	sweeper := reconcile.NewSweeper(engine, locker, log, cfg.SweepLimit)

	eligSvc, err := eligibility.NewService(repo, log)
	if err != nil {
		log.Error("eligibility init failed", "error", err)
		os.Exit(1)
	}

	router := httpapi.NewRouter(
		httpapi.NewReconcileHandler(engine, sweeper, log),
		httpapi.NewDonorHandler(eligSvc, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting hemotrack", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
