package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/medtrans/qagate/internal/adapter/embedapi"
	qghttp "github.com/medtrans/qagate/internal/adapter/http"
	"github.com/medtrans/qagate/internal/adapter/memstore"
	qgnats "github.com/medtrans/qagate/internal/adapter/nats"
	qgotel "github.com/medtrans/qagate/internal/adapter/otel"
	"github.com/medtrans/qagate/internal/adapter/postgres"
	"github.com/medtrans/qagate/internal/adapter/ristretto"
	"github.com/medtrans/qagate/internal/adapter/termapi"
	"github.com/medtrans/qagate/internal/adapter/vectormem"
	"github.com/medtrans/qagate/internal/config"
	"github.com/medtrans/qagate/internal/logger"
	"github.com/medtrans/qagate/internal/port/database"
	"github.com/medtrans/qagate/internal/port/messagequeue"
	"github.com/medtrans/qagate/internal/resilience"
	"github.com/medtrans/qagate/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"sweep_interval", cfg.Review.SweepInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	shutdownTracer, err := qgotel.InitTracer(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			slog.Warn("tracer shutdown", "error", err)
		}
	}()

	// PostgreSQL, or the in-memory store for DSN-less local runs.
	var store database.Store
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")

		store = postgres.NewStore(pool)
	} else {
		slog.Warn("no postgres DSN configured, using in-memory store")
		store = memstore.New()
	}

	// NATS. Optional for local runs; events are best-effort.
	var queue messagequeue.Queue
	if cfg.NATS.URL != "" {
		natsQueue, err := qgnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = natsQueue.Close() }()
		queue = natsQueue
	} else {
		slog.Warn("no NATS URL configured, domain events disabled")
	}

	// Embedding cache.
	cache, err := ristretto.New(cfg.Memory.CacheMaxBytes)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	defer cache.Close()

	vectors := vectormem.New()

	// --- External service clients ---

	terms := termapi.New(cfg.Terminology)
	embedder := embedapi.New(cfg.Embedding)

	termBreaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	embedBreaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	// --- Services ---

	scorer := service.NewScorer(terms, cfg.Scoring, termBreaker)
	memories := service.NewMemoryIndex(store, vectors, embedder, cache, embedBreaker, cfg.Memory)
	if err := memories.Rehydrate(ctx); err != nil {
		return fmt.Errorf("rehydrate memory index: %w", err)
	}
	directory := service.NewDirectory(store, cfg.Review.StatsAlpha)
	orchestrator := service.NewOrchestrator(store, directory, queue, cfg.Review.Policies)
	engine := service.NewEngine(store, queue, cfg.Review.SweepInterval)
	learner := service.NewLearner(store, memories, queue, cfg.Feedback.IssueThreshold, cfg.Feedback.TopIssues)
	pipeline := service.NewPipeline(store, scorer, memories, orchestrator, cfg.Pipeline)

	orchestrator.AttachEngine(engine)
	engine.OnTerminal(learner.HandleTerminal)
	engine.OnExpired(orchestrator.RequeueExpired)

	// Deadline sweeper.
	go engine.Run(ctx)

	// Credential verification events from the external credentialing system.
	if queue != nil {
		feed := service.NewCredentialFeed(directory, queue)
		cancelFeed, err := feed.Start(ctx)
		if err != nil {
			return fmt.Errorf("credential feed: %w", err)
		}
		defer cancelFeed()
	}

	// --- HTTP ---

	handlers := qghttp.NewHandlers(pipeline, directory, orchestrator, memories, store)

	r := chi.NewRouter()
	r.Use(qgotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(qghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(qghttp.SecurityHeaders)
	r.Use(qghttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	qghttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
