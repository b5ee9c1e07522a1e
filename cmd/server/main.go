package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"otakudb/internal/audit"
	"otakudb/internal/history"
	"otakudb/internal/identity"
	"otakudb/internal/media"
	"otakudb/internal/options"
	"otakudb/internal/platform/config"
	"otakudb/internal/platform/httpserver"
	"otakudb/internal/platform/logger"
	"otakudb/internal/platform/metrics"
	"otakudb/internal/platform/middleware"
	"otakudb/internal/platform/postgres"
	"otakudb/internal/platform/redis"
	httptransport "otakudb/internal/transport/http"
	"otakudb/pkg/platform/tx"
)

// main wires dependencies and owns the server lifecycle. Without a postgres
// DSN everything runs on in-memory stores, which is enough for local
// development.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	var (
		db           *sql.DB
		ledgerStore  history.Store
		mediaStore   media.Store
		auditStore   audit.Store
		optionsStore options.Store
	)
	if cfg.PostgresDSN != "" {
		var err error
		if db, err = sql.Open("postgres", cfg.PostgresDSN); err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if err := postgres.Apply(context.Background(), db); err != nil {
			return err
		}
		ledgerStore = history.NewPostgresStore(db)
		mediaStore = media.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
		ledgerStore = history.NewInMemoryStore()
		mediaStore = media.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		optionsStore = options.NewRedisStore(redisClient.Client)
	} else {
		optionsStore = options.NewInMemoryStore()
	}

	optionsService := options.New(optionsStore)
	runner := tx.NewRunner(db)
	m := metrics.New()

	registry := history.NewRegistry()
	if err := media.Register(registry, mediaStore); err != nil {
		return fmt.Errorf("register media types: %w", err)
	}

	var auditQueue *audit.Queue
	auditSink := auditStore
	if cfg.AuditAsync {
		auditQueue = audit.NewQueue(auditStore, cfg.AuditQueueBuffer)
		auditSink = auditQueue
	}
	publisher := audit.NewPublisher(auditSink, log)
	ledger := history.NewLedger(ledgerStore, registry, log)
	gate := history.NewGate(ledgerStore, optionsService)
	tracker := history.NewTracker(ledger, gate, optionsService, runner, m, publisher, log)
	moderator := history.NewModerator(ledger, runner, m, publisher, log)

	mediaService := media.NewService(mediaStore, tracker, log)

	users := identity.NewInMemoryUserStore()
	tokens := identity.NewTokenService(cfg.JWTSigningKey, "otakudb")

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Media:       httptransport.NewMediaHandler(mediaService, log),
		History:     httptransport.NewHistoryHandler(ledger, moderator, log),
		RequireAuth: middleware.RequireAuth(tokens, users, log),
		Logger:      log,
	})
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	if auditQueue != nil {
		group.Go(func() error {
			log.Info("starting async audit worker", "buffer", cfg.AuditQueueBuffer)
			if err := auditQueue.Worker().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit worker: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		log.Info("starting otakudb", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("otakudb stopped")
	return nil
}
