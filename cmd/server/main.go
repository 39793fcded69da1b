// Command server runs the citation service. Wiring happens here; business
// logic lives in the internal services packages.
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

	_ "github.com/lib/pq"

	"contrava/internal/citation"
	citationmetrics "contrava/internal/citation/metrics"
	"contrava/internal/citation/payref"
	"contrava/internal/citation/service"
	"contrava/internal/citation/store"
	memorystore "contrava/internal/citation/store/memory"
	postgresstore "contrava/internal/citation/store/postgres"
	"contrava/internal/directory"
	httpapi "contrava/internal/http"
	"contrava/internal/platform/config"
	"contrava/internal/platform/httpserver"
	"contrava/internal/platform/logger"
	"contrava/internal/platform/metrics"
	platformredis "contrava/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	records, db, err := newRecordStore(cfg, log)
	if err != nil {
		log.Error("record store init failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	var payrefs payref.Store
	if redisClient != nil {
		defer redisClient.Close()
		payrefs = payref.NewRedis(redisClient.Client)
		log.Info("payment references on redis")
	} else {
		payrefs = payref.NewInMemory()
		log.Info("payment references in memory")
	}

	citMetrics := citationmetrics.New()
	serviceOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(citMetrics),
		service.WithPayRefStore(payrefs),
	}
	if cfg.DirectoryBaseURL != "" {
		serviceOpts = append(serviceOpts, service.WithDirectory(directory.NewClient(cfg.DirectoryBaseURL)))
	}

	lifecycle, err := citation.NewService(records, serviceOpts...)
	if err != nil {
		log.Error("lifecycle service init failed", "error", err)
		os.Exit(1)
	}
	lister, err := citation.NewQueryService(records)
	if err != nil {
		log.Error("query service init failed", "error", err)
		os.Exit(1)
	}
	summarizer, err := citation.NewStatsService(records)
	if err != nil {
		log.Error("stats service init failed", "error", err)
		os.Exit(1)
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Citation: citation.NewHandler(lifecycle, lister, summarizer, log, citMetrics),
		Logger:   log,
		Metrics:  metrics.New(),
		Health:   healthCheck(db, redisClient),
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting contrava", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// newRecordStore selects postgres when a DSN is configured, otherwise the
// in-memory store for development.
func newRecordStore(cfg config.Server, log *slog.Logger) (store.RecordStore, *sql.DB, error) {
	if cfg.PostgresDSN == "" {
		log.Info("records in memory")
		return memorystore.NewInMemory(), nil, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}

	pg := postgresstore.NewPostgres(db)
	if err := pg.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("records on postgres")
	return pg, db, nil
}

func healthCheck(db *sql.DB, redisClient *platformredis.Client) func(r *http.Request) error {
	return func(r *http.Request) error {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				return err
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				return err
			}
		}
		return nil
	}
}
