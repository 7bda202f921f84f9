package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cartoonify/internal/adapter/repo"
	"cartoonify/internal/domain"
	"cartoonify/internal/events"
	"cartoonify/internal/facedetect"
	"cartoonify/internal/http/handlers"
	httpapi "cartoonify/internal/http/httpapi"
	"cartoonify/internal/infra"
	"cartoonify/internal/infra/geoip"
	"cartoonify/internal/jobs"
	"cartoonify/internal/metrics"
	"cartoonify/internal/middleware"
	"cartoonify/internal/storage"
	"cartoonify/internal/stylize"
)

func main() {
	if err := infra.LoadEnvFiles(); err != nil {
		panic(err)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobRepo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open job repository")
	}
	defer closeRepo()

	storagePath, err := filepath.Abs(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve storage path")
	}
	store, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	params := stylize.DefaultParameters()
	if cfg.StylizeConfigPath != "" {
		params, err = stylize.LoadParameters(cfg.StylizeConfigPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.StylizeConfigPath).Msg("failed to load stylize parameters")
		}
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		nats, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		publisher = nats
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close event publisher")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	orch := jobs.New(jobRepo, store, facedetect.Default(), stylize.Default(), jobs.Options{
		Workers:     cfg.WorkerCount,
		QueueSize:   cfg.QueueSize,
		JPEGQuality: cfg.ResultJPEGQuality,
		Params:      params,
		Metrics:     metrics.NewPrometheusRecorder(reg),
		Events:      publisher,
		Logger:      &logger,
	})
	if _, err := orch.Recover(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to recover interrupted jobs")
	}

	app := handlers.NewApp(orch, jobs.NewComposer(orch), store, &logger, cfg.StorageBaseURL, cfg.MaxUploadBytes)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   middleware.CountryLookup(resolver.Lookup()),
		Metrics:         metrics.HTTPHandler(reg),
		StaticDir:       storagePath,
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Str("addr", server.Addr()).Bool("postgres", cfg.UsePostgres()).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := orch.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("workers did not drain before the deadline")
	}
	logger.Info().Msg("server stopped")
}

// openRepository picks PostgreSQL when DATABASE_URL is set and SQLite otherwise.
func openRepository(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.JobRepository, func(), error) {
	if cfg.UsePostgres() {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		r := repo.NewJobRepository(infra.NewSQLRunner(pool, logger))
		if err := r.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return r, pool.Close, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	r, err := repo.NewJobRepositorySQLite(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return r, func() {
		if err := r.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close sqlite database")
		}
	}, nil
}
