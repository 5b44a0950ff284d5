package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sitequant/takeoff/internal/common"
	"github.com/sitequant/takeoff/internal/export"
	"github.com/sitequant/takeoff/internal/extract"
	"github.com/sitequant/takeoff/internal/ingest"
	"github.com/sitequant/takeoff/internal/pipeline"
	"github.com/sitequant/takeoff/internal/repository"
	"github.com/sitequant/takeoff/internal/scheduler"
	"github.com/sitequant/takeoff/internal/server"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("takeoffd.config.invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("takeoffd.db.open_failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.AutoMigrate(db); err != nil {
		logger.Error("takeoffd.db.migrate_failed", "error", err)
		os.Exit(1)
	}

	projects := repository.NewProjectStore(db, logger)
	files := repository.NewFileStore(db, logger)
	jobs := repository.NewJobStore(db, logger)
	items := repository.NewItemStore(db, logger)
	logs := repository.NewLogStore(db, logger)

	extractor := extract.NewServiceClient(cfg.Extractor.BaseURL, cfg.Extractor.APIKey, cfg.Extractor.Timeout, logger)

	gate := pipeline.NewGate(files, items, jobs, logs, logger)
	boq := pipeline.NewBOQProcessor(files, items, jobs, logs, extractor,
		cfg.Pipeline.MaxRowsPerChunk, cfg.Pipeline.BlankRunLength, logger)
	processor := pipeline.NewProcessor(files, items, jobs, logs, extractor, boq, gate, logger)
	agg := pipeline.NewAggregator(jobs, projects, logger)
	svc := pipeline.NewService(projects, files, jobs, items, logs, gate, agg, logger)

	sched := scheduler.New(jobs, processor, agg, scheduler.Config{
		MaxConcurrency: cfg.Scheduler.MaxConcurrency,
		PollInterval:   cfg.Scheduler.PollInterval,
		StaleAfter:     cfg.Scheduler.StaleAfter,
		SweepInterval:  cfg.Scheduler.SweepInterval,
	}, logger)

	schedDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedDone)
	}()

	if len(cfg.Ingest.InboxRoots) > 0 {
		events, errs, werr := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       cfg.Ingest.InboxRoots,
			InitialScan: true,
			Debounce:    cfg.Ingest.Debounce,
		}, logger)
		if werr != nil {
			logger.Error("takeoffd.ingest.start_failed", "error", werr)
			os.Exit(1)
		}
		registrar := ingest.NewRegistrar(files, logs, logger)
		go registrar.Run(ctx, cfg.Ingest.InboxRoots, events, errs)
	}

	exporter := export.NewService(projects, items, logger)
	srv := server.New(svc, projects, exporter, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("takeoffd.http.listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("takeoffd.http.serve_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("takeoffd.shutdown.begin")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("takeoffd.http.shutdown_failed", "error", err)
	}

	// Let in-flight jobs finish their terminal writes before closing the pool.
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("takeoffd.scheduler.drain_timeout", "in_flight", sched.InFlight())
	}
	logger.Info("takeoffd.shutdown.done")
}
