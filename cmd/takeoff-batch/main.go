package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/sitequant/takeoff/internal/common"
	"github.com/sitequant/takeoff/internal/export"
	"github.com/sitequant/takeoff/internal/extract"
	"github.com/sitequant/takeoff/internal/ingest"
	"github.com/sitequant/takeoff/internal/pipeline"
	"github.com/sitequant/takeoff/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem   = flag.Bool("inmem", false, "use in-memory SQLite database")
		dir     = flag.String("dir", "", "directory of documents to process (required)")
		project = flag.String("project", "Local Batch", "project name to register files under")
		out     = flag.String("out", "", "output XLSX file path (defaults to parent directory)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "takeoff-items.xlsx")
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()

	var db *gorm.DB
	if *inmem {
		var err error
		db, err = repository.OpenSQLite(":memory:", logger)
		if err != nil {
			logger.Error("failed to open in-memory database", "error", err)
			os.Exit(1)
		}
	} else {
		gdb, pgpool, err := repository.Open(ctx, repository.Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer repository.Close(pgpool, logger)
		db = gdb
	}

	if err := repository.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	projects := repository.NewProjectStore(db, logger)
	files := repository.NewFileStore(db, logger)
	jobs := repository.NewJobStore(db, logger)
	items := repository.NewItemStore(db, logger)
	logs := repository.NewLogStore(db, logger)

	proj, err := projects.Create(ctx, *project)
	if err != nil {
		logger.Error("failed to create project", "error", err)
		os.Exit(1)
	}
	logger.Info("using project", "id", proj.ID, "name", proj.Name)

	extractor := extract.NewServiceClient(cfg.Extractor.BaseURL, cfg.Extractor.APIKey, cfg.Extractor.Timeout, logger)

	gate := pipeline.NewGate(files, items, jobs, logs, logger)
	boq := pipeline.NewBOQProcessor(files, items, jobs, logs, extractor,
		cfg.Pipeline.MaxRowsPerChunk, cfg.Pipeline.BlankRunLength, logger)
	processor := pipeline.NewProcessor(files, items, jobs, logs, extractor, boq, gate, logger)
	agg := pipeline.NewAggregator(jobs, projects, logger)
	svc := pipeline.NewService(projects, files, jobs, items, logs, gate, agg, logger)

	registrar := ingest.NewRegistrar(files, logs, logger)

	// Register every allowed file under the directory.
	var fileIDs []uuid.UUID
	scanned, registered := 0, 0
	walkErr := filepath.Walk(*dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		scanned++
		f, created, rerr := registrar.RegisterPath(ctx, proj.ID, path)
		if rerr != nil {
			logger.Warn("failed to register file", "path", path, "error", rerr)
			return nil
		}
		if created {
			registered++
		}
		fileIDs = append(fileIDs, f.ID)
		return nil
	})
	if walkErr != nil {
		logger.Error("failed to scan directory", "dir", *dir, "error", walkErr)
		os.Exit(1)
	}
	logger.Info("registration complete", "scanned", scanned, "registered", registered)
	if len(fileIDs) == 0 {
		printError("Error: no processable files found under %s\n", *dir)
		os.Exit(1)
	}

	// Enqueue and process inline. Deferred drawings are released by the
	// gate once schedules finish, so a second submission pass picks them up.
	processed, failures := 0, 0
	for pass := 0; pass < 2; pass++ {
		batch, err := svc.SubmitBatch(ctx, proj.ID, fileIDs, fmt.Sprintf("batch-%s-%d", proj.ID, pass))
		if err != nil {
			logger.Error("failed to submit batch", "error", err)
			os.Exit(1)
		}
		if len(batch.Jobs) == 0 {
			break
		}
		for {
			job, err := jobs.ClaimNextQueued(ctx)
			if err != nil {
				logger.Error("failed to claim job", "error", err)
				os.Exit(1)
			}
			if job == nil {
				break
			}
			msg, perr := processor.Process(ctx, job)
			if perr != nil {
				logger.Error("job failed", "job_id", job.ID, "file_id", job.FileID, "error", perr)
				if ferr := jobs.Fail(ctx, job.ID, perr.Error()); ferr != nil {
					logger.Error("failed to record job failure", "job_id", job.ID, "error", ferr)
				}
				failures++
			} else {
				if cerr := jobs.Complete(ctx, job.ID, msg); cerr != nil {
					logger.Error("failed to record job completion", "job_id", job.ID, "error", cerr)
				}
				processed++
			}
		}
	}

	if err := agg.RecomputeProject(ctx, proj.ID); err != nil {
		logger.Warn("failed to recompute project status", "error", err)
	}

	logger.Info("exporting to XLSX", "output", *out)
	exporter := export.NewService(projects, items, logger)
	xlsxBytes, err := exporter.ExportItemsXLSX(ctx, proj.ID)
	if err != nil {
		logger.Error("failed to export items", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	logger.Info("batch complete",
		"files", len(fileIDs),
		"jobs_processed", processed,
		"failures", failures,
		"output", *out)
	if failures > 0 {
		os.Exit(1)
	}
}
