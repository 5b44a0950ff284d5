package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/common"
	"github.com/sitequant/takeoff/internal/entity"
	"github.com/sitequant/takeoff/internal/repository"
)

// Service is the surface the core exposes to external callers (the HTTP
// layer and the batch CLI): batch enqueue, job lookup, file retry, and
// the status snapshot.
type Service struct {
	projects repository.ProjectStore
	files    repository.FileStore
	jobs     repository.JobStore
	items    repository.ItemStore
	logs     repository.LogStore
	gate     *Gate
	agg      *Aggregator
	logger   *slog.Logger
}

func NewService(
	projects repository.ProjectStore,
	files repository.FileStore,
	jobs repository.JobStore,
	items repository.ItemStore,
	logs repository.LogStore,
	gate *Gate,
	agg *Aggregator,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		projects: projects,
		files:    files,
		jobs:     jobs,
		items:    items,
		logs:     logs,
		gate:     gate,
		agg:      agg,
		logger:   logger,
	}
}

// BatchResult reports what a submission actually did: jobs created (or
// found, for re-submitted keys) and drawings deferred behind schedules.
type BatchResult struct {
	Jobs     []entity.ExtractionJob `json:"jobs"`
	Deferred []entity.ProjectFile   `json:"deferred"`
}

// SubmitBatch enqueues jobs for the given files. The idempotency key is
// shared across the whole batch, so a retried submission continues the
// existing jobs instead of duplicating them. Drawing files are deferred
// while the schedule dependency is unsatisfied; the gate releases them
// once the last schedule completes.
func (s *Service) SubmitBatch(ctx context.Context, projectID uuid.UUID, fileIDs []uuid.UUID, idempotencyKey string) (*BatchResult, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	if len(fileIDs) == 0 {
		return nil, common.NewAppError("SUBMIT_BATCH", "no files given", common.ErrInvalidInput)
	}

	gateOpen, err := s.gate.Satisfied(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("evaluate schedule dependency: %w", err)
	}

	result := &BatchResult{}
	for _, fileID := range fileIDs {
		file, err := s.files.GetByID(ctx, fileID)
		if err != nil {
			return nil, fmt.Errorf("load file %s: %w", fileID, err)
		}
		if file.ProjectID != projectID {
			return nil, common.NewAppError("SUBMIT_BATCH",
				fmt.Sprintf("file %s does not belong to project %s", fileID, projectID), common.ErrInvalidInput)
		}

		if file.FileType == constants.FileTypeDrawing && !gateOpen {
			s.logs.Append(ctx, projectID, file.ID, "drawing deferred until schedules complete: "+file.Filename)
			s.logger.Info("drawing deferred", "project_id", projectID, "file_id", file.ID)
			result.Deferred = append(result.Deferred, *file)
			continue
		}

		job, err := s.jobs.Enqueue(ctx, projectID, file.ID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		result.Jobs = append(result.Jobs, *job)
	}

	if err := s.agg.RecomputeProject(ctx, projectID); err != nil {
		s.logger.Warn("project status recompute failed", "project_id", projectID, "error", err)
	}
	return result, nil
}

// JobByID returns job status/result by id.
func (s *Service) JobByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// RetryFile re-queues a failed file under a fresh idempotency key. For
// BOQ files the recorded failed parts make the next run a partial one;
// other types reprocess the whole file.
func (s *Service) RetryFile(ctx context.Context, fileID uuid.UUID) (*entity.ExtractionJob, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Status != constants.FileStatusFailed {
		return nil, fmt.Errorf("%w: file %s is %s", common.ErrRetryNotAllowed, fileID, file.Status)
	}

	// Enqueue before flipping the file status: a failed enqueue must
	// leave the file FAILED so it stays retryable.
	job, err := s.jobs.Enqueue(ctx, file.ProjectID, file.ID, "retry-"+uuid.New().String())
	if err != nil {
		return nil, err
	}
	if err := s.files.SetStatus(ctx, file.ID, constants.FileStatusPending, ""); err != nil {
		return nil, err
	}
	s.logs.Append(ctx, file.ProjectID, file.ID, "retry queued: "+file.Filename)

	if err := s.agg.RecomputeProject(ctx, file.ProjectID); err != nil {
		s.logger.Warn("project status recompute failed", "project_id", file.ProjectID, "error", err)
	}
	return job, nil
}

// FileWithSheets is one file plus its per-sheet progress (BOQ only).
type FileWithSheets struct {
	entity.ProjectFile
	Sheets []entity.SheetStatus `json:"sheets,omitempty"`
}

// Snapshot is the pull-based status view suitable for short-interval
// polling. It is eventually consistent within one scheduler tick.
type Snapshot struct {
	Project    *entity.Project      `json:"project"`
	Files      []FileWithSheets     `json:"files"`
	ItemCounts map[string]int64     `json:"item_counts"`
	RecentLogs []entity.ProgressLog `json:"recent_logs"`
}

// ProjectSnapshot assembles the near-real-time status view for a project.
func (s *Service) ProjectSnapshot(ctx context.Context, projectID uuid.UUID) (*Snapshot, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	files, err := s.files.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Project:    project,
		ItemCounts: make(map[string]int64),
	}
	for _, f := range files {
		fw := FileWithSheets{ProjectFile: f}
		if f.FileType == constants.FileTypeBOQ {
			sheets, err := s.files.GetSheets(ctx, f.ID)
			if err != nil {
				return nil, err
			}
			fw.Sheets = sheets
		}
		snap.Files = append(snap.Files, fw)
	}

	for _, source := range []constants.ItemSource{
		constants.ItemSourceCAD,
		constants.ItemSourceBOQ,
		constants.ItemSourceSchedule,
		constants.ItemSourceManual,
	} {
		n, err := s.items.CountBySource(ctx, projectID, source)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			snap.ItemCounts[string(source)] = n
		}
	}

	logs, err := s.logs.Recent(ctx, projectID, 50)
	if err != nil {
		return nil, err
	}
	snap.RecentLogs = logs
	return snap, nil
}

// ProjectItems lists all items of a project in source order.
func (s *Service) ProjectItems(ctx context.Context, projectID uuid.UUID) ([]entity.LineItem, error) {
	return s.items.ListByProject(ctx, projectID)
}
