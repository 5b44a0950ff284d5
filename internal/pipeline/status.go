package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/entity"
	"github.com/sitequant/takeoff/internal/repository"
)

// RecomputeSheetStatus derives a sheet's aggregate status from its parts.
// A sheet is FAILED while any part is failed, PENDING while any part is
// still pending, READY otherwise.
func RecomputeSheetStatus(parts []entity.SheetPart) constants.PartStatus {
	anyPending := false
	for _, p := range parts {
		switch p.Status {
		case constants.PartStatusFailed:
			return constants.PartStatusFailed
		case constants.PartStatusPending:
			anyPending = true
		}
	}
	if anyPending {
		return constants.PartStatusPending
	}
	return constants.PartStatusReady
}

// RecomputeFileStatus derives a BOQ file's status from its sheets.
func RecomputeFileStatus(sheets []entity.SheetStatus) constants.FileStatus {
	anyPending := false
	for _, sh := range sheets {
		switch sh.Status {
		case constants.PartStatusFailed:
			return constants.FileStatusFailed
		case constants.PartStatusPending:
			anyPending = true
		}
	}
	if anyPending {
		return constants.FileStatusProcessing
	}
	return constants.FileStatusReady
}

// RecomputeProjectStatus derives the container status from the project's
// jobs: ANALYZING while any job is queued or processing, else FINALIZED.
func RecomputeProjectStatus(jobs []entity.ExtractionJob) constants.ProjectStatus {
	for _, j := range jobs {
		if !j.Status.IsTerminal() {
			return constants.ProjectStatusAnalyzing
		}
	}
	return constants.ProjectStatusFinalized
}

// Aggregator republishes a project's derived status after every terminal
// job transition. It always recounts from the store rather than keeping a
// counter, so it self-heals after crashes or missed updates.
type Aggregator struct {
	jobs     repository.JobStore
	projects repository.ProjectStore
	logger   *slog.Logger
}

func NewAggregator(jobs repository.JobStore, projects repository.ProjectStore, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{jobs: jobs, projects: projects, logger: logger}
}

func (a *Aggregator) RecomputeProject(ctx context.Context, projectID uuid.UUID) error {
	active, err := a.jobs.CountActiveForProject(ctx, projectID)
	if err != nil {
		return err
	}
	status := constants.ProjectStatusFinalized
	if active > 0 {
		status = constants.ProjectStatusAnalyzing
	}
	if err := a.projects.SetStatus(ctx, projectID, status); err != nil {
		return err
	}
	a.logger.Debug("project status recomputed", "project_id", projectID, "status", status, "active_jobs", active)
	return nil
}
