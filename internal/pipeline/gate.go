package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/repository"
)

// Gate encodes the one cross-file ordering rule in the domain: drawings
// may not be dispatched for extraction until every schedule file in the
// project is ready and at least one schedule-sourced item exists.
type Gate struct {
	files  repository.FileStore
	items  repository.ItemStore
	jobs   repository.JobStore
	logs   repository.LogStore
	logger *slog.Logger
}

func NewGate(files repository.FileStore, items repository.ItemStore, jobs repository.JobStore, logs repository.LogStore, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{files: files, items: items, jobs: jobs, logs: logs, logger: logger}
}

// Satisfied reports whether drawing extraction may run for the project.
// A project with no schedule files has no ordering constraint at all.
func (g *Gate) Satisfied(ctx context.Context, projectID uuid.UUID) (bool, error) {
	schedules, err := g.files.ListByProjectAndType(ctx, projectID, constants.FileTypeSchedule)
	if err != nil {
		return false, err
	}
	if len(schedules) == 0 {
		return true, nil
	}
	for _, f := range schedules {
		if f.Status != constants.FileStatusReady {
			return false, nil
		}
	}
	n, err := g.items.CountBySource(ctx, projectID, constants.ItemSourceSchedule)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseDrawings re-evaluates the rule and, when it holds, enqueues a
// fresh job for every pending drawing that has no active job. Called
// after each successful schedule extraction.
func (g *Gate) ReleaseDrawings(ctx context.Context, projectID uuid.UUID) (int, error) {
	ok, err := g.Satisfied(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	drawings, err := g.files.ListByProjectAndType(ctx, projectID, constants.FileTypeDrawing)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, d := range drawings {
		if d.Status != constants.FileStatusPending {
			continue
		}
		active, err := g.jobs.HasActiveForFile(ctx, d.ID)
		if err != nil {
			return released, err
		}
		if active {
			continue
		}
		if _, err := g.jobs.Enqueue(ctx, projectID, d.ID, "gate-"+uuid.New().String()); err != nil {
			return released, err
		}
		g.logs.Append(ctx, projectID, d.ID, "schedule dependency cleared; drawing queued: "+d.Filename)
		released++
	}
	if released > 0 {
		g.logger.Info("deferred drawings released", "project_id", projectID, "count", released)
	}
	return released, nil
}
