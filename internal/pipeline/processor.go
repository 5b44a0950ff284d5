package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/common"
	"github.com/sitequant/takeoff/internal/entity"
	"github.com/sitequant/takeoff/internal/extract"
	"github.com/sitequant/takeoff/internal/repository"
)

// Processor routes claimed jobs to the type-specific handler and owns
// the file state machine around each attempt. It never lets a handler
// failure escape as anything other than an error return; the scheduler
// converts that into a failed job.
type Processor struct {
	files     repository.FileStore
	items     repository.ItemStore
	jobs      repository.JobStore
	logs      repository.LogStore
	extractor extract.Extractor
	boq       *BOQProcessor
	gate      *Gate
	logger    *slog.Logger
}

func NewProcessor(
	files repository.FileStore,
	items repository.ItemStore,
	jobs repository.JobStore,
	logs repository.LogStore,
	extractor extract.Extractor,
	boq *BOQProcessor,
	gate *Gate,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		files:     files,
		items:     items,
		jobs:      jobs,
		logs:      logs,
		extractor: extractor,
		boq:       boq,
		gate:      gate,
		logger:    logger,
	}
}

// Process handles one claimed job to completion. The returned message
// becomes the job's terminal message on success.
func (p *Processor) Process(ctx context.Context, job *entity.ExtractionJob) (string, error) {
	file, err := p.files.GetByID(ctx, job.FileID)
	if err != nil {
		// Structural failure: nothing to attempt.
		return "", fmt.Errorf("load file %s: %w", job.FileID, err)
	}

	if err := p.files.SetStatus(ctx, file.ID, constants.FileStatusProcessing, ""); err != nil {
		return "", fmt.Errorf("mark file processing: %w", err)
	}
	p.logs.Append(ctx, job.ProjectID, file.ID, "extraction started: "+file.Filename)

	msg, perr := p.dispatch(ctx, job, file)
	if perr != nil {
		p.logger.Error("processor.extract.failed",
			"job_id", job.ID, "file_id", file.ID, "file_type", file.FileType, "error", perr)
		if serr := p.files.SetStatus(ctx, file.ID, constants.FileStatusFailed, perr.Error()); serr != nil {
			p.logger.Error("file status update failed", "file_id", file.ID, "error", serr)
		}
		p.logs.Append(ctx, job.ProjectID, file.ID, "extraction failed: "+perr.Error())
		return "", perr
	}

	if err := p.files.SetStatus(ctx, file.ID, constants.FileStatusReady, ""); err != nil {
		return "", fmt.Errorf("mark file ready: %w", err)
	}
	p.logs.Append(ctx, job.ProjectID, file.ID, msg)
	p.logger.Info("processor.extract.done", "job_id", job.ID, "file_id", file.ID, "file_type", file.FileType)

	if file.FileType == constants.FileTypeSchedule {
		if _, err := p.gate.ReleaseDrawings(ctx, job.ProjectID); err != nil {
			p.logger.Warn("drawing release failed", "project_id", job.ProjectID, "error", err)
		}
	}
	return msg, nil
}

func (p *Processor) dispatch(ctx context.Context, job *entity.ExtractionJob, file *entity.ProjectFile) (string, error) {
	switch file.FileType {
	case constants.FileTypeBOQ:
		if err := p.boq.ProcessFile(ctx, job, file); err != nil {
			return "", err
		}
		return "bill of quantities extracted: " + file.Filename, nil

	case constants.FileTypeSchedule:
		if err := p.processDocument(ctx, job, file); err != nil {
			return "", err
		}
		return "schedule extracted: " + file.Filename, nil

	case constants.FileTypeDrawing:
		ok, err := p.gate.Satisfied(ctx, job.ProjectID)
		if err != nil {
			return "", fmt.Errorf("evaluate schedule dependency: %w", err)
		}
		if !ok {
			// Fail fast without touching the adapter, so operators can tell
			// "blocked" from "broken".
			return "", fmt.Errorf("%w: schedules not ready for project %s", common.ErrDependencyNotReady, job.ProjectID)
		}
		if err := p.processDocument(ctx, job, file); err != nil {
			return "", err
		}
		return "drawing extracted: " + file.Filename, nil

	default:
		return "", fmt.Errorf("unsupported file type %q", file.FileType)
	}
}

// processDocument handles the non-chunked types: the whole file is one
// adapter call and its items are replaced wholesale.
func (p *Processor) processDocument(ctx context.Context, job *entity.ExtractionJob, file *entity.ProjectFile) error {
	content, err := os.ReadFile(file.SourcePath)
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}
	if err := p.jobs.SetStage(ctx, job.ID, "extracting "+file.Filename); err != nil {
		p.logger.Warn("stage update failed", "job_id", job.ID, "error", err)
	}

	res, err := p.extractor.Extract(ctx, extract.Request{
		DocumentType: file.FileType,
		Filename:     file.Filename,
		Content:      content,
	})
	if err != nil {
		return err
	}

	source := constants.SourceForFileType(file.FileType)
	items := make([]entity.LineItem, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, entity.LineItem{
			ProjectID:   file.ProjectID,
			FileID:      file.ID,
			Source:      source,
			RowIndex:    it.Row,
			Code:        it.Code,
			Description: it.Description,
			Unit:        it.Unit,
			Quantity:    it.Quantity,
			Rate:        it.Rate,
		})
	}
	return p.items.ReplaceForFile(ctx, file.ID, source, items)
}
