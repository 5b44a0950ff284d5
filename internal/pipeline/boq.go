package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/entity"
	"github.com/sitequant/takeoff/internal/extract"
	"github.com/sitequant/takeoff/internal/repository"
)

// BOQProcessor turns one bill-of-quantity workbook into line items via
// the extraction adapter, bounded by a maximum rows-per-call limit, with
// resumable partial failure: a retry run reprocesses only the chunks
// that previously failed and leaves sibling chunks and their persisted
// items untouched.
type BOQProcessor struct {
	files     repository.FileStore
	items     repository.ItemStore
	jobs      repository.JobStore
	logs      repository.LogStore
	extractor extract.Extractor
	maxRows   int
	blankRun  int
	logger    *slog.Logger
}

func NewBOQProcessor(
	files repository.FileStore,
	items repository.ItemStore,
	jobs repository.JobStore,
	logs repository.LogStore,
	extractor extract.Extractor,
	maxRows, blankRun int,
	logger *slog.Logger,
) *BOQProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRows <= 0 {
		maxRows = 350
	}
	if blankRun <= 0 {
		blankRun = 2
	}
	return &BOQProcessor{
		files:     files,
		items:     items,
		jobs:      jobs,
		logs:      logs,
		extractor: extractor,
		maxRows:   maxRows,
		blankRun:  blankRun,
		logger:    logger,
	}
}

// ProcessFile runs a fresh or retry extraction over every worksheet of
// the file. It returns an error when any targeted chunk failed, so the
// owning job ends FAILED while unaffected chunks stay READY.
func (p *BOQProcessor) ProcessFile(ctx context.Context, job *entity.ExtractionJob, file *entity.ProjectFile) error {
	wb, err := excelize.OpenFile(file.SourcePath)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		if cerr := wb.Close(); cerr != nil {
			p.logger.Warn("workbook close failed", "file_id", file.ID, "error", cerr)
		}
	}()

	prior, err := p.files.GetSheets(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("load sheet records: %w", err)
	}
	retryRun := hasFailedPart(prior)
	if !retryRun {
		// Fresh run: drop the prior sheet records and every persisted
		// item, since the workbook may have fewer sheets or chunks now.
		if err := p.files.DeleteSheets(ctx, file.ID); err != nil {
			return fmt.Errorf("clear sheet records: %w", err)
		}
		if err := p.items.DeleteForFile(ctx, file.ID, constants.ItemSourceBOQ); err != nil {
			return fmt.Errorf("clear prior items: %w", err)
		}
		prior = nil
	}
	priorByName := make(map[string]*entity.SheetStatus, len(prior))
	for i := range prior {
		priorByName[prior[i].SheetName] = &prior[i]
	}

	var totalParts, failedParts int
	for _, name := range wb.GetSheetList() {
		rows, err := wb.GetRows(name)
		if err != nil {
			return fmt.Errorf("read sheet %q: %w", name, err)
		}
		chunks := SplitRows(rows, p.maxRows, p.blankRun)

		rec := priorByName[name]
		if retryRun && rec != nil && len(rec.Parts) == len(chunks) {
			if !sheetNeedsRetry(rec) {
				// Sheet is clean; its items are left exactly as they are.
				continue
			}
			t, f := p.processSheet(ctx, job, file, name, chunks, rec, retryTargets(rec))
			totalParts += t
			failedParts += f
			continue
		}
		if rec != nil {
			// Chunk layout no longer matches the recorded parts; fall back
			// to reprocessing the whole sheet from a clean slate.
			if err := p.files.DeleteSheet(ctx, rec.ID); err != nil {
				return fmt.Errorf("reset sheet %q: %w", name, err)
			}
			if err := p.items.DeleteForSheet(ctx, file.ID, name); err != nil {
				return fmt.Errorf("clear sheet %q items: %w", name, err)
			}
		}
		fresh, err := p.createSheetRecord(ctx, file, name, chunks)
		if err != nil {
			return err
		}
		t, f := p.processSheet(ctx, job, file, name, chunks, fresh, nil)
		totalParts += t
		failedParts += f
	}

	if failedParts > 0 {
		return fmt.Errorf("%d of %d chunks failed", failedParts, totalParts)
	}
	return nil
}

func (p *BOQProcessor) createSheetRecord(ctx context.Context, file *entity.ProjectFile, name string, chunks []Chunk) (*entity.SheetStatus, error) {
	rec := &entity.SheetStatus{
		FileID:    file.ID,
		SheetName: name,
		Status:    constants.PartStatusPending,
	}
	for _, c := range chunks {
		rec.Parts = append(rec.Parts, entity.SheetPart{
			ChunkIndex: c.Index,
			StartRow:   c.Start,
			EndRow:     c.End,
			Status:     constants.PartStatusPending,
		})
	}
	if err := p.files.CreateSheet(ctx, rec); err != nil {
		return nil, fmt.Errorf("record sheet %q: %w", name, err)
	}
	return rec, nil
}

// processSheet drives the adapter for every targeted chunk of one sheet.
// targets nil means all chunks. Returns (targeted, failed) part counts.
func (p *BOQProcessor) processSheet(ctx context.Context, job *entity.ExtractionJob, file *entity.ProjectFile, name string, chunks []Chunk, rec *entity.SheetStatus, targets map[int]bool) (int, int) {
	partByIndex := make(map[int]*entity.SheetPart, len(rec.Parts))
	for i := range rec.Parts {
		partByIndex[rec.Parts[i].ChunkIndex] = &rec.Parts[i]
	}

	targeted, failed := 0, 0
	for _, c := range chunks {
		if targets != nil && !targets[c.Index] {
			continue
		}
		part := partByIndex[c.Index]
		if part == nil {
			continue
		}
		targeted++

		stage := fmt.Sprintf("sheet %q: chunk %d/%d", name, c.Index+1, len(chunks))
		if err := p.jobs.SetStage(ctx, job.ID, stage); err != nil {
			p.logger.Warn("stage update failed", "job_id", job.ID, "error", err)
		}

		if err := p.processChunk(ctx, file, name, c); err != nil {
			// Prior items for this chunk are left as-is: stale, not corrupted.
			failed++
			part.Status = constants.PartStatusFailed
			part.ErrorMessage = err.Error()
			if uerr := p.files.UpdatePartStatus(ctx, part.ID, constants.PartStatusFailed, err.Error()); uerr != nil {
				p.logger.Error("part status update failed", "part_id", part.ID, "error", uerr)
			}
			p.logs.Append(ctx, file.ProjectID, file.ID,
				fmt.Sprintf("sheet %q chunk %d failed: %v", name, c.Index+1, err))
			p.logger.Error("chunk extraction failed",
				"file_id", file.ID, "sheet", name, "chunk", c.Index, "error", err)
			continue
		}

		part.Status = constants.PartStatusReady
		part.ErrorMessage = ""
		if uerr := p.files.UpdatePartStatus(ctx, part.ID, constants.PartStatusReady, ""); uerr != nil {
			p.logger.Error("part status update failed", "part_id", part.ID, "error", uerr)
		}
	}

	status := RecomputeSheetStatus(rec.Parts)
	errMsg := ""
	if status == constants.PartStatusFailed {
		errMsg = fmt.Sprintf("%d chunk(s) failed", failed)
	}
	if err := p.files.UpdateSheetStatus(ctx, rec.ID, status, errMsg); err != nil {
		p.logger.Error("sheet status update failed", "sheet_id", rec.ID, "error", err)
	}
	return targeted, failed
}

// processChunk submits one chunk to the adapter and, on success, replaces
// exactly the items previously persisted for this (sheet, chunk) pair.
func (p *BOQProcessor) processChunk(ctx context.Context, file *entity.ProjectFile, name string, c Chunk) error {
	res, err := p.extractor.Extract(ctx, extract.Request{
		DocumentType: constants.FileTypeBOQ,
		Filename:     file.Filename,
		SheetName:    name,
		ChunkIndex:   c.Index,
		Rows:         c.Rows,
	})
	if err != nil {
		return err
	}

	items := make([]entity.LineItem, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, entity.LineItem{
			ProjectID:   file.ProjectID,
			FileID:      file.ID,
			Source:      constants.ItemSourceBOQ,
			SheetName:   name,
			RowIndex:    c.Start + it.Row,
			ChunkIndex:  c.Index,
			Code:        it.Code,
			Description: it.Description,
			Unit:        it.Unit,
			Quantity:    it.Quantity,
			Rate:        it.Rate,
		})
	}
	return p.items.ReplaceChunk(ctx, file.ID, name, c.Index, items)
}

func hasFailedPart(sheets []entity.SheetStatus) bool {
	for _, sh := range sheets {
		for _, part := range sh.Parts {
			if part.Status == constants.PartStatusFailed {
				return true
			}
		}
	}
	return false
}

func sheetNeedsRetry(rec *entity.SheetStatus) bool {
	for _, part := range rec.Parts {
		if part.Status == constants.PartStatusFailed {
			return true
		}
	}
	return rec.Status == constants.PartStatusFailed
}

// retryTargets returns the failed chunk indexes, or nil (all chunks) when
// a sheet is marked failed without any recorded failing part.
func retryTargets(rec *entity.SheetStatus) map[int]bool {
	targets := make(map[int]bool)
	for _, part := range rec.Parts {
		if part.Status == constants.PartStatusFailed {
			targets[part.ChunkIndex] = true
		}
	}
	if len(targets) == 0 {
		return nil
	}
	return targets
}
