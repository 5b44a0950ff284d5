package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/common"
	"github.com/sitequant/takeoff/internal/entity"
)

// FileStore persists uploaded artifacts and their per-sheet progress.
type FileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.ProjectFile, error)
	GetByProjectAndHash(ctx context.Context, projectID uuid.UUID, hash []byte) (*entity.ProjectFile, error)
	Create(ctx context.Context, f *entity.ProjectFile) error
	// UpsertByHash returns the existing file when the same content was
	// already registered for the project; the bool reports deduplication.
	UpsertByHash(ctx context.Context, f *entity.ProjectFile) (*entity.ProjectFile, bool, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]entity.ProjectFile, error)
	ListByProjectAndType(ctx context.Context, projectID uuid.UUID, t constants.FileType) ([]entity.ProjectFile, error)
	SetStatus(ctx context.Context, id uuid.UUID, status constants.FileStatus, errMsg string) error

	GetSheets(ctx context.Context, fileID uuid.UUID) ([]entity.SheetStatus, error)
	DeleteSheets(ctx context.Context, fileID uuid.UUID) error
	DeleteSheet(ctx context.Context, sheetID uuid.UUID) error
	CreateSheet(ctx context.Context, sheet *entity.SheetStatus) error
	UpdateSheetStatus(ctx context.Context, sheetID uuid.UUID, status constants.PartStatus, errMsg string) error
	UpdatePartStatus(ctx context.Context, partID uuid.UUID, status constants.PartStatus, errMsg string) error
}

type fileStore struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewFileStore(db *gorm.DB, log *slog.Logger) FileStore {
	if log == nil {
		log = slog.Default()
	}
	return &fileStore{db: db, log: log}
}

func (s *fileStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.ProjectFile, error) {
	var f entity.ProjectFile
	if err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &f, nil
}

func (s *fileStore) GetByProjectAndHash(ctx context.Context, projectID uuid.UUID, hash []byte) (*entity.ProjectFile, error) {
	var f entity.ProjectFile
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND content_hash = ?", projectID, hash).
		First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("get file by hash: %w", err)
	}
	return &f, nil
}

func (s *fileStore) Create(ctx context.Context, f *entity.ProjectFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	if f.Status == "" {
		f.Status = constants.FileStatusPending
	}
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		s.log.Error("failed to create file", "project_id", f.ProjectID, "filename", f.Filename, "error", err)
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

func (s *fileStore) UpsertByHash(ctx context.Context, f *entity.ProjectFile) (*entity.ProjectFile, bool, error) {
	if existing, err := s.GetByProjectAndHash(ctx, f.ProjectID, f.ContentHash); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}
	if err := s.Create(ctx, f); err != nil {
		return nil, false, err
	}
	return f, false, nil
}

func (s *fileStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]entity.ProjectFile, error) {
	var files []entity.ProjectFile
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("uploaded_at ASC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

func (s *fileStore) ListByProjectAndType(ctx context.Context, projectID uuid.UUID, t constants.FileType) ([]entity.ProjectFile, error) {
	var files []entity.ProjectFile
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND file_type = ?", projectID, t).
		Order("uploaded_at ASC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("list files by type: %w", err)
	}
	return files, nil
}

func (s *fileStore) SetStatus(ctx context.Context, id uuid.UUID, status constants.FileStatus, errMsg string) error {
	res := s.db.WithContext(ctx).Model(&entity.ProjectFile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        status,
			"error_message": errMsg,
		})
	if res.Error != nil {
		s.log.Error("failed to set file status", "file_id", id, "status", status, "error", res.Error)
		return fmt.Errorf("set file status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *fileStore) GetSheets(ctx context.Context, fileID uuid.UUID) ([]entity.SheetStatus, error) {
	var sheets []entity.SheetStatus
	err := s.db.WithContext(ctx).
		Preload("Parts", func(db *gorm.DB) *gorm.DB { return db.Order("chunk_index ASC") }).
		Where("file_id = ?", fileID).
		Order("sheet_name ASC").
		Find(&sheets).Error
	if err != nil {
		return nil, fmt.Errorf("get sheets: %w", err)
	}
	return sheets, nil
}

func (s *fileStore) DeleteSheets(ctx context.Context, fileID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		if err := tx.Model(&entity.SheetStatus{}).
			Where("file_id = ?", fileID).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("list sheet ids: %w", err)
		}
		if len(ids) > 0 {
			if err := tx.Where("sheet_id IN ?", ids).Delete(&entity.SheetPart{}).Error; err != nil {
				return fmt.Errorf("delete sheet parts: %w", err)
			}
		}
		if err := tx.Where("file_id = ?", fileID).Delete(&entity.SheetStatus{}).Error; err != nil {
			return fmt.Errorf("delete sheets: %w", err)
		}
		return nil
	})
}

func (s *fileStore) DeleteSheet(ctx context.Context, sheetID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sheet_id = ?", sheetID).Delete(&entity.SheetPart{}).Error; err != nil {
			return fmt.Errorf("delete sheet parts: %w", err)
		}
		if err := tx.Where("id = ?", sheetID).Delete(&entity.SheetStatus{}).Error; err != nil {
			return fmt.Errorf("delete sheet: %w", err)
		}
		return nil
	})
}

func (s *fileStore) CreateSheet(ctx context.Context, sheet *entity.SheetStatus) error {
	if sheet.ID == uuid.Nil {
		sheet.ID = uuid.New()
	}
	for i := range sheet.Parts {
		if sheet.Parts[i].ID == uuid.Nil {
			sheet.Parts[i].ID = uuid.New()
		}
		sheet.Parts[i].SheetID = sheet.ID
	}
	if err := s.db.WithContext(ctx).Create(sheet).Error; err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	return nil
}

func (s *fileStore) UpdateSheetStatus(ctx context.Context, sheetID uuid.UUID, status constants.PartStatus, errMsg string) error {
	err := s.db.WithContext(ctx).Model(&entity.SheetStatus{}).
		Where("id = ?", sheetID).
		Updates(map[string]any{"status": status, "error_message": errMsg}).Error
	if err != nil {
		return fmt.Errorf("update sheet status: %w", err)
	}
	return nil
}

func (s *fileStore) UpdatePartStatus(ctx context.Context, partID uuid.UUID, status constants.PartStatus, errMsg string) error {
	err := s.db.WithContext(ctx).Model(&entity.SheetPart{}).
		Where("id = ?", partID).
		Updates(map[string]any{"status": status, "error_message": errMsg}).Error
	if err != nil {
		return fmt.Errorf("update part status: %w", err)
	}
	return nil
}
