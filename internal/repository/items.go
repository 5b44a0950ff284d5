package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/entity"
)

// ItemStore persists extracted line items. Items for (file_id, source)
// are replaced wholesale on reprocessing, except for BOQ partial retries
// which replace only the retried (sheet_name, chunk_index) pair.
type ItemStore interface {
	ReplaceForFile(ctx context.Context, fileID uuid.UUID, source constants.ItemSource, items []entity.LineItem) error
	ReplaceChunk(ctx context.Context, fileID uuid.UUID, sheetName string, chunkIndex int, items []entity.LineItem) error
	// DeleteForFile removes every item of the file for one source, so a
	// full reprocess cannot leave items from a vanished sheet or chunk.
	DeleteForFile(ctx context.Context, fileID uuid.UUID, source constants.ItemSource) error
	// DeleteForSheet removes one sheet's BOQ items ahead of a whole-sheet
	// reprocess.
	DeleteForSheet(ctx context.Context, fileID uuid.UUID, sheetName string) error
	ListByFile(ctx context.Context, fileID uuid.UUID) ([]entity.LineItem, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]entity.LineItem, error)
	CountBySource(ctx context.Context, projectID uuid.UUID, source constants.ItemSource) (int64, error)
}

type itemStore struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewItemStore(db *gorm.DB, log *slog.Logger) ItemStore {
	if log == nil {
		log = slog.Default()
	}
	return &itemStore{db: db, log: log}
}

func stampItems(items []entity.LineItem) {
	now := time.Now().UTC()
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
	}
}

func (s *itemStore) ReplaceForFile(ctx context.Context, fileID uuid.UUID, source constants.ItemSource, items []entity.LineItem) error {
	stampItems(items)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ? AND source = ?", fileID, source).
			Delete(&entity.LineItem{}).Error; err != nil {
			return fmt.Errorf("delete prior items: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		s.log.Error("item replace failed", "file_id", fileID, "source", source, "error", err)
		return err
	}
	s.log.Info("items replaced", "file_id", fileID, "source", source, "count", len(items))
	return nil
}

func (s *itemStore) ReplaceChunk(ctx context.Context, fileID uuid.UUID, sheetName string, chunkIndex int, items []entity.LineItem) error {
	stampItems(items)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ? AND source = ? AND sheet_name = ? AND chunk_index = ?",
			fileID, constants.ItemSourceBOQ, sheetName, chunkIndex).
			Delete(&entity.LineItem{}).Error; err != nil {
			return fmt.Errorf("delete prior chunk items: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		s.log.Error("chunk item replace failed", "file_id", fileID, "sheet", sheetName, "chunk", chunkIndex, "error", err)
		return err
	}
	return nil
}

func (s *itemStore) DeleteForFile(ctx context.Context, fileID uuid.UUID, source constants.ItemSource) error {
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND source = ?", fileID, source).
		Delete(&entity.LineItem{}).Error
	if err != nil {
		s.log.Error("item delete failed", "file_id", fileID, "source", source, "error", err)
		return fmt.Errorf("delete items for file: %w", err)
	}
	return nil
}

func (s *itemStore) DeleteForSheet(ctx context.Context, fileID uuid.UUID, sheetName string) error {
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND source = ? AND sheet_name = ?", fileID, constants.ItemSourceBOQ, sheetName).
		Delete(&entity.LineItem{}).Error
	if err != nil {
		s.log.Error("sheet item delete failed", "file_id", fileID, "sheet", sheetName, "error", err)
		return fmt.Errorf("delete items for sheet: %w", err)
	}
	return nil
}

func (s *itemStore) ListByFile(ctx context.Context, fileID uuid.UUID) ([]entity.LineItem, error) {
	var items []entity.LineItem
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("sheet_name ASC, row_index ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list items by file: %w", err)
	}
	return items, nil
}

func (s *itemStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]entity.LineItem, error) {
	var items []entity.LineItem
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("file_id ASC, sheet_name ASC, row_index ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list items by project: %w", err)
	}
	return items, nil
}

func (s *itemStore) CountBySource(ctx context.Context, projectID uuid.UUID, source constants.ItemSource) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&entity.LineItem{}).
		Where("project_id = ? AND source = ?", projectID, source).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count items by source: %w", err)
	}
	return n, nil
}
