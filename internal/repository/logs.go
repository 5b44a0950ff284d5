package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sitequant/takeoff/internal/entity"
)

// LogStore is the append-only audit sink for human-readable progress
// messages. Writes are best-effort; the pipeline never reads them back.
type LogStore interface {
	Append(ctx context.Context, projectID, fileID uuid.UUID, message string)
	Recent(ctx context.Context, projectID uuid.UUID, limit int) ([]entity.ProgressLog, error)
}

type logStore struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewLogStore(db *gorm.DB, log *slog.Logger) LogStore {
	if log == nil {
		log = slog.Default()
	}
	return &logStore{db: db, log: log}
}

func (s *logStore) Append(ctx context.Context, projectID, fileID uuid.UUID, message string) {
	rec := &entity.ProgressLog{
		ID:        uuid.New(),
		ProjectID: projectID,
		FileID:    fileID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		s.log.Warn("progress log append failed", "project_id", projectID, "file_id", fileID, "error", err)
	}
}

func (s *logStore) Recent(ctx context.Context, projectID uuid.UUID, limit int) ([]entity.ProgressLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []entity.ProgressLog
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	return logs, nil
}
