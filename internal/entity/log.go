package entity

import (
	"time"

	"github.com/google/uuid"
)

// ProgressLog is an append-only human-readable progress message keyed by
// (project_id, file_id). The pipeline writes these as a side channel and
// never reads them back; the status snapshot surfaces the recent ones.
type ProgressLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	FileID    uuid.UUID `gorm:"type:uuid;index" json:"file_id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (ProgressLog) TableName() string { return "progress_logs" }
