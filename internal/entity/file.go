package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/sitequant/takeoff/constants"
)

// ProjectFile is one uploaded artifact (drawing, BOQ workbook, or
// schedule). Its status is driven exclusively by the jobs processing it;
// a failed file may return to PENDING only through an explicit retry.
type ProjectFile struct {
	ID           uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID    uuid.UUID            `gorm:"type:uuid;not null;index" json:"project_id"`
	Filename     string               `gorm:"size:500;not null" json:"filename"`
	SourcePath   string               `gorm:"size:1000;not null" json:"source_path"`
	FileExt      string               `gorm:"size:16" json:"file_ext"`
	FileSize     int64                `json:"file_size"`
	ContentHash  []byte               `gorm:"index" json:"-"`
	FileType     constants.FileType   `gorm:"size:20;not null;index" json:"file_type"`
	Status       constants.FileStatus `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	ErrorMessage string               `gorm:"type:text" json:"error_message,omitempty"`
	UploadedAt   time.Time            `json:"uploaded_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func (ProjectFile) TableName() string { return "project_files" }
