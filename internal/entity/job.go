package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/sitequant/takeoff/constants"
)

// ExtractionJob is one unit of extraction work bound to exactly one file.
// The (project_id, file_id, idempotency_key) triple is unique: re-submitting
// the same key for the same file returns the existing job instead of
// creating a duplicate. Jobs are never reopened; a retry is a new job with
// a fresh key against the same file.
type ExtractionJob struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID      uuid.UUID           `gorm:"type:uuid;not null;index;uniqueIndex:idx_job_identity,priority:1" json:"project_id"`
	FileID         uuid.UUID           `gorm:"type:uuid;not null;index;uniqueIndex:idx_job_identity,priority:2" json:"file_id"`
	IdempotencyKey string              `gorm:"size:128;not null;uniqueIndex:idx_job_identity,priority:3" json:"idempotency_key"`
	Status         constants.JobStatus `gorm:"size:20;not null;default:QUEUED;index" json:"status"`
	Stage          string              `gorm:"size:200" json:"stage,omitempty"`
	Message        string              `gorm:"type:text" json:"message,omitempty"`
	ErrorMessage   string              `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	StartedAt      *time.Time          `json:"started_at,omitempty"`
	FinishedAt     *time.Time          `json:"finished_at,omitempty"`
}

func (ExtractionJob) TableName() string { return "extraction_jobs" }

// IsTerminal reports whether the job reached a final state.
func (j *ExtractionJob) IsTerminal() bool { return j.Status.IsTerminal() }
