package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/sitequant/takeoff/constants"
)

// Project is the container for uploaded files, jobs, and extracted items.
// Status is derived from the project's jobs by the status aggregator.
type Project struct {
	ID        uuid.UUID               `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string                  `gorm:"size:500;not null" json:"name"`
	Status    constants.ProjectStatus `gorm:"size:20;not null;default:FINALIZED" json:"status"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }
