package entity

import (
	"github.com/google/uuid"

	"github.com/sitequant/takeoff/constants"
)

// SheetStatus records per-worksheet extraction progress for a BOQ file.
// The aggregate Status is recomputed from the parts, never asserted
// independently.
type SheetStatus struct {
	ID           uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	FileID       uuid.UUID            `gorm:"type:uuid;not null;index" json:"file_id"`
	SheetName    string               `gorm:"size:255;not null" json:"sheet_name"`
	Status       constants.PartStatus `gorm:"size:20;not null;default:PENDING" json:"status"`
	ErrorMessage string               `gorm:"type:text" json:"error_message,omitempty"`
	Parts        []SheetPart          `gorm:"foreignKey:SheetID;references:ID" json:"parts"`
}

func (SheetStatus) TableName() string { return "sheet_statuses" }

// SheetPart is one bounded chunk of rows within a sheet, tracked
// independently so a retry can reprocess only the chunks that failed.
type SheetPart struct {
	ID           uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	SheetID      uuid.UUID            `gorm:"type:uuid;not null;index" json:"sheet_id"`
	ChunkIndex   int                  `gorm:"not null" json:"chunk_index"`
	StartRow     int                  `gorm:"not null" json:"start_row"`
	EndRow       int                  `gorm:"not null" json:"end_row"`
	Status       constants.PartStatus `gorm:"size:20;not null;default:PENDING" json:"status"`
	ErrorMessage string               `gorm:"type:text" json:"error_message,omitempty"`
}

func (SheetPart) TableName() string { return "sheet_parts" }
