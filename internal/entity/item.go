package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/sitequant/takeoff/constants"
)

// LineItem is one structured line extracted from a file. BOQ items carry
// (sheet_name, row_index, chunk_index) provenance so a partial retry can
// replace exactly the chunk it reprocessed.
type LineItem struct {
	ID          uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID   uuid.UUID            `gorm:"type:uuid;not null;index" json:"project_id"`
	FileID      uuid.UUID            `gorm:"type:uuid;not null;index" json:"file_id"`
	Source      constants.ItemSource `gorm:"size:20;not null;index" json:"source"`
	SheetName   string               `gorm:"size:255" json:"sheet_name,omitempty"`
	RowIndex    int                  `json:"row_index"`
	ChunkIndex  int                  `json:"chunk_index"`
	Code        string               `gorm:"size:100" json:"code,omitempty"`
	Description string               `gorm:"type:text;not null" json:"description"`
	Unit        string               `gorm:"size:50" json:"unit,omitempty"`
	Quantity    float64              `json:"quantity"`
	Rate        *float64             `json:"rate,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

func (LineItem) TableName() string { return "line_items" }
