package extract

import (
	"context"
	"encoding/json"

	"github.com/sitequant/takeoff/constants"
)

// Request describes one extraction call. Drawings and schedules submit
// raw file bytes; BOQ chunks submit the rows of one bounded slice of a
// worksheet.
type Request struct {
	DocumentType constants.FileType `json:"document_type"`
	Filename     string             `json:"filename"`
	Content      []byte             `json:"content,omitempty"`
	SheetName    string             `json:"sheet_name,omitempty"`
	ChunkIndex   int                `json:"chunk_index,omitempty"`
	Rows         [][]string         `json:"rows,omitempty"`
}

// Item is one structured line returned by the extraction service. Row is
// the offset within the submitted input (chunk-relative for BOQ calls).
type Item struct {
	Row         int      `json:"row"`
	Code        string   `json:"code,omitempty"`
	Description string   `json:"description"`
	Unit        string   `json:"unit,omitempty"`
	Quantity    float64  `json:"quantity"`
	Rate        *float64 `json:"rate,omitempty"`
}

type Result struct {
	Items []Item
	Raw   json.RawMessage
}

// Extractor wraps the heterogeneous external extraction capabilities
// behind one contract. All failures are uniform to callers; the pipeline
// records them on the smallest failing unit without inspecting the cause.
type Extractor interface {
	Extract(ctx context.Context, req Request) (Result, error)
}
