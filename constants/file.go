package constants

import (
	"path/filepath"
	"strings"
)

// FileType classifies an uploaded construction document.
type FileType string

const (
	FileTypeDrawing  FileType = "DRAWING"  // CAD exports, plan sheets
	FileTypeBOQ      FileType = "BOQ"      // bill-of-quantity workbooks
	FileTypeSchedule FileType = "SCHEDULE" // finish/door/window schedules
)

// ItemSource tags where a line item came from.
type ItemSource string

const (
	ItemSourceCAD      ItemSource = "CAD"
	ItemSourceBOQ      ItemSource = "BOQ"
	ItemSourceSchedule ItemSource = "SCHEDULE"
	ItemSourceManual   ItemSource = "MANUAL"
)

// SourceForFileType maps a document type to the item source its
// extraction produces.
func SourceForFileType(t FileType) ItemSource {
	switch t {
	case FileTypeDrawing:
		return ItemSourceCAD
	case FileTypeSchedule:
		return ItemSourceSchedule
	default:
		return ItemSourceBOQ
	}
}

// AllowedExtensions holds the file extensions accepted by ingestion.
var AllowedExtensions = map[string]struct{}{
	"xlsx": {},
	"xlsm": {},
	"pdf":  {},
	"dwg":  {},
	"dxf":  {},
	"png":  {},
	"jpg":  {},
	"jpeg": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

var scheduleHints = []string{"schedule", "program", "programme"}

// ClassifyFile guesses the FileType for a filename. Spreadsheets default
// to BOQ unless the name carries a schedule hint; everything else that
// passes the extension filter is treated as a drawing. Returns false for
// unsupported extensions.
func ClassifyFile(filename string) (FileType, bool) {
	ext := NormalizeExt(filepath.Ext(filename))
	if _, ok := AllowedExtensions[ext]; !ok {
		return "", false
	}
	lower := strings.ToLower(filename)
	for _, hint := range scheduleHints {
		if strings.Contains(lower, hint) {
			return FileTypeSchedule, true
		}
	}
	switch ext {
	case "xlsx", "xlsm":
		return FileTypeBOQ, true
	default:
		return FileTypeDrawing, true
	}
}
