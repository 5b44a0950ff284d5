package pipeline

import "strings"

// Chunk is one contiguous slice of a worksheet's rows, processed as a
// single extraction call. Start and End are offsets into the original
// sheet (End exclusive), so merged items keep their source row order.
type Chunk struct {
	Index int
	Start int
	End   int
	Rows  [][]string
}

// IsBlankRow reports whether every cell in the row is empty after
// trimming. excelize returns fully empty rows as zero-length slices.
func IsBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// SplitRows splits a worksheet into bounded chunks. Split points are the
// start of the first run of at least blankRun consecutive blank rows on
// or after maxRows, never inside a non-blank run; a logical line item
// spread over adjacent rows is never severed. When no safe boundary
// exists the chunk grows until one is found, or to the end of the sheet.
func SplitRows(rows [][]string, maxRows, blankRun int) []Chunk {
	if maxRows <= 0 {
		return []Chunk{{Index: 0, Start: 0, End: len(rows), Rows: rows}}
	}
	if blankRun <= 0 {
		blankRun = 1
	}

	var chunks []Chunk
	start := 0
	for start < len(rows) {
		if len(rows)-start <= maxRows {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Start: start,
				End:   len(rows),
				Rows:  rows[start:],
			})
			break
		}
		end := len(rows)
		for i := start + maxRows; i+blankRun <= len(rows); i++ {
			if blankRunAt(rows, i, blankRun) {
				end = i
				break
			}
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Rows:  rows[start:end],
		})
		start = end
	}
	if len(chunks) == 0 {
		chunks = append(chunks, Chunk{Index: 0, Start: 0, End: 0, Rows: nil})
	}
	return chunks
}

func blankRunAt(rows [][]string, at, n int) bool {
	for i := at; i < at+n; i++ {
		if !IsBlankRow(rows[i]) {
			return false
		}
	}
	return true
}
