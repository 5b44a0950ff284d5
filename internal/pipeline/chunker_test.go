package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itemRow(n int) []string {
	return []string{fmt.Sprintf("C%03d", n), fmt.Sprintf("item %d", n), "m2", "10", "2.5"}
}

func blankRow() []string { return []string{"", "  ", ""} }

func TestIsBlankRow(t *testing.T) {
	assert.True(t, IsBlankRow(nil))
	assert.True(t, IsBlankRow([]string{}))
	assert.True(t, IsBlankRow([]string{"", "   ", "\t"}))
	assert.False(t, IsBlankRow([]string{"", "x", ""}))
}

func TestSplitRowsSmallSheetIsSingleChunk(t *testing.T) {
	rows := make([][]string, 0, 100)
	for i := 0; i < 100; i++ {
		rows = append(rows, itemRow(i))
	}
	chunks := SplitRows(rows, 350, 2)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 100, chunks[0].End)
	assert.Len(t, chunks[0].Rows, 100)
}

func TestSplitRowsEmptySheet(t *testing.T) {
	chunks := SplitRows(nil, 350, 2)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].End)
}

func TestSplitRowsBreaksAtBlankRun(t *testing.T) {
	// 400 item rows with a 2-row blank run at 360.
	var rows [][]string
	for i := 0; i < 360; i++ {
		rows = append(rows, itemRow(i))
	}
	rows = append(rows, blankRow(), blankRow())
	for i := 362; i < 400; i++ {
		rows = append(rows, itemRow(i))
	}

	chunks := SplitRows(rows, 350, 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 360, chunks[0].End)
	assert.Equal(t, 360, chunks[1].Start)
	assert.Equal(t, 400, chunks[1].End)
}

func TestSplitRowsSingleBlankRowIsNotABoundary(t *testing.T) {
	// A lone blank row inside a logical item must not split the chunk.
	var rows [][]string
	for i := 0; i < 360; i++ {
		rows = append(rows, itemRow(i))
	}
	rows = append(rows, blankRow())
	for i := 361; i < 380; i++ {
		rows = append(rows, itemRow(i))
	}
	rows = append(rows, blankRow(), blankRow())
	for i := 382; i < 420; i++ {
		rows = append(rows, itemRow(i))
	}

	chunks := SplitRows(rows, 350, 2)
	require.Len(t, chunks, 2)
	assert.Equal(t, 380, chunks[0].End, "must skip the single blank at 360 and break at the run at 380")
}

func TestSplitRowsNoBoundaryGrowsToEnd(t *testing.T) {
	var rows [][]string
	for i := 0; i < 500; i++ {
		rows = append(rows, itemRow(i))
	}
	chunks := SplitRows(rows, 350, 2)
	require.Len(t, chunks, 1)
	assert.Equal(t, 500, chunks[0].End)
}

func TestSplitRowsEightHundredRowsThreeChunks(t *testing.T) {
	// 800 rows with blank runs at 360 and 720: chunks of roughly 360,
	// 360, and 80 rows.
	var rows [][]string
	for i := 0; i < 800; i++ {
		if i == 360 || i == 361 || i == 720 || i == 721 {
			rows = append(rows, blankRow())
			continue
		}
		rows = append(rows, itemRow(i))
	}

	chunks := SplitRows(rows, 350, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 360, 720}, []int{chunks[0].Start, chunks[1].Start, chunks[2].Start})
	assert.Equal(t, []int{360, 720, 800}, []int{chunks[0].End, chunks[1].End, chunks[2].End})
}

func TestSplitRowsCoversEveryRowExactlyOnce(t *testing.T) {
	var rows [][]string
	for i := 0; i < 1203; i++ {
		if i%97 == 0 {
			rows = append(rows, blankRow(), blankRow())
			i++
			continue
		}
		rows = append(rows, itemRow(i))
	}

	chunks := SplitRows(rows, 350, 2)
	next := 0
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, next, c.Start, "chunks must be contiguous")
		assert.Equal(t, c.End-c.Start, len(c.Rows))
		next = c.End
	}
	assert.Equal(t, len(rows), next, "chunks must cover the whole sheet")
}
