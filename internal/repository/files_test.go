package repository

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/entity"
)

func newTestFile(projectID uuid.UUID, name string, t constants.FileType, content string) *entity.ProjectFile {
	sum := sha256.Sum256([]byte(content))
	return &entity.ProjectFile{
		ProjectID:   projectID,
		Filename:    name,
		SourcePath:  "/inbox/" + name,
		FileExt:     "xlsx",
		ContentHash: sum[:],
		FileType:    t,
	}
}

func TestUpsertByHashDeduplicates(t *testing.T) {
	db := setupTestDB(t)
	store := NewFileStore(db, nil)
	ctx := context.Background()
	projectID := uuid.New()

	first, dup, err := store.UpsertByHash(ctx, newTestFile(projectID, "boq.xlsx", constants.FileTypeBOQ, "same-bytes"))
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, constants.FileStatusPending, first.Status)

	second, dup, err := store.UpsertByHash(ctx, newTestFile(projectID, "boq-copy.xlsx", constants.FileTypeBOQ, "same-bytes"))
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, second.ID)

	// Same bytes under another project are a distinct file.
	other, dup, err := store.UpsertByHash(ctx, newTestFile(uuid.New(), "boq.xlsx", constants.FileTypeBOQ, "same-bytes"))
	require.NoError(t, err)
	assert.False(t, dup)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestListByProjectAndType(t *testing.T) {
	db := setupTestDB(t)
	store := NewFileStore(db, nil)
	ctx := context.Background()
	projectID := uuid.New()

	require.NoError(t, store.Create(ctx, newTestFile(projectID, "plan.dwg", constants.FileTypeDrawing, "a")))
	require.NoError(t, store.Create(ctx, newTestFile(projectID, "boq.xlsx", constants.FileTypeBOQ, "b")))
	require.NoError(t, store.Create(ctx, newTestFile(projectID, "schedule.xlsx", constants.FileTypeSchedule, "c")))

	drawings, err := store.ListByProjectAndType(ctx, projectID, constants.FileTypeDrawing)
	require.NoError(t, err)
	require.Len(t, drawings, 1)
	assert.Equal(t, "plan.dwg", drawings[0].Filename)

	all, err := store.ListByProject(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSetStatusUnknownFile(t *testing.T) {
	db := setupTestDB(t)
	store := NewFileStore(db, nil)

	err := store.SetStatus(context.Background(), uuid.New(), constants.FileStatusReady, "")
	assert.Error(t, err)
}

func TestSheetRecordsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store := NewFileStore(db, nil)
	ctx := context.Background()

	file := newTestFile(uuid.New(), "boq.xlsx", constants.FileTypeBOQ, "x")
	require.NoError(t, store.Create(ctx, file))

	sheet := &entity.SheetStatus{
		FileID:    file.ID,
		SheetName: "Groundworks",
		Status:    constants.PartStatusPending,
		Parts: []entity.SheetPart{
			{ChunkIndex: 0, StartRow: 0, EndRow: 350, Status: constants.PartStatusPending},
			{ChunkIndex: 1, StartRow: 350, EndRow: 700, Status: constants.PartStatusPending},
		},
	}
	require.NoError(t, store.CreateSheet(ctx, sheet))

	sheets, err := store.GetSheets(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	require.Len(t, sheets[0].Parts, 2)
	assert.Equal(t, 0, sheets[0].Parts[0].ChunkIndex)
	assert.Equal(t, 350, sheets[0].Parts[1].StartRow)

	require.NoError(t, store.UpdatePartStatus(ctx, sheets[0].Parts[1].ID, constants.PartStatusFailed, "adapter timeout"))
	require.NoError(t, store.UpdateSheetStatus(ctx, sheets[0].ID, constants.PartStatusFailed, "1 chunk(s) failed"))

	sheets, err = store.GetSheets(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.PartStatusFailed, sheets[0].Status)
	assert.Equal(t, constants.PartStatusFailed, sheets[0].Parts[1].Status)
	assert.Equal(t, "adapter timeout", sheets[0].Parts[1].ErrorMessage)

	require.NoError(t, store.DeleteSheets(ctx, file.ID))
	sheets, err = store.GetSheets(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, sheets)

	var parts int64
	require.NoError(t, db.Model(&entity.SheetPart{}).Count(&parts).Error)
	assert.Zero(t, parts, "orphaned parts should be deleted with their sheet")
}
