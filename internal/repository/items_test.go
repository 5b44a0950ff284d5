package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/entity"
)

func boqItem(projectID, fileID uuid.UUID, sheet string, row, chunk int, desc string) entity.LineItem {
	return entity.LineItem{
		ProjectID:   projectID,
		FileID:      fileID,
		Source:      constants.ItemSourceBOQ,
		SheetName:   sheet,
		RowIndex:    row,
		ChunkIndex:  chunk,
		Description: desc,
	}
}

func TestReplaceChunkTouchesOnlyItsChunk(t *testing.T) {
	db := setupTestDB(t)
	store := NewItemStore(db, nil)
	ctx := context.Background()
	projectID, fileID := uuid.New(), uuid.New()

	require.NoError(t, store.ReplaceChunk(ctx, fileID, "BOQ", 0, []entity.LineItem{
		boqItem(projectID, fileID, "BOQ", 1, 0, "excavation"),
		boqItem(projectID, fileID, "BOQ", 2, 0, "backfill"),
	}))
	require.NoError(t, store.ReplaceChunk(ctx, fileID, "BOQ", 1, []entity.LineItem{
		boqItem(projectID, fileID, "BOQ", 360, 1, "concrete"),
	}))

	// Reprocessing chunk 0 must leave chunk 1 untouched.
	require.NoError(t, store.ReplaceChunk(ctx, fileID, "BOQ", 0, []entity.LineItem{
		boqItem(projectID, fileID, "BOQ", 1, 0, "excavation rev2"),
	}))

	items, err := store.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "excavation rev2", items[0].Description)
	assert.Equal(t, "concrete", items[1].Description)
}

func TestReplaceChunkScopedBySheet(t *testing.T) {
	db := setupTestDB(t)
	store := NewItemStore(db, nil)
	ctx := context.Background()
	projectID, fileID := uuid.New(), uuid.New()

	require.NoError(t, store.ReplaceChunk(ctx, fileID, "Groundworks", 0, []entity.LineItem{
		boqItem(projectID, fileID, "Groundworks", 1, 0, "strip topsoil"),
	}))
	require.NoError(t, store.ReplaceChunk(ctx, fileID, "Drainage", 0, []entity.LineItem{
		boqItem(projectID, fileID, "Drainage", 1, 0, "lay pipe"),
	}))

	require.NoError(t, store.ReplaceChunk(ctx, fileID, "Drainage", 0, nil))

	items, err := store.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "strip topsoil", items[0].Description)
}

func TestListByFilePreservesRowOrder(t *testing.T) {
	db := setupTestDB(t)
	store := NewItemStore(db, nil)
	ctx := context.Background()
	projectID, fileID := uuid.New(), uuid.New()

	// Insert out of order across two chunks.
	require.NoError(t, store.ReplaceChunk(ctx, fileID, "BOQ", 1, []entity.LineItem{
		boqItem(projectID, fileID, "BOQ", 400, 1, "row 400"),
		boqItem(projectID, fileID, "BOQ", 351, 1, "row 351"),
	}))
	require.NoError(t, store.ReplaceChunk(ctx, fileID, "BOQ", 0, []entity.LineItem{
		boqItem(projectID, fileID, "BOQ", 10, 0, "row 10"),
		boqItem(projectID, fileID, "BOQ", 5, 0, "row 5"),
	}))

	items, err := store.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, items, 4)
	for i, want := range []int{5, 10, 351, 400} {
		assert.Equal(t, want, items[i].RowIndex)
		assert.Equal(t, fmt.Sprintf("row %d", want), items[i].Description)
	}
}

func TestDeleteForFileScopedBySource(t *testing.T) {
	db := setupTestDB(t)
	store := NewItemStore(db, nil)
	ctx := context.Background()
	projectID, fileID := uuid.New(), uuid.New()

	require.NoError(t, store.ReplaceChunk(ctx, fileID, "BOQ", 0, []entity.LineItem{
		boqItem(projectID, fileID, "BOQ", 1, 0, "excavation"),
	}))
	require.NoError(t, store.ReplaceChunk(ctx, fileID, "BOQ", 2, []entity.LineItem{
		boqItem(projectID, fileID, "BOQ", 750, 2, "finishes"),
	}))
	schedule := entity.LineItem{
		ProjectID: projectID, FileID: fileID,
		Source: constants.ItemSourceSchedule, RowIndex: 1, Description: "pour slab week 3",
	}
	require.NoError(t, store.ReplaceForFile(ctx, fileID, constants.ItemSourceSchedule, []entity.LineItem{schedule}))

	require.NoError(t, store.DeleteForFile(ctx, fileID, constants.ItemSourceBOQ))

	items, err := store.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, constants.ItemSourceSchedule, items[0].Source)
}

func TestDeleteForSheetLeavesSiblingSheets(t *testing.T) {
	db := setupTestDB(t)
	store := NewItemStore(db, nil)
	ctx := context.Background()
	projectID, fileID := uuid.New(), uuid.New()

	require.NoError(t, store.ReplaceChunk(ctx, fileID, "Groundworks", 0, []entity.LineItem{
		boqItem(projectID, fileID, "Groundworks", 1, 0, "strip topsoil"),
	}))
	require.NoError(t, store.ReplaceChunk(ctx, fileID, "Drainage", 0, []entity.LineItem{
		boqItem(projectID, fileID, "Drainage", 1, 0, "lay pipe"),
	}))

	require.NoError(t, store.DeleteForSheet(ctx, fileID, "Drainage"))

	items, err := store.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Groundworks", items[0].SheetName)
}

func TestReplaceForFileScopedBySource(t *testing.T) {
	db := setupTestDB(t)
	store := NewItemStore(db, nil)
	ctx := context.Background()
	projectID, fileID := uuid.New(), uuid.New()

	schedule := entity.LineItem{
		ProjectID: projectID, FileID: fileID,
		Source: constants.ItemSourceSchedule, RowIndex: 1, Description: "pour slab week 3",
	}
	require.NoError(t, store.ReplaceForFile(ctx, fileID, constants.ItemSourceSchedule, []entity.LineItem{schedule}))
	require.NoError(t, store.ReplaceChunk(ctx, fileID, "BOQ", 0, []entity.LineItem{
		boqItem(projectID, fileID, "BOQ", 1, 0, "excavation"),
	}))

	// Replacing schedule items must not disturb BOQ items.
	require.NoError(t, store.ReplaceForFile(ctx, fileID, constants.ItemSourceSchedule, nil))

	items, err := store.ListByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, constants.ItemSourceBOQ, items[0].Source)

	n, err := store.CountBySource(ctx, projectID, constants.ItemSourceSchedule)
	require.NoError(t, err)
	assert.Zero(t, n)
}
