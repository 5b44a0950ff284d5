package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/common"
	"github.com/sitequant/takeoff/internal/entity"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestEnqueueCreatesQueuedJob(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db, nil)

	projectID, fileID := uuid.New(), uuid.New()
	job, err := store.Enqueue(context.Background(), projectID, fileID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, job.Status)
	assert.Equal(t, projectID, job.ProjectID)
	assert.Equal(t, fileID, job.FileID)
	assert.Nil(t, job.StartedAt)
}

func TestEnqueueIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db, nil)
	ctx := context.Background()

	projectID, fileID := uuid.New(), uuid.New()
	first, err := store.Enqueue(ctx, projectID, fileID, "key-1")
	require.NoError(t, err)

	again, err := store.Enqueue(ctx, projectID, fileID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&entity.ExtractionJob{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnqueueDistinctKeysMakeDistinctJobs(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db, nil)
	ctx := context.Background()

	projectID, fileID := uuid.New(), uuid.New()
	a, err := store.Enqueue(ctx, projectID, fileID, "key-a")
	require.NoError(t, err)
	b, err := store.Enqueue(ctx, projectID, fileID, "key-b")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestEnqueueRejectsEmptyKey(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db, nil)

	_, err := store.Enqueue(context.Background(), uuid.New(), uuid.New(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestClaimNextQueuedTakesOldestFirst(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db, nil)
	ctx := context.Background()

	projectID := uuid.New()
	oldJob := &entity.ExtractionJob{
		ID: uuid.New(), ProjectID: projectID, FileID: uuid.New(),
		IdempotencyKey: "old", Status: constants.JobStatusQueued,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	newJob := &entity.ExtractionJob{
		ID: uuid.New(), ProjectID: projectID, FileID: uuid.New(),
		IdempotencyKey: "new", Status: constants.JobStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(newJob).Error)
	require.NoError(t, db.Create(oldJob).Error)

	claimed, err := store.ClaimNextQueued(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, oldJob.ID, claimed.ID)
	assert.Equal(t, constants.JobStatusProcessing, claimed.Status)
	require.NotNil(t, claimed.StartedAt)
}

func TestClaimNextQueuedReturnsNilWhenEmpty(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db, nil)

	claimed, err := store.ClaimNextQueued(context.Background())
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimNextQueuedEachJobWonOnce(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db, nil)
	ctx := context.Background()

	projectID := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := store.Enqueue(ctx, projectID, uuid.New(), uuid.NewString())
		require.NoError(t, err)
	}

	seen := map[uuid.UUID]bool{}
	for i := 0; i < 3; i++ {
		claimed, err := store.ClaimNextQueued(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.False(t, seen[claimed.ID], "job claimed twice")
		seen[claimed.ID] = true
	}

	claimed, err := store.ClaimNextQueued(ctx)
	require.NoError(t, err)
	assert.Nil(t, claimed, "no queued jobs should remain")
}

func TestCompleteAndFailAreTerminal(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db, nil)
	ctx := context.Background()

	projectID := uuid.New()
	a, err := store.Enqueue(ctx, projectID, uuid.New(), "a")
	require.NoError(t, err)
	b, err := store.Enqueue(ctx, projectID, uuid.New(), "b")
	require.NoError(t, err)

	require.NoError(t, store.Complete(ctx, a.ID, "extracted 42 items"))
	require.NoError(t, store.Fail(ctx, b.ID, "adapter timeout"))

	done, err := store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusDone, done.Status)
	assert.Equal(t, "extracted 42 items", done.Message)
	assert.NotNil(t, done.FinishedAt)
	assert.True(t, done.Status.IsTerminal())

	failed, err := store.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, failed.Status)
	assert.Equal(t, "adapter timeout", failed.ErrorMessage)
	assert.NotNil(t, failed.FinishedAt)
}

func TestGetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db, nil)

	_, err := store.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCountActiveForProject(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db, nil)
	ctx := context.Background()

	projectID := uuid.New()
	queued, err := store.Enqueue(ctx, projectID, uuid.New(), "q")
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, projectID, uuid.New(), "p")
	require.NoError(t, err)
	doneJob, err := store.Enqueue(ctx, projectID, uuid.New(), "d")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, doneJob.ID, "done"))
	// unrelated project
	_, err = store.Enqueue(ctx, uuid.New(), uuid.New(), "x")
	require.NoError(t, err)

	n, err := store.CountActiveForProject(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	active, err := store.HasActiveForFile(ctx, queued.FileID)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = store.HasActiveForFile(ctx, doneJob.FileID)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestResetStaleRequeuesOnlyExpiredClaims(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db, nil)
	ctx := context.Background()

	projectID := uuid.New()
	stale, err := store.Enqueue(ctx, projectID, uuid.New(), "stale")
	require.NoError(t, err)
	fresh, err := store.Enqueue(ctx, projectID, uuid.New(), "fresh")
	require.NoError(t, err)

	longAgo := time.Now().UTC().Add(-time.Hour)
	justNow := time.Now().UTC()
	require.NoError(t, db.Model(&entity.ExtractionJob{}).Where("id = ?", stale.ID).
		Updates(map[string]any{"status": constants.JobStatusProcessing, "started_at": longAgo}).Error)
	require.NoError(t, db.Model(&entity.ExtractionJob{}).Where("id = ?", fresh.ID).
		Updates(map[string]any{"status": constants.JobStatusProcessing, "started_at": justNow}).Error)

	n, err := store.ResetStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, got.Status)
	assert.Nil(t, got.StartedAt)

	got, err = store.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusProcessing, got.Status)
}
