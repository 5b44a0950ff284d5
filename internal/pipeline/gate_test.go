package pipeline

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/entity"
	"github.com/sitequant/takeoff/internal/repository"
)

type gateFixture struct {
	db    *gorm.DB
	files repository.FileStore
	items repository.ItemStore
	jobs  repository.JobStore
	gate  *Gate
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	db := setupPipelineDB(t)
	files := repository.NewFileStore(db, nil)
	items := repository.NewItemStore(db, nil)
	jobs := repository.NewJobStore(db, nil)
	logs := repository.NewLogStore(db, nil)
	return &gateFixture{
		db:    db,
		files: files,
		items: items,
		jobs:  jobs,
		gate:  NewGate(files, items, jobs, logs, nil),
	}
}

func (f *gateFixture) addFile(t *testing.T, projectID uuid.UUID, name string, ft constants.FileType, status constants.FileStatus) *entity.ProjectFile {
	t.Helper()
	sum := sha256.Sum256([]byte(name))
	file := &entity.ProjectFile{
		ProjectID:   projectID,
		Filename:    name,
		SourcePath:  "/inbox/" + name,
		ContentHash: sum[:],
		FileType:    ft,
		Status:      status,
	}
	require.NoError(t, f.files.Create(context.Background(), file))
	return file
}

func (f *gateFixture) addScheduleItem(t *testing.T, projectID, fileID uuid.UUID) {
	t.Helper()
	err := f.items.ReplaceForFile(context.Background(), fileID, constants.ItemSourceSchedule, []entity.LineItem{{
		ProjectID: projectID, FileID: fileID,
		Source: constants.ItemSourceSchedule, Description: "pour slab",
	}})
	require.NoError(t, err)
}

func TestGateSatisfiedWithoutScheduleFiles(t *testing.T) {
	f := newGateFixture(t)
	projectID := uuid.New()
	f.addFile(t, projectID, "plan.dwg", constants.FileTypeDrawing, constants.FileStatusPending)

	ok, err := f.gate.Satisfied(context.Background(), projectID)
	require.NoError(t, err)
	assert.True(t, ok, "no schedule files means no ordering constraint")
}

func TestGateBlocksWhileScheduleUnready(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	projectID := uuid.New()
	ready := f.addFile(t, projectID, "phase1.xlsx", constants.FileTypeSchedule, constants.FileStatusReady)
	f.addScheduleItem(t, projectID, ready.ID)
	f.addFile(t, projectID, "phase2.xlsx", constants.FileTypeSchedule, constants.FileStatusPending)

	ok, err := f.gate.Satisfied(ctx, projectID)
	require.NoError(t, err)
	assert.False(t, ok, "one unready schedule file must hold the gate")
}

func TestGateBlocksWithoutScheduleItems(t *testing.T) {
	f := newGateFixture(t)
	projectID := uuid.New()
	f.addFile(t, projectID, "phase1.xlsx", constants.FileTypeSchedule, constants.FileStatusReady)

	ok, err := f.gate.Satisfied(context.Background(), projectID)
	require.NoError(t, err)
	assert.False(t, ok, "ready schedules with zero extracted items must hold the gate")
}

func TestGateOpensWhenSchedulesReadyWithItems(t *testing.T) {
	f := newGateFixture(t)
	projectID := uuid.New()
	sched := f.addFile(t, projectID, "phase1.xlsx", constants.FileTypeSchedule, constants.FileStatusReady)
	f.addScheduleItem(t, projectID, sched.ID)

	ok, err := f.gate.Satisfied(context.Background(), projectID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseDrawingsEnqueuesPendingOnly(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	projectID := uuid.New()

	sched := f.addFile(t, projectID, "phase1.xlsx", constants.FileTypeSchedule, constants.FileStatusReady)
	f.addScheduleItem(t, projectID, sched.ID)

	pending := f.addFile(t, projectID, "plan-a.dwg", constants.FileTypeDrawing, constants.FileStatusPending)
	f.addFile(t, projectID, "plan-b.dwg", constants.FileTypeDrawing, constants.FileStatusReady)
	busy := f.addFile(t, projectID, "plan-c.dwg", constants.FileTypeDrawing, constants.FileStatusPending)
	_, err := f.jobs.Enqueue(ctx, projectID, busy.ID, "already-running")
	require.NoError(t, err)

	released, err := f.gate.ReleaseDrawings(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 1, released, "only the idle pending drawing is released")

	active, err := f.jobs.HasActiveForFile(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, active)

	// A second release pass is a no-op.
	released, err = f.gate.ReleaseDrawings(ctx, projectID)
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestReleaseDrawingsHeldGateIsNoop(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	projectID := uuid.New()

	f.addFile(t, projectID, "phase1.xlsx", constants.FileTypeSchedule, constants.FileStatusPending)
	f.addFile(t, projectID, "plan-a.dwg", constants.FileTypeDrawing, constants.FileStatusPending)

	released, err := f.gate.ReleaseDrawings(ctx, projectID)
	require.NoError(t, err)
	assert.Zero(t, released)
}
