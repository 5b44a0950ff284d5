package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sitequant/takeoff/constants"
	"github.com/sitequant/takeoff/internal/common"
	"github.com/sitequant/takeoff/internal/entity"
)

// JobStore is the durable record of extraction work. No other component
// mutates job status directly; all transitions go through Enqueue,
// ClaimNextQueued, Complete, and Fail.
type JobStore interface {
	// Enqueue inserts a new queued job, or returns the existing one when the
	// (project_id, file_id, idempotency_key) triple already exists.
	Enqueue(ctx context.Context, projectID, fileID uuid.UUID, idempotencyKey string) (*entity.ExtractionJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error)
	// ClaimNextQueued atomically selects the oldest queued job and moves it
	// to PROCESSING. Exactly one concurrent caller wins a given job; returns
	// nil when nothing is claimable.
	ClaimNextQueued(ctx context.Context) (*entity.ExtractionJob, error)
	SetStage(ctx context.Context, id uuid.UUID, stage string) error
	Complete(ctx context.Context, id uuid.UUID, message string) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
	CountActiveForProject(ctx context.Context, projectID uuid.UUID) (int64, error)
	HasActiveForFile(ctx context.Context, fileID uuid.UUID) (bool, error)
	ListForProject(ctx context.Context, projectID uuid.UUID) ([]entity.ExtractionJob, error)
	// ResetStale re-queues PROCESSING jobs whose claim is older than the
	// lease, recovering work orphaned by a crashed worker.
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type jobStore struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewJobStore(db *gorm.DB, log *slog.Logger) JobStore {
	if log == nil {
		log = slog.Default()
	}
	return &jobStore{db: db, log: log}
}

func (s *jobStore) Enqueue(ctx context.Context, projectID, fileID uuid.UUID, idempotencyKey string) (*entity.ExtractionJob, error) {
	if idempotencyKey == "" {
		return nil, common.NewAppError("JOB_ENQUEUE", "idempotency key is required", common.ErrInvalidInput)
	}

	var result *entity.ExtractionJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing entity.ExtractionJob
		err := tx.Where("project_id = ? AND file_id = ? AND idempotency_key = ?",
			projectID, fileID, idempotencyKey).First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		job := &entity.ExtractionJob{
			ID:             uuid.New(),
			ProjectID:      projectID,
			FileID:         fileID,
			IdempotencyKey: idempotencyKey,
			Status:         constants.JobStatusQueued,
			CreatedAt:      time.Now().UTC(),
		}
		if err := tx.Create(job).Error; err != nil {
			// Another transaction may have inserted the same triple between
			// our check and create; surface the winner instead.
			var raced entity.ExtractionJob
			lookupErr := s.db.WithContext(ctx).Where("project_id = ? AND file_id = ? AND idempotency_key = ?",
				projectID, fileID, idempotencyKey).First(&raced).Error
			if lookupErr == nil {
				result = &raced
				return nil
			}
			return fmt.Errorf("enqueue job: %w", err)
		}
		result = job
		return nil
	})
	if err != nil {
		s.log.Error("job enqueue failed", "project_id", projectID, "file_id", fileID, "error", err)
		return nil, err
	}
	s.log.Info("job enqueued", "job_id", result.ID, "project_id", projectID, "file_id", fileID, "status", result.Status)
	return result, nil
}

func (s *jobStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error) {
	var job entity.ExtractionJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

func (s *jobStore) ClaimNextQueued(ctx context.Context) (*entity.ExtractionJob, error) {
	var job entity.ExtractionJob

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// FOR UPDATE SKIP LOCKED on PostgreSQL; plain select elsewhere.
		result := tx.Raw(`
			SELECT * FROM extraction_jobs
			WHERE status = ?
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, constants.JobStatusQueued).Scan(&job)

		if result.Error != nil {
			result = tx.Where("status = ?", constants.JobStatusQueued).
				Order("created_at ASC").
				Limit(1).
				First(&job)
			if result.Error != nil {
				if errors.Is(result.Error, gorm.ErrRecordNotFound) {
					return nil
				}
				return result.Error
			}
		}
		if job.ID == uuid.Nil {
			return nil
		}

		now := time.Now().UTC()
		res := tx.Model(&entity.ExtractionJob{}).
			Where("id = ? AND status = ?", job.ID, constants.JobStatusQueued).
			Updates(map[string]any{
				"status":     constants.JobStatusProcessing,
				"started_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the transition to a concurrent claimer.
			job = entity.ExtractionJob{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}

	// Reload to get the updated values.
	if err := s.db.WithContext(ctx).First(&job, "id = ?", job.ID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed job: %w", err)
	}
	return &job, nil
}

func (s *jobStore) SetStage(ctx context.Context, id uuid.UUID, stage string) error {
	err := s.db.WithContext(ctx).Model(&entity.ExtractionJob{}).
		Where("id = ?", id).
		Update("stage", stage).Error
	if err != nil {
		return fmt.Errorf("set job stage: %w", err)
	}
	return nil
}

func (s *jobStore) Complete(ctx context.Context, id uuid.UUID, message string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&entity.ExtractionJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      constants.JobStatusDone,
			"finished_at": now,
			"message":     message,
		})
	if res.Error != nil {
		s.log.Error("job complete failed", "job_id", id, "error", res.Error)
		return fmt.Errorf("complete job: %w", res.Error)
	}
	s.log.Info("job finished", "job_id", id, "status", constants.JobStatusDone)
	return nil
}

func (s *jobStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&entity.ExtractionJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        constants.JobStatusFailed,
			"finished_at":   now,
			"error_message": errMsg,
		})
	if res.Error != nil {
		s.log.Error("job fail-transition failed", "job_id", id, "error", res.Error)
		return fmt.Errorf("fail job: %w", res.Error)
	}
	s.log.Warn("job finished", "job_id", id, "status", constants.JobStatusFailed, "error", errMsg)
	return nil
}

func (s *jobStore) CountActiveForProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&entity.ExtractionJob{}).
		Where("project_id = ? AND status IN ?", projectID,
			[]constants.JobStatus{constants.JobStatusQueued, constants.JobStatusProcessing}).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return n, nil
}

func (s *jobStore) HasActiveForFile(ctx context.Context, fileID uuid.UUID) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&entity.ExtractionJob{}).
		Where("file_id = ? AND status IN ?", fileID,
			[]constants.JobStatus{constants.JobStatusQueued, constants.JobStatusProcessing}).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count active jobs for file: %w", err)
	}
	return n > 0, nil
}

func (s *jobStore) ListForProject(ctx context.Context, projectID uuid.UUID) ([]entity.ExtractionJob, error) {
	var jobs []entity.ExtractionJob
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func (s *jobStore) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res := s.db.WithContext(ctx).Model(&entity.ExtractionJob{}).
		Where("status = ? AND started_at < ?", constants.JobStatusProcessing, cutoff).
		Updates(map[string]any{
			"status":        constants.JobStatusQueued,
			"started_at":    nil,
			"error_message": "requeued after stale claim",
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reset stale jobs: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Warn("requeued stale jobs", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
