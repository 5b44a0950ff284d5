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

type ProjectStore interface {
	Create(ctx context.Context, name string) (*entity.Project, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Project, error)
	SetStatus(ctx context.Context, id uuid.UUID, status constants.ProjectStatus) error
	List(ctx context.Context) ([]entity.Project, error)
}

type projectStore struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewProjectStore(db *gorm.DB, log *slog.Logger) ProjectStore {
	if log == nil {
		log = slog.Default()
	}
	return &projectStore{db: db, log: log}
}

func (s *projectStore) Create(ctx context.Context, name string) (*entity.Project, error) {
	p := &entity.Project{
		ID:        uuid.New(),
		Name:      name,
		Status:    constants.ProjectStatusFinalized,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		s.log.Error("failed to create project", "name", name, "error", err)
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (s *projectStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.Project, error) {
	var p entity.Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *projectStore) SetStatus(ctx context.Context, id uuid.UUID, status constants.ProjectStatus) error {
	err := s.db.WithContext(ctx).Model(&entity.Project{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("set project status: %w", err)
	}
	return nil
}

func (s *projectStore) List(ctx context.Context) ([]entity.Project, error) {
	var projects []entity.Project
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}
