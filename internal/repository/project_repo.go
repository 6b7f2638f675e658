package repository

import (
	"context"

	"gorm.io/gorm"

	"suivipro/internal/domain"
)

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	var p domain.Project
	err := r.db.WithContext(ctx).
		Preload("AssignedTo").
		First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListAll returns every project with its assignees preloaded. The lifecycle
// monitor scans the whole table, so no pagination here.
func (r *ProjectRepository) ListAll(ctx context.Context) ([]domain.Project, error) {
	var projects []domain.Project
	err := r.db.WithContext(ctx).
		Preload("AssignedTo").
		Order("id ASC").
		Find(&projects).Error
	return projects, err
}

// ListActive returns projects that are neither completed nor cancelled.
func (r *ProjectRepository) ListActive(ctx context.Context) ([]domain.Project, error) {
	var projects []domain.Project
	err := r.db.WithContext(ctx).
		Preload("AssignedTo").
		Where("status NOT IN ?", []domain.ProjectStatus{domain.ProjectCompleted, domain.ProjectCancelled}).
		Order("id ASC").
		Find(&projects).Error
	return projects, err
}

func (r *ProjectRepository) Save(ctx context.Context, p *domain.Project) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// SetLastNotifiedMilestone persists the milestone marker without touching
// updated_at, so milestone bookkeeping does not reset the inactivity clock.
func (r *ProjectRepository) SetLastNotifiedMilestone(ctx context.Context, id int64, milestone int) error {
	return r.db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("id = ?", id).
		UpdateColumn("last_notified_milestone", milestone).Error
}
