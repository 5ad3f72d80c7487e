package models

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrImportRunNotFound is returned when an import run is not found.
var ErrImportRunNotFound = errors.New("import run not found")

type ImportRunsRepository struct {
	db *gorm.DB
}

func NewImportRunsRepository(db *gorm.DB) *ImportRunsRepository {
	return &ImportRunsRepository{db: db}
}

func (r *ImportRunsRepository) Create(ctx context.Context, run *ImportRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(run).Error
}

// Finish persists the final status, counts and error details of a run.
func (r *ImportRunsRepository) Finish(ctx context.Context, run *ImportRun) error {
	return r.db.WithContext(ctx).
		Model(&ImportRun{ID: run.ID}).
		Select("status", "total", "created", "updated", "unchanged", "skipped", "error_details", "error", "completed_at").
		Updates(run).Error
}

// List returns the most recent runs first.
func (r *ImportRunsRepository) List(ctx context.Context, limit int) ([]ImportRun, error) {
	var runs []ImportRun
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *ImportRunsRepository) Get(ctx context.Context, id uuid.UUID) (*ImportRun, error) {
	var run ImportRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImportRunNotFound
		}
		return nil, err
	}
	return &run, nil
}
