package tuning

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("tuning run not found")

// Repository persists run and job records so lifecycle history survives
// orchestrator restarts. The remote service remains the source of truth;
// rows are a cache refreshed idempotently from poll cycles.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RunModel{}, &JobModel{})
}

func (r *Repository) CreateRun(ctx context.Context, run *RunModel, jobs []*JobModel) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		for _, job := range jobs {
			if err := tx.Create(job).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) UpdateRunStatus(ctx context.Context, runID uuid.UUID, status string, completedAt *time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}
	return r.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", runID).Updates(updates).Error
}

func (r *Repository) UpdateJob(ctx context.Context, job *JobModel) error {
	updates := map[string]interface{}{
		"remote_id":         job.RemoteID,
		"status":            job.Status,
		"artifact_location": job.ArtifactLocation,
		"error_message":     job.ErrorMessage,
		"updated_at":        time.Now().UTC(),
	}
	if job.Metric != nil {
		updates["metric"] = *job.Metric
	}
	if job.StartedAt != nil {
		updates["started_at"] = *job.StartedAt
	}
	if job.CompletedAt != nil {
		updates["completed_at"] = *job.CompletedAt
	}
	return r.db.WithContext(ctx).Model(&JobModel{}).Where("id = ?", job.ID).Updates(updates).Error
}

func (r *Repository) GetRun(ctx context.Context, runID uuid.UUID) (*RunModel, error) {
	var run RunModel
	result := r.db.WithContext(ctx).First(&run, "id = ?", runID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	return &run, result.Error
}

func (r *Repository) ListJobs(ctx context.Context, runID uuid.UUID) ([]JobModel, error) {
	var jobs []JobModel
	result := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at asc").Find(&jobs)
	return jobs, result.Error
}

func (r *Repository) ListRuns(ctx context.Context, limit int) ([]RunModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []RunModel
	result := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&runs)
	return runs, result.Error
}
