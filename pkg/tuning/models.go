package tuning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
)

type RunModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey;column:id"`
	Objective    string            `gorm:"column:objective"`
	Goal         string            `gorm:"column:goal"`
	Pattern      string            `gorm:"column:pattern"`
	Space        datatypes.JSONMap `gorm:"column:space"`
	MaxJobs      int               `gorm:"column:max_jobs"`
	MaxParallel  int               `gorm:"column:max_parallel"`
	Status       string            `gorm:"column:status"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
}

func (RunModel) TableName() string {
	return "tuning_runs"
}

type JobModel struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey;column:id"`
	RunID            uuid.UUID         `gorm:"type:uuid;index;column:run_id"`
	RemoteID         string            `gorm:"column:remote_id"`
	Parameters       datatypes.JSONMap `gorm:"column:parameters"`
	Status           string            `gorm:"column:status"`
	Metric           *float64          `gorm:"column:metric"`
	ArtifactLocation string            `gorm:"column:artifact_location"`
	ErrorMessage     string            `gorm:"column:error_message"`
	CreatedAt        time.Time         `gorm:"column:created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at"`
	StartedAt        *time.Time        `gorm:"column:started_at"`
	CompletedAt      *time.Time        `gorm:"column:completed_at"`
}

func (JobModel) TableName() string {
	return "tuning_jobs"
}
