package models

import (
	"time"

	"github.com/google/uuid"
)

// Job lifecycle states reported by the remote executor. Queued -> Running
// is the only transition the orchestrator performs locally; everything else
// follows the executor's reports.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobStopped   = "stopped"
)

func IsTerminalStatus(status string) bool {
	switch status {
	case JobSucceeded, JobFailed, JobStopped:
		return true
	}
	return false
}

// TuningStatus is the aggregate view of one tuning run as of the most
// recent poll cycle.
type TuningStatus struct {
	RunID     uuid.UUID `json:"run_id"`
	Queued    int       `json:"queued"`
	Running   int       `json:"running"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Stopped   int       `json:"stopped"`
	Terminal  bool      `json:"terminal"`
}

func (s TuningStatus) Total() int {
	return s.Queued + s.Running + s.Succeeded + s.Failed + s.Stopped
}

// JobEvent is published on the event bus whenever a job record changes
// lifecycle state.
type JobEvent struct {
	ID         string     `json:"id"`
	RunID      uuid.UUID  `json:"run_id"`
	JobID      uuid.UUID  `json:"job_id"`
	RemoteID   string     `json:"remote_id,omitempty"`
	FromStatus string     `json:"from_status"`
	ToStatus   string     `json:"to_status"`
	Metric     *float64   `json:"metric,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// TuningRun is the wire representation of a run returned by the service.
type TuningRun struct {
	ID          uuid.UUID  `json:"id"`
	Objective   string     `json:"objective"`
	Goal        string     `json:"goal"`
	MaxJobs     int        `json:"max_jobs"`
	MaxParallel int        `json:"max_parallel"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TuningJob is the wire representation of one job record.
type TuningJob struct {
	ID               uuid.UUID              `json:"id"`
	RunID            uuid.UUID              `json:"run_id"`
	RemoteID         string                 `json:"remote_id,omitempty"`
	Parameters       map[string]interface{} `json:"parameters"`
	Status           string                 `json:"status"`
	Metric           *float64               `json:"metric,omitempty"`
	ArtifactLocation string                 `json:"artifact_location,omitempty"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
}

// DeploymentRecord is the wire representation of a hosted endpoint.
type DeploymentRecord struct {
	ID          uuid.UUID  `json:"id"`
	JobID       uuid.UUID  `json:"job_id"`
	EndpointRef string     `json:"endpoint_ref"`
	Instance    string     `json:"instance"`
	Released    bool       `json:"released"`
	CreatedAt   time.Time  `json:"created_at"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
}
