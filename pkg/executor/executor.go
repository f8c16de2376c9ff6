package executor

import (
	"context"
	"errors"
	"fmt"
)

// ErrRemote marks transient remote executor failures. The orchestrator
// absorbs these with bounded retries during status refresh instead of
// failing the affected job.
var ErrRemote error = transientError("remote executor error")

var ErrJobNotFound = errors.New("remote job not found")

// transientError flags an error chain as retriable for httpclient.Retry.
// Rejections like 4xx responses stay plain errors and are never retried.
type transientError string

func (e transientError) Error() string   { return string(e) }
func (e transientError) Retriable() bool { return true }

// JobSpec is what the remote platform needs to start one training job.
type JobSpec struct {
	Name           string                 `json:"name"`
	Image          string                 `json:"image,omitempty"`
	Hyperparams    map[string]interface{} `json:"hyperparameters"`
	StaticConfig   map[string]interface{} `json:"static_config,omitempty"`
	InputDataURIs  map[string]string      `json:"input_data_uris,omitempty"`
	OutputPrefix   string                 `json:"output_prefix,omitempty"`
	InstanceType   string                 `json:"instance_type,omitempty"`
	MaxRuntimeSecs int                    `json:"max_runtime_seconds,omitempty"`
}

// JobState mirrors the lifecycle states the platform reports.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateStopped   JobState = "stopped"
)

func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateStopped:
		return true
	}
	return false
}

// JobDetail is the status payload for one remote job.
type JobDetail struct {
	RemoteID         string   `json:"job_id"`
	State            JobState `json:"state"`
	ArtifactLocation string   `json:"artifact_location,omitempty"`
	FailureReason    string   `json:"failure_reason,omitempty"`
}

// RemoteExecutor is the narrow surface of the hosted training platform the
// orchestrator depends on.
type RemoteExecutor interface {
	SubmitJob(ctx context.Context, spec JobSpec) (string, error)
	GetStatus(ctx context.Context, remoteID string) (JobDetail, error)
	GetLogs(ctx context.Context, remoteID string) (string, error)
	StopJob(ctx context.Context, remoteID string) error
}

func remoteErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrRemote, op, err)
}
