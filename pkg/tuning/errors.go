package tuning

import "errors"

var (
	// ErrValidation marks malformed submit arguments. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrWaitTimeout is returned by Wait when the deadline passes while
	// jobs remain non-terminal. The run keeps executing remotely; the
	// caller may Wait again.
	ErrWaitTimeout = errors.New("tuning wait timed out")

	// ErrNoSuccessfulJobs is returned by BestResult when no job both
	// succeeded and produced an objective value.
	ErrNoSuccessfulJobs = errors.New("no successful scored jobs")

	// ErrRunNotTerminal is returned by BestResult while jobs are still
	// queued or running.
	ErrRunNotTerminal = errors.New("tuning run is not terminal")
)
