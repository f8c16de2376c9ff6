package tuning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hypertune-ai/platform/pkg/common/httpclient"
	"github.com/hypertune-ai/platform/pkg/common/logger"
	"github.com/hypertune-ai/platform/pkg/common/models"
	"github.com/hypertune-ai/platform/pkg/executor"
	"github.com/hypertune-ai/platform/pkg/observability/metrics"
	"gorm.io/datatypes"
)

// JobRequest is one concrete assignment plus the fixed configuration a
// remote job needs. Never mutated after submission.
type JobRequest struct {
	Parameters    Assignment
	StaticConfig  map[string]interface{}
	InputDataURIs map[string]string
	InstanceType  string
	OutputPrefix  string
}

// JobRecord tracks one submitted request through its lifecycle. All
// mutation happens inside Poll (and the dispatch pass it drives).
type JobRecord struct {
	ID               uuid.UUID
	RemoteID         string
	Request          JobRequest
	Status           string
	Metric           *float64
	ArtifactLocation string
	ErrorMessage     string
	StartedAt        *time.Time
	CompletedAt      *time.Time

	staleRefreshes int
}

// TuningResult is the winning record and the request that produced it.
type TuningResult struct {
	Run    *Run
	Record JobRecord
}

// Run is the handle for one tuning run. Its record collection is the only
// mutable shared state; a single mutex guards it so Poll is safe for
// concurrent callers.
type Run struct {
	ID        uuid.UUID
	CreatedAt time.Time

	space       SearchSpace
	objective   MetricSpec
	ex          *extractor
	maxParallel int

	mu      sync.Mutex
	records []*JobRecord
	pending []*JobRecord // FIFO dispatch queue, submission order
	stopped bool
}

func (r *Run) Space() SearchSpace { return r.space.clone() }

func (r *Run) Objective() MetricSpec { return r.objective }

// Snapshot copies the current records for read-only callers. It does not
// refresh remote state; use Poll for that.
func (r *Run) Snapshot() []models.TuningJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]models.TuningJob, 0, len(r.records))
	for _, rec := range r.records {
		jobs = append(jobs, models.TuningJob{
			ID:               rec.ID,
			RunID:            r.ID,
			RemoteID:         rec.RemoteID,
			Parameters:       map[string]interface{}(rec.Request.Parameters),
			Status:           rec.Status,
			Metric:           rec.Metric,
			ArtifactLocation: rec.ArtifactLocation,
			StartedAt:        rec.StartedAt,
			CompletedAt:      rec.CompletedAt,
			ErrorMessage:     rec.ErrorMessage,
		})
	}
	return jobs
}

// LogSource yields a job's progress log text. The executor satisfies it
// directly; storage.CachedLogs wraps it with a redis cache.
type LogSource interface {
	GetLogs(ctx context.Context, remoteID string) (string, error)
}

// EventSink receives lifecycle transition events. Publication is
// best-effort; a failed publish never blocks the poll cycle.
type EventSink interface {
	PublishJobTransition(ctx context.Context, event models.JobEvent) error
}

type Orchestrator struct {
	exec   executor.RemoteExecutor
	logs   LogSource
	events EventSink
	repo   *Repository

	retryAttempts int
	retryBackoff  time.Duration
	nowFn         func() time.Time
}

type OrchestratorOptions struct {
	Executor executor.RemoteExecutor
	Logs     LogSource   // optional, defaults to Executor
	Events   EventSink   // optional
	Repo     *Repository // optional persistence

	StatusRetryAttempts int
	StatusRetryBackoff  time.Duration
}

func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("%w: remote executor is required", ErrValidation)
	}
	logs := opts.Logs
	if logs == nil {
		logs = opts.Executor
	}
	attempts := opts.StatusRetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := opts.StatusRetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Orchestrator{
		exec:          opts.Executor,
		logs:          logs,
		events:        opts.Events,
		repo:          opts.Repo,
		retryAttempts: attempts,
		retryBackoff:  backoff,
		nowFn:         func() time.Time { return time.Now().UTC() },
	}, nil
}

type SubmitInput struct {
	Space       SearchSpace
	Objective   MetricSpec
	MaxJobs     int
	MaxParallel int
	Sampler     Sampler // optional, defaults to a random sampler

	StaticConfig  map[string]interface{}
	InputDataURIs map[string]string
	InstanceType  string
	OutputPrefix  string
}

// Submit validates the input, samples MaxJobs distinct requests and begins
// dispatching them under the MaxParallel cap. It returns the run handle
// without waiting for any job to finish.
func (o *Orchestrator) Submit(ctx context.Context, input SubmitInput) (*Run, error) {
	if err := input.Space.Validate(); err != nil {
		return nil, err
	}
	if err := input.Objective.Validate(); err != nil {
		return nil, err
	}
	if input.MaxJobs <= 0 {
		return nil, fmt.Errorf("%w: max jobs must be positive, got %d", ErrValidation, input.MaxJobs)
	}
	if input.MaxParallel <= 0 {
		return nil, fmt.Errorf("%w: max parallel must be positive, got %d", ErrValidation, input.MaxParallel)
	}
	if input.MaxParallel > input.MaxJobs {
		return nil, fmt.Errorf("%w: max parallel %d exceeds max jobs %d", ErrValidation, input.MaxParallel, input.MaxJobs)
	}

	sampler := input.Sampler
	if sampler == nil {
		sampler = NewRandomSampler(time.Now().UnixNano())
	}
	assignments, err := sampler.Sample(input.Space, input.MaxJobs)
	if err != nil {
		return nil, err
	}
	for _, assignment := range assignments {
		for name, value := range assignment {
			spec, ok := input.Space[name]
			if !ok || !spec.Contains(value) {
				return nil, fmt.Errorf("%w: sampled value %v outside domain of %q", ErrValidation, value, name)
			}
		}
	}

	ex, err := input.Objective.compile()
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:          uuid.New(),
		CreatedAt:   o.nowFn(),
		space:       input.Space.clone(),
		objective:   input.Objective,
		ex:          ex,
		maxParallel: input.MaxParallel,
	}
	for _, assignment := range assignments {
		rec := &JobRecord{
			ID:     uuid.New(),
			Status: models.JobQueued,
			Request: JobRequest{
				Parameters:    assignment,
				StaticConfig:  input.StaticConfig,
				InputDataURIs: input.InputDataURIs,
				InstanceType:  input.InstanceType,
				OutputPrefix:  input.OutputPrefix,
			},
		}
		run.records = append(run.records, rec)
		run.pending = append(run.pending, rec)
	}

	if err := o.persistRun(ctx, run); err != nil {
		return nil, err
	}

	run.mu.Lock()
	o.admit(ctx, run)
	run.mu.Unlock()

	logger.Log.WithFields(map[string]interface{}{
		"run_id":       run.ID,
		"max_jobs":     input.MaxJobs,
		"max_parallel": input.MaxParallel,
		"objective":    input.Objective.Name,
	}).Info("Tuning run submitted")

	return run, nil
}

// Poll refreshes every non-terminal record from the remote executor, runs
// one admission pass and returns the aggregate status. Transient executor
// failures are retried with bounded backoff; on exhaustion the record
// keeps its last-known state for this cycle.
func (o *Orchestrator) Poll(ctx context.Context, run *Run) (models.TuningStatus, error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	for _, rec := range run.records {
		if models.IsTerminalStatus(rec.Status) || rec.RemoteID == "" {
			continue
		}
		o.refresh(ctx, run, rec)
	}

	o.admit(ctx, run)

	status := o.statusLocked(run)
	metrics.ObserveJobCounts(status.Queued, status.Running, status.Succeeded, status.Failed, status.Stopped)

	if status.Terminal {
		o.finishRun(ctx, run)
	}

	return status, nil
}

// Wait polls at interval until the run is terminal or timeout elapses.
// Timing out does not cancel remote jobs; the caller may Wait again.
func (o *Orchestrator) Wait(ctx context.Context, run *Run, interval, timeout time.Duration) (models.TuningStatus, error) {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := o.nowFn().Add(timeout)

	for {
		status, err := o.Poll(ctx, run)
		if err != nil {
			return status, err
		}
		if status.Terminal {
			return status, nil
		}
		if !o.nowFn().Before(deadline) {
			return status, fmt.Errorf("%w after %s", ErrWaitTimeout, timeout)
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return status, ctx.Err()
		}
	}
}

// BestResult selects the succeeded record with the extremal objective
// value. Ties break by earliest completion; succeeded-but-unscored jobs
// are ignored. Only valid once the run is terminal.
func (o *Orchestrator) BestResult(run *Run) (*TuningResult, error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	for _, rec := range run.records {
		if !models.IsTerminalStatus(rec.Status) {
			return nil, ErrRunNotTerminal
		}
	}

	var best *JobRecord
	for _, rec := range run.records {
		if rec.Status != models.JobSucceeded || rec.Metric == nil {
			continue
		}
		if best == nil || o.better(run, rec, best) {
			best = rec
		}
	}
	if best == nil {
		return nil, ErrNoSuccessfulJobs
	}

	result := *best
	return &TuningResult{Run: run, Record: result}, nil
}

// Cancel issues best-effort stop requests for all queued and running
// jobs. Not-yet-dispatched records stop locally; dispatched ones stay
// Running until the executor reports them stopped.
func (o *Orchestrator) Cancel(ctx context.Context, run *Run) error {
	run.mu.Lock()
	defer run.mu.Unlock()

	run.stopped = true
	now := o.nowFn()
	for _, rec := range run.pending {
		rec.Status = models.JobStopped
		rec.CompletedAt = &now
		o.recordTransition(ctx, run, rec, models.JobQueued)
	}
	run.pending = nil

	for _, rec := range run.records {
		if rec.Status != models.JobRunning || rec.RemoteID == "" {
			continue
		}
		if err := o.exec.StopJob(ctx, rec.RemoteID); err != nil {
			logger.Log.WithError(err).WithField("remote_id", rec.RemoteID).Warn("Stop request failed")
		}
	}
	return nil
}

// admit dispatches queued requests in submission order while the count of
// running jobs is below the cap. Greedy FIFO: no priority, no preemption.
// Callers hold run.mu.
func (o *Orchestrator) admit(ctx context.Context, run *Run) {
	if run.stopped {
		return
	}

	running := 0
	for _, rec := range run.records {
		if rec.Status == models.JobRunning {
			running++
		}
	}

	for running < run.maxParallel && len(run.pending) > 0 {
		rec := run.pending[0]

		remoteID, err := o.exec.SubmitJob(ctx, executor.JobSpec{
			Name:          fmt.Sprintf("tune-%s-%s", run.ID, rec.ID),
			Hyperparams:   map[string]interface{}(rec.Request.Parameters),
			StaticConfig:  rec.Request.StaticConfig,
			InputDataURIs: rec.Request.InputDataURIs,
			OutputPrefix:  rec.Request.OutputPrefix,
			InstanceType:  rec.Request.InstanceType,
		})
		if err != nil {
			// Leave the queue intact; the next poll cycle retries.
			metrics.IncDispatchError()
			logger.Log.WithError(err).WithField("job_id", rec.ID).Warn("Job dispatch failed")
			return
		}

		run.pending = run.pending[1:]
		now := o.nowFn()
		rec.RemoteID = remoteID
		rec.Status = models.JobRunning
		rec.StartedAt = &now
		running++
		o.recordTransition(ctx, run, rec, models.JobQueued)
	}
}

// refresh pulls one record's remote status, retrying transient failures.
// Callers hold run.mu.
func (o *Orchestrator) refresh(ctx context.Context, run *Run, rec *JobRecord) {
	var detail executor.JobDetail
	err := httpclient.Retry(ctx, o.retryAttempts, o.retryBackoff, func() error {
		var innerErr error
		detail, innerErr = o.exec.GetStatus(ctx, rec.RemoteID)
		return innerErr
	})
	if err != nil {
		// Last-known state wins; the record is stale for this cycle,
		// never dropped or failed locally.
		rec.staleRefreshes++
		metrics.IncStaleRefresh()
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"remote_id": rec.RemoteID,
			"stale":     rec.staleRefreshes,
		}).Warn("Status refresh failed, keeping last-known state")
		return
	}
	rec.staleRefreshes = 0

	next := statusFromState(detail.State)
	if next == rec.Status || !models.IsTerminalStatus(next) {
		// The only local transition is queued -> running at dispatch;
		// everything else waits for a terminal report.
		return
	}

	prev := rec.Status
	now := o.nowFn()
	rec.Status = next
	rec.CompletedAt = &now
	rec.ArtifactLocation = detail.ArtifactLocation
	rec.ErrorMessage = detail.FailureReason

	if next == models.JobSucceeded {
		o.score(ctx, run, rec)
	}

	o.recordTransition(ctx, run, rec, prev)
}

// score extracts the objective value from the job's log. Zero matches
// leaves the record succeeded-but-unscored.
func (o *Orchestrator) score(ctx context.Context, run *Run, rec *JobRecord) {
	var logText string
	err := httpclient.Retry(ctx, o.retryAttempts, o.retryBackoff, func() error {
		var innerErr error
		logText, innerErr = o.logs.GetLogs(ctx, rec.RemoteID)
		return innerErr
	})
	if err != nil {
		logger.Log.WithError(err).WithField("remote_id", rec.RemoteID).Warn("Log fetch failed, job left unscored")
		return
	}

	if value, ok := run.ex.Extract(logText); ok {
		rec.Metric = &value
	} else {
		logger.Log.WithField("remote_id", rec.RemoteID).Warn("No metric match in job log")
	}
}

func (o *Orchestrator) better(run *Run, candidate, incumbent *JobRecord) bool {
	cv, iv := *candidate.Metric, *incumbent.Metric
	switch {
	case cv == iv:
		return earlier(candidate.CompletedAt, incumbent.CompletedAt)
	case run.objective.Goal == Minimize:
		return cv < iv
	default:
		return cv > iv
	}
}

func earlier(a, b *time.Time) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Before(*b)
}

func (o *Orchestrator) statusLocked(run *Run) models.TuningStatus {
	status := models.TuningStatus{RunID: run.ID}
	for _, rec := range run.records {
		switch rec.Status {
		case models.JobQueued:
			status.Queued++
		case models.JobRunning:
			status.Running++
		case models.JobSucceeded:
			status.Succeeded++
		case models.JobFailed:
			status.Failed++
		case models.JobStopped:
			status.Stopped++
		}
	}
	status.Terminal = status.Queued == 0 && status.Running == 0
	return status
}

func (o *Orchestrator) recordTransition(ctx context.Context, run *Run, rec *JobRecord, from string) {
	o.persistJob(ctx, run, rec)

	if o.events == nil {
		return
	}
	event := models.JobEvent{
		RunID:      run.ID,
		JobID:      rec.ID,
		RemoteID:   rec.RemoteID,
		FromStatus: from,
		ToStatus:   rec.Status,
		Metric:     rec.Metric,
		Timestamp:  o.nowFn(),
	}
	if err := o.events.PublishJobTransition(ctx, event); err != nil {
		logger.Log.WithError(err).WithField("job_id", rec.ID).Warn("Event publish failed")
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, run *Run) {
	if o.repo == nil {
		return
	}
	now := o.nowFn()
	status := RunStatusCompleted
	if run.stopped {
		status = RunStatusCancelled
	}
	if err := o.repo.UpdateRunStatus(ctx, run.ID, status, &now); err != nil {
		logger.Log.WithError(err).WithField("run_id", run.ID).Error("Failed to persist run completion")
	}
}

func (o *Orchestrator) persistRun(ctx context.Context, run *Run) error {
	if o.repo == nil {
		return nil
	}

	spaceJSON := make(map[string]interface{}, len(run.space))
	for name, spec := range run.space {
		spaceJSON[name] = map[string]interface{}{
			"kind":   string(spec.Kind),
			"values": spec.Values,
			"low":    spec.Low,
			"high":   spec.High,
		}
	}
	runModel := &RunModel{
		ID:          run.ID,
		Objective:   run.objective.Name,
		Goal:        string(run.objective.Goal),
		Pattern:     run.objective.Pattern,
		Space:       datatypes.JSONMap(spaceJSON),
		MaxJobs:     len(run.records),
		MaxParallel: run.maxParallel,
		Status:      RunStatusRunning,
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.CreatedAt,
	}

	jobs := make([]*JobModel, 0, len(run.records))
	for _, rec := range run.records {
		jobs = append(jobs, &JobModel{
			ID:         rec.ID,
			RunID:      run.ID,
			Parameters: datatypes.JSONMap(rec.Request.Parameters),
			Status:     rec.Status,
			CreatedAt:  run.CreatedAt,
			UpdatedAt:  run.CreatedAt,
		})
	}
	return o.repo.CreateRun(ctx, runModel, jobs)
}

func (o *Orchestrator) persistJob(ctx context.Context, run *Run, rec *JobRecord) {
	if o.repo == nil {
		return
	}
	job := &JobModel{
		ID:               rec.ID,
		RunID:            run.ID,
		RemoteID:         rec.RemoteID,
		Status:           rec.Status,
		Metric:           rec.Metric,
		ArtifactLocation: rec.ArtifactLocation,
		ErrorMessage:     rec.ErrorMessage,
		StartedAt:        rec.StartedAt,
		CompletedAt:      rec.CompletedAt,
	}
	if err := o.repo.UpdateJob(ctx, job); err != nil {
		logger.Log.WithError(err).WithField("job_id", rec.ID).Error("Failed to persist job record")
	}
}

func statusFromState(state executor.JobState) string {
	switch state {
	case executor.StateQueued:
		return models.JobQueued
	case executor.StateRunning:
		return models.JobRunning
	case executor.StateSucceeded:
		return models.JobSucceeded
	case executor.StateFailed:
		return models.JobFailed
	case executor.StateStopped:
		return models.JobStopped
	}
	return models.JobQueued
}
