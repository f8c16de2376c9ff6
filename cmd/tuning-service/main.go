package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hypertune-ai/platform/pkg/common/config"
	"github.com/hypertune-ai/platform/pkg/common/database"
	"github.com/hypertune-ai/platform/pkg/common/kafka"
	"github.com/hypertune-ai/platform/pkg/common/logger"
	"github.com/hypertune-ai/platform/pkg/common/models"
	"github.com/hypertune-ai/platform/pkg/deployment"
	"github.com/hypertune-ai/platform/pkg/executor"
	"github.com/hypertune-ai/platform/pkg/observability/metrics"
	"github.com/hypertune-ai/platform/pkg/storage"
	"github.com/hypertune-ai/platform/pkg/tuning"
)

type TuningService struct {
	orchestrator *tuning.Orchestrator
	deployer     *deployment.Deployer
	uploader     *storage.Uploader
	cfg          *config.Config

	mu          sync.Mutex
	runs        map[uuid.UUID]*tuning.Run
	deployments map[uuid.UUID]*deployment.Deployment
}

func main() {
	logger.Init()
	metrics.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	repo := tuning.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate tuning tables")
	}

	exec, err := executor.NewHTTPExecutor(executor.HTTPExecutorOptions{
		BaseURL:      cfg.ExecutorBaseURL,
		Timeout:      cfg.ExecutorTimeout,
		TokenURL:     cfg.ExecutorTokenURL,
		ClientID:     cfg.ExecutorClientID,
		ClientSecret: cfg.ExecutorClientSecret,
	})
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to build executor client")
	}

	producer := kafka.NewProducer(cfg.JobEventsTopic)
	defer producer.Close()

	consumer := kafka.NewConsumer(cfg.JobEventsTopic, "")
	defer consumer.Close()

	orchestrator, err := tuning.NewOrchestrator(tuning.OrchestratorOptions{
		Executor:            exec,
		Logs:                storage.NewCachedLogs(exec, database.GetRedis(), cfg.LogCacheTTL),
		Events:              producer,
		Repo:                repo,
		StatusRetryAttempts: cfg.StatusRetryAttempts,
		StatusRetryBackoff:  cfg.StatusRetryBackoff,
	})
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to build orchestrator")
	}

	catalog, err := deployment.LoadCatalog(cfg.InstanceCatalog)
	if err != nil {
		logger.Log.WithError(err).Warn("Instance catalog load failed, using defaults")
	}
	deployer, err := deployment.NewDeployer(cfg.DeployBaseURL, catalog, cfg.ExecutorTimeout)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to build deployer")
	}

	uploader, err := storage.NewUploader(cfg.StorageBaseURL, cfg.StorageBucket, 60*time.Second)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to build uploader")
	}

	service := &TuningService{
		orchestrator: orchestrator,
		deployer:     deployer,
		uploader:     uploader,
		cfg:          cfg,
		runs:         make(map[uuid.UUID]*tuning.Run),
		deployments:  make(map[uuid.UUID]*deployment.Deployment),
	}

	pollCtx, stopPolling := context.WithCancel(context.Background())
	go service.pollLoop(pollCtx)
	go func() {
		if err := consumer.Consume(pollCtx, auditJobEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("Job event follower stopped")
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", handleMetrics).Methods("GET")
	router.HandleFunc("/api/v1/tuning/runs", service.handleSubmit).Methods("POST")
	router.HandleFunc("/api/v1/tuning/runs/{id}/status", service.handleStatus).Methods("GET")
	router.HandleFunc("/api/v1/tuning/runs/{id}/jobs", service.handleJobs).Methods("GET")
	router.HandleFunc("/api/v1/tuning/runs/{id}/best", service.handleBest).Methods("GET")
	router.HandleFunc("/api/v1/tuning/runs/{id}/cancel", service.handleCancel).Methods("POST")
	router.HandleFunc("/api/v1/datasets", service.handleUpload).Methods("POST")
	router.HandleFunc("/api/v1/deployments", service.handleDeploy).Methods("POST")
	router.HandleFunc("/api/v1/deployments/{id}/invoke", service.handleInvoke).Methods("POST")
	router.HandleFunc("/api/v1/deployments/{id}", service.handleTeardown).Methods("DELETE")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Tuning Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Tuning Service...")
	stopPolling()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	database.ClosePostgres()
	database.CloseRedis()

	logger.Log.Info("Tuning Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.WritePrometheus(w)
}

// auditJobEvent keeps a queryable trail of every job transition in the
// service log, including transitions published by other replicas.
func auditJobEvent(ctx context.Context, event models.JobEvent) error {
	logger.Log.WithFields(map[string]interface{}{
		"run_id":      event.RunID,
		"job_id":      event.JobID,
		"remote_id":   event.RemoteID,
		"from_status": event.FromStatus,
		"to_status":   event.ToStatus,
	}).Info("Job transition")
	return nil
}

// pollLoop drives every tracked run forward between client requests.
func (s *TuningService) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			runs := make([]*tuning.Run, 0, len(s.runs))
			for _, run := range s.runs {
				runs = append(runs, run)
			}
			s.mu.Unlock()

			metrics.ObserveActiveRuns(len(runs))
			for _, run := range runs {
				if _, err := s.orchestrator.Poll(ctx, run); err != nil {
					logger.Log.WithError(err).WithField("run_id", run.ID).Warn("Background poll failed")
				}
			}
		}
	}
}

type submitRequest struct {
	Space         tuning.SearchSpace     `json:"space"`
	Objective     tuning.MetricSpec      `json:"objective"`
	MaxJobs       int                    `json:"max_jobs"`
	MaxParallel   int                    `json:"max_parallel"`
	Strategy      string                 `json:"strategy,omitempty"` // random (default) or grid
	GridSteps     int                    `json:"grid_steps,omitempty"`
	StaticConfig  map[string]interface{} `json:"static_config,omitempty"`
	InputDataURIs map[string]string      `json:"input_data_uris,omitempty"`
	InstanceType  string                 `json:"instance_type,omitempty"`
	OutputPrefix  string                 `json:"output_prefix,omitempty"`
}

func (s *TuningService) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, s.cfg.MaxRequestBody)).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	var sampler tuning.Sampler
	switch req.Strategy {
	case "", "random":
		sampler = nil // orchestrator default
	case "grid":
		sampler = tuning.GridSampler{Steps: req.GridSteps}
	default:
		http.Error(w, fmt.Sprintf("unknown strategy %q", req.Strategy), http.StatusBadRequest)
		return
	}

	if req.InstanceType == "" {
		req.InstanceType = s.cfg.DefaultInstance
	}

	run, err := s.orchestrator.Submit(r.Context(), tuning.SubmitInput{
		Space:         req.Space,
		Objective:     req.Objective,
		MaxJobs:       req.MaxJobs,
		MaxParallel:   req.MaxParallel,
		Sampler:       sampler,
		StaticConfig:  req.StaticConfig,
		InputDataURIs: req.InputDataURIs,
		InstanceType:  req.InstanceType,
		OutputPrefix:  req.OutputPrefix,
	})
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, models.TuningRun{
		ID:          run.ID,
		Objective:   req.Objective.Name,
		Goal:        string(req.Objective.Goal),
		MaxJobs:     req.MaxJobs,
		MaxParallel: req.MaxParallel,
		Status:      tuning.RunStatusRunning,
		CreatedAt:   run.CreatedAt,
	})
}

func (s *TuningService) handleStatus(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	status, err := s.orchestrator.Poll(r.Context(), run)
	if err != nil {
		writeError(w, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *TuningService) handleJobs(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run.Snapshot())
}

func (s *TuningService) handleBest(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	result, err := s.orchestrator.BestResult(run)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, tuning.ErrNoSuccessfulJobs) {
			status = http.StatusNotFound
		}
		writeError(w, err, status)
		return
	}
	writeJSON(w, http.StatusOK, models.TuningJob{
		ID:               result.Record.ID,
		RunID:            run.ID,
		RemoteID:         result.Record.RemoteID,
		Parameters:       map[string]interface{}(result.Record.Request.Parameters),
		Status:           result.Record.Status,
		Metric:           result.Record.Metric,
		ArtifactLocation: result.Record.ArtifactLocation,
		StartedAt:        result.Record.StartedAt,
		CompletedAt:      result.Record.CompletedAt,
	})
}

func (s *TuningService) handleCancel(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	if err := s.orchestrator.Cancel(r.Context(), run); err != nil {
		writeError(w, err, http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *TuningService) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LocalPath    string `json:"local_path"`
		RemotePrefix string `json:"remote_prefix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	uri, err := s.uploader.Upload(r.Context(), req.LocalPath, req.RemotePrefix)
	if err != nil {
		writeError(w, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"uri": uri})
}

func (s *TuningService) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID    uuid.UUID `json:"run_id"`
		Instance string    `json:"instance,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	run, ok := s.runs[req.RunID]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	result, err := s.orchestrator.BestResult(run)
	if err != nil {
		writeError(w, err, http.StatusConflict)
		return
	}

	instance := req.Instance
	if instance == "" {
		instance = s.cfg.DefaultInstance
	}
	dep, err := s.deployer.Deploy(r.Context(), result, instance)
	if err != nil {
		writeError(w, err, http.StatusBadGateway)
		return
	}

	s.mu.Lock()
	s.deployments[dep.ID] = dep
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, models.DeploymentRecord{
		ID:          dep.ID,
		JobID:       dep.JobID,
		EndpointRef: dep.EndpointRef,
		Instance:    dep.Instance.Name,
		CreatedAt:   dep.CreatedAt,
	})
}

func (s *TuningService) handleInvoke(w http.ResponseWriter, r *http.Request) {
	dep, ok := s.lookupDeployment(w, r)
	if !ok {
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxRequestBody))
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	response, err := s.deployer.Invoke(r.Context(), dep, payload)
	if err != nil {
		writeError(w, err, http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(response)
}

func (s *TuningService) handleTeardown(w http.ResponseWriter, r *http.Request) {
	dep, ok := s.lookupDeployment(w, r)
	if !ok {
		return
	}
	if err := s.deployer.Teardown(r.Context(), dep); err != nil {
		writeError(w, err, http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *TuningService) lookupRun(w http.ResponseWriter, r *http.Request) (*tuning.Run, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return nil, false
	}
	s.mu.Lock()
	run, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	return run, true
}

func (s *TuningService) lookupDeployment(w http.ResponseWriter, r *http.Request) (*deployment.Deployment, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid deployment id", http.StatusBadRequest)
		return nil, false
	}
	s.mu.Lock()
	dep, ok := s.deployments[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Deployment not found", http.StatusNotFound)
		return nil, false
	}
	return dep, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error, status int) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
