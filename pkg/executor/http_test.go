package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/hypertune-ai/platform/pkg/common/httpclient"
	"github.com/hypertune-ai/platform/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func newPlatformStub(t *testing.T) (*httptest.Server, map[string]*JobDetail) {
	t.Helper()
	jobs := make(map[string]*JobDetail)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		var spec JobSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			http.Error(w, "bad spec", http.StatusBadRequest)
			return
		}
		if spec.Name == "" {
			http.Error(w, "name required", http.StatusUnprocessableEntity)
			return
		}
		id := "job-" + spec.Name
		jobs[id] = &JobDetail{RemoteID: id, State: StateQueued}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(jobs[id])
	})
	mux.HandleFunc("/api/v1/jobs/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/api/v1/jobs/"):]
		switch {
		case len(id) > 5 && id[len(id)-5:] == "/logs":
			id = id[:len(id)-5]
			if _, ok := jobs[id]; !ok {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte("epoch 1 val_accuracy: 0.7\n"))
		case len(id) > 5 && id[len(id)-5:] == "/stop":
			id = id[:len(id)-5]
			job, ok := jobs[id]
			if !ok {
				http.NotFound(w, r)
				return
			}
			job.State = StateStopped
			w.WriteHeader(http.StatusAccepted)
		default:
			job, ok := jobs[id]
			if !ok {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(job)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, jobs
}

func TestHTTPExecutorLifecycle(t *testing.T) {
	server, jobs := newPlatformStub(t)
	exec, err := NewHTTPExecutor(HTTPExecutorOptions{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}
	ctx := context.Background()

	remoteID, err := exec.SubmitJob(ctx, JobSpec{
		Name:        "trial-1",
		Hyperparams: map[string]interface{}{"learning-rate": 0.05},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if remoteID != "job-trial-1" {
		t.Fatalf("unexpected remote id %s", remoteID)
	}

	detail, err := exec.GetStatus(ctx, remoteID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if detail.State != StateQueued {
		t.Fatalf("expected queued, got %s", detail.State)
	}

	logText, err := exec.GetLogs(ctx, remoteID)
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if logText == "" {
		t.Fatal("expected log text")
	}

	if err := exec.StopJob(ctx, remoteID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if jobs[remoteID].State != StateStopped {
		t.Fatalf("expected platform to record stop, got %s", jobs[remoteID].State)
	}
}

func TestHTTPExecutorNotFound(t *testing.T) {
	server, _ := newPlatformStub(t)
	exec, err := NewHTTPExecutor(HTTPExecutorOptions{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}

	if _, err := exec.GetStatus(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestHTTPExecutorServerErrorIsRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	exec, err := NewHTTPExecutor(HTTPExecutorOptions{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}

	_, err = exec.GetStatus(context.Background(), "any")
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	if !httpclient.IsRetriable(err) {
		t.Fatalf("5xx failures must be retriable: %v", err)
	}
}

func TestHTTPExecutorRejectionIsNotRemote(t *testing.T) {
	server, _ := newPlatformStub(t)
	exec, err := NewHTTPExecutor(HTTPExecutorOptions{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}

	_, err = exec.SubmitJob(context.Background(), JobSpec{})
	if err == nil {
		t.Fatal("expected rejection for empty job name")
	}
	if errors.Is(err, ErrRemote) {
		t.Fatalf("4xx rejection must not look transient: %v", err)
	}
	if httpclient.IsRetriable(err) {
		t.Fatalf("4xx rejection must not be retried: %v", err)
	}
}
