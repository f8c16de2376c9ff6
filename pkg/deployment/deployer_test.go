package deployment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hypertune-ai/platform/pkg/common/logger"
	"github.com/hypertune-ai/platform/pkg/tuning"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func scoredResult(artifact string) *tuning.TuningResult {
	metric := 0.84
	return &tuning.TuningResult{
		Record: tuning.JobRecord{
			ID:               uuid.New(),
			Status:           "succeeded",
			Metric:           &metric,
			ArtifactLocation: artifact,
		},
	}
}

func newServingStub(t *testing.T, deletes *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/endpoints", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req["instance_type"] == "ml.gpu.xlarge" {
			http.Error(w, "no gpu capacity", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"endpoint_ref": "ep-123"})
	})
	mux.HandleFunc("/api/v1/endpoints/ep-123/invoke", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prediction":"cat"}`))
	})
	mux.HandleFunc("/api/v1/endpoints/ep-123", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			if deletes != nil {
				deletes.Add(1)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.NotFound(w, r)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestDeployInvokeTeardown(t *testing.T) {
	var deletes atomic.Int64
	server := newServingStub(t, &deletes)
	deployer, err := NewDeployer(server.URL, DefaultCatalog(), 5*time.Second)
	if err != nil {
		t.Fatalf("failed to build deployer: %v", err)
	}
	ctx := context.Background()

	dep, err := deployer.Deploy(ctx, scoredResult("hts://artifacts/job-1"), "ml.inference.accel")
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	if dep.EndpointRef != "ep-123" {
		t.Fatalf("unexpected endpoint ref %s", dep.EndpointRef)
	}

	response, err := deployer.Invoke(ctx, dep, []byte(`{"image":"..."}`))
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if string(response) != `{"prediction":"cat"}` {
		t.Fatalf("unexpected response %s", response)
	}

	if err := deployer.Teardown(ctx, dep); err != nil {
		t.Fatalf("teardown failed: %v", err)
	}
	if !dep.Released() {
		t.Fatal("expected deployment marked released")
	}

	// Second teardown is a no-op, not an error and not another delete.
	if err := deployer.Teardown(ctx, dep); err != nil {
		t.Fatalf("repeated teardown must not fail: %v", err)
	}
	if deletes.Load() != 1 {
		t.Fatalf("expected exactly one delete call, got %d", deletes.Load())
	}

	if _, err := deployer.Invoke(ctx, dep, nil); !errors.Is(err, ErrDeployment) {
		t.Fatalf("expected invoke on released endpoint to fail, got %v", err)
	}
}

func TestTeardownConcurrentCallsDeleteOnce(t *testing.T) {
	var deletes atomic.Int64
	server := newServingStub(t, &deletes)
	deployer, err := NewDeployer(server.URL, DefaultCatalog(), 5*time.Second)
	if err != nil {
		t.Fatalf("failed to build deployer: %v", err)
	}
	ctx := context.Background()

	dep, err := deployer.Deploy(ctx, scoredResult("hts://artifacts/job-1"), "ml.inference.accel")
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}

	errs := make(chan error, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- deployer.Teardown(ctx, dep)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent teardown failed: %v", err)
		}
	}
	if deletes.Load() != 1 {
		t.Fatalf("expected exactly one delete call, got %d", deletes.Load())
	}
	if !dep.Released() {
		t.Fatal("expected deployment marked released")
	}
}

func TestDeployMissingArtifact(t *testing.T) {
	server := newServingStub(t, nil)
	deployer, err := NewDeployer(server.URL, DefaultCatalog(), 5*time.Second)
	if err != nil {
		t.Fatalf("failed to build deployer: %v", err)
	}

	if _, err := deployer.Deploy(context.Background(), scoredResult(""), "ml.standard.large"); !errors.Is(err, ErrDeployment) {
		t.Fatalf("expected ErrDeployment for missing artifact, got %v", err)
	}
}

func TestDeployPlatformRejection(t *testing.T) {
	server := newServingStub(t, nil)
	deployer, err := NewDeployer(server.URL, DefaultCatalog(), 5*time.Second)
	if err != nil {
		t.Fatalf("failed to build deployer: %v", err)
	}

	if _, err := deployer.Deploy(context.Background(), scoredResult("hts://artifacts/job-1"), "ml.gpu.xlarge"); !errors.Is(err, ErrDeployment) {
		t.Fatalf("expected ErrDeployment for capacity rejection, got %v", err)
	}
}

func TestDeployUnknownInstance(t *testing.T) {
	server := newServingStub(t, nil)
	deployer, err := NewDeployer(server.URL, DefaultCatalog(), 5*time.Second)
	if err != nil {
		t.Fatalf("failed to build deployer: %v", err)
	}

	if _, err := deployer.Deploy(context.Background(), scoredResult("hts://artifacts/job-1"), "ml.imaginary"); !errors.Is(err, ErrDeployment) {
		t.Fatalf("expected ErrDeployment for unknown instance, got %v", err)
	}
}
