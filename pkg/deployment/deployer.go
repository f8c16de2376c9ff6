package deployment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hypertune-ai/platform/pkg/common/httpclient"
	"github.com/hypertune-ai/platform/pkg/common/logger"
	"github.com/hypertune-ai/platform/pkg/tuning"
)

// ErrDeployment marks deploy-time failures: a missing artifact or a
// platform rejection. Never retried automatically.
var ErrDeployment = errors.New("deployment error")

// Deployment is a running endpoint bound to one job's artifact. Teardown
// is idempotent: releasing twice is a no-op.
type Deployment struct {
	ID          uuid.UUID
	JobID       uuid.UUID
	EndpointRef string
	Instance    InstanceSpec
	CreatedAt   time.Time

	mu         sync.Mutex
	released   bool
	releasedAt *time.Time
}

func (d *Deployment) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Deployer hosts tuning artifacts on the platform's serving tier.
type Deployer struct {
	baseURL string
	catalog Catalog
	client  *http.Client
}

func NewDeployer(baseURL string, catalog Catalog, timeout time.Duration) (*Deployer, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("deployment base URL is required")
	}
	if len(catalog.Instances) == 0 {
		catalog = DefaultCatalog()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Deployer{
		baseURL: strings.TrimRight(baseURL, "/"),
		catalog: catalog,
		client:  httpclient.New(timeout),
	}, nil
}

// Deploy requests the platform to host the winning job's artifact.
func (d *Deployer) Deploy(ctx context.Context, result *tuning.TuningResult, instanceName string) (*Deployment, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: tuning result is required", ErrDeployment)
	}
	if result.Record.ArtifactLocation == "" {
		return nil, fmt.Errorf("%w: job %s has no artifact", ErrDeployment, result.Record.ID)
	}

	instance, err := d.catalog.Resolve(instanceName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeployment, err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"artifact_uri":  result.Record.ArtifactLocation,
		"instance_type": instance.Name,
		"min_replicas":  instance.MinReplicas,
		"max_replicas":  instance.MaxReplicas,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeployment, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/v1/endpoints", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeployment, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeployment, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: platform returned %d: %s", ErrDeployment, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var body struct {
		EndpointRef string `json:"endpoint_ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeployment, err)
	}
	if body.EndpointRef == "" {
		return nil, fmt.Errorf("%w: platform returned empty endpoint ref", ErrDeployment)
	}

	dep := &Deployment{
		ID:          uuid.New(),
		JobID:       result.Record.ID,
		EndpointRef: body.EndpointRef,
		Instance:    instance,
		CreatedAt:   time.Now().UTC(),
	}

	logger.Log.WithFields(map[string]interface{}{
		"endpoint": dep.EndpointRef,
		"instance": instance.Name,
		"artifact": result.Record.ArtifactLocation,
	}).Info("Model deployed")

	return dep, nil
}

// Invoke sends one inference payload to the endpoint and returns the raw
// response body.
func (d *Deployer) Invoke(ctx context.Context, dep *Deployment, payload []byte) ([]byte, error) {
	if dep.Released() {
		return nil, fmt.Errorf("%w: endpoint %s is released", ErrDeployment, dep.EndpointRef)
	}

	endpoint := fmt.Sprintf("%s/api/v1/endpoints/%s/invoke", d.baseURL, url.PathEscape(dep.EndpointRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeployment, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeployment, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: invoke returned %d", ErrDeployment, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Teardown releases the endpoint. Calling it again, or for an endpoint
// the platform already forgot, is a no-op.
func (d *Deployer) Teardown(ctx context.Context, dep *Deployment) error {
	// The lock is held across the DELETE so concurrent teardowns of the
	// same deployment cannot both reach the platform.
	dep.mu.Lock()
	defer dep.mu.Unlock()
	if dep.released {
		return nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/endpoints/%s", d.baseURL, url.PathEscape(dep.EndpointRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("teardown returned status %d", resp.StatusCode)
	}

	now := time.Now().UTC()
	dep.released = true
	dep.releasedAt = &now

	logger.Log.WithField("endpoint", dep.EndpointRef).Info("Endpoint released")
	return nil
}
