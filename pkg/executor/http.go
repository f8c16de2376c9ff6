package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hypertune-ai/platform/pkg/common/httpclient"
	"github.com/hypertune-ai/platform/pkg/common/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// HTTPExecutor talks to the hosted training platform's job API.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
}

type HTTPExecutorOptions struct {
	BaseURL      string
	Timeout      time.Duration
	TokenURL     string
	ClientID     string
	ClientSecret string
}

func NewHTTPExecutor(opts HTTPExecutorOptions) (*HTTPExecutor, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("executor base URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	client := httpclient.New(opts.Timeout)
	if opts.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			Scopes:       []string{"jobs:write", "jobs:read"},
		}
		// The oauth2 transport wraps the tuned base client so token
		// refresh reuses its connection pool and timeouts.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = cc.Client(ctx)
		client.Timeout = opts.Timeout
	}

	return &HTTPExecutor{baseURL: opts.BaseURL, client: client}, nil
}

func (e *HTTPExecutor) SubmitJob(ctx context.Context, spec JobSpec) (string, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job spec: %w", err)
	}

	var detail JobDetail
	endpoint := fmt.Sprintf("%s/api/v1/jobs", e.baseURL)
	if err := e.do(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), &detail); err != nil {
		return "", err
	}
	if detail.RemoteID == "" {
		return "", fmt.Errorf("%w: submit returned empty job id", ErrRemote)
	}

	logger.Log.WithFields(map[string]interface{}{
		"remote_id": detail.RemoteID,
		"name":      spec.Name,
	}).Info("Submitted remote training job")

	return detail.RemoteID, nil
}

func (e *HTTPExecutor) GetStatus(ctx context.Context, remoteID string) (JobDetail, error) {
	var detail JobDetail
	endpoint := fmt.Sprintf("%s/api/v1/jobs/%s", e.baseURL, url.PathEscape(remoteID))
	if err := e.do(ctx, http.MethodGet, endpoint, nil, &detail); err != nil {
		return JobDetail{}, err
	}
	return detail, nil
}

func (e *HTTPExecutor) GetLogs(ctx context.Context, remoteID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/jobs/%s/logs", e.baseURL, url.PathEscape(remoteID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", remoteErr("build logs request", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", remoteErr("fetch logs", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrJobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: logs returned status %d", ErrRemote, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", remoteErr("read logs", err)
	}
	return string(body), nil
}

func (e *HTTPExecutor) StopJob(ctx context.Context, remoteID string) error {
	endpoint := fmt.Sprintf("%s/api/v1/jobs/%s/stop", e.baseURL, url.PathEscape(remoteID))
	return e.do(ctx, http.MethodPost, endpoint, nil, nil)
}

func (e *HTTPExecutor) do(ctx context.Context, method, endpoint string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return remoteErr("build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return remoteErr(method+" "+endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrJobNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned status %d", ErrRemote, endpoint, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("executor rejected request (%d): %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return remoteErr("decode response", err)
	}
	return nil
}
