package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hypertune-ai/platform/pkg/common/httpclient"
	"github.com/hypertune-ai/platform/pkg/common/logger"
)

// Uploader stages local datasets to the platform's object storage before
// job submission. The orchestrator only ever sees the returned URI.
type Uploader struct {
	baseURL string
	bucket  string
	client  *http.Client
}

func NewUploader(baseURL, bucket string, timeout time.Duration) (*Uploader, error) {
	if baseURL == "" || bucket == "" {
		return nil, fmt.Errorf("storage base URL and bucket are required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Uploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  bucket,
		client:  httpclient.New(timeout),
	}, nil
}

// Upload streams one local file under remotePrefix and returns its URI.
func (u *Uploader) Upload(ctx context.Context, localPath, remotePrefix string) (string, error) {
	file, err := os.Open(filepath.Clean(localPath))
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	key := objectKey(remotePrefix, filepath.Base(localPath))
	endpoint := fmt.Sprintf("%s/api/v1/buckets/%s/objects/%s", u.baseURL, url.PathEscape(u.bucket), key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, file)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload returned status %d", resp.StatusCode)
	}

	uri := fmt.Sprintf("hts://%s/%s", u.bucket, key)
	logger.Log.WithFields(map[string]interface{}{
		"local": localPath,
		"uri":   uri,
		"bytes": info.Size(),
	}).Info("Dataset staged to object storage")

	return uri, nil
}

// UploadDir stages every regular file under dir and returns name -> URI.
func (u *Uploader) UploadDir(ctx context.Context, dir, remotePrefix string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	uris := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		uri, err := u.Upload(ctx, filepath.Join(dir, entry.Name()), remotePrefix)
		if err != nil {
			return nil, err
		}
		uris[entry.Name()] = uri
	}
	return uris, nil
}

func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
