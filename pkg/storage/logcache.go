package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hypertune-ai/platform/pkg/common/logger"
	"github.com/hypertune-ai/platform/pkg/tuning"
	"github.com/redis/go-redis/v9"
)

// CachedLogs fronts a log source with a redis cache so repeated metric
// extraction for the same job does not refetch from the platform. Cache
// failures fall through to the backend.
type CachedLogs struct {
	Backend tuning.LogSource
	Client  *redis.Client
	TTL     time.Duration
}

func NewCachedLogs(backend tuning.LogSource, client *redis.Client, ttl time.Duration) *CachedLogs {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLogs{Backend: backend, Client: client, TTL: ttl}
}

func (c *CachedLogs) GetLogs(ctx context.Context, remoteID string) (string, error) {
	key := fmt.Sprintf("joblogs:%s", remoteID)

	if c.Client != nil {
		cached, err := c.Client.Get(ctx, key).Result()
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redis.Nil) {
			logger.Log.WithError(err).WithField("key", key).Debug("Log cache read failed")
		}
	}

	logText, err := c.Backend.GetLogs(ctx, remoteID)
	if err != nil {
		return "", err
	}

	if c.Client != nil {
		if err := c.Client.Set(ctx, key, logText, c.TTL).Err(); err != nil {
			logger.Log.WithError(err).WithField("key", key).Debug("Log cache write failed")
		}
	}
	return logText, nil
}
