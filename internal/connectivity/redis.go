// internal/connectivity/redis.go
package connectivity

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	keyPrefix = "geofence:heartbeat:"
	// heartbeats are kept long enough for status pages to show a last-seen time
	heartbeatRetention = 24 * time.Hour

	DefaultOpTimeout = 200 * time.Millisecond
)

// RedisTracker shares heartbeats between gateway instances. Writes go to a
// local tracker first and reach Redis in the background; reads take the newer
// of the two and fall back to the local value when Redis fails. Every Redis
// call is bounded by opTimeout, so a hung server costs the live path at most
// one timeout on reads and nothing on writes.
type RedisTracker struct {
	client    *redis.Client
	local     *MemoryTracker
	logger    *zap.Logger
	now       Clock
	opTimeout time.Duration
}

func NewRedisTracker(client *redis.Client, logger *zap.Logger, now Clock, opTimeout time.Duration) *RedisTracker {
	if now == nil {
		now = time.Now
	}
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &RedisTracker{
		client:    client,
		local:     NewMemoryTracker(now),
		logger:    logger,
		now:       now,
		opTimeout: opTimeout,
	}
}

func (t *RedisTracker) Touch(ctx context.Context, deviceID string) time.Time {
	ts := t.local.Touch(ctx, deviceID)
	val := strconv.FormatInt(ts.UnixMilli(), 10)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.opTimeout)
		defer cancel()
		if err := t.client.Set(ctx, keyPrefix+deviceID, val, heartbeatRetention).Err(); err != nil {
			t.logger.Warn("Failed to record heartbeat",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}()
	return ts
}

func (t *RedisTracker) LastHeartbeat(ctx context.Context, deviceID string) (time.Time, bool) {
	local, localOK := t.local.LastHeartbeat(ctx, deviceID)
	shared, sharedOK := t.remote(ctx, deviceID)
	switch {
	case localOK && sharedOK:
		if shared.After(local) {
			return shared, true
		}
		return local, true
	case sharedOK:
		return shared, true
	default:
		return local, localOK
	}
}

func (t *RedisTracker) remote(ctx context.Context, deviceID string) (time.Time, bool) {
	ctx, cancel := context.WithTimeout(ctx, t.opTimeout)
	defer cancel()

	val, err := t.client.Get(ctx, keyPrefix+deviceID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			t.logger.Warn("Failed to read heartbeat",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		t.logger.Warn("Malformed heartbeat value",
			zap.String("device_id", deviceID),
			zap.String("value", val),
		)
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
