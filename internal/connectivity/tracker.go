// internal/connectivity/tracker.go

// Package connectivity derives device online status from heartbeats.
package connectivity

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout is how long a device counts as connected after its last signal.
const DefaultTimeout = 15 * time.Second

// Tracker records the last signal seen from each device.
type Tracker interface {
	// Touch records now as the device's last heartbeat and returns it.
	Touch(ctx context.Context, deviceID string) time.Time
	// LastHeartbeat returns the last recorded heartbeat, if any.
	LastHeartbeat(ctx context.Context, deviceID string) (time.Time, bool)
}

// Clock returns the current time. Swapped out in tests.
type Clock func() time.Time

// Connected reports whether a heartbeat at last is still inside window at now.
func Connected(last time.Time, ok bool, now time.Time, window time.Duration) bool {
	return ok && now.Sub(last) < window
}

// MemoryTracker keeps heartbeats in process memory. State resets on restart
// and is not shared between instances.
type MemoryTracker struct {
	mu    sync.RWMutex
	beats map[string]time.Time
	now   Clock
}

func NewMemoryTracker(now Clock) *MemoryTracker {
	if now == nil {
		now = time.Now
	}
	return &MemoryTracker{
		beats: make(map[string]time.Time),
		now:   now,
	}
}

func (t *MemoryTracker) Touch(_ context.Context, deviceID string) time.Time {
	ts := t.now()
	t.mu.Lock()
	t.beats[deviceID] = ts
	t.mu.Unlock()
	return ts
}

func (t *MemoryTracker) LastHeartbeat(_ context.Context, deviceID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.beats[deviceID]
	return ts, ok
}
