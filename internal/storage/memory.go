// internal/storage/memory.go
package storage

import (
	"sort"
	"sync"

	"geofence-gateway/internal/data"
)

// LiveStore holds the most recent reading per sensor angle. It never grows past
// one entry per angle, and stale angles linger until the sweep overwrites them.
type LiveStore struct {
	mu       sync.RWMutex
	readings map[int]data.LiveReading
}

func NewLiveStore() *LiveStore {
	return &LiveStore{
		readings: make(map[int]data.LiveReading),
	}
}

// Upsert replaces the reading at r.Angle unconditionally.
func (s *LiveStore) Upsert(r data.LiveReading) {
	s.mu.Lock()
	s.readings[r.Angle] = r
	s.mu.Unlock()
}

// Snapshot returns a copy of all readings sorted by angle ascending.
func (s *LiveStore) Snapshot() []data.LiveReading {
	s.mu.RLock()
	result := make([]data.LiveReading, 0, len(s.readings))
	for _, r := range s.readings {
		result = append(result, r)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Angle < result[j].Angle })
	return result
}

// Len returns the number of angles currently held.
func (s *LiveStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}
