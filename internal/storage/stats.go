// internal/storage/stats.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"geofence-gateway/internal/data"
)

// DefaultStatsWindow is the lookback used when no window is given.
const DefaultStatsWindow = 24 * time.Hour

// Stats returns counts and the nearest detection for a device inside window.
func (s *SQLiteStore) Stats(ctx context.Context, deviceID string, window time.Duration) (*data.Stats, error) {
	if window <= 0 {
		window = DefaultStatsWindow
	}
	since := s.now().Add(-window)
	st := &data.Stats{
		DeviceID:    deviceID,
		WindowHours: int(window / time.Hour),
		Since:       fromMillis(toMillis(since)),
	}
	sinceMs := toMillis(since)

	counts := []struct {
		dst   *int
		query string
	}{
		{&st.TotalReadings, `SELECT COUNT(*) FROM readings WHERE device_id = ? AND ts >= ?`},
		{&st.TotalAlerts, `SELECT COUNT(*) FROM alerts WHERE device_id = ? AND ts >= ?`},
		{&st.UnresolvedAlerts, `SELECT COUNT(*) FROM alerts WHERE device_id = ? AND ts >= ? AND is_resolved = 0`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, deviceID, sinceMs).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats count: %w", err)
		}
	}

	var (
		d  data.Detection
		ts int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT distance, angle, ts FROM readings
		 WHERE device_id = ? AND ts >= ?
		 ORDER BY distance ASC, ts DESC LIMIT 1`,
		deviceID, sinceMs,
	).Scan(&d.Distance, &d.Angle, &ts)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("stats closest: %w", err)
	default:
		d.Timestamp = fromMillis(ts)
		st.ClosestDetection = &d
	}
	return st, nil
}
