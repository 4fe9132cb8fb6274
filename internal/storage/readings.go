// internal/storage/readings.go
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"geofence-gateway/internal/data"
)

const readingColumns = `id, device_id, angle, distance, location, farm_id, ts`

// RecordReading appends one reading to the archive.
func (s *SQLiteStore) RecordReading(ctx context.Context, in data.ReadingInput) (*data.SweepReading, error) {
	r, err := s.insertReading(ctx, s.db, in)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RecordReadings appends a batch in one transaction. Nothing is written if any
// row fails.
func (s *SQLiteStore) RecordReadings(ctx context.Context, in []data.ReadingInput) (int, error) {
	if len(in) == 0 {
		return 0, data.ErrEmptyBatch
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i, r := range in {
		if _, err := s.insertReading(ctx, tx, r); err != nil {
			return 0, fmt.Errorf("reading %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(in), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) insertReading(ctx context.Context, db execer, in data.ReadingInput) (*data.SweepReading, error) {
	ts := s.stamp(in.Timestamp)
	loc, err := encodeLocation(in.Location)
	if err != nil {
		return nil, fmt.Errorf("encode location: %w", err)
	}
	r := &data.SweepReading{
		ID:        newID(ts),
		DeviceID:  in.DeviceID,
		Angle:     in.Angle,
		Distance:  in.Distance,
		Location:  in.Location,
		FarmID:    in.FarmID,
		Timestamp: ts,
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO readings (`+readingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DeviceID, r.Angle, r.Distance, loc, r.FarmID, toMillis(ts),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reading: %w", err)
	}
	return r, nil
}

// LatestReadings returns the newest readings for a device, most recent first.
func (s *SQLiteStore) LatestReadings(ctx context.Context, deviceID string, limit int) ([]data.SweepReading, error) {
	p := NormalizePage(data.Page{Limit: limit}, DefaultLatestLimit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM readings WHERE device_id = ? ORDER BY ts DESC, id DESC LIMIT ?`,
		deviceID, p.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	return scanReadings(rows)
}

// QueryReadings returns one page of readings plus the total matching the filter.
func (s *SQLiteStore) QueryReadings(ctx context.Context, f data.ReadingFilter, p data.Page) ([]data.SweepReading, int, error) {
	p = NormalizePage(p, DefaultPageLimit)

	var w where
	if f.DeviceID != "" {
		w.add("device_id = ?", f.DeviceID)
	}
	w.timeRange("ts", f.Range)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count readings: %w", err)
	}

	args := append(w.args, p.Limit, p.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM readings`+w.String()+` ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query readings: %w", err)
	}
	results, err := scanReadings(rows)
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func scanReadings(rows *sql.Rows) ([]data.SweepReading, error) {
	defer rows.Close()
	results := []data.SweepReading{}
	for rows.Next() {
		var (
			r   data.SweepReading
			loc sql.NullString
			ts  int64
		)
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Angle, &r.Distance, &loc, &r.FarmID, &ts); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.Location = decodeLocation(loc)
		r.Timestamp = fromMillis(ts)
		results = append(results, r)
	}
	return results, rows.Err()
}
