// internal/storage/alerts.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"geofence-gateway/internal/data"
)

const alertColumns = `id, device_id, distance, angle, location, farm_id, severity, message,
	is_resolved, resolved_at, resolved_by, resolution_notes, ts`

// CreateAlert appends a new unresolved alert to the ledger.
func (s *SQLiteStore) CreateAlert(ctx context.Context, in data.AlertInput) (*data.MovementAlert, error) {
	ts := s.stamp(time.Time{})
	loc, err := encodeLocation(in.Location)
	if err != nil {
		return nil, fmt.Errorf("encode location: %w", err)
	}
	if in.Severity == "" {
		in.Severity = data.SeverityHigh
	}
	if in.Message == "" {
		in.Message = data.AlertMessage(in.Angle, in.Distance)
	}

	a := &data.MovementAlert{
		ID:        newID(ts),
		DeviceID:  in.DeviceID,
		Distance:  in.Distance,
		Angle:     in.Angle,
		Location:  in.Location,
		FarmID:    in.FarmID,
		Severity:  in.Severity,
		Message:   in.Message,
		Timestamp: ts,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, device_id, distance, angle, location, farm_id, severity, message, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceID, a.Distance, a.Angle, loc, a.FarmID, string(a.Severity), a.Message, toMillis(ts),
	)
	if err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	return a, nil
}

// GetAlert loads one alert by id.
func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*data.MovementAlert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, data.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAlerts returns one page of alerts, newest first, plus the total matching f.
func (s *SQLiteStore) ListAlerts(ctx context.Context, f data.AlertFilter, p data.Page) ([]data.MovementAlert, int, error) {
	p = NormalizePage(p, DefaultPageLimit)

	var w where
	if f.DeviceID != "" {
		w.add("device_id = ?", f.DeviceID)
	}
	if f.IsResolved != nil {
		w.add("is_resolved = ?", boolInt(*f.IsResolved))
	}
	if f.Severity != "" {
		w.add("severity = ?", string(f.Severity))
	}
	w.timeRange("ts", f.Range)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	args := append(w.args, p.Limit, p.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts`+w.String()+` ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	results := []data.MovementAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// ResolveAlert marks an alert resolved. Resolving twice overwrites the
// resolution fields rather than failing.
func (s *SQLiteStore) ResolveAlert(ctx context.Context, id string, in data.ResolveInput) (*data.MovementAlert, error) {
	if in.ResolvedBy == "" {
		in.ResolvedBy = data.DefaultResolver
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET is_resolved = 1, resolved_at = ?, resolved_by = ?, resolution_notes = ? WHERE id = ?`,
		toMillis(s.now()), in.ResolvedBy, in.ResolutionNotes, id,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("alert %s: %w", id, data.ErrNotFound)
	}
	return s.GetAlert(ctx, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*data.MovementAlert, error) {
	var (
		a          data.MovementAlert
		loc        sql.NullString
		severity   string
		resolved   int
		resolvedAt sql.NullInt64
		ts         int64
	)
	err := row.Scan(&a.ID, &a.DeviceID, &a.Distance, &a.Angle, &loc, &a.FarmID, &severity, &a.Message,
		&resolved, &resolvedAt, &a.ResolvedBy, &a.ResolutionNotes, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	a.Location = decodeLocation(loc)
	a.Severity = data.Severity(severity)
	a.IsResolved = resolved != 0
	if resolvedAt.Valid {
		t := fromMillis(resolvedAt.Int64)
		a.ResolvedAt = &t
	}
	a.Timestamp = fromMillis(ts)
	return &a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
