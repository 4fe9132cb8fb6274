// internal/storage/sqlite.go
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"geofence-gateway/internal/data"
)

// SQLiteStore implements Store on a single SQLite file. Locations are kept as
// JSON documents; timestamps as unix milliseconds.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer; every query below drains its rows before issuing the next
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id        TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		angle     INTEGER NOT NULL,
		distance  REAL NOT NULL,
		location  TEXT,
		farm_id   TEXT NOT NULL DEFAULT '',
		ts        INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_readings_device_ts ON readings(device_id, ts DESC);

	CREATE TABLE IF NOT EXISTS alerts (
		id               TEXT PRIMARY KEY,
		device_id        TEXT NOT NULL,
		distance         REAL NOT NULL,
		angle            INTEGER NOT NULL,
		location         TEXT,
		farm_id          TEXT NOT NULL DEFAULT '',
		severity         TEXT NOT NULL DEFAULT 'high',
		message          TEXT NOT NULL,
		is_resolved      INTEGER NOT NULL DEFAULT 0,
		resolved_at      INTEGER,
		resolved_by      TEXT NOT NULL DEFAULT '',
		resolution_notes TEXT NOT NULL DEFAULT '',
		ts               INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_device_ts ON alerts(device_id, ts DESC);
	CREATE INDEX IF NOT EXISTS idx_alerts_resolved ON alerts(is_resolved);
	`
	_, err := s.db.Exec(schema)
	return err
}

func newID(ts time.Time) string {
	return ulid.MustNew(ulid.Timestamp(ts), ulid.DefaultEntropy()).String()
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// stamp returns ts, or the store clock when ts is zero, at millisecond precision.
func (s *SQLiteStore) stamp(ts time.Time) time.Time {
	if ts.IsZero() {
		ts = s.now()
	}
	return fromMillis(toMillis(ts))
}

func encodeLocation(loc *data.Location) (sql.NullString, error) {
	if loc == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeLocation(ns sql.NullString) *data.Location {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var loc data.Location
	if err := json.Unmarshal([]byte(ns.String), &loc); err != nil {
		return nil
	}
	return &loc
}

// where builds a conjunctive WHERE clause.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) timeRange(col string, r data.TimeRange) {
	if !r.Start.IsZero() {
		w.add(col+" >= ?", toMillis(r.Start))
	}
	if !r.End.IsZero() {
		w.add(col+" <= ?", toMillis(r.End))
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
