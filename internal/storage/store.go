// internal/storage/store.go
package storage

import (
	"context"
	"time"

	"geofence-gateway/internal/data"
)

const (
	DefaultPageLimit   = 50
	MaxPageLimit       = 500
	DefaultLatestLimit = 10
)

// Archive is the append-only record of submitted sensor readings.
type Archive interface {
	RecordReading(ctx context.Context, in data.ReadingInput) (*data.SweepReading, error)
	RecordReadings(ctx context.Context, in []data.ReadingInput) (int, error)
	LatestReadings(ctx context.Context, deviceID string, limit int) ([]data.SweepReading, error)
	QueryReadings(ctx context.Context, f data.ReadingFilter, p data.Page) ([]data.SweepReading, int, error)
}

// Ledger is the durable record of movement alerts and their resolution.
type Ledger interface {
	CreateAlert(ctx context.Context, in data.AlertInput) (*data.MovementAlert, error)
	GetAlert(ctx context.Context, id string) (*data.MovementAlert, error)
	ListAlerts(ctx context.Context, f data.AlertFilter, p data.Page) ([]data.MovementAlert, int, error)
	ResolveAlert(ctx context.Context, id string, in data.ResolveInput) (*data.MovementAlert, error)
}

// Aggregator computes read-only rollups over the archive and the ledger.
type Aggregator interface {
	Stats(ctx context.Context, deviceID string, window time.Duration) (*data.Stats, error)
}

// Store is the full persistence surface.
type Store interface {
	Archive
	Ledger
	Aggregator
	Close() error
}

// NormalizePage clamps a page to sane bounds, filling def when no limit was given.
func NormalizePage(p data.Page, def int) data.Page {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
