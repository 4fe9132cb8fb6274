// internal/ingest/pipeline.go

// Package ingest runs the live path: heartbeat, per-angle upsert, breach
// detection and notification. Nothing on this path touches durable storage
// unless auto-ledger is switched on, and even then the write is detached.
package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"geofence-gateway/internal/anomaly"
	"geofence-gateway/internal/connectivity"
	"geofence-gateway/internal/data"
	"geofence-gateway/internal/storage"
	"geofence-gateway/internal/websocket"
)

const ledgerWriteTimeout = 5 * time.Second

// Notifier is satisfied by alerting.Dispatcher.
type Notifier interface {
	Notify(angle int, distance float64) bool
}

// Broadcaster is satisfied by websocket.Hub.
type Broadcaster interface {
	Publish(msgType string, payload any)
}

// AlertRecorder is the part of the ledger auto-ledger writes to.
type AlertRecorder interface {
	CreateAlert(ctx context.Context, in data.AlertInput) (*data.MovementAlert, error)
}

// Deps are the collaborators a Pipeline drives. Hub and Ledger may be nil.
type Deps struct {
	Store    *storage.LiveStore
	Tracker  connectivity.Tracker
	Detector *anomaly.Detector
	Notifier Notifier
	Hub      Broadcaster
	Ledger   AlertRecorder
}

// Options tune the live path.
type Options struct {
	HeartbeatTimeout time.Duration
	DefaultDeviceID  string
	AutoLedger       bool
	AutoSeverity     data.Severity
}

// LiveView is what the dashboard polls.
type LiveView struct {
	Readings    []data.LiveReading `json:"readings"`
	IsConnected bool               `json:"isConnected"`
	Threshold   float64            `json:"threshold"`
}

// Pipeline owns the live state shared by every transport.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	ledgerWrites sync.WaitGroup
}

func NewPipeline(deps Deps, opts Options, logger *zap.Logger) *Pipeline {
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = connectivity.DefaultTimeout
	}
	if opts.AutoSeverity == "" {
		opts.AutoSeverity = data.SeverityHigh
	}
	return &Pipeline{deps: deps, opts: opts, logger: logger, now: time.Now}
}

// Ingest records a live reading and reports whether it breached the zone.
// A reading at an angle the radar cannot produce still counts as a heartbeat
// but is kept out of the live view, which holds one entry per valid angle.
func (p *Pipeline) Ingest(ctx context.Context, in data.LiveInput) bool {
	deviceID := p.deviceID(in.DeviceID)
	observed := p.deps.Tracker.Touch(ctx, deviceID)
	if !data.AngleInRange(in.Angle) {
		p.logger.Debug("Ignoring reading outside sensor range",
			zap.String("device_id", deviceID),
			zap.Int("angle", in.Angle),
		)
		return false
	}

	breached := p.deps.Detector.Check(in.Distance)
	reading := data.LiveReading{
		Angle:      in.Angle,
		Distance:   in.Distance,
		Alert:      breached,
		ObservedAt: observed,
	}
	p.deps.Store.Upsert(reading)

	if p.deps.Hub != nil {
		p.deps.Hub.Publish(websocket.TypeReading, reading)
	}
	if !breached {
		return false
	}

	if p.deps.Hub != nil {
		p.deps.Hub.Publish(websocket.TypeBreach, reading)
	}
	if p.deps.Notifier.Notify(in.Angle, in.Distance) && p.opts.AutoLedger && p.deps.Ledger != nil {
		p.recordBreach(deviceID, in)
	}
	return true
}

// recordBreach appends a ledger alert off the request path.
func (p *Pipeline) recordBreach(deviceID string, in data.LiveInput) {
	p.ledgerWrites.Add(1)
	go func() {
		defer p.ledgerWrites.Done()
		ctx, cancel := context.WithTimeout(context.Background(), ledgerWriteTimeout)
		defer cancel()

		alert := data.AlertInput{
			DeviceID: deviceID,
			Distance: in.Distance,
			Angle:    in.Angle,
			Severity: p.opts.AutoSeverity,
			Message:  data.AlertMessage(in.Angle, in.Distance),
		}
		if _, err := p.deps.Ledger.CreateAlert(ctx, alert); err != nil {
			p.logger.Error("Failed to record breach in ledger",
				zap.String("device_id", deviceID),
				zap.Int("angle", in.Angle),
				zap.Error(err),
			)
		}
	}()
}

// Heartbeat refreshes a device's connectivity without a reading.
func (p *Pipeline) Heartbeat(ctx context.Context, deviceID string) time.Time {
	return p.deps.Tracker.Touch(ctx, p.deviceID(deviceID))
}

// Connected reports whether deviceID has signalled inside the timeout window.
func (p *Pipeline) Connected(ctx context.Context, deviceID string) bool {
	last, ok := p.deps.Tracker.LastHeartbeat(ctx, p.deviceID(deviceID))
	return connectivity.Connected(last, ok, p.now(), p.opts.HeartbeatTimeout)
}

// Snapshot returns all live readings sorted by angle with the device's status.
func (p *Pipeline) Snapshot(ctx context.Context, deviceID string) LiveView {
	return LiveView{
		Readings:    p.deps.Store.Snapshot(),
		IsConnected: p.Connected(ctx, deviceID),
		Threshold:   p.deps.Detector.Threshold(),
	}
}

// Status describes the connectivity of one device.
func (p *Pipeline) Status(ctx context.Context, deviceID string) data.Status {
	deviceID = p.deviceID(deviceID)
	last, ok := p.deps.Tracker.LastHeartbeat(ctx, deviceID)
	st := data.Status{
		DeviceID:    deviceID,
		IsConnected: connectivity.Connected(last, ok, p.now(), p.opts.HeartbeatTimeout),
		Status:      "disconnected",
	}
	if ok {
		st.LastHeartbeat = &last
	}
	if st.IsConnected {
		st.Status = "connected"
	}
	return st
}

// Wait blocks until detached ledger writes finish or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.ledgerWrites.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) deviceID(id string) string {
	if id == "" {
		return p.opts.DefaultDeviceID
	}
	return id
}
