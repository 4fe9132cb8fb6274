// internal/alerting/alerter.go
package alerting

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultCooldown    = 60 * time.Second
	DefaultSendTimeout = 10 * time.Second
)

// Sender delivers a text message to an external messaging gateway.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Policy is the delivery contract: at most one message per Cooldown across all
// angles and devices, each send bounded by SendTimeout, never retried.
type Policy struct {
	Cooldown    time.Duration
	SendTimeout time.Duration
}

// Dispatcher sends breach notifications best-effort. Failures are logged and
// dropped; the caller is never blocked on delivery.
type Dispatcher struct {
	sender Sender
	policy Policy
	logger *zap.Logger
	now    func() time.Time

	lastSent atomic.Int64 // unix nanos, 0 means never
	inflight sync.WaitGroup
}

// NewDispatcher returns a dispatcher. A nil sender disables delivery entirely.
func NewDispatcher(sender Sender, policy Policy, logger *zap.Logger) *Dispatcher {
	if policy.Cooldown <= 0 {
		policy.Cooldown = DefaultCooldown
	}
	if policy.SendTimeout <= 0 {
		policy.SendTimeout = DefaultSendTimeout
	}
	return &Dispatcher{
		sender: sender,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Enabled reports whether a gateway is configured.
func (d *Dispatcher) Enabled() bool {
	return d.sender != nil
}

// Notify starts a delivery for a breach unless the cooldown is still running.
// It returns true when this call claimed the cooldown window and a send was started.
func (d *Dispatcher) Notify(angle int, distance float64) bool {
	if d.sender == nil {
		return false
	}
	if !d.claim() {
		return false
	}

	text := FormatBreach(angle, distance)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.policy.SendTimeout)
		defer cancel()

		if err := d.sender.Send(ctx, text); err != nil {
			d.logger.Warn("Breach notification dropped",
				zap.Int("angle", angle),
				zap.Float64("distance", distance),
				zap.Error(err),
			)
			return
		}
		d.logger.Info("Breach notification sent",
			zap.Int("angle", angle),
			zap.Float64("distance", distance),
		)
	}()
	return true
}

// claim moves the cooldown clock forward before any send starts, so two
// concurrent breaches cannot both pass the check.
func (d *Dispatcher) claim() bool {
	now := d.now().UnixNano()
	for {
		last := d.lastSent.Load()
		if last != 0 && now-last < int64(d.policy.Cooldown) {
			return false
		}
		if d.lastSent.CompareAndSwap(last, now) {
			return true
		}
	}
}

// Wait blocks until in-flight sends finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FormatBreach renders the outbound message text.
func FormatBreach(angle int, distance float64) string {
	return fmt.Sprintf("Geofence alert: object detected %.1f cm from the sensor at angle %d°", distance, angle)
}
