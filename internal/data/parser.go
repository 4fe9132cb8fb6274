// internal/data/parser.go
package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	MinAngle = 0
	MaxAngle = 180

	// DefaultResolver is recorded when an alert is resolved anonymously.
	DefaultResolver = "system"
)

// Defaults fills fields a device or operator may leave out.
type Defaults struct {
	DeviceID string
	Severity Severity
}

// LiveInput is a reading pushed onto the live path.
type LiveInput struct {
	Angle    int
	Distance float64
	DeviceID string
}

// ReadingInput is a reading submitted for archiving.
type ReadingInput struct {
	DeviceID  string
	Angle     int
	Distance  float64
	Location  *Location
	FarmID    string
	Timestamp time.Time
}

// AlertInput is a ledger entry submitted by a device or an operator.
type AlertInput struct {
	DeviceID string
	Distance float64
	Angle    int
	Location *Location
	FarmID   string
	Severity Severity
	Message  string
}

// ResolveInput closes an alert.
type ResolveInput struct {
	ResolvedBy      string
	ResolutionNotes string
}

// Parser decodes request payloads and applies the configured defaults.
type Parser struct {
	Defaults Defaults
}

func NewParser(d Defaults) *Parser {
	return &Parser{Defaults: d}
}

type rawReading struct {
	DeviceID  string    `json:"deviceId"`
	Angle     *float64  `json:"angle"`
	Distance  *float64  `json:"distance"`
	Location  *Location `json:"location"`
	FarmID    string    `json:"farmId"`
	Timestamp string    `json:"timestamp"`
}

// ParseLive decodes a live ingest body. Angle range is not checked here; an
// angle outside [MinAngle, MaxAngle] comes back as MinAngle-1 or MaxAngle+1.
func (p *Parser) ParseLive(body []byte) (LiveInput, error) {
	var raw rawReading
	if err := decode(body, &raw); err != nil {
		return LiveInput{}, err
	}
	if raw.Angle == nil || raw.Distance == nil {
		return LiveInput{}, fmt.Errorf("%w: angle and distance are required", ErrValidation)
	}
	return LiveInput{
		Angle:    roundAngle(*raw.Angle),
		Distance: *raw.Distance,
		DeviceID: p.deviceID(raw.DeviceID),
	}, nil
}

// ParseHeartbeat returns the device id of a heartbeat body. An empty body is allowed.
func (p *Parser) ParseHeartbeat(body []byte) (string, error) {
	var raw struct {
		DeviceID string `json:"deviceId"`
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := decode(body, &raw); err != nil {
			return "", err
		}
	}
	return p.deviceID(raw.DeviceID), nil
}

// ParseReading decodes a single archive submission.
func (p *Parser) ParseReading(body []byte) (ReadingInput, error) {
	var raw rawReading
	if err := decode(body, &raw); err != nil {
		return ReadingInput{}, err
	}
	return p.reading(raw, "", nil)
}

// ParseBulk decodes a bulk archive submission. The readings field must be a
// non-empty array, and one invalid item rejects the whole batch.
func (p *Parser) ParseBulk(body []byte) ([]ReadingInput, error) {
	var raw struct {
		Readings json.RawMessage `json:"readings"`
		DeviceID string          `json:"deviceId"`
		Location *Location       `json:"location"`
	}
	if err := decode(body, &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw.Readings)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrEmptyBatch
	}
	var items []rawReading
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	out := make([]ReadingInput, 0, len(items))
	for i, item := range items {
		in, err := p.reading(item, raw.DeviceID, raw.Location)
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
		out = append(out, in)
	}
	return out, nil
}

// ParseAlert decodes a ledger submission.
func (p *Parser) ParseAlert(body []byte) (AlertInput, error) {
	var raw struct {
		rawReading
		Severity string `json:"severity"`
		Message  string `json:"message"`
	}
	if err := decode(body, &raw); err != nil {
		return AlertInput{}, err
	}
	if raw.Angle == nil || raw.Distance == nil {
		return AlertInput{}, fmt.Errorf("%w: distance and angle are required", ErrValidation)
	}
	angle, err := checkRange(*raw.Angle, *raw.Distance)
	if err != nil {
		return AlertInput{}, err
	}

	sev := p.Defaults.Severity
	if raw.Severity != "" {
		sev = Severity(strings.ToLower(raw.Severity))
	}
	if !sev.Valid() {
		return AlertInput{}, fmt.Errorf("%w: unknown severity %q", ErrValidation, raw.Severity)
	}

	in := AlertInput{
		DeviceID: p.deviceID(raw.DeviceID),
		Distance: *raw.Distance,
		Angle:    angle,
		Location: raw.Location,
		FarmID:   raw.FarmID,
		Severity: sev,
		Message:  raw.Message,
	}
	if in.Message == "" {
		in.Message = AlertMessage(in.Angle, in.Distance)
	}
	return in, nil
}

// ParseResolve decodes a resolve body. Missing fields take their defaults.
func (p *Parser) ParseResolve(body []byte) (ResolveInput, error) {
	var raw struct {
		ResolvedBy      string `json:"resolvedBy"`
		ResolutionNotes string `json:"resolutionNotes"`
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := decode(body, &raw); err != nil {
			return ResolveInput{}, err
		}
	}
	if raw.ResolvedBy == "" {
		raw.ResolvedBy = DefaultResolver
	}
	return ResolveInput{ResolvedBy: raw.ResolvedBy, ResolutionNotes: raw.ResolutionNotes}, nil
}

// ParseDate accepts RFC3339 or a plain YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrValidation, s)
}

// AlertMessage is the text stored when an alert is submitted without one.
func AlertMessage(angle int, distance float64) string {
	return fmt.Sprintf("Movement detected at %d° (%.1f cm)", angle, distance)
}

func (p *Parser) reading(raw rawReading, batchDevice string, batchLoc *Location) (ReadingInput, error) {
	if raw.Angle == nil || raw.Distance == nil {
		return ReadingInput{}, fmt.Errorf("%w: angle and distance are required", ErrValidation)
	}
	angle, err := checkRange(*raw.Angle, *raw.Distance)
	if err != nil {
		return ReadingInput{}, err
	}
	in := ReadingInput{
		DeviceID: raw.DeviceID,
		Angle:    angle,
		Distance: *raw.Distance,
		Location: raw.Location,
		FarmID:   raw.FarmID,
	}
	if in.DeviceID == "" {
		in.DeviceID = p.deviceID(batchDevice)
	}
	if in.Location == nil {
		in.Location = batchLoc
	}
	if raw.Timestamp != "" {
		ts, err := ParseDate(raw.Timestamp)
		if err != nil {
			return ReadingInput{}, err
		}
		in.Timestamp = ts
	}
	return in, nil
}

func (p *Parser) deviceID(id string) string {
	if id == "" {
		return p.Defaults.DeviceID
	}
	return id
}

// AngleInRange reports whether a is a sensor angle the radar can produce.
func AngleInRange(a int) bool {
	return a >= MinAngle && a <= MaxAngle
}

// roundAngle rounds to whole degrees and pins out-of-range values just outside
// the valid range, so huge inputs never overflow the int conversion.
func roundAngle(angle float64) int {
	return int(math.Max(MinAngle-1, math.Min(MaxAngle+1, math.Round(angle))))
}

func checkRange(angle, distance float64) (int, error) {
	a := roundAngle(angle)
	if !AngleInRange(a) {
		return 0, fmt.Errorf("%w: angle %v outside [%d, %d]", ErrValidation, angle, MinAngle, MaxAngle)
	}
	if distance < 0 || math.IsNaN(distance) {
		return 0, fmt.Errorf("%w: distance must be >= 0", ErrValidation)
	}
	return a, nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: cannot parse JSON: %v", ErrValidation, err)
	}
	return nil
}
