// internal/data/models.go
package data

import "time"

// Severity grades a movement alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Location is an optional GPS fix attached to persisted records.
type Location struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// LiveReading is the latest reading seen at one sensor angle. Held in memory only.
type LiveReading struct {
	Angle      int       `json:"angle"`
	Distance   float64   `json:"distance"`
	Alert      bool      `json:"alert"`
	ObservedAt time.Time `json:"observedAt"`
}

// SweepReading is an archived sensor reading.
type SweepReading struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Angle     int       `json:"angle"`
	Distance  float64   `json:"distance"`
	Location  *Location `json:"location,omitempty"`
	FarmID    string    `json:"farmId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MovementAlert is a ledger entry for a detected intrusion.
type MovementAlert struct {
	ID              string     `json:"id"`
	DeviceID        string     `json:"deviceId"`
	Distance        float64    `json:"distance"`
	Angle           int        `json:"angle"`
	Location        *Location  `json:"location,omitempty"`
	FarmID          string     `json:"farmId,omitempty"`
	Severity        Severity   `json:"severity"`
	Message         string     `json:"message"`
	IsResolved      bool       `json:"isResolved"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy      string     `json:"resolvedBy,omitempty"`
	ResolutionNotes string     `json:"resolutionNotes,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// TimeRange bounds a query. A zero Start or End leaves that side open.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Page selects a slice of an ordered result set.
type Page struct {
	Limit  int
	Offset int
}

// AlertFilter narrows a ledger listing. Empty fields do not filter.
type AlertFilter struct {
	DeviceID   string
	IsResolved *bool
	Severity   Severity
	Range      TimeRange
}

// ReadingFilter narrows an archive query.
type ReadingFilter struct {
	DeviceID string
	Range    TimeRange
}

// Detection is the nearest reading inside a stats window.
type Detection struct {
	Distance  float64   `json:"distance"`
	Angle     int       `json:"angle"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats is a windowed rollup over the archive and the ledger.
type Stats struct {
	DeviceID         string     `json:"deviceId"`
	WindowHours      int        `json:"windowHours"`
	Since            time.Time  `json:"since"`
	TotalReadings    int        `json:"totalReadings"`
	TotalAlerts      int        `json:"totalAlerts"`
	UnresolvedAlerts int        `json:"unresolvedAlerts"`
	ClosestDetection *Detection `json:"closestDetection"`
}

// Status describes connectivity of one device.
type Status struct {
	DeviceID      string     `json:"deviceId"`
	IsConnected   bool       `json:"isConnected"`
	LastHeartbeat *time.Time `json:"lastHeartbeat"`
	Status        string     `json:"status"`
}
