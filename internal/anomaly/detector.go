// internal/anomaly/detector.go
package anomaly

// DefaultThreshold is the alert-zone edge in centimetres. It sits below the
// sensor's own hard-stop distance so the zone is reached first.
const DefaultThreshold = 30.0

// IsBreach reports whether a reading falls inside the alert zone. Zero and
// negative distances are sensor read failures, not adjacent objects.
func IsBreach(distance, threshold float64) bool {
	return distance > 0 && distance < threshold
}

// Detector evaluates readings against a fixed threshold.
type Detector struct {
	threshold float64
}

func NewDetector(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Check flags a reading as a breach.
func (d *Detector) Check(distance float64) bool {
	return IsBreach(distance, d.threshold)
}

// Threshold returns the active alert-zone edge.
func (d *Detector) Threshold() float64 {
	return d.threshold
}
