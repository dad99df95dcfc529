package models

import "time"

// SensorSnapshot holds one reading per telemetry channel. Channels that
// failed to answer are reported as zero and listed in Failed.
type SensorSnapshot struct {
	Values    map[string]float64 `json:"values"`
	Failed    []string           `json:"failed,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
