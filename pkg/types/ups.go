package types

import "time"

// ReadingResponse is returned by GET /reading.
// This struct is shared between the daemon and client packages.
type ReadingResponse struct {
	// Voltage is rounded to 2 decimal places.
	Voltage float64 `json:"voltage"`
	// Capacity is rounded to the nearest percent.
	Capacity int `json:"capacity"`
	// RawVoltage and RawCapacity are the unrounded decoded values.
	RawVoltage  float64 `json:"raw_voltage"`
	RawCapacity float64 `json:"raw_capacity"`

	UpdatedAt           time.Time `json:"updated_at"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorAt         time.Time `json:"last_error_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	NextPoll            time.Time `json:"next_poll"`
}

// SensorResponse describes one registered entity, returned by GET /sensors.
type SensorResponse struct {
	Name     string   `json:"name"`
	UniqueID string   `json:"unique_id"`
	Metric   string   `json:"metric"`
	Unit     string   `json:"unit"`
	Icon     string   `json:"icon"`
	State    *float64 `json:"state"`
}
