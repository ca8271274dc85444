package domain

import "time"

// Payload keys required per sensor category
const (
	KeyVehiclesPerMinute = "vehicles_per_minute"
	KeyAvgSpeedKmh       = "avg_speed_kmh"
	KeyStoppedCount      = "stopped_count"
	KeyLaneBlocked       = "lane_blocked"
)

// SensorReading is a single append-only measurement.
// Category is filled in by the store on reads that join the sensor.
type SensorReading struct {
	ID        int64          `json:"id"`
	SensorID  int64          `json:"sensor_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Category  SensorCategory `json:"sensor_type,omitempty"`
}

// Number returns the numeric value stored at key. Missing or non-numeric
// values report ok=false.
func (r SensorReading) Number(key string) (float64, bool) {
	if r.Data == nil {
		return 0, false
	}
	v, present := r.Data[key]
	if !present {
		return 0, false
	}
	return toFloat(v)
}

// Flag returns true only when the value at key is the boolean true
func (r SensorReading) Flag(key string) bool {
	if r.Data == nil {
		return false
	}
	b, ok := r.Data[key].(bool)
	return ok && b
}

// ReadingInput is one entry of an ingestion batch as received from a client
type ReadingInput struct {
	SensorID  int64          `json:"sensor_id"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// IngestRequest is the body of a readings batch
type IngestRequest struct {
	Readings []ReadingInput `json:"readings"`
}

// IngestResult summarises a committed batch
type IngestResult struct {
	Status        string  `json:"status"`
	BatchID       string  `json:"batch_id"`
	InsertedCount int     `json:"inserted_count"`
	NewIncidents  []int64 `json:"new_incidents"`
}
