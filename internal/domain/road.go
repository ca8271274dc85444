package domain

// SensorCategory is the kind of measurement a sensor reports
type SensorCategory string

const (
	CategoryFlow           SensorCategory = "FLOW"
	CategorySpeed          SensorCategory = "SPEED"
	CategoryStoppedVehicle SensorCategory = "STOPPED_VEHICLE"
)

// Categories lists every sensor category in detection order
var Categories = []SensorCategory{CategoryFlow, CategorySpeed, CategoryStoppedVehicle}

// Valid reports whether c is a known category
func (c SensorCategory) Valid() bool {
	switch c {
	case CategoryFlow, CategorySpeed, CategoryStoppedVehicle:
		return true
	}
	return false
}

// RoadSegment represents a monitored stretch of roadway
type RoadSegment struct {
	ID        int64    `json:"id"`
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Direction string   `json:"direction"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Sensor represents a roadside detector attached to exactly one segment
type Sensor struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Category    SensorCategory `json:"type"`
	SegmentID   int64          `json:"road_segment_id"`
	LocationLat *float64       `json:"location_lat"`
	LocationLng *float64       `json:"location_lng"`
	IsActive    bool           `json:"is_active"`
}
