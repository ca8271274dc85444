package domain

import "time"

// IncidentStatus is the lifecycle state of an incident
type IncidentStatus string

const (
	StatusOpen     IncidentStatus = "OPEN"
	StatusResolved IncidentStatus = "RESOLVED"
)

// Valid reports whether s is a known status
func (s IncidentStatus) Valid() bool {
	return s == StatusOpen || s == StatusResolved
}

// Severity is the incident severity scale
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Incident types and rule names produced by detection
const (
	IncidentCongestion        = "CONGESTION"
	IncidentStoppedVehicle    = "STOPPED_VEHICLE"
	IncidentMultiLaneSlowdown = "MULTI_LANE_SLOWDOWN"

	RuleFlowDropAndSpeedDrop   = "FLOW_DROP_AND_SPEED_DROP"
	RuleStoppedVehicleDetected = "STOPPED_VEHICLE_DETECTED"
	RuleDemoScenario           = "DEMO_SCENARIO"
)

// Incident is a detected anomaly affecting a road segment
type Incident struct {
	ID               int64          `json:"id"`
	SegmentID        int64          `json:"road_segment_id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Status           IncidentStatus `json:"status"`
	Severity         Severity       `json:"severity"`
	Type             string         `json:"type"`
	RuleTriggered    string         `json:"rule_triggered"`
	AISummary        *string        `json:"ai_summary"`
	AICause          *string        `json:"ai_cause"`
	AIRecommendation *string        `json:"ai_recommendation"`
	ResolutionNote   *string        `json:"resolution_note"`
}

// Narrative is the text attached to an incident by enrichment
type Narrative struct {
	Summary        string `json:"summary"`
	Cause          string `json:"cause"`
	Recommendation string `json:"recommendation"`
}

// IncidentFilter narrows ListIncidents. A nil Status matches every status.
type IncidentFilter struct {
	Status *IncidentStatus
	Limit  int
}

// IncidentDetail is an incident with its segment and recent readings
type IncidentDetail struct {
	Incident       Incident        `json:"incident"`
	Segment        RoadSegment     `json:"segment"`
	RecentReadings []SensorReading `json:"recent_readings"`
}

// Stats are the store-wide counters behind the system status endpoint
type Stats struct {
	TotalReadings  int64
	RecentReadings int64
	TotalIncidents int64
	OpenIncidents  int64
	LastIncidentAt *time.Time
	LastReadingAt  *time.Time
}

// SystemStatus is the diagnostics payload of the system status endpoint
type SystemStatus struct {
	BackendStatus      string     `json:"backend_status"`
	DBStatus           string     `json:"db_status"`
	LLMStatus          string     `json:"llm_status"`
	TotalReadings      int64      `json:"total_readings"`
	ReadingsLastMinute int64      `json:"readings_last_minute"`
	TotalIncidents     int64      `json:"total_incidents"`
	OpenIncidents      int64      `json:"open_incidents"`
	LastIncidentAt     *time.Time `json:"last_incident_at"`
	LastReadingAt      *time.Time `json:"last_reading_at"`
	UptimeSeconds      float64    `json:"uptime_seconds"`
}

// ScenarioResult reports a triggered demo scenario
type ScenarioResult struct {
	Status          string `json:"status"`
	Scenario        string `json:"scenario"`
	ReadingsCreated int    `json:"readings_created"`
	IncidentID      *int64 `json:"incident_id"`
}
