package domain

import (
	"context"
	"time"
)

// Repository defines the queries the detection engine and services run.
// The domain owns the interface; storage packages implement it.
type Repository interface {
	// CreateSegment inserts a segment and sets its ID
	CreateSegment(ctx context.Context, segment *RoadSegment) error

	// GetSegment returns ErrNotFound when the segment does not exist
	GetSegment(ctx context.Context, id int64) (RoadSegment, error)

	// GetSegmentByCode returns ErrNotFound when no segment has the code
	GetSegmentByCode(ctx context.Context, code string) (RoadSegment, error)

	// ListSegments returns all segments ordered by id
	ListSegments(ctx context.Context) ([]RoadSegment, error)

	// CreateSensor inserts a sensor. A zero ID is assigned by the store;
	// an explicit ID that already exists is left untouched.
	CreateSensor(ctx context.Context, sensor *Sensor) error

	// GetSensor returns ErrNotFound when the sensor does not exist
	GetSensor(ctx context.Context, id int64) (Sensor, error)

	// ListSensors returns all sensors ordered by id
	ListSensors(ctx context.Context) ([]Sensor, error)

	// ListSegmentSensors returns the sensors of one segment ordered by id
	ListSegmentSensors(ctx context.Context, segmentID int64) ([]Sensor, error)

	// InsertReading appends a reading and sets its ID
	InsertReading(ctx context.Context, reading *SensorReading) error

	// ReadingsSince returns readings of the segment's sensors of one category
	// with timestamp >= since, ascending by timestamp, Category populated.
	ReadingsSince(ctx context.Context, segmentID int64, category SensorCategory, since time.Time) ([]SensorReading, error)

	// FindOpenIncident returns the most recent OPEN incident for the pair or ErrNotFound
	FindOpenIncident(ctx context.Context, segmentID int64, incidentType string) (Incident, error)

	// CreateOpenIncident inserts an OPEN incident and sets its ID. It returns
	// false, without error, when an OPEN incident for the same segment and type
	// already exists.
	CreateOpenIncident(ctx context.Context, incident *Incident) (bool, error)

	// TouchIncident sets updated_at
	TouchIncident(ctx context.Context, id int64, at time.Time) error

	// GetIncident returns ErrNotFound when the incident does not exist
	GetIncident(ctx context.Context, id int64) (Incident, error)

	// ListIncidents returns incidents newest first
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)

	// UpdateNarrative stores enrichment text on an incident
	UpdateNarrative(ctx context.Context, id int64, narrative Narrative) error

	// ResolveIncident moves an OPEN incident to RESOLVED. It returns
	// ErrNotFound or ErrIncidentNotOpen.
	ResolveIncident(ctx context.Context, id int64, note *string, at time.Time) error

	// Stats returns store-wide counters; RecentReadings counts readings at or after since
	Stats(ctx context.Context, since time.Time) (Stats, error)
}

// Store is a Repository that can run a unit of work atomically
type Store interface {
	Repository

	// InTx runs fn inside a transaction. A non-nil error from fn rolls back
	// every write made through the Repository passed to fn.
	InTx(ctx context.Context, fn func(Repository) error) error

	// Health checks store connectivity
	Health(ctx context.Context) error

	// Close releases the store's resources
	Close()
}
