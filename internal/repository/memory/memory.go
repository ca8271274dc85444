// Package memory is an in-process implementation of domain.Store used when no
// database is configured and by tests. It has the same transactional and
// uniqueness semantics as the SQL stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smartcity/rtiis/internal/domain"
)

// Store implements domain.Store in memory
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{st: newState()}
}

// InTx runs fn against a private copy of the data and publishes it only when
// fn succeeds. Transactions are serialized.
func (s *Store) InTx(ctx context.Context, fn func(domain.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&view{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Health always returns nil in memory mode
func (s *Store) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *Store) Close() {}

func (s *Store) do(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&view{st: s.st})
}

func (s *Store) CreateSegment(ctx context.Context, segment *domain.RoadSegment) error {
	return s.do(func(v *view) error { return v.CreateSegment(ctx, segment) })
}

func (s *Store) GetSegment(ctx context.Context, id int64) (seg domain.RoadSegment, err error) {
	err = s.do(func(v *view) error { seg, err = v.GetSegment(ctx, id); return err })
	return seg, err
}

func (s *Store) GetSegmentByCode(ctx context.Context, code string) (seg domain.RoadSegment, err error) {
	err = s.do(func(v *view) error { seg, err = v.GetSegmentByCode(ctx, code); return err })
	return seg, err
}

func (s *Store) ListSegments(ctx context.Context) (out []domain.RoadSegment, err error) {
	err = s.do(func(v *view) error { out, err = v.ListSegments(ctx); return err })
	return out, err
}

func (s *Store) CreateSensor(ctx context.Context, sensor *domain.Sensor) error {
	return s.do(func(v *view) error { return v.CreateSensor(ctx, sensor) })
}

func (s *Store) GetSensor(ctx context.Context, id int64) (sensor domain.Sensor, err error) {
	err = s.do(func(v *view) error { sensor, err = v.GetSensor(ctx, id); return err })
	return sensor, err
}

func (s *Store) ListSensors(ctx context.Context) (out []domain.Sensor, err error) {
	err = s.do(func(v *view) error { out, err = v.ListSensors(ctx); return err })
	return out, err
}

func (s *Store) ListSegmentSensors(ctx context.Context, segmentID int64) (out []domain.Sensor, err error) {
	err = s.do(func(v *view) error { out, err = v.ListSegmentSensors(ctx, segmentID); return err })
	return out, err
}

func (s *Store) InsertReading(ctx context.Context, reading *domain.SensorReading) error {
	return s.do(func(v *view) error { return v.InsertReading(ctx, reading) })
}

func (s *Store) ReadingsSince(ctx context.Context, segmentID int64, category domain.SensorCategory, since time.Time) (out []domain.SensorReading, err error) {
	err = s.do(func(v *view) error { out, err = v.ReadingsSince(ctx, segmentID, category, since); return err })
	return out, err
}

func (s *Store) FindOpenIncident(ctx context.Context, segmentID int64, incidentType string) (inc domain.Incident, err error) {
	err = s.do(func(v *view) error { inc, err = v.FindOpenIncident(ctx, segmentID, incidentType); return err })
	return inc, err
}

func (s *Store) CreateOpenIncident(ctx context.Context, incident *domain.Incident) (created bool, err error) {
	err = s.do(func(v *view) error { created, err = v.CreateOpenIncident(ctx, incident); return err })
	return created, err
}

func (s *Store) TouchIncident(ctx context.Context, id int64, at time.Time) error {
	return s.do(func(v *view) error { return v.TouchIncident(ctx, id, at) })
}

func (s *Store) GetIncident(ctx context.Context, id int64) (inc domain.Incident, err error) {
	err = s.do(func(v *view) error { inc, err = v.GetIncident(ctx, id); return err })
	return inc, err
}

func (s *Store) ListIncidents(ctx context.Context, filter domain.IncidentFilter) (out []domain.Incident, err error) {
	err = s.do(func(v *view) error { out, err = v.ListIncidents(ctx, filter); return err })
	return out, err
}

func (s *Store) UpdateNarrative(ctx context.Context, id int64, narrative domain.Narrative) error {
	return s.do(func(v *view) error { return v.UpdateNarrative(ctx, id, narrative) })
}

func (s *Store) ResolveIncident(ctx context.Context, id int64, note *string, at time.Time) error {
	return s.do(func(v *view) error { return v.ResolveIncident(ctx, id, note, at) })
}

func (s *Store) Stats(ctx context.Context, since time.Time) (stats domain.Stats, err error) {
	err = s.do(func(v *view) error { stats, err = v.Stats(ctx, since); return err })
	return stats, err
}

type state struct {
	segments  map[int64]domain.RoadSegment
	sensors   map[int64]domain.Sensor
	readings  []domain.SensorReading
	incidents map[int64]domain.Incident

	nextSegmentID  int64
	nextSensorID   int64
	nextReadingID  int64
	nextIncidentID int64
}

func newState() *state {
	return &state{
		segments:  make(map[int64]domain.RoadSegment),
		sensors:   make(map[int64]domain.Sensor),
		incidents: make(map[int64]domain.Incident),
	}
}

// clone copies the containers. Readings are immutable so the slice elements
// and their Data maps are shared.
func (st *state) clone() *state {
	c := *st
	c.segments = make(map[int64]domain.RoadSegment, len(st.segments))
	for k, v := range st.segments {
		c.segments[k] = v
	}
	c.sensors = make(map[int64]domain.Sensor, len(st.sensors))
	for k, v := range st.sensors {
		c.sensors[k] = v
	}
	c.incidents = make(map[int64]domain.Incident, len(st.incidents))
	for k, v := range st.incidents {
		c.incidents[k] = v
	}
	c.readings = st.readings[:len(st.readings):len(st.readings)]
	return &c
}

// view implements domain.Repository over a state the caller has locked
type view struct {
	st *state
}

func (v *view) CreateSegment(ctx context.Context, segment *domain.RoadSegment) error {
	for _, existing := range v.st.segments {
		if existing.Code == segment.Code {
			return fmt.Errorf("memory: segment code %q already exists", segment.Code)
		}
	}
	v.st.nextSegmentID++
	segment.ID = v.st.nextSegmentID
	v.st.segments[segment.ID] = *segment
	return nil
}

func (v *view) GetSegment(ctx context.Context, id int64) (domain.RoadSegment, error) {
	seg, ok := v.st.segments[id]
	if !ok {
		return domain.RoadSegment{}, domain.ErrNotFound
	}
	return seg, nil
}

func (v *view) GetSegmentByCode(ctx context.Context, code string) (domain.RoadSegment, error) {
	for _, seg := range v.st.segments {
		if seg.Code == code {
			return seg, nil
		}
	}
	return domain.RoadSegment{}, domain.ErrNotFound
}

func (v *view) ListSegments(ctx context.Context) ([]domain.RoadSegment, error) {
	out := make([]domain.RoadSegment, 0, len(v.st.segments))
	for _, seg := range v.st.segments {
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) CreateSensor(ctx context.Context, sensor *domain.Sensor) error {
	if _, ok := v.st.segments[sensor.SegmentID]; !ok {
		return fmt.Errorf("memory: sensor references unknown segment %d", sensor.SegmentID)
	}
	if sensor.ID == 0 {
		v.st.nextSensorID++
		sensor.ID = v.st.nextSensorID
	} else if _, exists := v.st.sensors[sensor.ID]; exists {
		return nil
	}
	if sensor.ID > v.st.nextSensorID {
		v.st.nextSensorID = sensor.ID
	}
	v.st.sensors[sensor.ID] = *sensor
	return nil
}

func (v *view) GetSensor(ctx context.Context, id int64) (domain.Sensor, error) {
	sensor, ok := v.st.sensors[id]
	if !ok {
		return domain.Sensor{}, domain.ErrNotFound
	}
	return sensor, nil
}

func (v *view) ListSensors(ctx context.Context) ([]domain.Sensor, error) {
	return v.sensorsWhere(func(domain.Sensor) bool { return true }), nil
}

func (v *view) ListSegmentSensors(ctx context.Context, segmentID int64) ([]domain.Sensor, error) {
	return v.sensorsWhere(func(s domain.Sensor) bool { return s.SegmentID == segmentID }), nil
}

func (v *view) sensorsWhere(keep func(domain.Sensor) bool) []domain.Sensor {
	out := make([]domain.Sensor, 0)
	for _, s := range v.st.sensors {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *view) InsertReading(ctx context.Context, reading *domain.SensorReading) error {
	if _, ok := v.st.sensors[reading.SensorID]; !ok {
		return fmt.Errorf("memory: reading references unknown sensor %d", reading.SensorID)
	}
	v.st.nextReadingID++
	reading.ID = v.st.nextReadingID
	reading.Timestamp = reading.Timestamp.UTC()
	v.st.readings = append(v.st.readings, *reading)
	return nil
}

func (v *view) ReadingsSince(ctx context.Context, segmentID int64, category domain.SensorCategory, since time.Time) ([]domain.SensorReading, error) {
	out := make([]domain.SensorReading, 0)
	for _, r := range v.st.readings {
		sensor, ok := v.st.sensors[r.SensorID]
		if !ok || sensor.SegmentID != segmentID || sensor.Category != category {
			continue
		}
		if r.Timestamp.Before(since) {
			continue
		}
		r.Category = sensor.Category
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (v *view) FindOpenIncident(ctx context.Context, segmentID int64, incidentType string) (domain.Incident, error) {
	var (
		found domain.Incident
		ok    bool
	)
	for _, inc := range v.st.incidents {
		if inc.SegmentID != segmentID || inc.Type != incidentType || inc.Status != domain.StatusOpen {
			continue
		}
		if !ok || inc.CreatedAt.After(found.CreatedAt) {
			found, ok = inc, true
		}
	}
	if !ok {
		return domain.Incident{}, domain.ErrNotFound
	}
	return found, nil
}

func (v *view) CreateOpenIncident(ctx context.Context, incident *domain.Incident) (bool, error) {
	if _, ok := v.st.segments[incident.SegmentID]; !ok {
		return false, fmt.Errorf("memory: incident references unknown segment %d", incident.SegmentID)
	}
	if _, err := v.FindOpenIncident(ctx, incident.SegmentID, incident.Type); err == nil {
		return false, nil
	}
	v.st.nextIncidentID++
	incident.ID = v.st.nextIncidentID
	incident.Status = domain.StatusOpen
	incident.CreatedAt = incident.CreatedAt.UTC()
	incident.UpdatedAt = incident.UpdatedAt.UTC()
	v.st.incidents[incident.ID] = *incident
	return true, nil
}

func (v *view) TouchIncident(ctx context.Context, id int64, at time.Time) error {
	inc, ok := v.st.incidents[id]
	if !ok {
		return domain.ErrNotFound
	}
	inc.UpdatedAt = at.UTC()
	v.st.incidents[id] = inc
	return nil
}

func (v *view) GetIncident(ctx context.Context, id int64) (domain.Incident, error) {
	inc, ok := v.st.incidents[id]
	if !ok {
		return domain.Incident{}, domain.ErrNotFound
	}
	return inc, nil
}

func (v *view) ListIncidents(ctx context.Context, filter domain.IncidentFilter) ([]domain.Incident, error) {
	out := make([]domain.Incident, 0)
	for _, inc := range v.st.incidents {
		if filter.Status != nil && inc.Status != *filter.Status {
			continue
		}
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (v *view) UpdateNarrative(ctx context.Context, id int64, narrative domain.Narrative) error {
	inc, ok := v.st.incidents[id]
	if !ok {
		return domain.ErrNotFound
	}
	summary, cause, recommendation := narrative.Summary, narrative.Cause, narrative.Recommendation
	inc.AISummary = &summary
	inc.AICause = &cause
	inc.AIRecommendation = &recommendation
	v.st.incidents[id] = inc
	return nil
}

func (v *view) ResolveIncident(ctx context.Context, id int64, note *string, at time.Time) error {
	inc, ok := v.st.incidents[id]
	if !ok {
		return domain.ErrNotFound
	}
	if inc.Status != domain.StatusOpen {
		return domain.ErrIncidentNotOpen
	}
	inc.Status = domain.StatusResolved
	inc.UpdatedAt = at.UTC()
	if note != nil {
		n := *note
		inc.ResolutionNote = &n
	}
	v.st.incidents[id] = inc
	return nil
}

func (v *view) Stats(ctx context.Context, since time.Time) (domain.Stats, error) {
	var stats domain.Stats
	for _, r := range v.st.readings {
		stats.TotalReadings++
		if !r.Timestamp.Before(since) {
			stats.RecentReadings++
		}
		if stats.LastReadingAt == nil || r.Timestamp.After(*stats.LastReadingAt) {
			ts := r.Timestamp
			stats.LastReadingAt = &ts
		}
	}
	for _, inc := range v.st.incidents {
		stats.TotalIncidents++
		if inc.Status == domain.StatusOpen {
			stats.OpenIncidents++
		}
		if stats.LastIncidentAt == nil || inc.CreatedAt.After(*stats.LastIncidentAt) {
			ts := inc.CreatedAt
			stats.LastIncidentAt = &ts
		}
	}
	return stats, nil
}

var _ domain.Store = (*Store)(nil)
