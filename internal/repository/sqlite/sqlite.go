// Package sqlite implements domain.Store on an embedded SQLite database.
// Timestamps are stored as UTC unix nanoseconds and reading payloads as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/smartcity/rtiis/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements domain.Store on SQLite
type Store struct {
	*repo
	db *sql.DB
}

// Open opens (creating if needed) the database file at path
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open %s: %w", path, err)
	}
	// one writer at a time; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to connect to %s: %w", path, err)
	}
	return &Store{repo: &repo{q: db}, db: db}, nil
}

// InTx runs fn inside an immediate transaction
func (s *Store) InTx(ctx context.Context, fn func(domain.Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	if err := fn(&repo{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit transaction: %w", err)
	}
	return nil
}

// Health checks database connectivity
func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: health check failed: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() {
	s.db.Close()
}

type repo struct {
	q querier
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func (r *repo) CreateSegment(ctx context.Context, segment *domain.RoadSegment) error {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO road_segments (code, name, direction, latitude, longitude)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		segment.Code, segment.Name, segment.Direction, segment.Latitude, segment.Longitude,
	).Scan(&segment.ID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert segment %s: %w", segment.Code, err)
	}
	return nil
}

const segmentColumns = `id, code, name, direction, latitude, longitude`

func scanSegment(row interface{ Scan(...any) error }) (domain.RoadSegment, error) {
	var seg domain.RoadSegment
	err := row.Scan(&seg.ID, &seg.Code, &seg.Name, &seg.Direction, &seg.Latitude, &seg.Longitude)
	return seg, err
}

func (r *repo) GetSegment(ctx context.Context, id int64) (domain.RoadSegment, error) {
	seg, err := scanSegment(r.q.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM road_segments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RoadSegment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RoadSegment{}, fmt.Errorf("sqlite: failed to get segment %d: %w", id, err)
	}
	return seg, nil
}

func (r *repo) GetSegmentByCode(ctx context.Context, code string) (domain.RoadSegment, error) {
	seg, err := scanSegment(r.q.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM road_segments WHERE code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RoadSegment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RoadSegment{}, fmt.Errorf("sqlite: failed to get segment %s: %w", code, err)
	}
	return seg, nil
}

func (r *repo) ListSegments(ctx context.Context) ([]domain.RoadSegment, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+segmentColumns+` FROM road_segments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query segments: %w", err)
	}
	defer rows.Close()

	segments := make([]domain.RoadSegment, 0)
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan segment row: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func (r *repo) CreateSensor(ctx context.Context, sensor *domain.Sensor) error {
	if sensor.ID == 0 {
		err := r.q.QueryRowContext(ctx, `
			INSERT INTO sensors (name, type, road_segment_id, location_lat, location_lng, is_active)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`,
			sensor.Name, string(sensor.Category), sensor.SegmentID, sensor.LocationLat, sensor.LocationLng, sensor.IsActive,
		).Scan(&sensor.ID)
		if err != nil {
			return fmt.Errorf("sqlite: failed to insert sensor %s: %w", sensor.Name, err)
		}
		return nil
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sensors (id, name, type, road_segment_id, location_lat, location_lng, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		sensor.ID, sensor.Name, string(sensor.Category), sensor.SegmentID, sensor.LocationLat, sensor.LocationLng, sensor.IsActive,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert sensor %d: %w", sensor.ID, err)
	}
	return nil
}

const sensorColumns = `id, name, type, road_segment_id, location_lat, location_lng, is_active`

func scanSensor(row interface{ Scan(...any) error }) (domain.Sensor, error) {
	var (
		s        domain.Sensor
		category string
	)
	err := row.Scan(&s.ID, &s.Name, &category, &s.SegmentID, &s.LocationLat, &s.LocationLng, &s.IsActive)
	s.Category = domain.SensorCategory(category)
	return s, err
}

func (r *repo) GetSensor(ctx context.Context, id int64) (domain.Sensor, error) {
	s, err := scanSensor(r.q.QueryRowContext(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sensor{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Sensor{}, fmt.Errorf("sqlite: failed to get sensor %d: %w", id, err)
	}
	return s, nil
}

func (r *repo) ListSensors(ctx context.Context) ([]domain.Sensor, error) {
	return r.querySensors(ctx, `SELECT `+sensorColumns+` FROM sensors ORDER BY id`)
}

func (r *repo) ListSegmentSensors(ctx context.Context, segmentID int64) ([]domain.Sensor, error) {
	return r.querySensors(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE road_segment_id = ? ORDER BY id`, segmentID)
}

func (r *repo) querySensors(ctx context.Context, query string, args ...any) ([]domain.Sensor, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query sensors: %w", err)
	}
	defer rows.Close()

	sensors := make([]domain.Sensor, 0)
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan sensor row: %w", err)
		}
		sensors = append(sensors, s)
	}
	return sensors, rows.Err()
}

func (r *repo) InsertReading(ctx context.Context, reading *domain.SensorReading) error {
	data, err := json.Marshal(reading.Data)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode reading data: %w", err)
	}
	reading.Timestamp = reading.Timestamp.UTC()
	err = r.q.QueryRowContext(ctx, `
		INSERT INTO sensor_readings (sensor_id, timestamp, data)
		VALUES (?, ?, ?)
		RETURNING id`,
		reading.SensorID, toNanos(reading.Timestamp), string(data),
	).Scan(&reading.ID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert reading for sensor %d: %w", reading.SensorID, err)
	}
	return nil
}

func (r *repo) ReadingsSince(ctx context.Context, segmentID int64, category domain.SensorCategory, since time.Time) ([]domain.SensorReading, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT r.id, r.sensor_id, r.timestamp, r.data, s.type
		FROM sensor_readings r
		JOIN sensors s ON s.id = r.sensor_id
		WHERE s.road_segment_id = ? AND s.type = ? AND r.timestamp >= ?
		ORDER BY r.timestamp ASC, r.id ASC`,
		segmentID, string(category), toNanos(since),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := make([]domain.SensorReading, 0)
	for rows.Next() {
		var (
			rd       domain.SensorReading
			ts       int64
			data     string
			category string
		)
		if err := rows.Scan(&rd.ID, &rd.SensorID, &ts, &data, &category); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan reading row: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &rd.Data); err != nil {
			return nil, fmt.Errorf("sqlite: failed to decode reading %d: %w", rd.ID, err)
		}
		rd.Timestamp = fromNanos(ts)
		rd.Category = domain.SensorCategory(category)
		readings = append(readings, rd)
	}
	return readings, rows.Err()
}

const incidentColumns = `id, road_segment_id, created_at, updated_at, status, severity, type,
	rule_triggered, ai_summary, ai_cause, ai_recommendation, resolution_note`

func scanIncident(row interface{ Scan(...any) error }) (domain.Incident, error) {
	var (
		inc                  domain.Incident
		created, updated     int64
		status, severity     string
		summary, cause       sql.NullString
		recommendation, note sql.NullString
	)
	err := row.Scan(&inc.ID, &inc.SegmentID, &created, &updated, &status, &severity, &inc.Type,
		&inc.RuleTriggered, &summary, &cause, &recommendation, &note)
	if err != nil {
		return domain.Incident{}, err
	}
	inc.CreatedAt = fromNanos(created)
	inc.UpdatedAt = fromNanos(updated)
	inc.Status = domain.IncidentStatus(status)
	inc.Severity = domain.Severity(severity)
	inc.AISummary = nullableString(summary)
	inc.AICause = nullableString(cause)
	inc.AIRecommendation = nullableString(recommendation)
	inc.ResolutionNote = nullableString(note)
	return inc, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func (r *repo) FindOpenIncident(ctx context.Context, segmentID int64, incidentType string) (domain.Incident, error) {
	inc, err := scanIncident(r.q.QueryRowContext(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE road_segment_id = ? AND type = ? AND status = 'OPEN'
		ORDER BY created_at DESC
		LIMIT 1`,
		segmentID, incidentType,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Incident{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Incident{}, fmt.Errorf("sqlite: failed to find open incident: %w", err)
	}
	return inc, nil
}

func (r *repo) CreateOpenIncident(ctx context.Context, incident *domain.Incident) (bool, error) {
	incident.Status = domain.StatusOpen
	incident.CreatedAt = incident.CreatedAt.UTC()
	incident.UpdatedAt = incident.UpdatedAt.UTC()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO incidents (road_segment_id, created_at, updated_at, status, severity, type, rule_triggered)
		VALUES (?, ?, ?, 'OPEN', ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		incident.SegmentID, toNanos(incident.CreatedAt), toNanos(incident.UpdatedAt),
		string(incident.Severity), incident.Type, incident.RuleTriggered,
	).Scan(&incident.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to insert incident: %w", err)
	}
	return true, nil
}

func (r *repo) TouchIncident(ctx context.Context, id int64, at time.Time) error {
	return r.execOne(ctx, "touch incident", `UPDATE incidents SET updated_at = ? WHERE id = ?`, toNanos(at), id)
}

func (r *repo) GetIncident(ctx context.Context, id int64) (domain.Incident, error) {
	inc, err := scanIncident(r.q.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Incident{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Incident{}, fmt.Errorf("sqlite: failed to get incident %d: %w", id, err)
	}
	return inc, nil
}

func (r *repo) ListIncidents(ctx context.Context, filter domain.IncidentFilter) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	var args []any
	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan incident row: %w", err)
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

func (r *repo) UpdateNarrative(ctx context.Context, id int64, n domain.Narrative) error {
	return r.execOne(ctx, "update narrative", `
		UPDATE incidents SET ai_summary = ?, ai_cause = ?, ai_recommendation = ?
		WHERE id = ?`,
		n.Summary, n.Cause, n.Recommendation, id,
	)
}

func (r *repo) ResolveIncident(ctx context.Context, id int64, note *string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE incidents
		SET status = 'RESOLVED', updated_at = ?, resolution_note = COALESCE(?, resolution_note)
		WHERE id = ? AND status = 'OPEN'`,
		toNanos(at), note, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to resolve incident %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	// nothing updated: either missing or already resolved
	if _, err := r.GetIncident(ctx, id); err != nil {
		return err
	}
	return domain.ErrIncidentNotOpen
}

func (r *repo) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to %s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) Stats(ctx context.Context, since time.Time) (domain.Stats, error) {
	var (
		stats        domain.Stats
		lastReading  sql.NullInt64
		lastIncident sql.NullInt64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN timestamp >= ? THEN 1 ELSE 0 END), 0),
		       MAX(timestamp)
		FROM sensor_readings`,
		toNanos(since),
	).Scan(&stats.TotalReadings, &stats.RecentReadings, &lastReading)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("sqlite: failed to count readings: %w", err)
	}

	err = r.q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'OPEN' THEN 1 ELSE 0 END), 0),
		       MAX(created_at)
		FROM incidents`,
	).Scan(&stats.TotalIncidents, &stats.OpenIncidents, &lastIncident)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("sqlite: failed to count incidents: %w", err)
	}

	stats.LastReadingAt = nullableTime(lastReading)
	stats.LastIncidentAt = nullableTime(lastIncident)
	return stats, nil
}

var _ domain.Store = (*Store)(nil)
