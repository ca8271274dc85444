package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartcity/rtiis/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements domain.Store on PostgreSQL
type PostgresRepository struct {
	*repo
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{repo: &repo{q: pool}, pool: pool}
}

// Connect opens a pool and verifies connectivity
func Connect(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}
	return NewPostgresRepository(pool), nil
}

// InTx runs fn inside a transaction; pgx rolls back when fn fails
func (r *PostgresRepository) InTx(ctx context.Context, fn func(domain.Repository) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&repo{q: tx})
	})
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

// Close closes the pool
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

type repo struct {
	q querier
}

func (r *repo) CreateSegment(ctx context.Context, segment *domain.RoadSegment) error {
	query := `
		INSERT INTO road_segments (code, name, direction, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		segment.Code, segment.Name, segment.Direction, segment.Latitude, segment.Longitude,
	).Scan(&segment.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to save segment %s: %w", segment.Code, err)
	}

	return nil
}

const segmentColumns = `id, code, name, direction, latitude, longitude`

func scanSegment(row pgx.Row) (domain.RoadSegment, error) {
	var seg domain.RoadSegment
	err := row.Scan(&seg.ID, &seg.Code, &seg.Name, &seg.Direction, &seg.Latitude, &seg.Longitude)
	return seg, err
}

func (r *repo) getSegment(ctx context.Context, where string, arg any) (domain.RoadSegment, error) {
	seg, err := scanSegment(r.q.QueryRow(ctx, `SELECT `+segmentColumns+` FROM road_segments WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RoadSegment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RoadSegment{}, fmt.Errorf("postgres: failed to get segment %v: %w", arg, err)
	}
	return seg, nil
}

func (r *repo) GetSegment(ctx context.Context, id int64) (domain.RoadSegment, error) {
	return r.getSegment(ctx, `id = $1`, id)
}

func (r *repo) GetSegmentByCode(ctx context.Context, code string) (domain.RoadSegment, error) {
	return r.getSegment(ctx, `code = $1`, code)
}

func (r *repo) ListSegments(ctx context.Context) ([]domain.RoadSegment, error) {
	rows, err := r.q.Query(ctx, `SELECT `+segmentColumns+` FROM road_segments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query segments: %w", err)
	}
	defer rows.Close()

	results := make([]domain.RoadSegment, 0)
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan segment row: %w", err)
		}
		results = append(results, seg)
	}

	return results, rows.Err()
}

func (r *repo) CreateSensor(ctx context.Context, sensor *domain.Sensor) error {
	if sensor.ID == 0 {
		err := r.q.QueryRow(ctx, `
			INSERT INTO sensors (name, type, road_segment_id, location_lat, location_lng, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			sensor.Name, string(sensor.Category), sensor.SegmentID, sensor.LocationLat, sensor.LocationLng, sensor.IsActive,
		).Scan(&sensor.ID)
		if err != nil {
			return fmt.Errorf("postgres: failed to save sensor %s: %w", sensor.Name, err)
		}
		return nil
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO sensors (id, name, type, road_segment_id, location_lat, location_lng, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		sensor.ID, sensor.Name, string(sensor.Category), sensor.SegmentID, sensor.LocationLat, sensor.LocationLng, sensor.IsActive,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save sensor %d: %w", sensor.ID, err)
	}

	// explicit ids bypass the sequence; move it past them
	_, err = r.q.Exec(ctx, `SELECT setval(pg_get_serial_sequence('sensors', 'id'), (SELECT MAX(id) FROM sensors))`)
	if err != nil {
		return fmt.Errorf("postgres: failed to advance sensor sequence: %w", err)
	}

	return nil
}

const sensorColumns = `id, name, type, road_segment_id, location_lat, location_lng, is_active`

func scanSensor(row pgx.Row) (domain.Sensor, error) {
	var (
		s        domain.Sensor
		category string
	)
	err := row.Scan(&s.ID, &s.Name, &category, &s.SegmentID, &s.LocationLat, &s.LocationLng, &s.IsActive)
	s.Category = domain.SensorCategory(category)
	return s, err
}

func (r *repo) GetSensor(ctx context.Context, id int64) (domain.Sensor, error) {
	s, err := scanSensor(r.q.QueryRow(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Sensor{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Sensor{}, fmt.Errorf("postgres: failed to get sensor %d: %w", id, err)
	}
	return s, nil
}

func (r *repo) ListSensors(ctx context.Context) ([]domain.Sensor, error) {
	return r.querySensors(ctx, `SELECT `+sensorColumns+` FROM sensors ORDER BY id`)
}

func (r *repo) ListSegmentSensors(ctx context.Context, segmentID int64) ([]domain.Sensor, error) {
	return r.querySensors(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE road_segment_id = $1 ORDER BY id`, segmentID)
}

func (r *repo) querySensors(ctx context.Context, query string, args ...any) ([]domain.Sensor, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query sensors: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Sensor, 0)
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan sensor row: %w", err)
		}
		results = append(results, s)
	}

	return results, rows.Err()
}

// InsertReading persists a reading; data is stored as JSONB
func (r *repo) InsertReading(ctx context.Context, reading *domain.SensorReading) error {
	data := reading.Data
	if data == nil {
		data = map[string]any{}
	}
	reading.Timestamp = reading.Timestamp.UTC()

	err := r.q.QueryRow(ctx, `
		INSERT INTO sensor_readings (sensor_id, timestamp, data)
		VALUES ($1, $2, $3)
		RETURNING id`,
		reading.SensorID, reading.Timestamp, data,
	).Scan(&reading.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to save reading for sensor %d: %w", reading.SensorID, err)
	}

	return nil
}

func (r *repo) ReadingsSince(ctx context.Context, segmentID int64, category domain.SensorCategory, since time.Time) ([]domain.SensorReading, error) {
	query := `
		SELECT r.id, r.sensor_id, r.timestamp, r.data, s.type
		FROM sensor_readings r
		JOIN sensors s ON s.id = r.sensor_id
		WHERE s.road_segment_id = $1 AND s.type = $2 AND r.timestamp >= $3
		ORDER BY r.timestamp ASC, r.id ASC
	`

	rows, err := r.q.Query(ctx, query, segmentID, string(category), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query readings: %w", err)
	}
	defer rows.Close()

	results := make([]domain.SensorReading, 0)
	for rows.Next() {
		var (
			rd  domain.SensorReading
			cat string
		)
		if err := rows.Scan(&rd.ID, &rd.SensorID, &rd.Timestamp, &rd.Data, &cat); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan reading row: %w", err)
		}
		rd.Timestamp = rd.Timestamp.UTC()
		rd.Category = domain.SensorCategory(cat)
		results = append(results, rd)
	}

	return results, rows.Err()
}

const incidentColumns = `id, road_segment_id, created_at, updated_at, status, severity, type,
	rule_triggered, ai_summary, ai_cause, ai_recommendation, resolution_note`

func scanIncident(row pgx.Row) (domain.Incident, error) {
	var (
		inc              domain.Incident
		status, severity string
	)
	err := row.Scan(&inc.ID, &inc.SegmentID, &inc.CreatedAt, &inc.UpdatedAt, &status, &severity, &inc.Type,
		&inc.RuleTriggered, &inc.AISummary, &inc.AICause, &inc.AIRecommendation, &inc.ResolutionNote)
	if err != nil {
		return domain.Incident{}, err
	}
	inc.CreatedAt = inc.CreatedAt.UTC()
	inc.UpdatedAt = inc.UpdatedAt.UTC()
	inc.Status = domain.IncidentStatus(status)
	inc.Severity = domain.Severity(severity)
	return inc, nil
}

func (r *repo) FindOpenIncident(ctx context.Context, segmentID int64, incidentType string) (domain.Incident, error) {
	inc, err := scanIncident(r.q.QueryRow(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE road_segment_id = $1 AND type = $2 AND status = 'OPEN'
		ORDER BY created_at DESC
		LIMIT 1`,
		segmentID, incidentType,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Incident{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Incident{}, fmt.Errorf("postgres: failed to find open incident: %w", err)
	}
	return inc, nil
}

// CreateOpenIncident relies on the partial unique index
// incidents_one_open_per_type; a concurrent winner makes the insert a no-op.
func (r *repo) CreateOpenIncident(ctx context.Context, incident *domain.Incident) (bool, error) {
	incident.Status = domain.StatusOpen
	incident.CreatedAt = incident.CreatedAt.UTC()
	incident.UpdatedAt = incident.UpdatedAt.UTC()

	err := r.q.QueryRow(ctx, `
		INSERT INTO incidents (road_segment_id, created_at, updated_at, status, severity, type, rule_triggered)
		VALUES ($1, $2, $3, 'OPEN', $4, $5, $6)
		ON CONFLICT (road_segment_id, type) WHERE status = 'OPEN' DO NOTHING
		RETURNING id`,
		incident.SegmentID, incident.CreatedAt, incident.UpdatedAt,
		string(incident.Severity), incident.Type, incident.RuleTriggered,
	).Scan(&incident.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres: failed to save incident: %w", err)
	}
	return true, nil
}

func (r *repo) TouchIncident(ctx context.Context, id int64, at time.Time) error {
	return r.execOne(ctx, "touch incident", `UPDATE incidents SET updated_at = $1 WHERE id = $2`, at.UTC(), id)
}

func (r *repo) GetIncident(ctx context.Context, id int64) (domain.Incident, error) {
	inc, err := scanIncident(r.q.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Incident{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Incident{}, fmt.Errorf("postgres: failed to get incident %d: %w", id, err)
	}
	return inc, nil
}

func (r *repo) ListIncidents(ctx context.Context, filter domain.IncidentFilter) ([]domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	var args []any
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query incidents: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan incident row: %w", err)
		}
		results = append(results, inc)
	}

	return results, rows.Err()
}

func (r *repo) UpdateNarrative(ctx context.Context, id int64, n domain.Narrative) error {
	return r.execOne(ctx, "update narrative", `
		UPDATE incidents SET ai_summary = $1, ai_cause = $2, ai_recommendation = $3
		WHERE id = $4`,
		n.Summary, n.Cause, n.Recommendation, id,
	)
}

func (r *repo) ResolveIncident(ctx context.Context, id int64, note *string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE incidents
		SET status = 'RESOLVED', updated_at = $1, resolution_note = COALESCE($2, resolution_note)
		WHERE id = $3 AND status = 'OPEN'`,
		at.UTC(), note, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to resolve incident %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetIncident(ctx, id); err != nil {
		return err
	}
	return domain.ErrIncidentNotOpen
}

func (r *repo) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) Stats(ctx context.Context, since time.Time) (domain.Stats, error) {
	var stats domain.Stats

	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE timestamp >= $1), MAX(timestamp)
		FROM sensor_readings`,
		since.UTC(),
	).Scan(&stats.TotalReadings, &stats.RecentReadings, &stats.LastReadingAt)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("postgres: failed to count readings: %w", err)
	}

	err = r.q.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'OPEN'), MAX(created_at)
		FROM incidents`,
	).Scan(&stats.TotalIncidents, &stats.OpenIncidents, &stats.LastIncidentAt)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("postgres: failed to count incidents: %w", err)
	}

	for _, ts := range []*time.Time{stats.LastReadingAt, stats.LastIncidentAt} {
		if ts != nil {
			*ts = ts.UTC()
		}
	}
	return stats, nil
}

var _ domain.Store = (*PostgresRepository)(nil)
