package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/rtiis/internal/domain"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/db":      "pgx5://u:p@localhost:5432/db",
		"postgresql://localhost/db?sslmode=off": "pgx5://localhost/db?sslmode=off",
		"pgx5://already":                        "pgx5://already",
	}
	for in, want := range cases {
		assert.Equal(t, want, migrateURL(in), in)
	}
}

// setupRepository connects to TEST_DATABASE_URL and starts from empty tables
func setupRepository(t *testing.T) *PostgresRepository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, MigrateUp(url))

	ctx := context.Background()
	repo, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	_, err = repo.pool.Exec(ctx, `TRUNCATE incidents, sensor_readings, sensors, road_segments RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return repo
}

func TestPostgresRoundTrip(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

	seg := domain.RoadSegment{Code: "PG_SEG", Name: "PG", Direction: "EAST"}
	require.NoError(t, repo.CreateSegment(ctx, &seg))
	sensor := domain.Sensor{ID: 7, Name: "flow", Category: domain.CategoryFlow, SegmentID: seg.ID, IsActive: true}
	require.NoError(t, repo.CreateSensor(ctx, &sensor))
	next := domain.Sensor{Name: "speed", Category: domain.CategorySpeed, SegmentID: seg.ID, IsActive: true}
	require.NoError(t, repo.CreateSensor(ctx, &next))
	assert.Greater(t, next.ID, int64(7))

	reading := domain.SensorReading{SensorID: sensor.ID, Timestamp: now, Data: map[string]any{domain.KeyVehiclesPerMinute: 42}}
	require.NoError(t, repo.InsertReading(ctx, &reading))

	readings, err := repo.ReadingsSince(ctx, seg.ID, domain.CategoryFlow, now)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, now, readings[0].Timestamp)
	assert.Equal(t, 42.0, readings[0].Data[domain.KeyVehiclesPerMinute])

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InTx(ctx, func(tx domain.Repository) error {
				inc := domain.Incident{SegmentID: seg.ID, Severity: domain.SeverityHigh, Type: domain.IncidentCongestion,
					RuleTriggered: domain.RuleFlowDropAndSpeedDrop, CreatedAt: now, UpdatedAt: now}
				ok, err := tx.CreateOpenIncident(ctx, &inc)
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)

	open, err := repo.FindOpenIncident(ctx, seg.ID, domain.IncidentCongestion)
	require.NoError(t, err)
	require.NoError(t, repo.ResolveIncident(ctx, open.ID, nil, now))
	assert.ErrorIs(t, repo.ResolveIncident(ctx, open.ID, nil, now), domain.ErrIncidentNotOpen)

	stats, err := repo.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalReadings)
	assert.Equal(t, int64(0), stats.OpenIncidents)
}
