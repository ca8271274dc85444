package detection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smartcity/rtiis/internal/domain"
	"github.com/smartcity/rtiis/internal/repository/memory"
)

var testNow = time.Date(2024, 5, 6, 8, 30, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	segment domain.RoadSegment
	flow    domain.Sensor
	speed   domain.Sensor
	stopped domain.Sensor
}

// newFixture creates a segment with one sensor of each category
func newFixture(t *testing.T, store *memory.Store, code string) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{store: store}
	f.segment = domain.RoadSegment{Code: code, Name: "Test " + code, Direction: "NORTH"}
	require.NoError(t, store.CreateSegment(ctx, &f.segment))

	for _, s := range []*domain.Sensor{&f.flow, &f.speed, &f.stopped} {
		*s = domain.Sensor{SegmentID: f.segment.ID, IsActive: true}
	}
	f.flow.Category, f.flow.Name = domain.CategoryFlow, "Flow"
	f.speed.Category, f.speed.Name = domain.CategorySpeed, "Speed"
	f.stopped.Category, f.stopped.Name = domain.CategoryStoppedVehicle, "Stopped"
	for _, s := range []*domain.Sensor{&f.flow, &f.speed, &f.stopped} {
		require.NoError(t, store.CreateSensor(ctx, s))
	}
	return f
}

func (f *fixture) add(t *testing.T, sensor domain.Sensor, ago time.Duration, data map[string]any) {
	t.Helper()
	r := &domain.SensorReading{SensorID: sensor.ID, Timestamp: testNow.Add(-ago), Data: data}
	require.NoError(t, f.store.InsertReading(context.Background(), r))
}

func (f *fixture) addFlow(t *testing.T, ago time.Duration, v any) {
	t.Helper()
	f.add(t, f.flow, ago, map[string]any{domain.KeyVehiclesPerMinute: v})
}

func (f *fixture) addSpeed(t *testing.T, ago time.Duration, v any) {
	t.Helper()
	f.add(t, f.speed, ago, map[string]any{domain.KeyAvgSpeedKmh: v})
}

func (f *fixture) addStopped(t *testing.T, ago time.Duration, count int, blocked bool) {
	t.Helper()
	f.add(t, f.stopped, ago, map[string]any{domain.KeyStoppedCount: count, domain.KeyLaneBlocked: blocked})
}

// seedHealthyBaseline writes the reference baseline: flow {60,62,58,61} and
// speed {75,70,72,74}, five to two minutes before now.
func (f *fixture) seedHealthyBaseline(t *testing.T) {
	t.Helper()
	flows := []float64{60, 62, 58, 61}
	speeds := []float64{75, 70, 72, 74}
	for i, minutesAgo := range []int{5, 4, 3, 2} {
		f.addFlow(t, time.Duration(minutesAgo)*time.Minute, flows[i])
		f.addSpeed(t, time.Duration(minutesAgo)*time.Minute, speeds[i])
	}
}

// seedDrop writes two dropped samples inside the baseline exclusion interval
func (f *fixture) seedDrop(t *testing.T, flow, speed float64) {
	t.Helper()
	for _, ago := range []time.Duration{20 * time.Second, 5 * time.Second} {
		f.addFlow(t, ago, flow)
		f.addSpeed(t, ago, speed)
	}
}

func reading(ago time.Duration, data map[string]any) domain.SensorReading {
	return domain.SensorReading{Timestamp: testNow.Add(-ago), Data: data}
}
