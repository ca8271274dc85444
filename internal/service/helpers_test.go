package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smartcity/rtiis/internal/detection"
	"github.com/smartcity/rtiis/internal/domain"
	"github.com/smartcity/rtiis/internal/repository/memory"
	"github.com/smartcity/rtiis/internal/timeutil"
)

var testNow = time.Date(2024, 5, 6, 8, 30, 0, 0, time.UTC)

// Seeded sensor ids of the first two reference segments
const (
	flowSensor     = 1
	speedSensor    = 2
	stoppedSensor  = 3
	stoppedSensorB = 6
)

type recordingNarrator struct {
	mu    sync.Mutex
	calls []int64
}

func (n *recordingNarrator) Narrate(ctx context.Context, incident domain.Incident, segment domain.RoadSegment, windows detection.Windows) domain.Narrative {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, incident.ID)
	return FallbackNarrative(incident.Type)
}

func (n *recordingNarrator) Enabled() bool { return false }

func (n *recordingNarrator) called() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int64(nil), n.calls...)
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, SeedReferenceData(context.Background(), store))
	return store
}

func newIngest(t *testing.T) (*IngestService, *memory.Store, *recordingNarrator) {
	t.Helper()
	store := seededStore(t)
	narrator := &recordingNarrator{}
	svc := NewIngestService(store, detection.NewEngine(detection.DefaultConfig()), narrator, timeutil.NewMockClock(testNow))
	return svc, store, narrator
}

func input(sensorID int64, ago time.Duration, data map[string]any) domain.ReadingInput {
	return domain.ReadingInput{
		SensorID:  sensorID,
		Timestamp: testNow.Add(-ago).Format(time.RFC3339Nano),
		Data:      data,
	}
}

func flowInput(ago time.Duration, v float64) domain.ReadingInput {
	return input(flowSensor, ago, map[string]any{domain.KeyVehiclesPerMinute: v})
}

func speedInput(ago time.Duration, v float64) domain.ReadingInput {
	return input(speedSensor, ago, map[string]any{domain.KeyAvgSpeedKmh: v})
}

func stoppedInput(sensorID int64, ago time.Duration, count int, blocked bool) domain.ReadingInput {
	return input(sensorID, ago, map[string]any{domain.KeyStoppedCount: count, domain.KeyLaneBlocked: blocked})
}

// baselineBatch is the healthy history of the congestion reference scenario
func baselineBatch() domain.IngestRequest {
	var req domain.IngestRequest
	flows := []float64{60, 62, 58, 61}
	speeds := []float64{75, 70, 72, 74}
	for i, m := range []int{5, 4, 3, 2} {
		ago := time.Duration(m) * time.Minute
		req.Readings = append(req.Readings, flowInput(ago, flows[i]), speedInput(ago, speeds[i]))
	}
	return req
}
