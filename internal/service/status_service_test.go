package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/rtiis/internal/timeutil"
)

type downStore struct {
	Store
}

func (downStore) Health(ctx context.Context) error { return errors.New("connection refused") }

func TestStatus(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewMockClock(testNow)
	svc, store, narrator := newIngest(t)
	_, err := svc.Ingest(ctx, baselineBatch())
	require.NoError(t, err)

	status := NewStatusService(store, narrator, clock)
	clock.Advance(90 * time.Second)

	got, err := status.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", got.BackendStatus)
	assert.Equal(t, "connected", got.DBStatus)
	assert.Equal(t, "fallback", got.LLMStatus)
	assert.Equal(t, int64(8), got.TotalReadings)
	assert.Zero(t, got.ReadingsLastMinute)
	assert.Zero(t, got.OpenIncidents)
	assert.Nil(t, got.LastIncidentAt)
	require.NotNil(t, got.LastReadingAt)
	assert.Equal(t, testNow.Add(-2*time.Minute), *got.LastReadingAt)
	assert.Equal(t, 90.0, got.UptimeSeconds)

	enabled := NewLLMBridge(LLMConfig{Provider: "openai", APIKey: "k"})
	got, err = NewStatusService(downStore{store}, enabled, clock).Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "disconnected", got.DBStatus)
	assert.Equal(t, "online", got.LLMStatus)
	assert.Zero(t, got.TotalReadings)
}
