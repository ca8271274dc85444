package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/rtiis/internal/domain"
	"github.com/smartcity/rtiis/internal/repository/memory"
	"github.com/smartcity/rtiis/internal/timeutil"
)

func TestScenarioTrigger(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := NewScenarioService(store, timeutil.NewMockClock(testNow), 1)

	res, err := svc.Trigger(ctx, "congestion")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "congestion", res.Scenario)
	assert.Equal(t, 30, res.ReadingsCreated)
	require.NotNil(t, res.IncidentID)

	inc, err := store.GetIncident(ctx, *res.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentCongestion, inc.Type)
	assert.Equal(t, domain.SeverityHigh, inc.Severity)
	assert.Equal(t, domain.RuleDemoScenario, inc.RuleTriggered)
	assert.Equal(t, int64(1), inc.SegmentID)
	require.NotNil(t, inc.AISummary)
	assert.Contains(t, *inc.AISummary, "I-71 North - Downtown to Blue Ash")

	readings, err := store.ReadingsSince(ctx, 1, domain.CategorySpeed, testNow.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, readings, 10)
	assert.Equal(t, testNow.Add(-10*time.Minute), readings[0].Timestamp)
	assert.Equal(t, testNow.Add(-time.Minute), readings[9].Timestamp)
	for _, r := range readings {
		v, ok := r.Number(domain.KeyAvgSpeedKmh)
		require.True(t, ok)
		assert.GreaterOrEqual(t, v, 15.0)
	}

	// the next trigger moves on to a segment without an OPEN congestion incident
	res, err = svc.Trigger(ctx, "congestion")
	require.NoError(t, err)
	require.NotNil(t, res.IncidentID)
	inc, err = store.GetIncident(ctx, *res.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inc.SegmentID)
}

func TestScenarioAbsorbedWhenEverySegmentIsBusy(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := NewScenarioService(store, timeutil.NewMockClock(testNow), 1)

	for i := 0; i < 4; i++ {
		res, err := svc.Trigger(ctx, "multi-lane-slowdown")
		require.NoError(t, err)
		require.NotNil(t, res.IncidentID)
	}

	res, err := svc.Trigger(ctx, "multi-lane-slowdown")
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "multi_lane_slowdown", res.Scenario)
	assert.Nil(t, res.IncidentID)
	assert.Equal(t, 30, res.ReadingsCreated)

	open := domain.StatusOpen
	incidents, err := store.ListIncidents(ctx, domain.IncidentFilter{Status: &open})
	require.NoError(t, err)
	assert.Len(t, incidents, 4, "one OPEN incident per segment")
}

func TestScenarioStoppedVehicleHistory(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	svc := NewScenarioService(store, timeutil.NewMockClock(testNow), 7)

	res, err := svc.Trigger(ctx, "stopped-vehicle")
	require.NoError(t, err)
	assert.Equal(t, "stopped_vehicle", res.Scenario)

	readings, err := store.ReadingsSince(ctx, 1, domain.CategoryStoppedVehicle, testNow.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, readings, 10)
	for i, r := range readings {
		_, err := domain.ParsePayload(domain.CategoryStoppedVehicle, r.Data)
		require.NoError(t, err)
		assert.Equal(t, i >= 5, r.Flag(domain.KeyLaneBlocked))
	}
}

func TestScenarioErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewScenarioService(seededStore(t), timeutil.NewMockClock(testNow), 1).Trigger(ctx, "earthquake")
	assert.ErrorIs(t, err, ErrUnknownScenario)

	res, err := NewScenarioService(memory.NewStore(), timeutil.NewMockClock(testNow), 1).Trigger(ctx, "congestion")
	require.NoError(t, err)
	assert.Equal(t, "error", res.Status)
	assert.Nil(t, res.IncidentID)
}
