package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/rtiis/internal/domain"
)

func TestSeedReferenceData(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	require.NoError(t, SeedReferenceData(ctx, store), "seeding twice is a no-op")

	segments, err := store.ListSegments(ctx)
	require.NoError(t, err)
	require.Len(t, segments, 4)
	assert.Equal(t, "I71_N_SEG_A", segments[0].Code)
	assert.Equal(t, "WEST", segments[3].Direction)
	require.NotNil(t, segments[2].Latitude)
	assert.Equal(t, 39.06, *segments[2].Latitude)

	sensors, err := store.ListSensors(ctx)
	require.NoError(t, err)
	require.Len(t, sensors, 12)
	for i, s := range sensors {
		assert.Equal(t, int64(i+1), s.ID)
		assert.Equal(t, segments[i/3].ID, s.SegmentID)
		assert.Equal(t, domain.Categories[i%3], s.Category)
		assert.True(t, s.IsActive)
	}
	assert.Equal(t, "Segment A Flow Sensor", sensors[0].Name)
	assert.Equal(t, "I-75 North Speed Sensor", sensors[4].Name)
}
