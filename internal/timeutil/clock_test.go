package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 5, 6, 10, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	clock := NewMockClock(start)

	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.True(t, clock.Now().Equal(start))

	clock.Advance(90 * time.Second)
	assert.Equal(t, 90*time.Second, clock.Since(start))
	assert.Equal(t, start.Add(90*time.Second).UTC(), clock.Now())
}

func TestRealClock(t *testing.T) {
	var clock Clock = RealClock{}
	before := clock.Now()
	assert.Equal(t, time.UTC, before.Location())
	assert.GreaterOrEqual(t, clock.Since(before), time.Duration(0))
}
