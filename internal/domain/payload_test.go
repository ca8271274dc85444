package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	t.Run("flow keeps extra keys and types the required one", func(t *testing.T) {
		p, err := ParsePayload(CategoryFlow, map[string]any{
			KeyVehiclesPerMinute: "42",
			"lane":               2.0,
		})
		require.NoError(t, err)

		flow, ok := p.(FlowPayload)
		require.True(t, ok)
		assert.Equal(t, 42.0, flow.VehiclesPerMinute)
		assert.Equal(t, map[string]any{KeyVehiclesPerMinute: 42.0, "lane": 2.0}, p.Data())
	})

	t.Run("speed accepts json numbers", func(t *testing.T) {
		p, err := ParsePayload(CategorySpeed, map[string]any{KeyAvgSpeedKmh: json.Number("71.5")})
		require.NoError(t, err)
		assert.Equal(t, CategorySpeed, p.Category())
		assert.Equal(t, 71.5, p.(SpeedPayload).AvgSpeedKmh)
	})

	t.Run("stopped vehicle", func(t *testing.T) {
		p, err := ParsePayload(CategoryStoppedVehicle, map[string]any{
			KeyStoppedCount: 2.0,
			KeyLaneBlocked:  true,
		})
		require.NoError(t, err)
		assert.Equal(t, StoppedVehiclePayload{StoppedCount: 2, LaneBlocked: true}, p)
		assert.Equal(t, map[string]any{KeyStoppedCount: 2, KeyLaneBlocked: true}, p.Data())
	})

	rejected := []struct {
		name     string
		category SensorCategory
		data     map[string]any
	}{
		{"flow missing key", CategoryFlow, map[string]any{"speed": 3}},
		{"flow nil data", CategoryFlow, nil},
		{"flow non numeric", CategoryFlow, map[string]any{KeyVehiclesPerMinute: "lots"}},
		{"flow boolean", CategoryFlow, map[string]any{KeyVehiclesPerMinute: true}},
		{"speed missing key", CategorySpeed, map[string]any{KeyVehiclesPerMinute: 3}},
		{"stopped missing lane_blocked", CategoryStoppedVehicle, map[string]any{KeyStoppedCount: 1}},
		{"stopped missing count", CategoryStoppedVehicle, map[string]any{KeyLaneBlocked: true}},
		{"stopped fractional count", CategoryStoppedVehicle, map[string]any{KeyStoppedCount: 1.5, KeyLaneBlocked: true}},
		{"stopped string flag", CategoryStoppedVehicle, map[string]any{KeyStoppedCount: 1, KeyLaneBlocked: "yes"}},
		{"unknown category", SensorCategory("NOISE"), map[string]any{}},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePayload(tc.category, tc.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPayload))
		})
	}
}

func TestSensorReadingAccessors(t *testing.T) {
	r := SensorReading{Data: map[string]any{
		"a":            12.5,
		"b":            "7",
		"c":            "n/a",
		"d":            nil,
		KeyLaneBlocked: true,
		"blocked_str":  "true",
	}}

	v, ok := r.Number("a")
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)

	v, ok = r.Number("b")
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok = r.Number("c")
	assert.False(t, ok)
	_, ok = r.Number("d")
	assert.False(t, ok)
	_, ok = r.Number("missing")
	assert.False(t, ok)

	assert.True(t, r.Flag(KeyLaneBlocked))
	assert.False(t, r.Flag("blocked_str"))
	assert.False(t, SensorReading{}.Flag(KeyLaneBlocked))
}
