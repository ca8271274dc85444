package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeClip(t *testing.T) {
	speed := Range{Min: 5, Max: 130}
	assert.Equal(t, 5.0, speed.Clip(-2))
	assert.Equal(t, 130.0, speed.Clip(131))
	assert.Equal(t, 42.5, speed.Clip(42.5))
}

func TestRamp(t *testing.T) {
	assert.Equal(t, 65.0, Ramp(65, 15, 0, 0))
	assert.Equal(t, 40.0, Ramp(65, 15, 0.5, 0))
	assert.Equal(t, 17.0, Ramp(65, 15, 1, 2))
	assert.Equal(t, 37.0, Ramp(35, 25, 0, 2))
}

func TestQuantize(t *testing.T) {
	assert.Equal(t, 12.3, Quantize(12.34, 1))
	assert.Equal(t, 13.0, Quantize(12.5, 0))
	assert.Equal(t, 20.0, Quantize(19.96, 1))
}
