package utils

import "math"

// Range bounds a synthetic sensor value
type Range struct {
	Min, Max float64
}

// Clip returns v limited to r
func (r Range) Clip(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

// Ramp is the point at progress p (0 to 1) on the line from start to end,
// offset by noise
func Ramp(start, end, p, noise float64) float64 {
	return start + (end-start)*p + noise
}

// Quantize rounds v to the given number of decimals, the resolution a
// sensor reports at
func Quantize(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}
