package detection

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/smartcity/rtiis/internal/domain"
)

// Baseline averages the numeric values at key among readings whose timestamp
// lies in [now-window, now-exclusion]. It reports ok=false when no reading
// qualifies; an absent baseline is not zero.
func Baseline(readings []domain.SensorReading, key string, window, exclusion time.Duration, now time.Time) (float64, bool) {
	now = now.UTC()
	from := now.Add(-window)
	to := now.Add(-exclusion)

	values := make([]float64, 0, len(readings))
	for _, r := range readings {
		ts := r.Timestamp.UTC()
		if ts.Before(from) || ts.After(to) {
			continue
		}
		v, ok := r.Number(key)
		if !ok {
			continue
		}
		values = append(values, v)
	}

	if len(values) == 0 {
		return 0, false
	}
	return stat.Mean(values, nil), true
}

// numericSeries returns the numeric values at key in reading order,
// skipping readings where the value is missing or not a number.
func numericSeries(readings []domain.SensorReading, key string) []float64 {
	values := make([]float64, 0, len(readings))
	for _, r := range readings {
		if v, ok := r.Number(key); ok {
			values = append(values, v)
		}
	}
	return values
}
