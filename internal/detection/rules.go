package detection

import (
	"time"

	"github.com/smartcity/rtiis/internal/domain"
)

// Decision is what a rule produces when it fires
type Decision struct {
	Type     string
	Severity domain.Severity
	Rule     string
}

// EvaluateCongestion fires when flow and speed have both dropped for the
// last SustainedSamples cycles relative to a healthy baseline.
func EvaluateCongestion(w Windows, cfg Config, now time.Time) (Decision, bool) {
	n := cfg.SustainedSamples

	flow := numericSeries(w.Flow, domain.KeyVehiclesPerMinute)
	speed := numericSeries(w.Speed, domain.KeyAvgSpeedKmh)
	if len(flow) < n || len(speed) < n {
		return Decision{}, false
	}

	baselineFlow, ok := Baseline(w.Flow, domain.KeyVehiclesPerMinute, cfg.BaselineWindow, cfg.BaselineExclusion, now)
	if !ok {
		return Decision{}, false
	}
	baselineSpeed, ok := Baseline(w.Speed, domain.KeyAvgSpeedKmh, cfg.BaselineWindow, cfg.BaselineExclusion, now)
	if !ok {
		return Decision{}, false
	}

	// a degraded baseline means the segment was never healthy; don't re-fire
	if baselineFlow < cfg.MinBaselineFlow || baselineSpeed < cfg.MinBaselineSpeed {
		return Decision{}, false
	}

	flowThreshold := baselineFlow * cfg.FlowDropRatio
	if !allAtMost(flow[len(flow)-n:], flowThreshold) {
		return Decision{}, false
	}
	if !allAtMost(speed[len(speed)-n:], cfg.MaxCongestedSpeed) {
		return Decision{}, false
	}

	return Decision{
		Type:     domain.IncidentCongestion,
		Severity: domain.SeverityHigh,
		Rule:     domain.RuleFlowDropAndSpeedDrop,
	}, true
}

// EvaluateStoppedVehicle fires when the last SustainedSamples stopped-vehicle
// readings all report a stopped vehicle blocking a lane.
func EvaluateStoppedVehicle(w Windows, cfg Config) (Decision, bool) {
	n := cfg.SustainedSamples
	if len(w.Stopped) < n {
		return Decision{}, false
	}

	for _, r := range w.Stopped[len(w.Stopped)-n:] {
		if !isBlocked(r) {
			return Decision{}, false
		}
	}

	return Decision{
		Type:     domain.IncidentStoppedVehicle,
		Severity: domain.SeverityMedium,
		Rule:     domain.RuleStoppedVehicleDetected,
	}, true
}

func isBlocked(r domain.SensorReading) bool {
	count, ok := r.Number(domain.KeyStoppedCount)
	return ok && count >= 1 && r.Flag(domain.KeyLaneBlocked)
}

func allAtMost(values []float64, limit float64) bool {
	for _, v := range values {
		if v > limit {
			return false
		}
	}
	return true
}
