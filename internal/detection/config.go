// Package detection turns recent sensor readings of a road segment into
// incidents. It applies fixed threshold rules over short trailing windows
// and keeps at most one OPEN incident per segment and incident type.
package detection

import (
	"fmt"
	"time"
)

// Config holds the detection thresholds. The defaults are the values the
// rules were calibrated with; they are exposed for operators, not tuned.
type Config struct {
	// Window is the trailing interval loaded per segment
	Window time.Duration
	// BaselineWindow is the interval the "before" average is taken over
	BaselineWindow time.Duration
	// BaselineExclusion keeps the newest samples out of their own baseline
	BaselineExclusion time.Duration

	// MinBaselineFlow and MinBaselineSpeed require a healthy prior state
	MinBaselineFlow  float64
	MinBaselineSpeed float64
	// FlowDropRatio is the fraction of baseline flow at or below which flow counts as dropped
	FlowDropRatio float64
	// MaxCongestedSpeed is an absolute km/h threshold
	MaxCongestedSpeed float64

	// SustainedSamples is how many consecutive newest samples must agree
	SustainedSamples int
}

// DefaultConfig returns the calibrated thresholds
func DefaultConfig() Config {
	return Config{
		Window:            10 * time.Minute,
		BaselineWindow:    5 * time.Minute,
		BaselineExclusion: 30 * time.Second,
		MinBaselineFlow:   30,
		MinBaselineSpeed:  60,
		FlowDropRatio:     0.4,
		MaxCongestedSpeed: 25,
		SustainedSamples:  2,
	}
}

// Validate rejects configurations the rules cannot run with
func (c Config) Validate() error {
	switch {
	case c.Window <= 0:
		return fmt.Errorf("detection: window must be positive, got %s", c.Window)
	case c.BaselineWindow <= 0 || c.BaselineWindow > c.Window:
		return fmt.Errorf("detection: baseline window must be in (0, %s], got %s", c.Window, c.BaselineWindow)
	case c.BaselineExclusion < 0 || c.BaselineExclusion >= c.BaselineWindow:
		return fmt.Errorf("detection: baseline exclusion must be in [0, %s), got %s", c.BaselineWindow, c.BaselineExclusion)
	case c.FlowDropRatio <= 0 || c.FlowDropRatio >= 1:
		return fmt.Errorf("detection: flow drop ratio must be in (0, 1), got %g", c.FlowDropRatio)
	case c.SustainedSamples < 1:
		return fmt.Errorf("detection: sustained samples must be at least 1, got %d", c.SustainedSamples)
	}
	return nil
}
