package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartcity/rtiis/internal/domain"
)

// Engine evaluates the detection rules for one segment at a time
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given thresholds
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine thresholds
func (e *Engine) Config() Config {
	return e.cfg
}

// Windows extracts the engine's trailing windows for a segment
func (e *Engine) Windows(ctx context.Context, repo domain.Repository, segmentID int64, now time.Time) (Windows, error) {
	return ExtractWindows(ctx, repo, segmentID, e.cfg.Window, now)
}

// Evaluate runs every rule against the segment's recent readings and returns
// only the incidents it newly created. An unknown segment yields no incidents.
// repo should be the caller's transaction; the caller commits.
func (e *Engine) Evaluate(ctx context.Context, repo domain.Repository, segmentID int64, now time.Time) ([]domain.Incident, error) {
	if _, err := repo.GetSegment(ctx, segmentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("detection: failed to load segment %d: %w", segmentID, err)
	}

	windows, err := e.Windows(ctx, repo, segmentID, now)
	if err != nil {
		return nil, err
	}

	var decisions []Decision
	if d, ok := EvaluateCongestion(windows, e.cfg, now); ok {
		decisions = append(decisions, d)
	}
	if d, ok := EvaluateStoppedVehicle(windows, e.cfg); ok {
		decisions = append(decisions, d)
	}

	var created []domain.Incident
	for _, d := range decisions {
		incident, err := UpsertIncident(ctx, repo, segmentID, d, now)
		if err != nil {
			return nil, err
		}
		if incident != nil {
			created = append(created, *incident)
		}
	}
	return created, nil
}
