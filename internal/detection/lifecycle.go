package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartcity/rtiis/internal/domain"
)

// UpsertIncident records a fired rule for a segment. When an OPEN incident of
// the same type exists its updated_at is touched and nil is returned;
// otherwise a new OPEN incident is created and returned.
//
// The store enforces one OPEN incident per (segment, type). If a concurrent
// unit of work wins the insert, CreateOpenIncident reports false and the fire
// is absorbed the same way as a touch.
func UpsertIncident(ctx context.Context, repo domain.Repository, segmentID int64, d Decision, now time.Time) (*domain.Incident, error) {
	now = now.UTC()

	existing, err := repo.FindOpenIncident(ctx, segmentID, d.Type)
	switch {
	case err == nil:
		if err := repo.TouchIncident(ctx, existing.ID, now); err != nil {
			return nil, fmt.Errorf("detection: failed to touch incident %d: %w", existing.ID, err)
		}
		return nil, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("detection: failed to look up open %s incident: %w", d.Type, err)
	}

	incident := &domain.Incident{
		SegmentID:     segmentID,
		Status:        domain.StatusOpen,
		Severity:      d.Severity,
		Type:          d.Type,
		RuleTriggered: d.Rule,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := repo.CreateOpenIncident(ctx, incident)
	if err != nil {
		return nil, fmt.Errorf("detection: failed to create %s incident: %w", d.Type, err)
	}
	if !created {
		return nil, nil
	}
	return incident, nil
}
