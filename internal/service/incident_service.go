package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/smartcity/rtiis/internal/detection"
	"github.com/smartcity/rtiis/internal/domain"
	"github.com/smartcity/rtiis/internal/timeutil"
)

const (
	DefaultIncidentLimit = 50
	MaxIncidentLimit     = 200
	MaxResolutionNoteLen = 512

	detailReadingLimit = 50
)

// IncidentService serves incident queries and operator actions
type IncidentService struct {
	store  Store
	engine *detection.Engine
	clock  timeutil.Clock
}

// NewIncidentService creates a new incident service
func NewIncidentService(store Store, engine *detection.Engine, clock timeutil.Clock) *IncidentService {
	return &IncidentService{store: store, engine: engine, clock: clock}
}

// ListIncidents returns incidents newest first. An empty status matches all.
// Callers without a limit pass DefaultIncidentLimit.
func (s *IncidentService) ListIncidents(ctx context.Context, status string, limit int) ([]domain.Incident, error) {
	filter := domain.IncidentFilter{Limit: limit}
	if filter.Limit < 1 || filter.Limit > MaxIncidentLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidArgument, MaxIncidentLimit)
	}
	if status != "" {
		st := domain.IncidentStatus(strings.ToUpper(status))
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, status)
		}
		filter.Status = &st
	}
	return s.store.ListIncidents(ctx, filter)
}

// GetIncident returns the incident with its segment and the most recent
// readings of that segment in chronological order
func (s *IncidentService) GetIncident(ctx context.Context, id int64) (domain.IncidentDetail, error) {
	incident, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return domain.IncidentDetail{}, err
	}
	segment, err := s.store.GetSegment(ctx, incident.SegmentID)
	if err != nil {
		return domain.IncidentDetail{}, err
	}
	windows, err := s.engine.Windows(ctx, s.store, segment.ID, s.clock.Now())
	if err != nil {
		return domain.IncidentDetail{}, err
	}

	return domain.IncidentDetail{
		Incident:       incident,
		Segment:        segment,
		RecentReadings: windows.Merged(detailReadingLimit),
	}, nil
}

// ResolveIncident closes an OPEN incident with an optional note
func (s *IncidentService) ResolveIncident(ctx context.Context, id int64, note *string) error {
	if note != nil && utf8.RuneCountInString(*note) > MaxResolutionNoteLen {
		return fmt.Errorf("%w: resolution note exceeds %d characters", domain.ErrInvalidArgument, MaxResolutionNoteLen)
	}
	return s.store.ResolveIncident(ctx, id, note, s.clock.Now())
}

// ListSegments returns every road segment
func (s *IncidentService) ListSegments(ctx context.Context) ([]domain.RoadSegment, error) {
	return s.store.ListSegments(ctx)
}

// ListSensors returns every sensor
func (s *IncidentService) ListSensors(ctx context.Context) ([]domain.Sensor, error) {
	return s.store.ListSensors(ctx)
}
