package service

import (
	"context"
	"log"
	"time"

	"github.com/smartcity/rtiis/internal/domain"
	"github.com/smartcity/rtiis/internal/timeutil"
)

// StatusService reports system diagnostics
type StatusService struct {
	store     Store
	narrator  Narrator
	clock     timeutil.Clock
	startedAt time.Time
}

// NewStatusService creates a status service; uptime counts from now
func NewStatusService(store Store, narrator Narrator, clock timeutil.Clock) *StatusService {
	return &StatusService{
		store:     store,
		narrator:  narrator,
		clock:     clock,
		startedAt: clock.Now(),
	}
}

// Status collects counters from the store. A store that fails its health
// check is reported as disconnected instead of failing the call.
func (s *StatusService) Status(ctx context.Context) (domain.SystemStatus, error) {
	now := s.clock.Now()
	status := domain.SystemStatus{
		BackendStatus: "healthy",
		DBStatus:      "connected",
		LLMStatus:     "fallback",
		UptimeSeconds: s.clock.Since(s.startedAt).Seconds(),
	}
	if s.narrator.Enabled() {
		status.LLMStatus = "online"
	}

	if err := s.store.Health(ctx); err != nil {
		log.Printf("Store health check failed: %v", err)
		status.DBStatus = "disconnected"
		return status, nil
	}

	stats, err := s.store.Stats(ctx, now.Add(-time.Minute))
	if err != nil {
		return domain.SystemStatus{}, err
	}
	status.TotalReadings = stats.TotalReadings
	status.ReadingsLastMinute = stats.RecentReadings
	status.TotalIncidents = stats.TotalIncidents
	status.OpenIncidents = stats.OpenIncidents
	status.LastIncidentAt = stats.LastIncidentAt
	status.LastReadingAt = stats.LastReadingAt
	return status, nil
}
