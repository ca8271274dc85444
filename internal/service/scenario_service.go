package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/smartcity/rtiis/internal/detection"
	"github.com/smartcity/rtiis/internal/domain"
	"github.com/smartcity/rtiis/internal/timeutil"
	"github.com/smartcity/rtiis/pkg/utils"
)

const scenarioHistoryMinutes = 10

// ErrUnknownScenario is returned for a scenario name that is not registered
var ErrUnknownScenario = errors.New("unknown scenario")

// sample is one minute of synthetic sensor output
type sample struct {
	speed   float64
	flow    float64
	stopped int
	blocked bool
}

type scenario struct {
	label     string
	decision  detection.Decision
	narrative func(segment domain.RoadSegment) domain.Narrative
	// profile returns the sample for minute i of scenarioHistoryMinutes
	profile func(i int, rng *rand.Rand) sample
}

var scenarios = map[string]scenario{
	"congestion": {
		label:    "congestion",
		decision: detection.Decision{Type: domain.IncidentCongestion, Severity: domain.SeverityHigh, Rule: domain.RuleDemoScenario},
		narrative: func(seg domain.RoadSegment) domain.Narrative {
			return domain.Narrative{
				Summary:        fmt.Sprintf("Heavy congestion detected on %s. Traffic flow significantly reduced with average speeds below 20 km/h.", seg.Name),
				Cause:          "High traffic volume combined with possible incident ahead causing backup.",
				Recommendation: "Consider alternate routes. Dispatch traffic management team to assess.",
			}
		},
		profile: func(i int, rng *rand.Rand) sample {
			t := progress(i)
			return sample{
				speed: utils.Range{Min: 15, Max: 130}.Clip(utils.Ramp(65, 15, t, jitter(rng, 3))),
				flow:  utils.Range{Min: 10, Max: 120}.Clip(utils.Ramp(45, 15, t, float64(rng.Intn(11)-5))),
			}
		},
	},
	"stopped-vehicle": {
		label:    "stopped_vehicle",
		decision: detection.Decision{Type: domain.IncidentStoppedVehicle, Severity: domain.SeverityMedium, Rule: domain.RuleDemoScenario},
		narrative: func(seg domain.RoadSegment) domain.Narrative {
			return domain.Narrative{
				Summary:        fmt.Sprintf("Stopped vehicle detected on %s. Lane partially blocked.", seg.Name),
				Cause:          "Possible vehicle breakdown or minor collision.",
				Recommendation: "Dispatch roadside assistance. Alert drivers via variable message signs.",
			}
		},
		profile: func(i int, rng *rand.Rand) sample {
			s := sample{
				speed: 35 + jitter(rng, 5),
				flow:  utils.Ramp(35, 25, progress(i), float64(rng.Intn(7)-3)),
			}
			if i < 7 {
				s.speed = utils.Ramp(45, 25, progress(i), jitter(rng, 5))
			}
			if i >= 5 {
				s.stopped, s.blocked = 1+rng.Intn(3), true
			}
			return s
		},
	},
	"multi-lane-slowdown": {
		label:    "multi_lane_slowdown",
		decision: detection.Decision{Type: domain.IncidentMultiLaneSlowdown, Severity: domain.SeverityHigh, Rule: domain.RuleDemoScenario},
		narrative: func(seg domain.RoadSegment) domain.Narrative {
			return domain.Narrative{
				Summary:        fmt.Sprintf("Severe traffic slowdown across multiple lanes on %s. Near standstill conditions.", seg.Name),
				Cause:          "Major incident or accident causing widespread lane blockage.",
				Recommendation: "Urgent: Dispatch emergency response. Consider temporary road closure and activate detour routing.",
			}
		},
		profile: func(i int, rng *rand.Rand) sample {
			t := progress(i)
			s := sample{
				speed: utils.Range{Min: 5, Max: 130}.Clip(utils.Ramp(60, 0, t, jitter(rng, 2))),
				flow:  utils.Range{Min: 5, Max: 120}.Clip(utils.Ramp(40, 0, t, float64(rng.Intn(7)-3))),
			}
			if i >= 3 {
				s.stopped, s.blocked = 2+rng.Intn(4), true
			}
			return s
		},
	},
}

func progress(i int) float64 {
	return float64(i) / scenarioHistoryMinutes
}

func jitter(rng *rand.Rand, amplitude float64) float64 {
	return (rng.Float64()*2 - 1) * amplitude
}

// ScenarioService generates demo incidents with believable sensor history
type ScenarioService struct {
	store Store
	clock timeutil.Clock

	mu  sync.Mutex
	rng *rand.Rand
}

// NewScenarioService creates a scenario service with a deterministic random source
func NewScenarioService(store Store, clock timeutil.Clock, seed int64) *ScenarioService {
	return &ScenarioService{
		store: store,
		clock: clock,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Trigger writes ten minutes of synthetic readings for the named scenario and
// records its demo incident through the regular lifecycle, so an already OPEN
// incident of the same type absorbs it.
func (s *ScenarioService) Trigger(ctx context.Context, name string) (domain.ScenarioResult, error) {
	sc, ok := scenarios[name]
	if !ok {
		return domain.ScenarioResult{}, fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	result := domain.ScenarioResult{Status: "success", Scenario: sc.label}

	err := s.store.InTx(ctx, func(repo domain.Repository) error {
		segment, found, err := pickSegment(ctx, repo, sc.decision.Type)
		if err != nil {
			return err
		}
		if !found {
			result.Status = "error"
			return nil
		}

		created, err := s.writeHistory(ctx, repo, segment.ID, sc, now)
		if err != nil {
			return err
		}
		result.ReadingsCreated = created

		incident, err := detection.UpsertIncident(ctx, repo, segment.ID, sc.decision, now)
		if err != nil {
			return err
		}
		if incident == nil {
			return nil
		}
		if err := repo.UpdateNarrative(ctx, incident.ID, sc.narrative(segment)); err != nil {
			return err
		}
		result.IncidentID = &incident.ID
		return nil
	})
	if err != nil {
		return domain.ScenarioResult{}, err
	}

	log.Printf("Scenario %s: %d readings, incident %v", name, result.ReadingsCreated, result.IncidentID != nil)
	return result, nil
}

// pickSegment prefers the first segment without an OPEN incident of the type
func pickSegment(ctx context.Context, repo domain.Repository, incidentType string) (domain.RoadSegment, bool, error) {
	segments, err := repo.ListSegments(ctx)
	if err != nil || len(segments) == 0 {
		return domain.RoadSegment{}, false, err
	}
	for _, seg := range segments {
		_, err := repo.FindOpenIncident(ctx, seg.ID, incidentType)
		if errors.Is(err, domain.ErrNotFound) {
			return seg, true, nil
		}
		if err != nil {
			return domain.RoadSegment{}, false, err
		}
	}
	return segments[0], true, nil
}

func (s *ScenarioService) writeHistory(ctx context.Context, repo domain.Repository, segmentID int64, sc scenario, now time.Time) (int, error) {
	sensors, err := repo.ListSegmentSensors(ctx, segmentID)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := 0; i < scenarioHistoryMinutes; i++ {
		ts := now.Add(-time.Duration(scenarioHistoryMinutes-i) * time.Minute)
		smp := sc.profile(i, s.rng)

		for _, sensor := range sensors {
			var payload domain.Payload
			switch sensor.Category {
			case domain.CategoryFlow:
				payload = domain.FlowPayload{VehiclesPerMinute: utils.Quantize(smp.flow, 0)}
			case domain.CategorySpeed:
				payload = domain.SpeedPayload{AvgSpeedKmh: utils.Quantize(smp.speed, 1)}
			case domain.CategoryStoppedVehicle:
				payload = domain.StoppedVehiclePayload{StoppedCount: smp.stopped, LaneBlocked: smp.blocked}
			default:
				continue
			}

			reading := domain.SensorReading{SensorID: sensor.ID, Timestamp: ts, Data: payload.Data()}
			if err := repo.InsertReading(ctx, &reading); err != nil {
				return 0, err
			}
			created++
		}
	}
	return created, nil
}
