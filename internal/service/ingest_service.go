package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smartcity/rtiis/internal/detection"
	"github.com/smartcity/rtiis/internal/domain"
	"github.com/smartcity/rtiis/internal/timeutil"
)

const (
	enrichConcurrency = 4
	enrichTimeout     = 30 * time.Second
)

// IngestService persists reading batches and runs detection on them
type IngestService struct {
	store    Store
	engine   *detection.Engine
	narrator Narrator
	clock    timeutil.Clock

	wgBg sync.WaitGroup // tracks background enrichment for graceful shutdown
}

// NewIngestService creates a new ingest service
func NewIngestService(store Store, engine *detection.Engine, narrator Narrator, clock timeutil.Clock) *IngestService {
	return &IngestService{
		store:    store,
		engine:   engine,
		narrator: narrator,
		clock:    clock,
	}
}

// WaitBackground blocks until all background enrichment completes.
// Call during graceful shutdown so narratives are not dropped.
func (s *IngestService) WaitBackground() {
	s.wgBg.Wait()
}

type preparedReading struct {
	sensor  domain.Sensor
	reading domain.SensorReading
}

// Ingest validates, stores and evaluates one batch as a single unit of work.
// Any invalid reading rejects the whole batch before anything is written.
func (s *IngestService) Ingest(ctx context.Context, req domain.IngestRequest) (domain.IngestResult, error) {
	result := domain.IngestResult{
		Status:       "accepted",
		BatchID:      uuid.NewString(),
		NewIncidents: []int64{},
	}
	if len(req.Readings) == 0 {
		return result, nil
	}

	now := s.clock.Now()
	var created []domain.Incident

	err := s.store.InTx(ctx, func(repo domain.Repository) error {
		prepared, err := prepareBatch(ctx, repo, req.Readings)
		if err != nil {
			return err
		}

		impacted := make(map[int64]struct{})
		for i := range prepared {
			if err := repo.InsertReading(ctx, &prepared[i].reading); err != nil {
				return err
			}
			impacted[prepared[i].sensor.SegmentID] = struct{}{}
		}

		segmentIDs := make([]int64, 0, len(impacted))
		for id := range impacted {
			segmentIDs = append(segmentIDs, id)
		}
		sort.Slice(segmentIDs, func(i, j int) bool { return segmentIDs[i] < segmentIDs[j] })

		created = created[:0]
		for _, segmentID := range segmentIDs {
			incidents, err := s.engine.Evaluate(ctx, repo, segmentID, now)
			if err != nil {
				return err
			}
			created = append(created, incidents...)
		}
		return nil
	})
	if err != nil {
		return domain.IngestResult{}, err
	}

	result.InsertedCount = len(req.Readings)
	for _, inc := range created {
		result.NewIncidents = append(result.NewIncidents, inc.ID)
	}
	log.Printf("Batch %s: stored %d readings, %d new incidents", result.BatchID, result.InsertedCount, len(created))

	if len(created) > 0 {
		s.enrichInBackground(created)
	}
	return result, nil
}

func prepareBatch(ctx context.Context, repo domain.Repository, inputs []domain.ReadingInput) ([]preparedReading, error) {
	sensors := make(map[int64]domain.Sensor)
	prepared := make([]preparedReading, 0, len(inputs))

	for i, in := range inputs {
		sensor, ok := sensors[in.SensorID]
		if !ok {
			var err error
			sensor, err = repo.GetSensor(ctx, in.SensorID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: %d", domain.ErrUnknownSensor, in.SensorID)
			}
			if err != nil {
				return nil, err
			}
			sensors[in.SensorID] = sensor
		}

		ts, err := domain.ParseTimestamp(in.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
		payload, err := domain.ParsePayload(sensor.Category, in.Data)
		if err != nil {
			return nil, fmt.Errorf("reading %d (sensor %d): %w", i, in.SensorID, err)
		}

		prepared = append(prepared, preparedReading{
			sensor: sensor,
			reading: domain.SensorReading{
				SensorID:  sensor.ID,
				Timestamp: ts,
				Data:      payload.Data(),
			},
		})
	}
	return prepared, nil
}

func (s *IngestService) enrichInBackground(incidents []domain.Incident) {
	s.wgBg.Add(1)
	go func() {
		defer s.wgBg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
		defer cancel()
		if err := s.Enrich(ctx, incidents); err != nil {
			log.Printf("Failed to enrich incidents: %v", err)
		}
	}()
}

// Enrich attaches a narrative to each incident, at most enrichConcurrency at
// a time. It keeps going past individual failures and returns the first one.
func (s *IngestService) Enrich(ctx context.Context, incidents []domain.Incident) error {
	var g errgroup.Group
	g.SetLimit(enrichConcurrency)

	for _, inc := range incidents {
		inc := inc
		g.Go(func() error {
			return s.enrichOne(ctx, inc)
		})
	}
	return g.Wait()
}

func (s *IngestService) enrichOne(ctx context.Context, inc domain.Incident) error {
	segment, err := s.store.GetSegment(ctx, inc.SegmentID)
	if err != nil {
		return fmt.Errorf("enrich incident %d: %w", inc.ID, err)
	}
	windows, err := s.engine.Windows(ctx, s.store, inc.SegmentID, inc.CreatedAt)
	if err != nil {
		return fmt.Errorf("enrich incident %d: %w", inc.ID, err)
	}

	narrative := s.narrator.Narrate(ctx, inc, segment, windows)
	if err := s.store.UpdateNarrative(ctx, inc.ID, narrative); err != nil {
		return fmt.Errorf("enrich incident %d: %w", inc.ID, err)
	}
	return nil
}
