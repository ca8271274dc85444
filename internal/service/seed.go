package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smartcity/rtiis/internal/domain"
)

type segmentDef struct {
	code, name, direction string
	lat, lng              float64
}

// Cincinnati area highway segments the demo deployment monitors
var referenceSegments = []segmentDef{
	{"I71_N_SEG_A", "I-71 North - Downtown to Blue Ash", "NORTH", 39.123, -84.456},
	{"I75_N_SEG_A", "I-75 North - Covington to Fairfield", "NORTH", 39.15, -84.55},
	{"I275_E_SEG_A", "I-275 East - Airport to Anderson", "EAST", 39.06, -84.42},
	{"I74_W_SEG_A", "I-74 West - Downtown to Harrison", "WEST", 39.14, -84.62},
}

var referenceSensorKinds = []struct {
	suffix   string
	category domain.SensorCategory
}{
	{"Flow Sensor", domain.CategoryFlow},
	{"Speed Sensor", domain.CategorySpeed},
	{"Stopped Vehicle Sensor", domain.CategoryStoppedVehicle},
}

// SeedReferenceData creates the reference segments and their sensors with
// well-known ids (1..12, three per segment). Existing rows are left alone.
func SeedReferenceData(ctx context.Context, store Store) error {
	return store.InTx(ctx, func(repo domain.Repository) error {
		for i, def := range referenceSegments {
			segment, err := repo.GetSegmentByCode(ctx, def.code)
			if errors.Is(err, domain.ErrNotFound) {
				lat, lng := def.lat, def.lng
				segment = domain.RoadSegment{
					Code:      def.code,
					Name:      def.name,
					Direction: def.direction,
					Latitude:  &lat,
					Longitude: &lng,
				}
				err = repo.CreateSegment(ctx, &segment)
			}
			if err != nil {
				return fmt.Errorf("seed segment %s: %w", def.code, err)
			}

			for j, kind := range referenceSensorKinds {
				sensor := domain.Sensor{
					ID:        int64(i*len(referenceSensorKinds) + j + 1),
					Name:      sensorName(i, segment.Name, kind.suffix),
					Category:  kind.category,
					SegmentID: segment.ID,
					IsActive:  true,
				}
				if err := repo.CreateSensor(ctx, &sensor); err != nil {
					return fmt.Errorf("seed sensor %d: %w", sensor.ID, err)
				}
			}
		}
		return nil
	})
}

func sensorName(index int, segmentName, suffix string) string {
	if index == 0 {
		return "Segment A " + suffix
	}
	road, _, _ := strings.Cut(segmentName, " - ")
	return road + " " + suffix
}
