package detection

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/smartcity/rtiis/internal/domain"
)

// Windows holds the recent readings of one segment grouped by sensor category.
// Each slice is ascending by timestamp.
type Windows struct {
	Flow    []domain.SensorReading
	Speed   []domain.SensorReading
	Stopped []domain.SensorReading
}

// ByCategory returns the windows keyed the way narrative prompts label them
func (w Windows) ByCategory() map[string][]domain.SensorReading {
	return map[string][]domain.SensorReading{
		"flow":    w.Flow,
		"speed":   w.Speed,
		"stopped": w.Stopped,
	}
}

// Merged returns every reading of the three windows in timestamp order,
// keeping at most the newest limit entries (limit <= 0 keeps all).
func (w Windows) Merged(limit int) []domain.SensorReading {
	merged := make([]domain.SensorReading, 0, len(w.Flow)+len(w.Speed)+len(w.Stopped))
	merged = append(merged, w.Flow...)
	merged = append(merged, w.Speed...)
	merged = append(merged, w.Stopped...)
	sortByTimestamp(merged)
	if limit > 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

// ExtractWindows loads, for each sensor category, the readings of the
// segment's sensors with timestamp >= now-window. A category without
// sensors yields an empty slice. It only reads from repo.
func ExtractWindows(ctx context.Context, repo domain.Repository, segmentID int64, window time.Duration, now time.Time) (Windows, error) {
	since := now.UTC().Add(-window)

	fetch := func(category domain.SensorCategory) ([]domain.SensorReading, error) {
		readings, err := repo.ReadingsSince(ctx, segmentID, category, since)
		if err != nil {
			return nil, fmt.Errorf("detection: failed to load %s window for segment %d: %w", category, segmentID, err)
		}
		kept := make([]domain.SensorReading, 0, len(readings))
		for _, r := range readings {
			r.Timestamp = r.Timestamp.UTC()
			if r.Timestamp.Before(since) {
				continue
			}
			kept = append(kept, r)
		}
		sortByTimestamp(kept)
		return kept, nil
	}

	var (
		w   Windows
		err error
	)
	if w.Flow, err = fetch(domain.CategoryFlow); err != nil {
		return Windows{}, err
	}
	if w.Speed, err = fetch(domain.CategorySpeed); err != nil {
		return Windows{}, err
	}
	if w.Stopped, err = fetch(domain.CategoryStoppedVehicle); err != nil {
		return Windows{}, err
	}
	return w, nil
}

func sortByTimestamp(readings []domain.SensorReading) {
	slices.SortStableFunc(readings, func(a, b domain.SensorReading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}
