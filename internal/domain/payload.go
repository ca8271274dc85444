package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Payload is the validated, category-specific body of a reading.
// Exactly one implementation exists per SensorCategory.
type Payload interface {
	Category() SensorCategory
	// Data returns the map persisted with the reading: the typed fields
	// layered over any extra keys the client sent.
	Data() map[string]any
}

// FlowPayload is reported by FLOW sensors
type FlowPayload struct {
	VehiclesPerMinute float64
	Extra             map[string]any
}

func (p FlowPayload) Category() SensorCategory { return CategoryFlow }

func (p FlowPayload) Data() map[string]any {
	data := copyExtra(p.Extra)
	data[KeyVehiclesPerMinute] = p.VehiclesPerMinute
	return data
}

// SpeedPayload is reported by SPEED sensors
type SpeedPayload struct {
	AvgSpeedKmh float64
	Extra       map[string]any
}

func (p SpeedPayload) Category() SensorCategory { return CategorySpeed }

func (p SpeedPayload) Data() map[string]any {
	data := copyExtra(p.Extra)
	data[KeyAvgSpeedKmh] = p.AvgSpeedKmh
	return data
}

// StoppedVehiclePayload is reported by STOPPED_VEHICLE sensors
type StoppedVehiclePayload struct {
	StoppedCount int
	LaneBlocked  bool
	Extra        map[string]any
}

func (p StoppedVehiclePayload) Category() SensorCategory { return CategoryStoppedVehicle }

func (p StoppedVehiclePayload) Data() map[string]any {
	data := copyExtra(p.Extra)
	data[KeyStoppedCount] = p.StoppedCount
	data[KeyLaneBlocked] = p.LaneBlocked
	return data
}

// ParsePayload validates raw client data against the keys mandated by the
// sensor category and builds the matching Payload. Errors wrap ErrInvalidPayload.
func ParsePayload(category SensorCategory, data map[string]any) (Payload, error) {
	switch category {
	case CategoryFlow:
		v, err := requireNumber(data, KeyVehiclesPerMinute, "flow")
		if err != nil {
			return nil, err
		}
		return FlowPayload{VehiclesPerMinute: v, Extra: extraKeys(data, KeyVehiclesPerMinute)}, nil

	case CategorySpeed:
		v, err := requireNumber(data, KeyAvgSpeedKmh, "speed")
		if err != nil {
			return nil, err
		}
		return SpeedPayload{AvgSpeedKmh: v, Extra: extraKeys(data, KeyAvgSpeedKmh)}, nil

	case CategoryStoppedVehicle:
		_, hasCount := data[KeyStoppedCount]
		_, hasBlocked := data[KeyLaneBlocked]
		if !hasCount || !hasBlocked {
			return nil, fmt.Errorf("%w: missing %s or %s for stopped vehicle sensor", ErrInvalidPayload, KeyStoppedCount, KeyLaneBlocked)
		}
		count, err := requireNumber(data, KeyStoppedCount, "stopped vehicle")
		if err != nil {
			return nil, err
		}
		if count < 0 || count != math.Trunc(count) {
			return nil, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidPayload, KeyStoppedCount)
		}
		blocked, ok := data[KeyLaneBlocked].(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidPayload, KeyLaneBlocked)
		}
		return StoppedVehiclePayload{
			StoppedCount: int(count),
			LaneBlocked:  blocked,
			Extra:        extraKeys(data, KeyStoppedCount, KeyLaneBlocked),
		}, nil
	}

	return nil, fmt.Errorf("%w: unsupported sensor category %q", ErrInvalidPayload, category)
}

func requireNumber(data map[string]any, key, kind string) (float64, error) {
	raw, ok := data[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s for %s sensor", ErrInvalidPayload, key, kind)
	}
	v, ok := toFloat(raw)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be numeric", ErrInvalidPayload, key)
	}
	return v, nil
}

// toFloat coerces JSON-ish numeric values. Booleans are not numbers.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func extraKeys(data map[string]any, typed ...string) map[string]any {
	var extra map[string]any
	for k, v := range data {
		skip := false
		for _, t := range typed {
			if k == t {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}

func copyExtra(extra map[string]any) map[string]any {
	data := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		data[k] = v
	}
	return data
}
