package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/rtiis/internal/detection"
	"github.com/smartcity/rtiis/internal/domain"
)

var (
	narrativeIncident = domain.Incident{ID: 7, Type: domain.IncidentCongestion, RuleTriggered: domain.RuleFlowDropAndSpeedDrop}
	narrativeSegment  = domain.RoadSegment{ID: 1, Code: "I71_N_SEG_A", Name: "I-71 North - Downtown to Blue Ash", Direction: "NORTH"}
)

func completionServer(t *testing.T, status int, content string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 0.2, req.Temperature)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, systemPrompt, req.Messages[0].Content)
			assert.Contains(t, req.Messages[1].Content, "Incident type: CONGESTION")
		}

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func bridgeFor(url string) *LLMBridge {
	return NewLLMBridge(LLMConfig{Provider: "openai", APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: url + "/", Timeout: 2 * time.Second})
}

func TestLLMBridgeNarrate(t *testing.T) {
	ctx := context.Background()
	fallback := FallbackNarrative(domain.IncidentCongestion)

	t.Run("parses the completion", func(t *testing.T) {
		var hits atomic.Int32
		srv := completionServer(t, http.StatusOK, `{"summary":"S","cause":"C","recommendation":"R"}`, &hits)

		got := bridgeFor(srv.URL).Narrate(ctx, narrativeIncident, narrativeSegment, detection.Windows{})
		assert.Equal(t, domain.Narrative{Summary: "S", Cause: "C", Recommendation: "R"}, got)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("provider error falls back", func(t *testing.T) {
		var hits atomic.Int32
		srv := completionServer(t, http.StatusInternalServerError, "{}", &hits)
		assert.Equal(t, fallback, bridgeFor(srv.URL).Narrate(ctx, narrativeIncident, narrativeSegment, detection.Windows{}))
	})

	t.Run("malformed completion falls back", func(t *testing.T) {
		var hits atomic.Int32
		srv := completionServer(t, http.StatusOK, "Sure! Here is a summary.", &hits)
		assert.Equal(t, fallback, bridgeFor(srv.URL).Narrate(ctx, narrativeIncident, narrativeSegment, detection.Windows{}))
	})

	t.Run("unreachable provider falls back", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		assert.Equal(t, fallback, bridgeFor(url).Narrate(ctx, narrativeIncident, narrativeSegment, detection.Windows{}))
	})

	t.Run("no key never calls out", func(t *testing.T) {
		var hits atomic.Int32
		srv := completionServer(t, http.StatusOK, `{"summary":"S"}`, &hits)
		b := NewLLMBridge(LLMConfig{Provider: "openai", BaseURL: srv.URL})
		assert.False(t, b.Enabled())
		assert.Equal(t, fallback, b.Narrate(ctx, narrativeIncident, narrativeSegment, detection.Windows{}))
		assert.Zero(t, hits.Load())
	})

	t.Run("unsupported provider is disabled", func(t *testing.T) {
		b := NewLLMBridge(LLMConfig{Provider: "anthropic", APIKey: "k"})
		assert.False(t, b.Enabled())
	})
}

func TestFallbackNarrative(t *testing.T) {
	n := FallbackNarrative(domain.IncidentStoppedVehicle)
	assert.Equal(t, "STOPPED_VEHICLE detected; monitoring conditions while awaiting operator review.", n.Summary)
	assert.Equal(t, "Verify camera feeds, dispatch response crew, and update signage as needed.", n.Recommendation)
	assert.Equal(t, "Incident detected; monitoring conditions while awaiting operator review.", FallbackNarrative("").Summary)
}

func TestBuildPrompt(t *testing.T) {
	var flow []domain.SensorReading
	for i := 0; i < 12; i++ {
		flow = append(flow, domain.SensorReading{
			Timestamp: testNow.Add(time.Duration(i) * time.Second),
			Data:      map[string]any{domain.KeyVehiclesPerMinute: float64(i)},
		})
	}

	prompt := buildPrompt(narrativeIncident, narrativeSegment, detection.Windows{Flow: flow})
	lines := strings.Split(prompt, "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "Segment: I-71 North - Downtown to Blue Ash (I71_N_SEG_A) direction NORTH", lines[0])
	assert.Equal(t, "Rule triggered: FLOW_DROP_AND_SPEED_DROP", lines[2])

	assert.True(t, strings.HasPrefix(lines[4], "- flow: "))
	assert.Equal(t, 10, strings.Count(lines[4], "->"), "only the last ten readings per category")
	assert.NotContains(t, lines[4], fmt.Sprintf(`{"%s":1}`, domain.KeyVehiclesPerMinute))
	assert.Contains(t, lines[4], fmt.Sprintf(`{"%s":11}`, domain.KeyVehiclesPerMinute))
	assert.Equal(t, "- speed: no data", lines[5])
	assert.Equal(t, "- stopped: no data", lines[6])
}
