package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/smartcity/rtiis/internal/detection"
	"github.com/smartcity/rtiis/internal/domain"
)

const (
	systemPrompt     = "You are a traffic operations assistant."
	promptReadingCap = 10
)

// Narrator produces operator-facing text for an incident
type Narrator interface {
	Narrate(ctx context.Context, incident domain.Incident, segment domain.RoadSegment, windows detection.Windows) domain.Narrative
	Enabled() bool
}

// LLMConfig configures the chat completions client
type LLMConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// LLMBridge handles communication with an OpenAI compatible chat completions API
type LLMBridge struct {
	cfg        LLMConfig
	httpClient *http.Client
}

// NewLLMBridge creates a new LLM bridge
func NewLLMBridge(cfg LLMConfig) *LLMBridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &LLMBridge{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Enabled reports whether calls go to the provider rather than the fallback
func (b *LLMBridge) Enabled() bool {
	return b.cfg.APIKey != "" && strings.EqualFold(b.cfg.Provider, "openai")
}

// Narrate never fails: without a key, or on any provider error, the
// fallback narrative for the incident type is returned.
func (b *LLMBridge) Narrate(ctx context.Context, incident domain.Incident, segment domain.RoadSegment, windows detection.Windows) domain.Narrative {
	if !b.Enabled() {
		return FallbackNarrative(incident.Type)
	}

	narrative, err := b.complete(ctx, buildPrompt(incident, segment, windows))
	if err != nil {
		log.Printf("LLM call failed for incident %d, using fallback: %v", incident.ID, err)
		return FallbackNarrative(incident.Type)
	}
	return narrative
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (b *LLMBridge) complete(ctx context.Context, prompt string) (domain.Narrative, error) {
	body, err := json.Marshal(chatRequest{
		Model: b.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Respond with a JSON object containing keys summary, cause, recommendation.\nContext:\n" + prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return domain.Narrative{}, fmt.Errorf("llm_bridge: failed to marshal request: %w", err)
	}

	url := b.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Narrative{}, fmt.Errorf("llm_bridge: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return domain.Narrative{}, fmt.Errorf("llm_bridge: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Narrative{}, fmt.Errorf("llm_bridge: provider returned status %d", resp.StatusCode)
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return domain.Narrative{}, fmt.Errorf("llm_bridge: failed to decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return domain.Narrative{}, fmt.Errorf("llm_bridge: response has no choices")
	}

	var narrative domain.Narrative
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &narrative); err != nil {
		return domain.Narrative{}, fmt.Errorf("llm_bridge: completion is not the expected JSON object: %w", err)
	}
	return narrative, nil
}

// FallbackNarrative depends only on the incident type
func FallbackNarrative(incidentType string) domain.Narrative {
	if incidentType == "" {
		incidentType = "Incident"
	}
	return domain.Narrative{
		Summary:        incidentType + " detected; monitoring conditions while awaiting operator review.",
		Cause:          "Automatic detection based on sensor anomalies.",
		Recommendation: "Verify camera feeds, dispatch response crew, and update signage as needed.",
	}
}

func buildPrompt(incident domain.Incident, segment domain.RoadSegment, windows detection.Windows) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Segment: %s (%s) direction %s\n", segment.Name, segment.Code, segment.Direction)
	fmt.Fprintf(&sb, "Incident type: %s\n", incident.Type)
	fmt.Fprintf(&sb, "Rule triggered: %s\n", incident.RuleTriggered)
	sb.WriteString("Recent readings:")

	byCategory := windows.ByCategory()
	keys := make([]string, 0, len(byCategory))
	for k := range byCategory {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		readings := byCategory[key]
		if len(readings) > promptReadingCap {
			readings = readings[len(readings)-promptReadingCap:]
		}
		parts := make([]string, 0, len(readings))
		for _, r := range readings {
			data, _ := json.Marshal(r.Data)
			parts = append(parts, fmt.Sprintf("%s -> %s", r.Timestamp.Format(time.RFC3339), data))
		}
		series := strings.Join(parts, ", ")
		if series == "" {
			series = "no data"
		}
		fmt.Fprintf(&sb, "\n- %s: %s", key, series)
	}
	return sb.String()
}
