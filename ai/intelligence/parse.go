package intelligence

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON normalizes a model response into a single JSON object:
// markdown code fences are stripped and a single-element JSON array is
// unwrapped. Anything that still fails to decode is a permanent failure.
func extractJSON(response string) ([]byte, error) {
	text := strings.TrimSpace(response)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		lines = lines[1:]
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		text = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	if strings.HasPrefix(text, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(text), &items); err != nil {
			return nil, fmt.Errorf("parse model response array: %w", err)
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("parse model response: empty array")
		}
		text = string(items[0])
	}

	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("parse model response: invalid JSON")
	}
	return []byte(text), nil
}

// Response DTOs use the camelCase field names the prompts request; the
// broker payload types in package model stay snake_case.

type sentimentDTO struct {
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Emotion    string  `json:"emotion"`
	Reasoning  string  `json:"reasoning"`
}

type piiEntityDTO struct {
	Type       string `json:"type"`
	Value      string `json:"value"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
}

type piiDTO struct {
	HasPII       bool           `json:"hasPII"`
	Entities     []piiEntityDTO `json:"entities"`
	RedactedText string         `json:"redactedText"`
}

type insightsDTO struct {
	Intent                  string   `json:"intent"`
	Urgency                 string   `json:"urgency"`
	Categories              []string `json:"categories"`
	SuggestedActions        []string `json:"suggestedActions"`
	RequiresEscalation      bool     `json:"requiresEscalation"`
	EstimatedResolutionTime string   `json:"estimatedResolutionTime"`
	KeyConcerns             []string `json:"keyConcerns"`
}

type summaryDTO struct {
	TLDR          string   `json:"tldr"`
	CustomerIssue string   `json:"customerIssue"`
	AgentResponse string   `json:"agentResponse"`
	KeyPoints     []string `json:"keyPoints"`
	NextSteps     []string `json:"nextSteps"`
}

type replyDTO struct {
	Response string `json:"response"`
}

func decodeInto(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}
