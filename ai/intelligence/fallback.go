package intelligence

import (
	"time"

	"github.com/supportpulse/supportpulse/model"
)

// Deterministic neutral outputs substituted on permanent model failure. The
// pipeline treats these identically to real results, so downstream stages
// never stall on a model outage.

func fallbackSentiment(key model.ConversationKey) *model.SentimentResult {
	return &model.SentimentResult{
		ConversationID: key.ConversationID,
		TenantID:       key.TenantID,
		Sentiment:      model.SentimentNeutral,
		Confidence:     0.0,
		Emotion:        model.EmotionNeutral,
		Reasoning:      "sentiment analysis unavailable, defaulted to neutral",
		Timestamp:      time.Now().UTC(),
	}
}

func fallbackPII(key model.ConversationKey) *model.PIIResult {
	return &model.PIIResult{
		ConversationID: key.ConversationID,
		TenantID:       key.TenantID,
		HasPII:         false,
		Entities:       []model.PIIEntity{},
		Timestamp:      time.Now().UTC(),
	}
}

func fallbackInsights(key model.ConversationKey) *model.InsightsResult {
	return &model.InsightsResult{
		ConversationID:          key.ConversationID,
		TenantID:                key.TenantID,
		Intent:                  model.IntentGeneralInquiry,
		Urgency:                 model.UrgencyLow,
		Categories:              []string{},
		SuggestedActions:        []string{},
		RequiresEscalation:      false,
		EstimatedResolutionTime: "1-3 days",
		KeyConcerns:             []string{},
		Timestamp:               time.Now().UTC(),
	}
}

// fallbackSummary keeps the previous summary when one exists; otherwise it
// returns an empty skeleton so the aggregate stays well-formed.
func fallbackSummary(key model.ConversationKey, old *model.SummaryResult) *model.SummaryResult {
	if old != nil {
		kept := *old
		kept.Timestamp = time.Now().UTC()
		return &kept
	}
	return &model.SummaryResult{
		ConversationID: key.ConversationID,
		TenantID:       key.TenantID,
		KeyPoints:      []string{},
		NextSteps:      []string{},
		Timestamp:      time.Now().UTC(),
	}
}

const fallbackReply = "Thank you for your message. A support agent will assist you shortly."
