package model

import (
	"encoding/json"
	"time"
)

// SentimentType classifies the overall sentiment of the latest message.
type SentimentType string

const (
	SentimentPositive SentimentType = "positive"
	SentimentNeutral  SentimentType = "neutral"
	SentimentNegative SentimentType = "negative"
)

// EmotionType classifies the dominant emotion detected in a message.
type EmotionType string

const (
	EmotionAngry      EmotionType = "angry"
	EmotionFrustrated EmotionType = "frustrated"
	EmotionSatisfied  EmotionType = "satisfied"
	EmotionConfused   EmotionType = "confused"
	EmotionUrgent     EmotionType = "urgent"
	EmotionHappy      EmotionType = "happy"
	EmotionNeutral    EmotionType = "neutral"
)

// SentimentResult is the sentiment analyzer output for a single message.
// Only the most recent result per conversation is authoritative.
type SentimentResult struct {
	ConversationID string        `json:"conversation_id"`
	TenantID       string        `json:"tenant_id"`
	Sentiment      SentimentType `json:"sentiment"`
	Confidence     float64       `json:"confidence"`
	Emotion        EmotionType   `json:"emotion"`
	Reasoning      string        `json:"reasoning"`
	Timestamp      time.Time     `json:"timestamp"`
}

// PIIEntityType enumerates the categories of personally identifiable
// information the detector recognizes.
type PIIEntityType string

const (
	PIIEmail         PIIEntityType = "email"
	PIIPhone         PIIEntityType = "phone"
	PIICreditCard    PIIEntityType = "credit_card"
	PIISSN           PIIEntityType = "ssn"
	PIIAddress       PIIEntityType = "address"
	PIIAccountNumber PIIEntityType = "account_number"
	PIIName          PIIEntityType = "name"
)

// PIIEntity is a single detected PII span. The redacted value is stored in
// place of the original text; the raw value never leaves the detector.
type PIIEntity struct {
	Type          PIIEntityType `json:"type"`
	RedactedValue string        `json:"redacted_value"`
	Start         int           `json:"start"`
	End           int           `json:"end"`
}

// PIIResult is the PII analyzer output for a single message. HasPII refers
// to this message only; the aggregator applies the monotonic merge.
type PIIResult struct {
	ConversationID string      `json:"conversation_id"`
	TenantID       string      `json:"tenant_id"`
	HasPII         bool        `json:"has_pii"`
	Entities       []PIIEntity `json:"entities"`
	RedactedText   string      `json:"redacted_text,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// IntentType classifies the customer intent of a conversation.
type IntentType string

const (
	IntentRefundRequest  IntentType = "Refund Request"
	IntentTechnicalIssue IntentType = "Technical Issue"
	IntentBillingInquiry IntentType = "Billing Inquiry"
	IntentFeatureRequest IntentType = "Feature Request"
	IntentComplaint      IntentType = "Complaint"
	IntentGeneralInquiry IntentType = "General Inquiry"
	IntentAccountIssue   IntentType = "Account Issue"
	IntentCancellation   IntentType = "Cancellation"
)

// UrgencyLevel classifies how urgently a conversation needs attention.
type UrgencyLevel string

const (
	UrgencyLow      UrgencyLevel = "Low"
	UrgencyMedium   UrgencyLevel = "Medium"
	UrgencyHigh     UrgencyLevel = "High"
	UrgencyCritical UrgencyLevel = "Critical"
)

// InsightsResult is the insights analyzer output: intent, urgency and
// actionable guidance. Latest replaces previous.
type InsightsResult struct {
	ConversationID          string       `json:"conversation_id"`
	TenantID                string       `json:"tenant_id"`
	Intent                  IntentType   `json:"intent"`
	Urgency                 UrgencyLevel `json:"urgency"`
	Categories              []string     `json:"categories"`
	SuggestedActions        []string     `json:"suggested_actions"`
	RequiresEscalation      bool         `json:"requires_escalation"`
	EstimatedResolutionTime string       `json:"estimated_resolution_time"`
	KeyConcerns             []string     `json:"key_concerns"`
	Timestamp               time.Time    `json:"timestamp"`
}

// SummaryResult is the incremental conversation summary. It feeds back into
// the conversation processor as compressed history.
type SummaryResult struct {
	ConversationID string    `json:"conversation_id"`
	TenantID       string    `json:"tenant_id"`
	TLDR           string    `json:"tldr"`
	CustomerIssue  string    `json:"customer_issue"`
	AgentResponse  string    `json:"agent_response,omitempty"`
	KeyPoints      []string  `json:"key_points"`
	NextSteps      []string  `json:"next_steps"`
	Timestamp      time.Time `json:"timestamp"`
}

// AggregatedIntelligence is the merged per-conversation view of all partial
// results seen so far.
type AggregatedIntelligence struct {
	ConversationID string           `json:"conversation_id"`
	TenantID       string           `json:"tenant_id"`
	Sentiment      *SentimentResult `json:"sentiment,omitempty"`
	PII            *PIIResult       `json:"pii,omitempty"`
	Insights       *InsightsResult  `json:"insights,omitempty"`
	Summary        *SummaryResult   `json:"summary,omitempty"`
	QualityScore   *int             `json:"quality_score,omitempty"`
	LastUpdated    time.Time        `json:"last_updated"`
}

// Clone returns a deep copy so the aggregator can hand snapshots to the
// broadcaster without sharing mutable state.
func (a *AggregatedIntelligence) Clone() *AggregatedIntelligence {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Sentiment != nil {
		s := *a.Sentiment
		cp.Sentiment = &s
	}
	if a.PII != nil {
		p := *a.PII
		p.Entities = append([]PIIEntity(nil), a.PII.Entities...)
		cp.PII = &p
	}
	if a.Insights != nil {
		i := *a.Insights
		i.Categories = append([]string(nil), a.Insights.Categories...)
		i.SuggestedActions = append([]string(nil), a.Insights.SuggestedActions...)
		i.KeyConcerns = append([]string(nil), a.Insights.KeyConcerns...)
		cp.Insights = &i
	}
	if a.Summary != nil {
		s := *a.Summary
		s.KeyPoints = append([]string(nil), a.Summary.KeyPoints...)
		s.NextSteps = append([]string(nil), a.Summary.NextSteps...)
		cp.Summary = &s
	}
	if a.QualityScore != nil {
		q := *a.QualityScore
		cp.QualityScore = &q
	}
	return &cp
}

// ResultKind discriminates which analyzer produced a partial result.
type ResultKind string

const (
	KindUnknown   ResultKind = ""
	KindSentiment ResultKind = "sentiment"
	KindPII       ResultKind = "pii"
	KindInsights  ResultKind = "insights"
	KindSummary   ResultKind = "summary"
)

// DetectResultKind infers the result type from the decoded field set. The
// four payload shapes share no explicit tag, so the aggregator discriminates
// structurally, tolerating heterogeneous encodings.
func DetectResultKind(raw []byte) ResultKind {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return KindUnknown
	}
	has := func(k string) bool {
		_, ok := fields[k]
		return ok
	}
	switch {
	case has("sentiment") && has("emotion"):
		return KindSentiment
	case has("has_pii") && has("entities"):
		return KindPII
	case has("intent") && has("urgency"):
		return KindInsights
	case has("tldr") && has("customer_issue"):
		return KindSummary
	}
	return KindUnknown
}
