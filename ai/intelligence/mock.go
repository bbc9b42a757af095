package intelligence

import (
	"context"
	"strings"
	"time"

	"github.com/supportpulse/supportpulse/ai/redact"
	"github.com/supportpulse/supportpulse/model"
)

// Mock is the deterministic Service used in mock mode and in tests: no
// network calls, results derived from the message text alone, PII via the
// regex redactor.
type Mock struct{}

// NewMock returns the deterministic service.
func NewMock() *Mock { return &Mock{} }

var (
	positiveWords = []string{"relief", "thanks", "thank", "great", "perfect", "solved"}
	negativeWords = []string{"frustrat", "locked", "urgent", "angry", "need this fixed", "unacceptable"}
)

func containsAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func (m *Mock) AnalyzeSentiment(_ context.Context, key model.ConversationKey, contextText string) *model.SentimentResult {
	res := &model.SentimentResult{
		ConversationID: key.ConversationID,
		TenantID:       key.TenantID,
		Sentiment:      model.SentimentNeutral,
		Emotion:        model.EmotionNeutral,
		Confidence:     0.8,
		Reasoning:      "The customer is providing information or responding neutrally.",
		Timestamp:      time.Now().UTC(),
	}
	switch {
	case containsAny(contextText, positiveWords):
		res.Sentiment = model.SentimentPositive
		res.Emotion = model.EmotionSatisfied
		res.Confidence = 0.95
		res.Reasoning = "The customer expresses relief and thanks, indicating satisfaction."
	case containsAny(contextText, negativeWords):
		res.Sentiment = model.SentimentNegative
		res.Emotion = model.EmotionFrustrated
		res.Confidence = 0.95
		res.Reasoning = "The customer expresses frustration and urgency."
	}
	return res
}

func (m *Mock) DetectPII(_ context.Context, key model.ConversationKey, text string) *model.PIIResult {
	entities, redacted := redact.Redact(text)
	if entities == nil {
		entities = []model.PIIEntity{}
	}
	return &model.PIIResult{
		ConversationID: key.ConversationID,
		TenantID:       key.TenantID,
		HasPII:         len(entities) > 0,
		Entities:       entities,
		RedactedText:   redacted,
		Timestamp:      time.Now().UTC(),
	}
}

func (m *Mock) ExtractInsights(_ context.Context, key model.ConversationKey, contextText string) *model.InsightsResult {
	res := &model.InsightsResult{
		ConversationID:          key.ConversationID,
		TenantID:                key.TenantID,
		Intent:                  model.IntentGeneralInquiry,
		Urgency:                 model.UrgencyLow,
		Categories:              []string{"general"},
		SuggestedActions:        []string{"Provide solution steps", "Follow up in 24 hours"},
		RequiresEscalation:      false,
		EstimatedResolutionTime: "1-4 hours",
		KeyConcerns:             []string{},
		Timestamp:               time.Now().UTC(),
	}
	lower := strings.ToLower(contextText)
	switch {
	case strings.Contains(lower, "refund"):
		res.Intent = model.IntentRefundRequest
		res.Urgency = model.UrgencyMedium
		res.Categories = []string{"billing"}
		res.KeyConcerns = []string{"Refund processing"}
	case strings.Contains(lower, "locked") || strings.Contains(lower, "account"):
		res.Intent = model.IntentAccountIssue
		res.Urgency = model.UrgencyHigh
		res.Categories = []string{"account access"}
		res.SuggestedActions = []string{"Verify customer identity", "Restore account access"}
		res.KeyConcerns = []string{"Locked out of account"}
	case containsAny(contextText, negativeWords):
		res.Intent = model.IntentComplaint
		res.Urgency = model.UrgencyHigh
		res.RequiresEscalation = true
		res.SuggestedActions = []string{"Apologize and acknowledge frustration", "Escalate to senior support"}
		res.KeyConcerns = []string{"Customer dissatisfaction"}
	}
	return res
}

func (m *Mock) UpdateSummary(_ context.Context, key model.ConversationKey, old *model.SummaryResult, newMessage string, _ model.MessageSender) *model.SummaryResult {
	res := &model.SummaryResult{
		ConversationID: key.ConversationID,
		TenantID:       key.TenantID,
		TLDR:           summarizeLine(newMessage),
		CustomerIssue:  summarizeLine(newMessage),
		KeyPoints:      []string{summarizeLine(newMessage)},
		NextSteps:      []string{"Reply to customer"},
		Timestamp:      time.Now().UTC(),
	}
	if old != nil {
		res.CustomerIssue = old.CustomerIssue
		res.KeyPoints = append(append([]string{}, old.KeyPoints...), summarizeLine(newMessage))
		if len(res.KeyPoints) > 5 {
			res.KeyPoints = res.KeyPoints[len(res.KeyPoints)-5:]
		}
	}
	return res
}

func (m *Mock) Summarize(ctx context.Context, key model.ConversationKey, transcript string) *model.SummaryResult {
	return m.UpdateSummary(ctx, key, nil, transcript, model.SenderCustomer)
}

func (m *Mock) GenerateReply(_ context.Context, _ model.ConversationKey, _, _ string) string {
	return "Thanks for reaching out. We're looking into this and will get back to you shortly."
}

// summarizeLine reduces text to its first sentence, truncated to 120 runes.
func summarizeLine(text string) string {
	line := strings.TrimSpace(text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	for _, marker := range []string{". ", "! ", "? "} {
		if i := strings.Index(line, marker); i >= 0 {
			line = line[:i+1]
			break
		}
	}
	runes := []rune(line)
	if len(runes) > 120 {
		line = string(runes[:120])
	}
	return line
}
