// Package intelligence is the typed model client shared by the analyzer
// workers: rate-limited, concurrency-capped, retrying, and falling back to
// deterministic outputs on permanent failure so the pipeline never stalls on
// the model.
package intelligence

import (
	"context"
	"time"

	"github.com/supportpulse/supportpulse/ai/llm"
	"github.com/supportpulse/supportpulse/model"
)

// Service exposes the five model operations. Every operation returns a
// well-formed result: on permanent model failure or exhausted retries it
// returns the operation's deterministic fallback and logs a warning, so
// callers never need an error path to make progress.
type Service interface {
	// AnalyzeSentiment classifies the customer's current sentiment from the
	// prompt context (summary + latest message).
	AnalyzeSentiment(ctx context.Context, key model.ConversationKey, contextText string) *model.SentimentResult

	// DetectPII finds personally identifiable information in one message.
	DetectPII(ctx context.Context, key model.ConversationKey, text string) *model.PIIResult

	// ExtractInsights derives intent, urgency and suggested actions.
	ExtractInsights(ctx context.Context, key model.ConversationKey, contextText string) *model.InsightsResult

	// UpdateSummary performs incremental summarization: old summary plus the
	// new message yields the new summary. A nil old summary produces a fresh
	// summary of the message alone.
	UpdateSummary(ctx context.Context, key model.ConversationKey, old *model.SummaryResult, newMessage string, sender model.MessageSender) *model.SummaryResult

	// Summarize produces a summary of a full conversation transcript. Used
	// when no prior summary exists for the conversation.
	Summarize(ctx context.Context, key model.ConversationKey, transcript string) *model.SummaryResult

	// GenerateReply drafts a support reply to the latest customer message.
	GenerateReply(ctx context.Context, key model.ConversationKey, contextText, userMessage string) string
}

// Config tunes the shared client.
type Config struct {
	LLM llm.Config

	// RequestsPerMinute sizes the token bucket (default 60).
	RequestsPerMinute int

	// MaxConcurrent bounds in-flight model calls globally (default 10).
	MaxConcurrent int64

	// AttemptTimeout is the deadline per model attempt (default 15s).
	AttemptTimeout time.Duration

	// MaxRetries bounds retries on transient failure (default 3).
	MaxRetries int

	// MockMode returns deterministic canned results without any network
	// call.
	MockMode bool
}

func (c *Config) applyDefaults() {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 15 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// New builds the service: the deterministic mock in mock mode, otherwise the
// live client over the configured LLM endpoint.
func New(cfg Config) (Service, error) {
	cfg.applyDefaults()
	if cfg.MockMode {
		return NewMock(), nil
	}
	chat, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, err
	}
	return newClient(chat, cfg), nil
}
