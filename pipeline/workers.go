package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/supportpulse/supportpulse/ai/intelligence"
	"github.com/supportpulse/supportpulse/broker"
	"github.com/supportpulse/supportpulse/metrics"
	"github.com/supportpulse/supportpulse/model"
)

// AnalyzerKind names one of the four analyzer workers.
type AnalyzerKind string

const (
	AnalyzerSentiment AnalyzerKind = "sentiment"
	AnalyzerPII       AnalyzerKind = "pii"
	AnalyzerInsights  AnalyzerKind = "insights"
	AnalyzerSummary   AnalyzerKind = "summary"
)

// AnalyzerKinds lists the workers the supervisor runs.
var AnalyzerKinds = []AnalyzerKind{AnalyzerSentiment, AnalyzerPII, AnalyzerInsights, AnalyzerSummary}

// Worker is one analyzer: a dedicated consumer group on the conversation
// state topic, an intelligence operation, and a result topic. Each worker
// consumes the full state stream independently, so a slow or failing
// analyzer never holds the others back.
type Worker struct {
	kind       AnalyzerKind
	brk        broker.Broker
	topics     Topics
	groupID    string
	producerID string
	svc        intelligence.Service
	metrics    *metrics.Metrics
}

// NewWorker builds the analyzer worker of the given kind.
func NewWorker(kind AnalyzerKind, brk broker.Broker, topics Topics, groupID, producerID string, svc intelligence.Service, m *metrics.Metrics) *Worker {
	return &Worker{
		kind:       kind,
		brk:        brk,
		topics:     topics,
		groupID:    fmt.Sprintf("%s-%s-agent", groupID, kind),
		producerID: producerID,
		svc:        svc,
		metrics:    m,
	}
}

func (w *Worker) Name() string { return string(w.kind) + "-agent" }

// Run consumes conversation state updates until the context ends.
func (w *Worker) Run(ctx context.Context) error {
	loop := &consumeLoop{
		name:       w.Name(),
		consumer:   w.brk.Consumer(w.groupID, w.topics.ConversationsState),
		producer:   w.brk,
		dlqTopic:   w.topics.DLQ,
		producerID: w.producerID,
		metrics:    w.metrics,
		handle:     w.handle,
	}
	return loop.run(ctx)
}

func (w *Worker) handle(ctx context.Context, rec broker.Record) error {
	var state model.ConversationState
	if err := json.Unmarshal(rec.Value, &state); err != nil {
		return fmt.Errorf("decode conversation state: %w", err)
	}
	if state.TenantID == "" {
		slog.Warn("dropping tenantless state", "conversation_id", state.ConversationID, "analyzer", w.kind)
		return errDrop
	}
	latest := state.LatestMessage()
	if latest == nil {
		return errDrop
	}

	key := state.Key()
	var result any
	switch w.kind {
	case AnalyzerSentiment:
		result = w.svc.AnalyzeSentiment(ctx, key, analysisContext(&state, latest))
	case AnalyzerPII:
		result = w.svc.DetectPII(ctx, key, latest.Message)
	case AnalyzerInsights:
		result = w.svc.ExtractInsights(ctx, key, analysisContext(&state, latest))
	case AnalyzerSummary:
		if state.Summary != nil {
			result = w.svc.UpdateSummary(ctx, key, state.Summary, latest.Message, latest.Sender)
		} else {
			result = w.svc.Summarize(ctx, key, state.ContextText(0))
		}
	default:
		return fmt.Errorf("unknown analyzer kind %q", w.kind)
	}

	// A cancelled context makes the model client return its fallback;
	// bail out without producing so the record replays after restart.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", w.kind, err)
	}
	out := broker.Record{
		Topic:   w.resultTopic(),
		Key:     []byte(state.ConversationID),
		Value:   payload,
		Headers: broker.StandardHeaders(state.TenantID, w.producerID, 0),
	}
	if err := w.brk.Produce(ctx, out); err != nil {
		return fmt.Errorf("produce %s result: %w", w.kind, err)
	}

	slog.Debug("analysis published",
		"analyzer", w.kind,
		"conversation_id", state.ConversationID,
		"tenant_id", state.TenantID,
	)
	return nil
}

func (w *Worker) resultTopic() string {
	switch w.kind {
	case AnalyzerSentiment:
		return w.topics.Sentiment
	case AnalyzerPII:
		return w.topics.PII
	case AnalyzerInsights:
		return w.topics.Insights
	case AnalyzerSummary:
		return w.topics.Summary
	}
	return w.topics.DLQ
}

// analysisContext renders the compact prompt context: the running summary
// as compressed history plus the message under analysis.
func analysisContext(state *model.ConversationState, latest *model.SupportMessage) string {
	if state.Summary != nil && state.Summary.TLDR != "" {
		return fmt.Sprintf("Context: %s\n\nCurrent message: %s", state.Summary.TLDR, latest.Message)
	}
	return fmt.Sprintf("Current message: %s", latest.Message)
}
