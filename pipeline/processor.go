package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/supportpulse/supportpulse/broker"
	"github.com/supportpulse/supportpulse/metrics"
	"github.com/supportpulse/supportpulse/model"
)

// Processor is the conversation processor: it folds raw messages into
// per-conversation state, republishes the state for the analyzer workers,
// and feeds completed summaries back into the state as compressed history.
//
// Summaries deliberately never trigger a state emission. State emissions
// fan out to the summary worker, whose output returns here; emitting on
// summary ingest would close that loop into an infinite feedback cycle.
type Processor struct {
	brk        broker.Broker
	topics     Topics
	groupID    string
	producerID string
	window     int
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	states map[model.ConversationKey]*model.ConversationState
}

// NewProcessor builds the processor. window bounds the recent-message
// window kept per conversation; zero means the default.
func NewProcessor(brk broker.Broker, topics Topics, groupID, producerID string, window int, m *metrics.Metrics) *Processor {
	return &Processor{
		brk:        brk,
		topics:     topics,
		groupID:    groupID + "-conversation-processor",
		producerID: producerID,
		window:     window,
		metrics:    m,
		states:     make(map[model.ConversationKey]*model.ConversationState),
	}
}

func (p *Processor) Name() string { return "conversation-processor" }

// Run consumes raw messages and summary results until the context ends.
func (p *Processor) Run(ctx context.Context) error {
	loop := &consumeLoop{
		name:       p.Name(),
		consumer:   p.brk.Consumer(p.groupID, p.topics.MessagesRaw, p.topics.Summary),
		producer:   p.brk,
		dlqTopic:   p.topics.DLQ,
		producerID: p.producerID,
		metrics:    p.metrics,
		handle:     p.handle,
	}
	return loop.run(ctx)
}

func (p *Processor) handle(ctx context.Context, rec broker.Record) error {
	switch rec.Topic {
	case p.topics.MessagesRaw:
		return p.handleMessage(ctx, rec)
	case p.topics.Summary:
		return p.handleSummary(rec)
	default:
		return fmt.Errorf("unexpected topic %q", rec.Topic)
	}
}

func (p *Processor) handleMessage(ctx context.Context, rec broker.Record) error {
	var msg model.SupportMessage
	if err := json.Unmarshal(rec.Value, &msg); err != nil {
		return fmt.Errorf("decode support message: %w", err)
	}
	if msg.TenantID == "" {
		slog.Warn("dropping tenantless message", "conversation_id", msg.ConversationID, "offset", rec.Offset)
		return errDrop
	}
	if msg.ConversationID == "" {
		slog.Warn("dropping message without conversation id", "message_id", msg.MessageID, "offset", rec.Offset)
		return errDrop
	}

	key := model.ConversationKey{TenantID: msg.TenantID, ConversationID: msg.ConversationID}

	p.mu.Lock()
	state, ok := p.states[key]
	if !ok {
		state = model.NewConversationState(msg.TenantID, msg.ConversationID)
		p.states[key] = state
	}
	state.AddMessage(msg, p.window)
	payload, err := json.Marshal(state)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode conversation state: %w", err)
	}

	out := broker.Record{
		Topic:   p.topics.ConversationsState,
		Key:     []byte(msg.ConversationID),
		Value:   payload,
		Headers: broker.StandardHeaders(msg.TenantID, p.producerID, 0),
	}
	if err := p.brk.Produce(ctx, out); err != nil {
		return fmt.Errorf("produce conversation state: %w", err)
	}

	slog.Debug("conversation state emitted",
		"conversation_id", msg.ConversationID,
		"tenant_id", msg.TenantID,
		"message_count", state.MessageCount,
	)
	return nil
}

func (p *Processor) handleSummary(rec broker.Record) error {
	var summary model.SummaryResult
	if err := json.Unmarshal(rec.Value, &summary); err != nil {
		return fmt.Errorf("decode summary result: %w", err)
	}
	if summary.TenantID == "" {
		slog.Warn("dropping tenantless summary", "conversation_id", summary.ConversationID, "offset", rec.Offset)
		return errDrop
	}

	key := model.ConversationKey{TenantID: summary.TenantID, ConversationID: summary.ConversationID}

	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[key]
	if !ok {
		slog.Warn("summary for unknown conversation", "conversation_id", summary.ConversationID, "tenant_id", summary.TenantID)
		return errDrop
	}
	if !state.UpdateSummary(&summary) {
		slog.Debug("stale summary ignored", "conversation_id", summary.ConversationID)
		return errDrop
	}
	return nil
}

// State returns a snapshot of a conversation's current state, if known.
func (p *Processor) State(key model.ConversationKey) (*model.ConversationState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	state, ok := p.states[key]
	if !ok {
		return nil, false
	}
	cp := *state
	cp.RecentMessages = append([]model.SupportMessage(nil), state.RecentMessages...)
	cp.Participants = append([]string(nil), state.Participants...)
	return &cp, true
}
