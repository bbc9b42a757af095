package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/supportpulse/supportpulse/broker"
	"github.com/supportpulse/supportpulse/metrics"
	"github.com/supportpulse/supportpulse/model"
)

// aggregateEntry tracks the merged view plus the last-applied broker offset
// per analyzer, so replays and out-of-order deliveries converge to the same
// state. Offsets are compared within one topic only, which is exactly the
// per-kind scope each field covers.
type aggregateEntry struct {
	agg *model.AggregatedIntelligence

	sentimentOffset int64
	insightsOffset  int64
	summaryOffset   int64
	piiOffset       int64
}

// Aggregator folds the four partial-result streams into one merged
// intelligence view per conversation. Sentiment, insights and summary are
// last-writer-wins by offset; PII is monotonic: has_pii never reverts to
// false and the entity set only grows.
type Aggregator struct {
	brk        broker.Broker
	topics     Topics
	groupID    string
	producerID string
	metrics    *metrics.Metrics

	// publish delivers every changed merged view to the broadcaster.
	publish func(key model.ConversationKey, intel *model.AggregatedIntelligence)

	mu      sync.RWMutex
	entries map[model.ConversationKey]*aggregateEntry
}

// NewAggregator builds the aggregator. publish may be nil.
func NewAggregator(brk broker.Broker, topics Topics, groupID, producerID string, m *metrics.Metrics, publish func(model.ConversationKey, *model.AggregatedIntelligence)) *Aggregator {
	return &Aggregator{
		brk:        brk,
		topics:     topics,
		groupID:    groupID + "-aggregation",
		producerID: producerID,
		metrics:    m,
		publish:    publish,
		entries:    make(map[model.ConversationKey]*aggregateEntry),
	}
}

func (a *Aggregator) Name() string { return "aggregator" }

// Run consumes the four partial-result topics until the context ends.
func (a *Aggregator) Run(ctx context.Context) error {
	loop := &consumeLoop{
		name:       a.Name(),
		consumer:   a.brk.Consumer(a.groupID, a.topics.Sentiment, a.topics.PII, a.topics.Insights, a.topics.Summary),
		producer:   a.brk,
		dlqTopic:   a.topics.DLQ,
		producerID: a.producerID,
		metrics:    a.metrics,
		handle:     a.handle,
	}
	return loop.run(ctx)
}

func (a *Aggregator) handle(ctx context.Context, rec broker.Record) error {
	kind := model.DetectResultKind(rec.Value)
	if kind == model.KindUnknown {
		return fmt.Errorf("unrecognized result shape on %s", rec.Topic)
	}

	key, changed, snapshot, err := a.merge(kind, rec)
	if err != nil {
		return err
	}
	if !changed {
		slog.Debug("stale partial result ignored", "kind", kind, "conversation_id", key.ConversationID, "offset", rec.Offset)
		return nil
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode aggregated intelligence: %w", err)
	}
	out := broker.Record{
		Topic:   a.topics.Aggregated,
		Key:     []byte(key.ConversationID),
		Value:   payload,
		Headers: broker.StandardHeaders(key.TenantID, a.producerID, 0),
	}
	if err := a.brk.Produce(ctx, out); err != nil {
		return fmt.Errorf("produce aggregated intelligence: %w", err)
	}

	if a.metrics != nil {
		a.metrics.AggregateEmitted()
	}
	if a.publish != nil {
		a.publish(key, snapshot)
	}
	slog.Debug("intelligence merged",
		"kind", kind,
		"conversation_id", key.ConversationID,
		"tenant_id", key.TenantID,
		"quality_score", snapshot.QualityScore,
	)
	return nil
}

// merge applies one partial result and returns the conversation key, whether
// anything changed, and a snapshot safe to share outside the lock.
func (a *Aggregator) merge(kind model.ResultKind, rec broker.Record) (model.ConversationKey, bool, *model.AggregatedIntelligence, error) {
	var (
		key     model.ConversationKey
		applied func(e *aggregateEntry) bool
	)

	switch kind {
	case model.KindSentiment:
		var res model.SentimentResult
		if err := json.Unmarshal(rec.Value, &res); err != nil {
			return key, false, nil, fmt.Errorf("decode sentiment result: %w", err)
		}
		key = model.ConversationKey{TenantID: res.TenantID, ConversationID: res.ConversationID}
		applied = func(e *aggregateEntry) bool {
			if e.agg.Sentiment != nil && rec.Offset <= e.sentimentOffset {
				return false
			}
			e.agg.Sentiment = &res
			e.sentimentOffset = rec.Offset
			return true
		}

	case model.KindInsights:
		var res model.InsightsResult
		if err := json.Unmarshal(rec.Value, &res); err != nil {
			return key, false, nil, fmt.Errorf("decode insights result: %w", err)
		}
		key = model.ConversationKey{TenantID: res.TenantID, ConversationID: res.ConversationID}
		applied = func(e *aggregateEntry) bool {
			if e.agg.Insights != nil && rec.Offset <= e.insightsOffset {
				return false
			}
			e.agg.Insights = &res
			e.insightsOffset = rec.Offset
			return true
		}

	case model.KindSummary:
		var res model.SummaryResult
		if err := json.Unmarshal(rec.Value, &res); err != nil {
			return key, false, nil, fmt.Errorf("decode summary result: %w", err)
		}
		key = model.ConversationKey{TenantID: res.TenantID, ConversationID: res.ConversationID}
		applied = func(e *aggregateEntry) bool {
			if e.agg.Summary != nil && rec.Offset <= e.summaryOffset {
				return false
			}
			e.agg.Summary = &res
			e.summaryOffset = rec.Offset
			return true
		}

	case model.KindPII:
		var res model.PIIResult
		if err := json.Unmarshal(rec.Value, &res); err != nil {
			return key, false, nil, fmt.Errorf("decode pii result: %w", err)
		}
		key = model.ConversationKey{TenantID: res.TenantID, ConversationID: res.ConversationID}
		applied = func(e *aggregateEntry) bool {
			return mergePII(e, &res, rec.Offset)
		}

	default:
		return key, false, nil, fmt.Errorf("unsupported result kind %q", kind)
	}

	if key.TenantID == "" {
		slog.Warn("dropping tenantless partial result", "kind", kind, "conversation_id", key.ConversationID)
		return key, false, nil, errDrop
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.entries[key]
	if !ok {
		entry = &aggregateEntry{
			agg: &model.AggregatedIntelligence{
				ConversationID: key.ConversationID,
				TenantID:       key.TenantID,
			},
			sentimentOffset: -1,
			insightsOffset:  -1,
			summaryOffset:   -1,
			piiOffset:       -1,
		}
		a.entries[key] = entry
	}

	if !applied(entry) {
		return key, false, nil, nil
	}

	score := qualityScore(entry.agg)
	entry.agg.QualityScore = &score
	entry.agg.LastUpdated = time.Now().UTC()
	return key, true, entry.agg.Clone(), nil
}

// mergePII folds one PII result into the entry. has_pii is a monotonic OR,
// entities are a set union keyed by (type, redacted value), and the redacted
// text follows the newest result by offset.
func mergePII(e *aggregateEntry, res *model.PIIResult, offset int64) bool {
	if e.agg.PII == nil {
		cp := *res
		cp.Entities = append([]model.PIIEntity{}, res.Entities...)
		e.agg.PII = &cp
		e.piiOffset = offset
		return true
	}

	merged := e.agg.PII
	changed := false

	if res.HasPII && !merged.HasPII {
		merged.HasPII = true
		changed = true
	}

	seen := make(map[string]struct{}, len(merged.Entities))
	for _, ent := range merged.Entities {
		seen[string(ent.Type)+"\x00"+ent.RedactedValue] = struct{}{}
	}
	for _, ent := range res.Entities {
		k := string(ent.Type) + "\x00" + ent.RedactedValue
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		merged.Entities = append(merged.Entities, ent)
		changed = true
	}

	if offset > e.piiOffset {
		if merged.RedactedText != res.RedactedText {
			merged.RedactedText = res.RedactedText
			changed = true
		}
		merged.Timestamp = res.Timestamp
		e.piiOffset = offset
	}
	return changed
}

// qualityScore grades the merged view on a 0..100 scale: start at 50, credit
// positive sentiment, penalize negative sentiment, high urgency and exposed
// PII.
func qualityScore(agg *model.AggregatedIntelligence) int {
	score := 50
	if agg.Sentiment != nil {
		switch agg.Sentiment.Sentiment {
		case model.SentimentPositive:
			score += 20
		case model.SentimentNegative:
			score -= 20
		}
	}
	if agg.Insights != nil {
		switch agg.Insights.Urgency {
		case model.UrgencyHigh:
			score -= 10
		case model.UrgencyCritical:
			score -= 20
		}
	}
	if agg.PII != nil && agg.PII.HasPII {
		score -= 5
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Lookup returns the current merged view for a conversation, if any.
func (a *Aggregator) Lookup(key model.ConversationKey) (*model.AggregatedIntelligence, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.entries[key]
	if !ok {
		return nil, false
	}
	return entry.agg.Clone(), true
}
