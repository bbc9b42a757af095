package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportpulse/supportpulse/broker"
	"github.com/supportpulse/supportpulse/model"
)

func resultRecord(t *testing.T, topic string, offset int64, payload any) broker.Record {
	t.Helper()
	value, err := json.Marshal(payload)
	require.NoError(t, err)
	return broker.Record{Topic: topic, Value: value, Offset: offset}
}

func sentimentResult(s model.SentimentType) model.SentimentResult {
	return model.SentimentResult{
		ConversationID: "conv-1",
		TenantID:       "acme",
		Sentiment:      s,
		Emotion:        model.EmotionNeutral,
		Confidence:     0.9,
		Timestamp:      time.Now().UTC(),
	}
}

func insightsResult(u model.UrgencyLevel) model.InsightsResult {
	return model.InsightsResult{
		ConversationID: "conv-1",
		TenantID:       "acme",
		Intent:         model.IntentAccountIssue,
		Urgency:        u,
		Timestamp:      time.Now().UTC(),
	}
}

func newTestAggregator(t *testing.T) (*Aggregator, *broker.Memory, Topics) {
	t.Helper()
	m := broker.NewMemory()
	topics := DefaultTopics()
	return NewAggregator(m, topics, "test", "test", nil, nil), m, topics
}

var aggKey = model.ConversationKey{TenantID: "acme", ConversationID: "conv-1"}

func TestAggregatorMergesAndEmits(t *testing.T) {
	a, m, topics := newTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, a.handle(ctx, resultRecord(t, topics.Sentiment, 0, sentimentResult(model.SentimentNegative))))

	emitted := m.Records(topics.Aggregated)
	require.Len(t, emitted, 1)
	assert.Equal(t, "conv-1", string(emitted[0].Key))

	intel, ok := a.Lookup(aggKey)
	require.True(t, ok)
	require.NotNil(t, intel.Sentiment)
	assert.Equal(t, model.SentimentNegative, intel.Sentiment.Sentiment)
	require.NotNil(t, intel.QualityScore)
	assert.Equal(t, 30, *intel.QualityScore, "base 50 minus 20 for negative sentiment")
}

func TestAggregatorLastWriterWinsByOffset(t *testing.T) {
	a, m, topics := newTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, a.handle(ctx, resultRecord(t, topics.Insights, 5, insightsResult(model.UrgencyHigh))))
	// An older offset arrives late: ignored, nothing emitted.
	require.NoError(t, a.handle(ctx, resultRecord(t, topics.Insights, 3, insightsResult(model.UrgencyLow))))

	intel, ok := a.Lookup(aggKey)
	require.True(t, ok)
	assert.Equal(t, model.UrgencyHigh, intel.Insights.Urgency)
	assert.Len(t, m.Records(topics.Aggregated), 1)
}

func TestAggregatorReplayIsIdempotent(t *testing.T) {
	a, m, topics := newTestAggregator(t)
	ctx := context.Background()

	rec := resultRecord(t, topics.Sentiment, 7, sentimentResult(model.SentimentPositive))
	require.NoError(t, a.handle(ctx, rec))
	require.NoError(t, a.handle(ctx, rec))

	assert.Len(t, m.Records(topics.Aggregated), 1, "replaying the same offset is a no-op")
}

func TestAggregatorPIIMonotonicMerge(t *testing.T) {
	a, _, topics := newTestAggregator(t)
	ctx := context.Background()

	withPII := model.PIIResult{
		ConversationID: "conv-1",
		TenantID:       "acme",
		HasPII:         true,
		Entities:       []model.PIIEntity{{Type: model.PIIEmail, RedactedValue: "[REDACTED]", Start: 0, End: 10}},
		RedactedText:   "email [REDACTED]",
		Timestamp:      time.Now().UTC(),
	}
	require.NoError(t, a.handle(ctx, resultRecord(t, topics.PII, 0, withPII)))

	// A later clean message must not revert has_pii or shrink the entity set.
	clean := model.PIIResult{
		ConversationID: "conv-1",
		TenantID:       "acme",
		HasPII:         false,
		Entities:       []model.PIIEntity{},
		RedactedText:   "all clean",
		Timestamp:      time.Now().UTC(),
	}
	require.NoError(t, a.handle(ctx, resultRecord(t, topics.PII, 1, clean)))

	intel, ok := a.Lookup(aggKey)
	require.True(t, ok)
	require.NotNil(t, intel.PII)
	assert.True(t, intel.PII.HasPII, "has_pii never reverts to false")
	require.Len(t, intel.PII.Entities, 1)
	assert.Equal(t, model.PIIEmail, intel.PII.Entities[0].Type)
	assert.Equal(t, "all clean", intel.PII.RedactedText, "redacted text follows the latest result")
}

func TestAggregatorPIIEntityUnionDeduplicates(t *testing.T) {
	a, m, topics := newTestAggregator(t)
	ctx := context.Background()

	first := model.PIIResult{
		ConversationID: "conv-1",
		TenantID:       "acme",
		HasPII:         true,
		Entities:       []model.PIIEntity{{Type: model.PIIEmail, RedactedValue: "[REDACTED]"}},
	}
	require.NoError(t, a.handle(ctx, resultRecord(t, topics.PII, 0, first)))

	second := model.PIIResult{
		ConversationID: "conv-1",
		TenantID:       "acme",
		HasPII:         true,
		Entities: []model.PIIEntity{
			{Type: model.PIIEmail, RedactedValue: "[REDACTED]"}, // duplicate of the first
			{Type: model.PIISSN, RedactedValue: "[REDACTED]"},
		},
	}
	require.NoError(t, a.handle(ctx, resultRecord(t, topics.PII, 1, second)))

	intel, ok := a.Lookup(aggKey)
	require.True(t, ok)
	require.Len(t, intel.PII.Entities, 2)

	// Merging the exact same entities again changes nothing.
	before := len(m.Records(topics.Aggregated))
	require.NoError(t, a.handle(ctx, resultRecord(t, topics.PII, 1, second)))
	assert.Len(t, m.Records(topics.Aggregated), before)
}

func TestAggregatorQualityScoreClamped(t *testing.T) {
	a, _, topics := newTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, a.handle(ctx, resultRecord(t, topics.Sentiment, 0, sentimentResult(model.SentimentNegative))))
	require.NoError(t, a.handle(ctx, resultRecord(t, topics.Insights, 0, insightsResult(model.UrgencyCritical))))

	withPII := model.PIIResult{
		ConversationID: "conv-1",
		TenantID:       "acme",
		HasPII:         true,
		Entities:       []model.PIIEntity{{Type: model.PIISSN, RedactedValue: "[REDACTED]"}},
	}
	require.NoError(t, a.handle(ctx, resultRecord(t, topics.PII, 0, withPII)))

	intel, ok := a.Lookup(aggKey)
	require.True(t, ok)
	assert.Equal(t, 5, *intel.QualityScore, "50 - 20 sentiment - 20 critical - 5 pii")
}

func TestAggregatorBroadcastsOnEveryMerge(t *testing.T) {
	m := broker.NewMemory()
	topics := DefaultTopics()

	var published []*model.AggregatedIntelligence
	a := NewAggregator(m, topics, "test", "test", nil, func(_ model.ConversationKey, intel *model.AggregatedIntelligence) {
		published = append(published, intel)
	})
	ctx := context.Background()

	require.NoError(t, a.handle(ctx, resultRecord(t, topics.Sentiment, 0, sentimentResult(model.SentimentNeutral))))
	require.NoError(t, a.handle(ctx, resultRecord(t, topics.Insights, 0, insightsResult(model.UrgencyLow))))

	require.Len(t, published, 2)
	assert.Nil(t, published[0].Insights, "first publish carries only sentiment")
	assert.NotNil(t, published[1].Insights)
	assert.NotNil(t, published[1].Sentiment)
}

func TestAggregatorDropsTenantlessResult(t *testing.T) {
	a, m, topics := newTestAggregator(t)

	res := sentimentResult(model.SentimentPositive)
	res.TenantID = ""
	err := a.handle(context.Background(), resultRecord(t, topics.Sentiment, 0, res))
	assert.ErrorIs(t, err, errDrop)
	assert.Empty(t, m.Records(topics.Aggregated))
}

func TestAggregatorRejectsUnknownShape(t *testing.T) {
	a, _, topics := newTestAggregator(t)

	err := a.handle(context.Background(), broker.Record{Topic: topics.Sentiment, Value: []byte(`{"foo":1}`)})
	assert.Error(t, err)
}
