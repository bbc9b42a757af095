// Package pipeline wires the event-driven core: the conversation processor,
// the four analyzer workers, the aggregator, and the supervisor that keeps
// them running over the durable log.
package pipeline

import (
	"time"

	"github.com/supportpulse/supportpulse/broker"
)

// Topics names every topic the pipeline touches.
type Topics struct {
	MessagesRaw        string
	ConversationsState string
	Sentiment          string
	PII                string
	Insights           string
	Summary            string
	Aggregated         string
	DLQ                string
}

// DefaultTopics returns the production topic names.
func DefaultTopics() Topics {
	return Topics{
		MessagesRaw:        "support.messages.raw",
		ConversationsState: "support.conversations.state",
		Sentiment:          "support.ai.sentiment",
		PII:                "support.ai.pii",
		Insights:           "support.ai.insights",
		Summary:            "support.ai.summary",
		Aggregated:         "support.ai.aggregated",
		DLQ:                "support.dlq",
	}
}

// withDefaults fills empty topic names from DefaultTopics, so a partial
// override keeps the standard names for the rest.
func (t Topics) withDefaults() Topics {
	d := DefaultTopics()
	if t.MessagesRaw == "" {
		t.MessagesRaw = d.MessagesRaw
	}
	if t.ConversationsState == "" {
		t.ConversationsState = d.ConversationsState
	}
	if t.Sentiment == "" {
		t.Sentiment = d.Sentiment
	}
	if t.PII == "" {
		t.PII = d.PII
	}
	if t.Insights == "" {
		t.Insights = d.Insights
	}
	if t.Summary == "" {
		t.Summary = d.Summary
	}
	if t.Aggregated == "" {
		t.Aggregated = d.Aggregated
	}
	if t.DLQ == "" {
		t.DLQ = d.DLQ
	}
	return t
}

// Specs returns the creation specs for all topics: partition counts and
// retention per topic class.
func (t Topics) Specs() []broker.TopicSpec {
	const (
		day = 24 * time.Hour
	)
	return []broker.TopicSpec{
		{Name: t.MessagesRaw, Partitions: 3, Retention: 7 * day},
		{Name: t.ConversationsState, Partitions: 3, Retention: 30 * day},
		{Name: t.Sentiment, Partitions: 3, Retention: 7 * day},
		{Name: t.PII, Partitions: 3, Retention: 30 * day},
		{Name: t.Insights, Partitions: 3, Retention: 7 * day},
		{Name: t.Summary, Partitions: 3, Retention: 7 * day},
		{Name: t.Aggregated, Partitions: 3, Retention: 7 * day},
		{Name: t.DLQ, Partitions: 1, Retention: 14 * day},
	}
}
