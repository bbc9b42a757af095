package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/supportpulse/supportpulse/broker"
	"github.com/supportpulse/supportpulse/metrics"
)

// defaultMaxHandleAttempts bounds per-record handler retries before the
// record is routed to the dead-letter queue.
const defaultMaxHandleAttempts = 3

// errDrop marks a record that should be acknowledged without any effect:
// tenantless records, stale summaries, payloads for unknown conversations.
// Dropped records never reach the DLQ.
var errDrop = errors.New("record dropped")

// dlqRecord is the dead-letter payload written after handler retries are
// exhausted. The original record key is preserved so replays keep ordering.
type dlqRecord struct {
	OriginalTopic string    `json:"original_topic"`
	Payload       string    `json:"payload"`
	Error         string    `json:"error"`
	RetryCount    int       `json:"retry_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// consumeLoop is the shared fetch → handle → commit loop every pipeline
// component runs on. A handler error is retried with exponential backoff up
// to maxAttempts, then the record goes to the DLQ; the offset is committed
// either way so one poison record cannot wedge a partition.
type consumeLoop struct {
	name        string
	consumer    broker.Consumer
	producer    broker.Producer
	dlqTopic    string
	producerID  string
	maxAttempts int
	metrics     *metrics.Metrics
	handle      func(ctx context.Context, rec broker.Record) error
}

func (l *consumeLoop) run(ctx context.Context) error {
	defer l.consumer.Close()

	maxAttempts := l.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxHandleAttempts
	}

	for {
		rec, err := l.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%s: fetch: %w", l.name, err)
		}

		if err := l.process(ctx, rec, maxAttempts); err != nil {
			// Only context cancellation escapes process; leave the
			// offset uncommitted so the record is redelivered.
			return err
		}

		if err := l.consumer.Commit(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("offset commit failed", "component", l.name, "topic", rec.Topic, "offset", rec.Offset, "error", err)
		}
	}
}

func (l *consumeLoop) process(ctx context.Context, rec broker.Record, maxAttempts int) error {
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-2)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := l.handle(ctx, rec)
		if err == nil || errors.Is(err, errDrop) {
			if l.metrics != nil {
				l.metrics.ObserveHandle(l.name, time.Since(start), nil)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		slog.Warn("record handling failed",
			"component", l.name,
			"topic", rec.Topic,
			"partition", rec.Partition,
			"offset", rec.Offset,
			"attempt", attempt,
			"error", err,
		)
	}

	if l.metrics != nil {
		l.metrics.ObserveHandle(l.name, time.Since(start), lastErr)
	}
	return l.deadLetter(ctx, rec, lastErr, maxAttempts)
}

// deadLetter routes an exhausted record to the DLQ. A DLQ produce failure is
// logged and swallowed: losing the poison record beats wedging the loop.
func (l *consumeLoop) deadLetter(ctx context.Context, rec broker.Record, cause error, attempts int) error {
	payload, err := json.Marshal(dlqRecord{
		OriginalTopic: rec.Topic,
		Payload:       string(rec.Value),
		Error:         cause.Error(),
		RetryCount:    attempts,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%s: encode dlq record: %w", l.name, err)
	}

	out := broker.Record{
		Topic:   l.dlqTopic,
		Key:     rec.Key,
		Value:   payload,
		Headers: broker.StandardHeaders(rec.Header(broker.HeaderTenantID), l.producerID, attempts),
	}
	if err := l.producer.Produce(ctx, out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("dlq produce failed", "component", l.name, "topic", rec.Topic, "offset", rec.Offset, "error", err)
		return nil
	}

	if l.metrics != nil {
		l.metrics.DLQRouted(rec.Topic)
	}
	slog.Error("record routed to dlq",
		"component", l.name,
		"topic", rec.Topic,
		"partition", rec.Partition,
		"offset", rec.Offset,
		"attempts", attempts,
		"error", cause,
	)
	return nil
}
