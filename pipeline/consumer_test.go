package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportpulse/supportpulse/broker"
)

func TestConsumeLoopRoutesExhaustedRecordToDLQ(t *testing.T) {
	m := broker.NewMemory()
	topics := DefaultTopics()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan []byte, 8)
	loop := &consumeLoop{
		name:        "test",
		consumer:    m.Consumer("g", topics.MessagesRaw),
		producer:    m,
		dlqTopic:    topics.DLQ,
		producerID:  "test",
		maxAttempts: 1,
		handle: func(_ context.Context, rec broker.Record) error {
			handled <- rec.Value
			if string(rec.Value) == "poison" {
				return errors.New("cannot decode")
			}
			return nil
		},
	}
	go loop.run(ctx)

	require.NoError(t, m.Produce(ctx,
		broker.Record{Topic: topics.MessagesRaw, Key: []byte("k"), Value: []byte("poison"), Headers: broker.StandardHeaders("acme", "test", 0)},
		broker.Record{Topic: topics.MessagesRaw, Key: []byte("k"), Value: []byte("fine")},
	))

	require.Eventually(t, func() bool {
		return len(m.Records(topics.DLQ)) == 1
	}, 3*time.Second, 10*time.Millisecond, "poison record should land in the dlq")

	dlq := m.Records(topics.DLQ)[0]
	assert.Equal(t, "k", string(dlq.Key), "dlq record keeps the original key")
	assert.Equal(t, "acme", dlq.Header(broker.HeaderTenantID))

	var dead dlqRecord
	require.NoError(t, json.Unmarshal(dlq.Value, &dead))
	assert.Equal(t, topics.MessagesRaw, dead.OriginalTopic)
	assert.Equal(t, "poison", dead.Payload)
	assert.Contains(t, dead.Error, "cannot decode")
	assert.Equal(t, 1, dead.RetryCount)

	// The loop moved past the poison record and handled the next one.
	require.Eventually(t, func() bool {
		for {
			select {
			case v := <-handled:
				if string(v) == "fine" {
					return true
				}
			default:
				return false
			}
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestConsumeLoopRetriesBeforeDLQ(t *testing.T) {
	m := broker.NewMemory()
	topics := DefaultTopics()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	done := make(chan struct{})
	loop := &consumeLoop{
		name:        "test",
		consumer:    m.Consumer("g", topics.MessagesRaw),
		producer:    m,
		dlqTopic:    topics.DLQ,
		producerID:  "test",
		maxAttempts: 2,
		handle: func(_ context.Context, _ broker.Record) error {
			attempts++
			if attempts == 2 {
				close(done)
				return nil
			}
			return errors.New("transient hiccup")
		},
	}
	go loop.run(ctx)

	require.NoError(t, m.Produce(ctx, broker.Record{Topic: topics.MessagesRaw, Value: []byte("x")}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("record was not retried")
	}
	assert.Empty(t, m.Records(topics.DLQ), "a recovered record must not reach the dlq")
}

func TestConsumeLoopDroppedRecordsSkipDLQ(t *testing.T) {
	m := broker.NewMemory()
	topics := DefaultTopics()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan struct{}, 1)
	loop := &consumeLoop{
		name:        "test",
		consumer:    m.Consumer("g", topics.MessagesRaw),
		producer:    m,
		dlqTopic:    topics.DLQ,
		producerID:  "test",
		maxAttempts: 1,
		handle: func(_ context.Context, _ broker.Record) error {
			seen <- struct{}{}
			return errDrop
		},
	}
	go loop.run(ctx)

	require.NoError(t, m.Produce(ctx, broker.Record{Topic: topics.MessagesRaw, Value: []byte("tenantless")}))

	select {
	case <-seen:
	case <-time.After(3 * time.Second):
		t.Fatal("record was not handled")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, m.Records(topics.DLQ))
}

func TestConsumeLoopStopsOnContextCancel(t *testing.T) {
	m := broker.NewMemory()
	topics := DefaultTopics()
	ctx, cancel := context.WithCancel(context.Background())

	loop := &consumeLoop{
		name:       "test",
		consumer:   m.Consumer("g", topics.MessagesRaw),
		producer:   m,
		dlqTopic:   topics.DLQ,
		producerID: "test",
		handle:     func(_ context.Context, _ broker.Record) error { return nil },
	}

	stopped := make(chan error, 1)
	go func() { stopped <- loop.run(ctx) }()

	cancel()
	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}
