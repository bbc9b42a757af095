package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Broker used by tests and by deployments running
// without a Kafka cluster. Every topic is a single ordered partition, so
// per-key ordering holds trivially; offsets are assigned sequentially and
// consumer groups keep independent committed positions.
type Memory struct {
	mu        sync.Mutex
	topics    map[string][]Record
	committed map[string]map[string]int64 // group -> topic -> next offset
	notify    chan struct{}
	producer  string
}

// NewMemory creates an empty in-memory broker.
func NewMemory() *Memory {
	return &Memory{
		topics:    make(map[string][]Record),
		committed: make(map[string]map[string]int64),
		notify:    make(chan struct{}),
	}
}

// Produce appends records to their topics, assigning offsets in order.
func (m *Memory) Produce(_ context.Context, records ...Record) error {
	m.mu.Lock()
	for _, r := range records {
		r.Partition = 0
		r.Offset = int64(len(m.topics[r.Topic]))
		if r.Time.IsZero() {
			r.Time = time.Now().UTC()
		}
		m.topics[r.Topic] = append(m.topics[r.Topic], r)
	}
	close(m.notify)
	m.notify = make(chan struct{})
	m.mu.Unlock()
	return nil
}

// Consumer returns a group member over the given topics. Positions start at
// the group's committed offsets.
func (m *Memory) Consumer(group string, topics ...string) Consumer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed[group] == nil {
		m.committed[group] = make(map[string]int64)
	}
	positions := make(map[string]int64, len(topics))
	for _, t := range topics {
		positions[t] = m.committed[group][t]
	}
	return &memoryConsumer{broker: m, group: group, topics: topics, positions: positions}
}

type memoryConsumer struct {
	broker    *Memory
	group     string
	topics    []string
	positions map[string]int64
	closed    bool
}

// Fetch returns the next unread record across the subscribed topics,
// blocking until one is produced or the context is done.
func (c *memoryConsumer) Fetch(ctx context.Context) (Record, error) {
	for {
		c.broker.mu.Lock()
		if c.closed {
			c.broker.mu.Unlock()
			return Record{}, fmt.Errorf("memory consumer closed")
		}
		for _, topic := range c.topics {
			log := c.broker.topics[topic]
			pos := c.positions[topic]
			if pos < int64(len(log)) {
				rec := log[pos]
				c.positions[topic] = pos + 1
				c.broker.mu.Unlock()
				return rec, nil
			}
		}
		wait := c.broker.notify
		c.broker.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Record{}, ctx.Err()
		}
	}
}

// Commit records the group's committed position for the record's topic.
func (c *memoryConsumer) Commit(_ context.Context, rec Record) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if committed := c.broker.committed[c.group]; committed[rec.Topic] <= rec.Offset {
		committed[rec.Topic] = rec.Offset + 1
	}
	return nil
}

func (c *memoryConsumer) Close() error {
	c.broker.mu.Lock()
	c.closed = true
	c.broker.mu.Unlock()
	return nil
}

// EnsureTopics creates empty topics; existing topics are untouched.
func (m *Memory) EnsureTopics(_ context.Context, specs ...TopicSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range specs {
		if _, ok := m.topics[s.Name]; !ok {
			m.topics[s.Name] = nil
		}
	}
	return nil
}

// Close is a no-op; the in-memory log has nothing to flush.
func (m *Memory) Close() error { return nil }

// Records returns a copy of a topic's log. Test helper.
func (m *Memory) Records(topic string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.topics[topic]...)
}
