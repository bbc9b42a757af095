// Package broadcast fans merged intelligence out to live subscribers with
// bounded, lossy per-subscriber queues. Publishing never blocks: a slow
// consumer loses its oldest undelivered events, never the publisher's time.
package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/lithammer/shortuuid/v4"

	"github.com/supportpulse/supportpulse/metrics"
	"github.com/supportpulse/supportpulse/model"
)

// DefaultQueueDepth is the per-subscriber event queue bound.
const DefaultQueueDepth = 64

// Event envelope types delivered to subscribers.
const (
	EventConnected          = "connected"
	EventIntelligenceUpdate = "intelligence_update"
	EventPong               = "pong"
)

// Event is one envelope on a subscriber's queue.
type Event struct {
	Type           string                        `json:"type"`
	ConversationID string                        `json:"conversation_id,omitempty"`
	Data           *model.AggregatedIntelligence `json:"data,omitempty"`
}

// Subscriber is one live stream attached to a conversation. Events are read
// from Events(); the channel closes when the subscription ends.
type Subscriber struct {
	ID  string
	key model.ConversationKey
	ch  chan Event

	closed bool // guarded by the broadcaster mutex
}

// Events returns the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Key returns the conversation the subscriber is attached to.
func (s *Subscriber) Key() model.ConversationKey { return s.key }

// Broadcaster routes merged intelligence views to subscribers keyed by
// (tenant, conversation). It caches the latest view per conversation so new
// subscribers receive a snapshot immediately on subscribe.
type Broadcaster struct {
	queueDepth int
	metrics    *metrics.Metrics
	dropped    atomic.Int64

	mu       sync.Mutex
	subs     map[model.ConversationKey]map[*Subscriber]struct{}
	cache    map[model.ConversationKey]*model.AggregatedIntelligence
	shutdown bool
}

// New builds a broadcaster. queueDepth <= 0 selects the default.
func New(queueDepth int, m *metrics.Metrics) *Broadcaster {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Broadcaster{
		queueDepth: queueDepth,
		metrics:    m,
		subs:       make(map[model.ConversationKey]map[*Subscriber]struct{}),
		cache:      make(map[model.ConversationKey]*model.AggregatedIntelligence),
	}
}

// Subscribe attaches a new subscriber to a conversation. When a merged view
// for the conversation is already cached, it is queued before Subscribe
// returns, so the subscriber always starts from the current snapshot.
func (b *Broadcaster) Subscribe(key model.ConversationKey) *Subscriber {
	sub := &Subscriber{
		ID:  shortuuid.New(),
		key: key,
		ch:  make(chan Event, b.queueDepth),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		sub.closed = true
		close(sub.ch)
		return sub
	}

	group, ok := b.subs[key]
	if !ok {
		group = make(map[*Subscriber]struct{})
		b.subs[key] = group
	}
	group[sub] = struct{}{}

	if snapshot, ok := b.cache[key]; ok {
		b.enqueue(sub, Event{
			Type:           EventIntelligenceUpdate,
			ConversationID: key.ConversationID,
			Data:           snapshot.Clone(),
		})
	}

	if b.metrics != nil {
		b.metrics.SubscriberConnected()
	}
	slog.Debug("subscriber attached", "subscriber_id", sub.ID, "conversation_id", key.ConversationID, "tenant_id", key.TenantID)
	return sub
}

// Unsubscribe detaches a subscriber and closes its channel. Safe to call
// more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)

	if group, ok := b.subs[sub.key]; ok {
		delete(group, sub)
		if len(group) == 0 {
			delete(b.subs, sub.key)
		}
	}
	if b.metrics != nil {
		b.metrics.SubscriberDisconnected()
	}
	slog.Debug("subscriber detached", "subscriber_id", sub.ID, "conversation_id", sub.key.ConversationID)
}

// Publish caches the merged view and fans it out to every subscriber of the
// conversation. Never blocks; full queues drop their oldest event.
func (b *Broadcaster) Publish(key model.ConversationKey, intel *model.AggregatedIntelligence) {
	if intel == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return
	}
	b.cache[key] = intel.Clone()

	group := b.subs[key]
	if len(group) == 0 {
		return
	}
	event := Event{
		Type:           EventIntelligenceUpdate,
		ConversationID: key.ConversationID,
		Data:           intel,
	}
	for sub := range group {
		b.enqueue(sub, event)
	}
}

// enqueue pushes one event, evicting the oldest queued event on overflow.
// Caller holds the mutex, so no concurrent send/receive races the eviction.
func (b *Broadcaster) enqueue(sub *Subscriber, event Event) {
	if sub.closed {
		return
	}
	for {
		select {
		case sub.ch <- event:
			return
		default:
		}
		select {
		case <-sub.ch:
			b.dropped.Add(1)
			if b.metrics != nil {
				b.metrics.BroadcastDropped()
			}
			slog.Warn("subscriber queue full, oldest event dropped", "subscriber_id", sub.ID, "conversation_id", sub.key.ConversationID)
		default:
		}
	}
}

// Dropped reports the total events dropped from full subscriber queues.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

// Snapshot returns the cached merged view for a conversation, if any.
func (b *Broadcaster) Snapshot(key model.ConversationKey) (*model.AggregatedIntelligence, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot, ok := b.cache[key]
	if !ok {
		return nil, false
	}
	return snapshot.Clone(), true
}

// Close terminates every subscription. Subsequent Publish and Subscribe
// calls are no-ops returning already-closed subscribers.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return
	}
	b.shutdown = true
	for key, group := range b.subs {
		for sub := range group {
			sub.closed = true
			close(sub.ch)
			if b.metrics != nil {
				b.metrics.SubscriberDisconnected()
			}
		}
		delete(b.subs, key)
	}
}
