// Package broker abstracts the keyed, partitioned durable log the pipeline
// runs on: keyed produce with headers, consumer-group subscription with
// manual offset commit, and idempotent topic creation.
package broker

import (
	"context"
	"strconv"
	"time"
)

// Header is a single key/value record header.
type Header struct {
	Key   string
	Value []byte
}

// Standard header keys carried on every produced record.
const (
	HeaderTenantID   = "tenant_id"
	HeaderRetryCount = "retry_count"
	HeaderProducer   = "producer"
)

// Record is a message on a topic. Partition and Offset are populated on
// consumed records; producers leave them zero.
type Record struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   []Header
	Partition int
	Offset    int64
	Time      time.Time
}

// Header returns the value of the named header, or "" when absent.
func (r *Record) Header(key string) string {
	for _, h := range r.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// RetryCount decodes the retry_count header, defaulting to zero.
func (r *Record) RetryCount() int {
	n, err := strconv.Atoi(r.Header(HeaderRetryCount))
	if err != nil {
		return 0
	}
	return n
}

// StandardHeaders builds the header set every producer attaches.
func StandardHeaders(tenantID, producer string, retryCount int) []Header {
	return []Header{
		{Key: HeaderTenantID, Value: []byte(tenantID)},
		{Key: HeaderRetryCount, Value: []byte(strconv.Itoa(retryCount))},
		{Key: HeaderProducer, Value: []byte(producer)},
	}
}

// TopicSpec describes a topic for idempotent creation.
type TopicSpec struct {
	Name       string
	Partitions int
	Retention  time.Duration
}

// Producer publishes keyed records. Per-key ordering within a topic is
// preserved by hashing the key onto a partition.
type Producer interface {
	Produce(ctx context.Context, records ...Record) error
}

// Consumer is a consumer-group member over one or more topics. Fetch blocks
// until a record is available or the context is done; Commit acknowledges a
// single record's offset.
type Consumer interface {
	Fetch(ctx context.Context) (Record, error)
	Commit(ctx context.Context, rec Record) error
	Close() error
}

// Broker is the full adapter contract the pipeline depends on.
type Broker interface {
	Producer
	Consumer(group string, topics ...string) Consumer
	EnsureTopics(ctx context.Context, specs ...TopicSpec) error
	Close() error
}
