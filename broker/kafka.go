package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// KafkaConfig configures the Kafka-backed broker adapter.
type KafkaConfig struct {
	Brokers []string

	// SASL credentials. Empty Username disables SASL.
	Username  string
	Password  string
	Mechanism string // "PLAIN", "SCRAM-SHA-256" or "SCRAM-SHA-512"
	UseTLS    bool

	// ClientID tags connections and the producer header.
	ClientID string
}

// Kafka implements Broker on top of segmentio/kafka-go: a single shared
// Writer for all topics and one Reader per consumer group.
type Kafka struct {
	cfg       KafkaConfig
	writer    *kafka.Writer
	transport *kafka.Transport
	dialer    *kafka.Dialer
}

// NewKafka builds the adapter. No connection is made until first use.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no bootstrap brokers configured")
	}

	mechanism, err := saslMechanism(cfg)
	if err != nil {
		return nil, err
	}

	var tlsCfg *tls.Config
	if cfg.UseTLS {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	transport := &kafka.Transport{
		SASL:        mechanism,
		TLS:         tlsCfg,
		ClientID:    cfg.ClientID,
		DialTimeout: 10 * time.Second,
	}
	dialer := &kafka.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		SASLMechanism: mechanism,
		TLS:           tlsCfg,
		ClientID:      cfg.ClientID,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{}, // keyed partitioning preserves per-conversation order
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
		Transport:    transport,
	}

	return &Kafka{cfg: cfg, writer: writer, transport: transport, dialer: dialer}, nil
}

func saslMechanism(cfg KafkaConfig) (sasl.Mechanism, error) {
	if cfg.Username == "" {
		return nil, nil
	}
	switch cfg.Mechanism {
	case "", "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("kafka: unsupported SASL mechanism %q", cfg.Mechanism)
	}
}

// Produce writes records, preserving per-key ordering via the hash balancer.
func (k *Kafka) Produce(ctx context.Context, records ...Record) error {
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		headers := make([]kafka.Header, len(r.Headers))
		for j, h := range r.Headers {
			headers[j] = kafka.Header{Key: h.Key, Value: h.Value}
		}
		msgs[i] = kafka.Message{
			Topic:   r.Topic,
			Key:     r.Key,
			Value:   r.Value,
			Headers: headers,
		}
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	return nil
}

// Consumer returns a consumer-group member over the given topics with manual
// offset commits.
func (k *Kafka) Consumer(group string, topics ...string) Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.cfg.Brokers,
		GroupID:        group,
		GroupTopics:    topics,
		Dialer:         k.dialer,
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		MaxWait:        time.Second,
		CommitInterval: 0, // synchronous commits only
	})
	return &kafkaConsumer{reader: reader}
}

type kafkaConsumer struct {
	reader *kafka.Reader
}

func (c *kafkaConsumer) Fetch(ctx context.Context) (Record, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Record{}, err
	}
	headers := make([]Header, len(msg.Headers))
	for i, h := range msg.Headers {
		headers[i] = Header{Key: h.Key, Value: h.Value}
	}
	return Record{
		Topic:     msg.Topic,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Time:      msg.Time,
	}, nil
}

func (c *kafkaConsumer) Commit(ctx context.Context, rec Record) error {
	return c.reader.CommitMessages(ctx, kafka.Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
	})
}

func (c *kafkaConsumer) Close() error {
	return c.reader.Close()
}

// EnsureTopics creates any missing topics; existing topics are left alone.
func (k *Kafka) EnsureTopics(ctx context.Context, specs ...TopicSpec) error {
	client := &kafka.Client{
		Addr:      kafka.TCP(k.cfg.Brokers...),
		Transport: k.transport,
		Timeout:   30 * time.Second,
	}

	configs := make([]kafka.TopicConfig, 0, len(specs))
	for _, s := range specs {
		partitions := s.Partitions
		if partitions <= 0 {
			partitions = 3
		}
		cfg := kafka.TopicConfig{
			Topic:             s.Name,
			NumPartitions:     partitions,
			ReplicationFactor: -1, // broker default
		}
		if s.Retention > 0 {
			cfg.ConfigEntries = []kafka.ConfigEntry{{
				ConfigName:  "retention.ms",
				ConfigValue: strconv.FormatInt(s.Retention.Milliseconds(), 10),
			}}
		}
		configs = append(configs, cfg)
	}

	resp, err := client.CreateTopics(ctx, &kafka.CreateTopicsRequest{Topics: configs})
	if err != nil {
		return fmt.Errorf("kafka create topics: %w", err)
	}
	for name, topicErr := range resp.Errors {
		if topicErr == nil || errors.Is(topicErr, kafka.TopicAlreadyExists) {
			continue
		}
		return fmt.Errorf("kafka create topic %s: %w", name, topicErr)
	}
	slog.Info("kafka topics ensured", "count", len(specs))
	return nil
}

// Close flushes pending produces and releases connections.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// IsTransient reports whether a broker error is worth retrying in place.
func IsTransient(err error) bool {
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}
