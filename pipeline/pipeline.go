package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/supportpulse/supportpulse/ai/intelligence"
	"github.com/supportpulse/supportpulse/broker"
	"github.com/supportpulse/supportpulse/metrics"
	"github.com/supportpulse/supportpulse/model"
	"github.com/supportpulse/supportpulse/pipeline/broadcast"
)

// Component is one supervised pipeline unit.
type Component interface {
	Name() string
	Run(ctx context.Context) error
}

// Restart backoff bounds for failed components.
const (
	restartBackoffMin = time.Second
	restartBackoffMax = 30 * time.Second

	// A run longer than this is considered healthy and resets the backoff.
	restartHealthyRun = time.Minute
)

// DefaultShutdownGrace bounds how long Shutdown waits for components to
// drain before giving up.
const DefaultShutdownGrace = 30 * time.Second

// Config tunes the pipeline.
type Config struct {
	// GroupID prefixes every consumer group name.
	GroupID string

	// ProducerID identifies this process in record headers.
	ProducerID string

	// Topics names the topics; empty fields keep the defaults.
	Topics Topics

	// Window bounds the per-conversation recent-message window.
	Window int

	// ShutdownGrace bounds the drain period on Shutdown.
	ShutdownGrace time.Duration
}

func (c *Config) applyDefaults() {
	if c.GroupID == "" {
		c.GroupID = "supportpulse"
	}
	if c.ProducerID == "" {
		c.ProducerID = "supportpulse"
	}
	c.Topics = c.Topics.withDefaults()
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
}

// Pipeline owns the six stream components and keeps them running: the
// conversation processor, the four analyzer workers, and the aggregator.
// Each component restarts independently with exponential backoff, so one
// failing analyzer never takes the rest of the pipeline down.
type Pipeline struct {
	cfg         Config
	brk         broker.Broker
	broadcaster *broadcast.Broadcaster
	processor   *Processor
	aggregator  *Aggregator
	components  []Component

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles the pipeline over a broker, an intelligence service and a
// broadcaster.
func New(brk broker.Broker, svc intelligence.Service, bc *broadcast.Broadcaster, m *metrics.Metrics, cfg Config) *Pipeline {
	cfg.applyDefaults()

	processor := NewProcessor(brk, cfg.Topics, cfg.GroupID, cfg.ProducerID, cfg.Window, m)

	var publish func(model.ConversationKey, *model.AggregatedIntelligence)
	if bc != nil {
		publish = bc.Publish
	}
	aggregator := NewAggregator(brk, cfg.Topics, cfg.GroupID, cfg.ProducerID, m, publish)

	components := []Component{processor}
	for _, kind := range AnalyzerKinds {
		components = append(components, NewWorker(kind, brk, cfg.Topics, cfg.GroupID, cfg.ProducerID, svc, m))
	}
	components = append(components, aggregator)

	return &Pipeline{
		cfg:         cfg,
		brk:         brk,
		broadcaster: bc,
		processor:   processor,
		aggregator:  aggregator,
		components:  components,
	}
}

// Topics returns the resolved topic names, so the API layer produces to the
// same topics the pipeline consumes.
func (p *Pipeline) Topics() Topics { return p.cfg.Topics }

// Aggregator exposes the merged-view lookup for the read API.
func (p *Pipeline) Aggregator() *Aggregator { return p.aggregator }

// Processor exposes the conversation state lookup.
func (p *Pipeline) Processor() *Processor { return p.processor }

// Start ensures the topics exist and launches every component under
// supervision. It returns once all components are running.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.brk.EnsureTopics(ctx, p.cfg.Topics.Specs()...); err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for _, c := range p.components {
		p.wg.Add(1)
		go p.supervise(runCtx, c)
	}
	slog.Info("pipeline started", "components", len(p.components), "group_id", p.cfg.GroupID)
	return nil
}

// supervise runs one component, restarting it after failures with
// exponential backoff. A run that survives for a while resets the backoff.
func (p *Pipeline) supervise(ctx context.Context, c Component) {
	defer p.wg.Done()

	backoff := restartBackoffMin
	for {
		started := time.Now()
		err := c.Run(ctx)
		if ctx.Err() != nil {
			slog.Info("component stopped", "component", c.Name())
			return
		}

		if time.Since(started) >= restartHealthyRun {
			backoff = restartBackoffMin
		}
		slog.Error("component crashed, restarting", "component", c.Name(), "error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > restartBackoffMax {
			backoff = restartBackoffMax
		}
	}
}

// Shutdown stops the pipeline: cancels the components, waits up to the
// grace period for them to drain, terminates live subscriptions and closes
// the broker.
func (p *Pipeline) Shutdown() error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.cfg.ShutdownGrace):
		slog.Warn("pipeline drain timed out", "grace", p.cfg.ShutdownGrace)
	}

	if p.broadcaster != nil {
		p.broadcaster.Close()
	}
	if err := p.brk.Close(); err != nil {
		return fmt.Errorf("close broker: %w", err)
	}
	slog.Info("pipeline stopped")
	return nil
}
