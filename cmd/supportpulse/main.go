package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/supportpulse/supportpulse/ai/intelligence"
	"github.com/supportpulse/supportpulse/ai/llm"
	"github.com/supportpulse/supportpulse/broker"
	"github.com/supportpulse/supportpulse/internal/profile"
	"github.com/supportpulse/supportpulse/internal/version"
	"github.com/supportpulse/supportpulse/metrics"
	"github.com/supportpulse/supportpulse/pipeline"
	"github.com/supportpulse/supportpulse/pipeline/broadcast"
	"github.com/supportpulse/supportpulse/server"
)

var rootCmd = &cobra.Command{
	Use:   "supportpulse",
	Short: `Real-time support conversation intelligence: sentiment, PII, insights and summaries over a streaming pipeline.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Only load .env for direct binary execution (not when running as systemd service)
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if viper.IsSet("mock-ai") {
			instanceProfile.MockAI = viper.GetBool("mock-ai")
		}
		if brokers := viper.GetString("kafka-brokers"); brokers != "" {
			instanceProfile.KafkaBrokers = brokers
		}
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		if err := run(instanceProfile); err != nil {
			slog.Error("service failed", "error", err)
			os.Exit(1)
		}
	},
}

func run(p *profile.Profile) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	brk, err := newBroker(p)
	if err != nil {
		return fmt.Errorf("create broker: %w", err)
	}

	svc, err := intelligence.New(intelligence.Config{
		LLM: llm.Config{
			Provider: p.LLMProvider,
			Model:    p.LLMModel,
			APIKey:   p.LLMAPIKey,
			BaseURL:  p.LLMBaseURL,
		},
		RequestsPerMinute: p.ModelRequestsPerMinute,
		MaxConcurrent:     int64(p.ModelMaxConcurrent),
		AttemptTimeout:    time.Duration(p.ModelTimeoutSeconds) * time.Second,
		MaxRetries:        p.ModelMaxRetries,
		MockMode:          p.MockAI,
	})
	if err != nil {
		return fmt.Errorf("create intelligence service: %w", err)
	}

	broadcaster := broadcast.New(p.SubscriberQueueDepth, m)
	pipe := pipeline.New(brk, svc, broadcaster, m, pipeline.Config{
		GroupID:    p.GroupID,
		ProducerID: p.GroupID,
		Topics: pipeline.Topics{
			MessagesRaw:        p.TopicMessagesRaw,
			ConversationsState: p.TopicConversationsState,
			Sentiment:          p.TopicSentiment,
			PII:                p.TopicPII,
			Insights:           p.TopicInsights,
			Summary:            p.TopicSummary,
			Aggregated:         p.TopicAggregated,
			DLQ:                p.TopicDLQ,
		},
		Window:        p.RecentMessagesWindow,
		ShutdownGrace: p.ShutdownGrace(),
	})
	if err := pipe.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	srv := server.NewServer(p, brk, pipe.Topics(), svc, pipe, broadcaster, m)

	c := make(chan os.Signal, 1)
	// Trigger graceful shutdown on SIGINT or SIGTERM. SIGTERM is the default
	// signal sent by most process managers (systemd, Kubernetes).
	signal.Notify(c, terminationSignals...)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	printGreetings(p)

	select {
	case sig := <-c:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("http server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), p.ShutdownGrace())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
	if err := pipe.Shutdown(); err != nil {
		slog.Warn("pipeline shutdown incomplete", "error", err)
	}
	return nil
}

func newBroker(p *profile.Profile) (broker.Broker, error) {
	if !p.KafkaEnabled {
		slog.Warn("kafka disabled, using in-process broker; records are not durable")
		return broker.NewMemory(), nil
	}
	return broker.NewKafka(broker.KafkaConfig{
		Brokers:   p.Brokers(),
		Username:  p.KafkaUsername,
		Password:  p.KafkaPassword,
		Mechanism: p.KafkaMechanism,
		UseTLS:    p.KafkaTLS,
		ClientID:  p.GroupID,
	})
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("kafka-brokers", "", "comma-separated kafka bootstrap servers")
	rootCmd.PersistentFlags().Bool("mock-ai", false, "use deterministic mock analyzers instead of a live model")

	for _, flag := range []string{"mode", "addr", "port", "kafka-brokers", "mock-ai"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("supportpulse")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("SupportPulse %s started successfully!\n", p.Version)
	fmt.Printf("Build: %s\n", version.StringFull())

	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}

	fmt.Printf("Mode: %s\n", p.Mode)
	if p.KafkaEnabled {
		fmt.Printf("Kafka brokers: %s\n", p.KafkaBrokers)
	} else {
		fmt.Println("Broker: in-process (demo)")
	}
	if p.MockAI {
		fmt.Println("AI: mock mode")
	} else {
		fmt.Printf("AI provider: %s (%s)\n", p.LLMProvider, p.LLMModel)
	}

	if len(p.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
