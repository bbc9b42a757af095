// Package profile holds the runtime configuration of the service.
package profile

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Unified LLM configuration (OpenAI-compatible protocol)
	// All providers (openai, deepseek, siliconflow, openrouter, ollama) use the same config
	LLMProvider string // Provider identifier
	LLMAPIKey   string // API key
	LLMBaseURL  string // Base URL (optional, has default per provider)
	LLMModel    string // Model name: gpt-4o-mini, deepseek-chat, etc.
	MockAI      bool   // Deterministic canned results, no network calls

	// Model client limits
	ModelRequestsPerMinute int
	ModelMaxConcurrent     int
	ModelMaxRetries        int
	ModelTimeoutSeconds    int

	// Broker configuration
	KafkaEnabled   bool   // false selects the in-process broker (demo mode)
	KafkaBrokers   string // comma-separated bootstrap servers
	KafkaUsername  string
	KafkaPassword  string
	KafkaMechanism string // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	KafkaTLS       bool
	GroupID        string

	// Topic name overrides. Empty fields keep the support.* defaults.
	TopicMessagesRaw        string
	TopicConversationsState string
	TopicSentiment          string
	TopicPII                string
	TopicInsights           string
	TopicSummary            string
	TopicAggregated         string
	TopicDLQ                string

	// Pipeline configuration
	DefaultTenant        string
	RecentMessagesWindow int
	SubscriberQueueDepth int
	ShutdownGraceSeconds int

	// Server configuration
	Mode    string
	Addr    string
	Port    int
	Version string
}

// Provider default configurations for the LLM.
// Used when LLM_BASE_URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "deepseek/deepseek-chat",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if a live model endpoint is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != "" || p.MockAI
}

// Brokers returns the bootstrap server list.
func (p *Profile) Brokers() []string {
	parts := strings.Split(p.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if b := strings.TrimSpace(part); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// ShutdownGrace returns the drain period as a duration.
func (p *Profile) ShutdownGrace() time.Duration {
	return time.Duration(p.ShutdownGraceSeconds) * time.Second
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("SUPPORTPULSE_AI_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("SUPPORTPULSE_AI_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("SUPPORTPULSE_AI_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("SUPPORTPULSE_AI_MODEL", "")
	p.MockAI = getEnvOrDefault("SUPPORTPULSE_AI_MOCK", "false") == "true"

	p.ModelRequestsPerMinute = getEnvOrDefaultInt("SUPPORTPULSE_AI_REQUESTS_PER_MINUTE", 60)
	p.ModelMaxConcurrent = getEnvOrDefaultInt("SUPPORTPULSE_AI_MAX_CONCURRENT", 10)
	p.ModelMaxRetries = getEnvOrDefaultInt("SUPPORTPULSE_AI_MAX_RETRIES", 3)
	p.ModelTimeoutSeconds = getEnvOrDefaultInt("SUPPORTPULSE_AI_TIMEOUT_SECONDS", 15)

	p.KafkaEnabled = getEnvOrDefault("SUPPORTPULSE_KAFKA_ENABLED", "true") == "true"
	p.KafkaBrokers = getEnvOrDefault("SUPPORTPULSE_KAFKA_BROKERS", "localhost:9092")
	p.KafkaUsername = getEnvOrDefault("SUPPORTPULSE_KAFKA_USERNAME", "")
	p.KafkaPassword = getEnvOrDefault("SUPPORTPULSE_KAFKA_PASSWORD", "")
	p.KafkaMechanism = getEnvOrDefault("SUPPORTPULSE_KAFKA_SASL_MECHANISM", "PLAIN")
	p.KafkaTLS = getEnvOrDefault("SUPPORTPULSE_KAFKA_TLS", "false") == "true"
	p.GroupID = getEnvOrDefault("SUPPORTPULSE_GROUP_ID", "supportpulse")

	p.TopicMessagesRaw = os.Getenv("SUPPORTPULSE_TOPIC_MESSAGES_RAW")
	p.TopicConversationsState = os.Getenv("SUPPORTPULSE_TOPIC_CONVERSATIONS_STATE")
	p.TopicSentiment = os.Getenv("SUPPORTPULSE_TOPIC_SENTIMENT")
	p.TopicPII = os.Getenv("SUPPORTPULSE_TOPIC_PII")
	p.TopicInsights = os.Getenv("SUPPORTPULSE_TOPIC_INSIGHTS")
	p.TopicSummary = os.Getenv("SUPPORTPULSE_TOPIC_SUMMARY")
	p.TopicAggregated = os.Getenv("SUPPORTPULSE_TOPIC_AGGREGATED")
	p.TopicDLQ = os.Getenv("SUPPORTPULSE_TOPIC_DLQ")

	p.DefaultTenant = getEnvOrDefault("SUPPORTPULSE_DEFAULT_TENANT", "default")
	p.RecentMessagesWindow = getEnvOrDefaultInt("SUPPORTPULSE_RECENT_MESSAGES_WINDOW", 10)
	p.SubscriberQueueDepth = getEnvOrDefaultInt("SUPPORTPULSE_SUBSCRIBER_QUEUE_DEPTH", 64)
	p.ShutdownGraceSeconds = getEnvOrDefaultInt("SUPPORTPULSE_SHUTDOWN_GRACE_SECONDS", 30)

	// Validate and apply provider defaults if not explicitly set
	if p.LLMProvider != "" {
		if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
			slog.Warn("Unknown LLM provider, using default: openai", "provider", p.LLMProvider)
			p.LLMProvider = "openai"
		}
	}
	if p.LLMBaseURL == "" || p.LLMModel == "" {
		if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
			if p.LLMBaseURL == "" {
				p.LLMBaseURL = defaults.BaseURL
			}
			if p.LLMModel == "" {
				p.LLMModel = defaults.Model
			}
		}
	}
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}
	if p.KafkaEnabled && len(p.Brokers()) == 0 {
		return errors.New("kafka is enabled but no brokers are configured")
	}
	if !p.MockAI && p.LLMAPIKey == "" && p.LLMProvider != "ollama" {
		slog.Warn("No LLM API key configured; analyzers will run in mock mode")
		p.MockAI = true
	}
	if p.RecentMessagesWindow <= 0 {
		p.RecentMessagesWindow = 10
	}
	if p.SubscriberQueueDepth <= 0 {
		p.SubscriberQueueDepth = 64
	}
	if p.ShutdownGraceSeconds <= 0 {
		p.ShutdownGraceSeconds = 30
	}
	return nil
}
