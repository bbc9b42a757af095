// Package llm provides the chat transport to an OpenAI-compatible
// generative model endpoint.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message is a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message { return Message{Role: "system", Content: content} }

// UserMessage creates a user message.
func UserMessage(content string) Message { return Message{Role: "user", Content: content} }

// Client performs synchronous chat completions.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Config selects the provider endpoint and generation parameters.
type Config struct {
	Provider    string // openai, deepseek, siliconflow, openrouter, ollama, or any compatible
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default 2048
	Temperature float32 // default 0.3
}

type client struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewClient builds a chat client for the configured provider. Unknown
// providers fall through to a generic OpenAI-compatible configuration.
func NewClient(cfg Config) (Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch cfg.Provider {
		case "deepseek":
			baseURL = "https://api.deepseek.com"
		case "siliconflow":
			baseURL = "https://api.siliconflow.cn/v1"
		case "openrouter":
			baseURL = "https://openrouter.ai/api/v1"
		case "ollama":
			baseURL = "http://localhost:11434/v1"
		case "openai", "":
			// library default
		default:
			slog.Info("llm: using generic OpenAI-compatible provider", "provider", cfg.Provider)
		}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.3
	}

	return &client{
		api:         openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

func (c *client) Chat(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages:    convertMessages(messages),
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm chat: empty response")
	}

	slog.Debug("llm chat completed",
		"model", c.model,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := m.Role
		switch role {
		case "system", "user", "assistant":
		default:
			role = openai.ChatMessageRoleUser
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
