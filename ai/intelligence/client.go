package intelligence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/supportpulse/supportpulse/ai/llm"
	"github.com/supportpulse/supportpulse/model"
)

// client is the live Service implementation. All workers share one client,
// so the token bucket and the semaphore bound the external model load
// globally across the pipeline.
type client struct {
	chat           llm.Client
	limiter        *rate.Limiter
	sem            *semaphore.Weighted
	attemptTimeout time.Duration
	maxRetries     int
}

func newClient(chat llm.Client, cfg Config) *client {
	return &client{
		chat:           chat,
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		sem:            semaphore.NewWeighted(cfg.MaxConcurrent),
		attemptTimeout: cfg.AttemptTimeout,
		maxRetries:     cfg.MaxRetries,
	}
}

// generate runs one model operation end to end: semaphore, token bucket,
// bounded attempt, retry with jittered exponential backoff on transient
// failure, and JSON extraction. Any returned error is permanent.
func (c *client) generate(ctx context.Context, op, prompt string) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%s: acquire slot: %w", op, err)
	}
	defer c.sem.Release(1)

	messages := []llm.Message{llm.SystemPrompt(systemPrompt), llm.UserMessage(prompt)}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := jitter(2 * time.Second << (attempt - 1))
			slog.Debug("model retry scheduled", "op", op, "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limit wait: %w", op, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		response, err := c.chat.Chat(attemptCtx, messages)
		cancel()

		if err == nil {
			raw, perr := extractJSON(response)
			if perr != nil {
				// Unparseable output will not improve on retry.
				return nil, fmt.Errorf("%s: %w", op, perr)
			}
			return raw, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isTransient(err) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil, fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

// isTransient classifies failures worth retrying: rate-limit signals,
// 5xx-equivalents, network errors, and per-attempt timeouts.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// jitter spreads a backoff by ±20%.
func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}

func (c *client) AnalyzeSentiment(ctx context.Context, key model.ConversationKey, contextText string) *model.SentimentResult {
	raw, err := c.generate(ctx, "analyze_sentiment", sentimentPrompt(contextText))
	if err == nil {
		var dto sentimentDTO
		if err = decodeInto(raw, &dto); err == nil {
			res, convErr := dto.toResult(key)
			if convErr == nil {
				return res
			}
			err = convErr
		}
	}
	slog.Warn("sentiment analysis fell back", "conversation_id", key.ConversationID, "error", err)
	return fallbackSentiment(key)
}

func (dto sentimentDTO) toResult(key model.ConversationKey) (*model.SentimentResult, error) {
	sentiment := model.SentimentType(dto.Sentiment)
	switch sentiment {
	case model.SentimentPositive, model.SentimentNeutral, model.SentimentNegative:
	default:
		return nil, fmt.Errorf("unknown sentiment %q", dto.Sentiment)
	}
	if dto.Confidence < 0 || dto.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", dto.Confidence)
	}
	return &model.SentimentResult{
		ConversationID: key.ConversationID,
		TenantID:       key.TenantID,
		Sentiment:      sentiment,
		Confidence:     dto.Confidence,
		Emotion:        model.EmotionType(dto.Emotion),
		Reasoning:      dto.Reasoning,
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (c *client) DetectPII(ctx context.Context, key model.ConversationKey, text string) *model.PIIResult {
	raw, err := c.generate(ctx, "detect_pii", piiPrompt(text))
	if err == nil {
		var dto piiDTO
		if err = decodeInto(raw, &dto); err == nil {
			entities := make([]model.PIIEntity, 0, len(dto.Entities))
			for _, e := range dto.Entities {
				redacted := e.Value
				if redacted == "" {
					redacted = "[REDACTED]"
				}
				entities = append(entities, model.PIIEntity{
					Type:          model.PIIEntityType(e.Type),
					RedactedValue: redacted,
					Start:         e.StartIndex,
					End:           e.EndIndex,
				})
			}
			return &model.PIIResult{
				ConversationID: key.ConversationID,
				TenantID:       key.TenantID,
				HasPII:         dto.HasPII,
				Entities:       entities,
				RedactedText:   dto.RedactedText,
				Timestamp:      time.Now().UTC(),
			}
		}
	}
	slog.Warn("pii detection fell back", "conversation_id", key.ConversationID, "error", err)
	return fallbackPII(key)
}

func (c *client) ExtractInsights(ctx context.Context, key model.ConversationKey, contextText string) *model.InsightsResult {
	raw, err := c.generate(ctx, "extract_insights", insightsPrompt(contextText))
	if err == nil {
		var dto insightsDTO
		if err = decodeInto(raw, &dto); err == nil {
			res, convErr := dto.toResult(key)
			if convErr == nil {
				return res
			}
			err = convErr
		}
	}
	slog.Warn("insights extraction fell back", "conversation_id", key.ConversationID, "error", err)
	return fallbackInsights(key)
}

func (dto insightsDTO) toResult(key model.ConversationKey) (*model.InsightsResult, error) {
	urgency := model.UrgencyLevel(dto.Urgency)
	switch urgency {
	case model.UrgencyLow, model.UrgencyMedium, model.UrgencyHigh, model.UrgencyCritical:
	default:
		return nil, fmt.Errorf("unknown urgency %q", dto.Urgency)
	}
	return &model.InsightsResult{
		ConversationID:          key.ConversationID,
		TenantID:                key.TenantID,
		Intent:                  model.IntentType(dto.Intent),
		Urgency:                 urgency,
		Categories:              orEmpty(dto.Categories),
		SuggestedActions:        orEmpty(dto.SuggestedActions),
		RequiresEscalation:      dto.RequiresEscalation,
		EstimatedResolutionTime: dto.EstimatedResolutionTime,
		KeyConcerns:             orEmpty(dto.KeyConcerns),
		Timestamp:               time.Now().UTC(),
	}, nil
}

func (c *client) UpdateSummary(ctx context.Context, key model.ConversationKey, old *model.SummaryResult, newMessage string, sender model.MessageSender) *model.SummaryResult {
	raw, err := c.generate(ctx, "update_summary", updateSummaryPrompt(old, newMessage, sender))
	if err == nil {
		if res, derr := decodeSummary(raw, key); derr == nil {
			return res
		} else {
			err = derr
		}
	}
	slog.Warn("summary update fell back", "conversation_id", key.ConversationID, "error", err)
	return fallbackSummary(key, old)
}

func (c *client) Summarize(ctx context.Context, key model.ConversationKey, transcript string) *model.SummaryResult {
	raw, err := c.generate(ctx, "summarize", summarizePrompt(transcript))
	if err == nil {
		if res, derr := decodeSummary(raw, key); derr == nil {
			return res
		} else {
			err = derr
		}
	}
	slog.Warn("summarization fell back", "conversation_id", key.ConversationID, "error", err)
	return fallbackSummary(key, nil)
}

func decodeSummary(raw []byte, key model.ConversationKey) (*model.SummaryResult, error) {
	var dto summaryDTO
	if err := decodeInto(raw, &dto); err != nil {
		return nil, err
	}
	if dto.TLDR == "" {
		return nil, fmt.Errorf("summary missing tldr")
	}
	return &model.SummaryResult{
		ConversationID: key.ConversationID,
		TenantID:       key.TenantID,
		TLDR:           dto.TLDR,
		CustomerIssue:  dto.CustomerIssue,
		AgentResponse:  dto.AgentResponse,
		KeyPoints:      orEmpty(dto.KeyPoints),
		NextSteps:      orEmpty(dto.NextSteps),
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (c *client) GenerateReply(ctx context.Context, key model.ConversationKey, contextText, userMessage string) string {
	raw, err := c.generate(ctx, "generate_reply", replyPrompt(contextText, userMessage))
	if err == nil {
		var dto replyDTO
		if err = decodeInto(raw, &dto); err == nil && dto.Response != "" {
			return dto.Response
		}
	}
	slog.Warn("reply generation fell back", "conversation_id", key.ConversationID, "error", err)
	return fallbackReply
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
