package intelligence

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportpulse/supportpulse/ai/llm"
	"github.com/supportpulse/supportpulse/model"
)

// stubChat scripts the model transport: each call consumes the next step.
type stubChat struct {
	steps []func() (string, error)
	calls int
}

func (s *stubChat) Chat(_ context.Context, _ []llm.Message) (string, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	return s.steps[idx]()
}

func respond(body string) func() (string, error) {
	return func() (string, error) { return body, nil }
}

func fail(err error) func() (string, error) {
	return func() (string, error) { return "", err }
}

func testClient(chat llm.Client, maxRetries int) *client {
	cfg := Config{
		RequestsPerMinute: 6000,
		MaxConcurrent:     10,
		AttemptTimeout:    time.Second,
		MaxRetries:        maxRetries,
	}
	return newClient(chat, cfg)
}

var testKey = model.ConversationKey{TenantID: "acme", ConversationID: "conv-1"}

func TestAnalyzeSentimentSuccess(t *testing.T) {
	chat := &stubChat{steps: []func() (string, error){
		respond("```json\n{\"sentiment\":\"negative\",\"confidence\":0.92,\"emotion\":\"frustrated\",\"reasoning\":\"upset about a refund\"}\n```"),
	}}
	c := testClient(chat, 1)

	res := c.AnalyzeSentiment(context.Background(), testKey, "Current message: I want a refund now")

	require.NotNil(t, res)
	assert.Equal(t, model.SentimentNegative, res.Sentiment)
	assert.Equal(t, model.EmotionFrustrated, res.Emotion)
	assert.InDelta(t, 0.92, res.Confidence, 1e-9)
	assert.Equal(t, "conv-1", res.ConversationID)
	assert.Equal(t, "acme", res.TenantID)
}

func TestAnalyzeSentimentFallbackOnPermanentError(t *testing.T) {
	chat := &stubChat{steps: []func() (string, error){
		fail(&openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "bad request"}),
	}}
	c := testClient(chat, 3)

	res := c.AnalyzeSentiment(context.Background(), testKey, "hello")

	assert.Equal(t, 1, chat.calls, "permanent errors are not retried")
	assert.Equal(t, model.SentimentNeutral, res.Sentiment)
	assert.Equal(t, model.EmotionNeutral, res.Emotion)
	assert.Zero(t, res.Confidence)
}

func TestAnalyzeSentimentFallbackOnInvalidEnum(t *testing.T) {
	chat := &stubChat{steps: []func() (string, error){
		respond(`{"sentiment":"ecstatic","confidence":0.5,"emotion":"happy","reasoning":"x"}`),
	}}
	c := testClient(chat, 1)

	res := c.AnalyzeSentiment(context.Background(), testKey, "hello")
	assert.Equal(t, model.SentimentNeutral, res.Sentiment)
}

func TestGenerateRetriesTransientThenSucceeds(t *testing.T) {
	chat := &stubChat{steps: []func() (string, error){
		fail(&openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}),
		respond(`{"sentiment":"positive","confidence":0.8,"emotion":"satisfied","reasoning":"thanks"}`),
	}}
	c := testClient(chat, 1)

	res := c.AnalyzeSentiment(context.Background(), testKey, "thanks, that fixed it")

	assert.Equal(t, 2, chat.calls)
	assert.Equal(t, model.SentimentPositive, res.Sentiment)
}

func TestDetectPIIFallback(t *testing.T) {
	chat := &stubChat{steps: []func() (string, error){
		respond("the message contains an email address"),
	}}
	c := testClient(chat, 1)

	res := c.DetectPII(context.Background(), testKey, "mail me at a@b.co")

	assert.False(t, res.HasPII)
	assert.NotNil(t, res.Entities)
	assert.Empty(t, res.Entities)
}

func TestUpdateSummaryFallbackKeepsPrevious(t *testing.T) {
	chat := &stubChat{steps: []func() (string, error){
		fail(&openai.APIError{HTTPStatusCode: http.StatusBadRequest}),
	}}
	c := testClient(chat, 1)

	old := &model.SummaryResult{TLDR: "customer wants a refund", KeyPoints: []string{"refund"}}
	res := c.UpdateSummary(context.Background(), testKey, old, "any update?", model.SenderCustomer)

	assert.Equal(t, "customer wants a refund", res.TLDR)
	assert.Equal(t, []string{"refund"}, res.KeyPoints)
}

func TestGenerateReplyFallback(t *testing.T) {
	chat := &stubChat{steps: []func() (string, error){
		respond("not json at all"),
	}}
	c := testClient(chat, 1)

	reply := c.GenerateReply(context.Background(), testKey, "", "where is my order?")
	assert.Equal(t, fallbackReply, reply)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusBadGateway}, true},
		{"client error", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, false},
		{"request error 503", &openai.RequestError{HTTPStatusCode: http.StatusServiceUnavailable, Err: errors.New("x")}, true},
		{"attempt timeout", context.DeadlineExceeded, true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestJitterBounds(t *testing.T) {
	base := 2 * time.Second
	for i := 0; i < 100; i++ {
		d := jitter(base)
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8))
		assert.LessOrEqual(t, d, time.Duration(float64(base)*1.2))
	}
}
