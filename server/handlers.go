package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/supportpulse/supportpulse/broker"
	"github.com/supportpulse/supportpulse/model"
)

// createMessage validates and accepts one support message for processing.
// The message is produced to the raw topic and picked up asynchronously, so
// the reply is 202, not the analysis result.
func (s *Server) createMessage(c echo.Context) error {
	var req model.CreateMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg := req.ToSupportMessage(s.profile.DefaultTenant)
	payload, err := json.Marshal(msg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "encode message")
	}

	rec := broker.Record{
		Topic:   s.topics.MessagesRaw,
		Key:     []byte(msg.ConversationID),
		Value:   payload,
		Headers: broker.StandardHeaders(msg.TenantID, "api", 0),
	}
	if err := s.producer.Produce(c.Request().Context(), rec); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("message not accepted: %v", err))
	}

	return c.JSON(http.StatusAccepted, model.CreateMessageResponse{
		MessageID:      msg.MessageID,
		ConversationID: msg.ConversationID,
		Status:         "accepted",
		Timestamp:      msg.Timestamp,
	})
}

type replyRequest struct {
	Message  string `json:"message"`
	TenantID string `json:"tenant_id,omitempty"`
}

type replyResponse struct {
	ConversationID string    `json:"conversation_id"`
	Reply          string    `json:"reply"`
	Timestamp      time.Time `json:"timestamp"`
}

// suggestReply drafts an AI support reply to the given customer message,
// using the conversation's current state as context when available.
func (s *Server) suggestReply(c echo.Context) error {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation_id is required")
	}

	var req replyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	key := s.conversationKey(conversationID, req.TenantID)
	contextText := ""
	if state, ok := s.pipe.Processor().State(key); ok {
		contextText = state.ContextText(0)
	}

	reply := s.svc.GenerateReply(c.Request().Context(), key, contextText, req.Message)
	return c.JSON(http.StatusOK, replyResponse{
		ConversationID: conversationID,
		Reply:          reply,
		Timestamp:      time.Now().UTC(),
	})
}

// getIntelligence returns the current merged intelligence view.
func (s *Server) getIntelligence(c echo.Context) error {
	conversationID := c.Param("conversation_id")
	key := s.conversationKey(conversationID, c.QueryParam("tenant_id"))

	intel, ok := s.pipe.Aggregator().Lookup(key)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no intelligence for conversation")
	}
	return c.JSON(http.StatusOK, intel)
}

func (s *Server) conversationKey(conversationID, tenantID string) model.ConversationKey {
	if tenantID == "" {
		tenantID = s.profile.DefaultTenant
	}
	return model.ConversationKey{TenantID: tenantID, ConversationID: conversationID}
}
