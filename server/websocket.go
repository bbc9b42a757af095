package server

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"github.com/supportpulse/supportpulse/pipeline/broadcast"
)

// streamIntelligence upgrades the connection and streams merged intelligence
// updates for one conversation. The client receives a connected envelope,
// then the current snapshot if one exists, then live updates. A "ping" text
// frame is answered with a pong envelope.
func (s *Server) streamIntelligence(c echo.Context) error {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		return echo.NewHTTPError(400, "conversation_id is required")
	}
	key := s.conversationKey(conversationID, c.QueryParam("tenant_id"))

	websocket.Handler(func(ws *websocket.Conn) {
		defer ws.Close()

		sub := s.broadcaster.Subscribe(key)
		defer s.broadcaster.Unsubscribe(sub)

		// Sends interleave from the event pump and ping replies.
		var sendMu sync.Mutex
		send := func(event broadcast.Event) error {
			sendMu.Lock()
			defer sendMu.Unlock()
			return websocket.JSON.Send(ws, event)
		}

		if err := send(broadcast.Event{Type: broadcast.EventConnected, ConversationID: conversationID}); err != nil {
			return
		}
		slog.Debug("stream opened", "subscriber_id", sub.ID, "conversation_id", conversationID, "tenant_id", key.TenantID)

		go func() {
			for event := range sub.Events() {
				if err := send(event); err != nil {
					slog.Debug("stream write failed, detaching", "subscriber_id", sub.ID, "error", err)
					s.broadcaster.Unsubscribe(sub)
					ws.Close()
					return
				}
			}
			// Subscription ended (unsubscribe or shutdown); release the reader.
			ws.Close()
		}()

		for {
			var frame string
			if err := websocket.Message.Receive(ws, &frame); err != nil {
				return
			}
			if strings.TrimSpace(frame) == "ping" {
				if err := send(broadcast.Event{Type: broadcast.EventPong, ConversationID: conversationID}); err != nil {
					return
				}
			}
		}
	}).ServeHTTP(c.Response(), c.Request())
	return nil
}
