package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/supportpulse/supportpulse/pipeline/broadcast"
)

func dialStream(t *testing.T, s *Server, path string) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(s.e)
	t.Cleanup(ts.Close)

	url := strings.Replace(ts.URL, "http://", "ws://", 1) + path
	ws, err := websocket.Dial(url, "", ts.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	require.NoError(t, ws.SetDeadline(time.Now().Add(5*time.Second)))
	return ws
}

func TestStreamPingPong(t *testing.T) {
	s, _, cleanup := newTestServer(t, false)
	defer cleanup()

	ws := dialStream(t, s, "/ws/conversations/conv-1/stream")

	var connected broadcast.Event
	require.NoError(t, websocket.JSON.Receive(ws, &connected))
	assert.Equal(t, broadcast.EventConnected, connected.Type)
	assert.Equal(t, "conv-1", connected.ConversationID)

	// A frame that merely mentions shipping is not a ping.
	require.NoError(t, websocket.Message.Send(ws, "tracking my shipping"))
	require.NoError(t, websocket.Message.Send(ws, "ping"))

	var pong broadcast.Event
	require.NoError(t, websocket.JSON.Receive(ws, &pong))
	assert.Equal(t, broadcast.EventPong, pong.Type)

	// Exactly one pong: the non-ping frame produced nothing.
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var extra broadcast.Event
	assert.Error(t, websocket.JSON.Receive(ws, &extra))
}
