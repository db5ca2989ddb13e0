// Package testhelpers provides common utilities for exercising the gateway
// over real HTTP and WebSocket connections in tests.
package testhelpers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestOrigin is the Origin header ConnectWebSocket sends.
const TestOrigin = "http://localhost:8080"

// Event is a decoded frame.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WebSocketURL turns an httptest server URL into its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket dials url presenting token as a Bearer credential. An
// empty token sends no Authorization header.
func ConnectWebSocket(url, token string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)
	if token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect is ConnectWebSocket that fails the test on error and closes
// the connection at cleanup.
func MustConnect(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url, token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one envelope with data marshaled as its payload.
func SendEvent(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(Event{Event: event, Data: raw})
}

// ReadEvent reads the next frame, waiting at most timeout.
func ReadEvent(conn *websocket.Conn, timeout time.Duration) (Event, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Event{}, err
	}
	var event Event
	err := conn.ReadJSON(&event)
	return event, err
}

// ExpectEvent reads the next frame, requires its name to be name and
// decodes its data into out when out is not nil.
func ExpectEvent(t *testing.T, conn *websocket.Conn, name string, out any) Event {
	t.Helper()
	event, err := ReadEvent(conn, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, name, event.Event)
	if out != nil {
		require.NoError(t, json.Unmarshal(event.Data, out))
	}
	return event
}

// ExpectClosed requires the peer to close conn within timeout.
func ExpectClosed(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			require.False(t, isTimeout(err), "connection still open after %s", timeout)
			return
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ExpectSilence requires no frame to arrive on conn within wait. The read
// timeout leaves conn unusable for further reads.
func ExpectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	event, err := ReadEvent(conn, wait)
	require.Error(t, err, "unexpected event %q", event.Event)
	require.True(t, isTimeout(err), "expected a read timeout, got %v", err)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
