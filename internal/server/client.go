package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/nexus-gateway/internal/gateway"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

// EventHandler receives the lifecycle events of a client. *gateway.Gateway
// implements it.
type EventHandler interface {
	OnConnect(ctx context.Context, conn gateway.Conn, header http.Header) error
	OnMessage(ctx context.Context, conn gateway.Conn, raw json.RawMessage) error
	OnDisconnect(ctx context.Context, conn gateway.Conn)
}

// Client is one WebSocket connection. Its read pump handles inbound events
// in arrival order; its write pump drains the send buffer.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	handler        EventHandler
	header         http.Header
	addr           string
	closed         bool
	state          gateway.ConnState
	closeOnce      sync.Once
	closeErr       error
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	log            *slog.Logger
}

// NewClient wraps conn. header is the handshake request's header, handed to
// the handler on connect.
func NewClient(conn *websocket.Conn, hub *Hub, handler EventHandler, header http.Header, addr string, cfg Config, log *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	rl := cfg.RateLimit()
	id := uuid.NewString()

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		handler:        handler,
		header:         header,
		addr:           addr,
		maxMessageSize: int64(cfg.MaxMessageSize),
		rateLimiter:    newRateLimiter(rl.Burst, rl.RefillInterval),
		rateLimit:      rl,
		log:            log.With("connection_id", id),
	}
}

// ID returns the connection id assigned at upgrade.
func (c *Client) ID() string {
	return c.id
}

// State returns the connection's lifecycle state.
func (c *Client) State() *gateway.ConnState {
	return &c.state
}

// Close sends a close frame and closes the socket. Calls after the first
// return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.conn == nil {
			return
		}
		code := websocket.ClosePolicyViolation
		if c.hub != nil && c.hub.ctx.Err() != nil {
			code = websocket.CloseGoingAway
		}
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(writeWait))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("Error setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs the read error at a level matching its cause.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "addr", c.addr, "max_bytes", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug("Client disconnected", "addr", c.addr, "error", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("Client connection closed", "addr", c.addr, "error", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("Unexpected WebSocket close", "addr", c.addr, "error", err)
	default:
		c.log.Error("WebSocket read error", "addr", c.addr, "error", err)
	}
}

// checkRateLimit reports whether the next inbound event may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn("Rate limit exceeded; discarding event",
			"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage decodes one frame and dispatches it.
func (c *Client) processMessage(ctx context.Context, rawMessage []byte) {
	var envelope Envelope
	if err := json.Unmarshal(rawMessage, &envelope); err != nil {
		c.log.Warn("Invalid frame", "error", err)
		return
	}

	switch envelope.Event {
	case gateway.EventMessage:
		err := c.handler.OnMessage(ctx, c, envelope.Data)
		switch {
		case err == nil:
		case errors.Is(err, gateway.ErrEmptyMessage):
			c.log.Warn("Invalid frame", "event", envelope.Event, "error", err)
		default:
			c.log.Error("Message not delivered", "event", envelope.Event, "error", err)
		}
	default:
		c.log.Warn("Ignoring unknown event", "event", envelope.Event)
	}
}

func (c *Client) readPump() {
	ctx := context.Background()
	defer func() {
		c.handler.OnDisconnect(ctx, c)
		c.hub.remove(c)
		if err := c.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error("Error closing connection in readPump", "error", err)
		}
	}()

	if err := c.handler.OnConnect(ctx, c, c.header); err != nil {
		c.log.Info("Connection not admitted", "addr", c.addr, "error", err)
		return
	}

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(ctx, rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *Client) closeConnection() {
	if err := c.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Error("Error closing connection in writePump", "error", err)
	}
}

// handleMessage writes one frame and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Error("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Error("Error writing close message", "error", err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Error("Error writing ping message", "error", err)
		}
		return false
	}
	return true
}
