//go:generate go run go.uber.org/mock/mockgen -source=gateway.go -destination=../mocks/mock_gateway.go -package=mocks

// Package gateway drives the connection lifecycle: it admits authenticated
// connections, keeps presence and room membership in step with them, and
// relays their messages to every connected client.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tyrowin/nexus-gateway/internal/auth"
	"github.com/Tyrowin/nexus-gateway/internal/chat"
	"github.com/Tyrowin/nexus-gateway/internal/presence"
)

// Outbound event names.
const (
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
	EventReceiveMessage   = "receive_message"
)

// EventMessage is the only inbound event.
const EventMessage = "message"

// DefaultCallTimeout bounds every collaborator call when Options.CallTimeout is unset.
const DefaultCallTimeout = 5 * time.Second

// Conn is the gateway's view of one live transport connection.
type Conn interface {
	ID() string
	State() *ConnState
	Close() error
}

// Broadcaster delivers an event to every authenticated connection.
type Broadcaster interface {
	Broadcast(event string, payload any) error
}

// DisconnectPayload is the data of a user_disconnected event.
type DisconnectPayload struct {
	ConnectionID string `json:"connectionId"`
}

// Options carries the gateway's collaborators.
type Options struct {
	Log         *slog.Logger
	Verifier    auth.Verifier
	Presence    presence.Registry
	Directory   *presence.Directory
	Rooms       chat.RoomMembership
	Messages    chat.MessageStore
	Broadcaster Broadcaster
	CallTimeout time.Duration
}

// Gateway handles connect, message and disconnect events. Handlers for one
// connection must be called sequentially; handlers for different connections
// may run concurrently.
type Gateway struct {
	log         *slog.Logger
	verifier    auth.Verifier
	presence    presence.Registry
	directory   *presence.Directory
	rooms       chat.RoomMembership
	messages    chat.MessageStore
	broadcaster Broadcaster
	callTimeout time.Duration
}

// New creates a Gateway from opts.
func New(opts Options) *Gateway {
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	directory := opts.Directory
	if directory == nil {
		directory = presence.NewDirectory()
	}
	return &Gateway{
		log:         log,
		verifier:    opts.Verifier,
		presence:    opts.Presence,
		directory:   directory,
		rooms:       opts.Rooms,
		messages:    opts.Messages,
		broadcaster: opts.Broadcaster,
		callTimeout: timeout,
	}
}

// Directory returns the online-user directory the gateway maintains.
func (g *Gateway) Directory() *presence.Directory {
	return g.directory
}

func (g *Gateway) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.callTimeout)
}

// OnConnect authenticates conn from the Authorization header in header.
// A refused connection is closed and an error wrapping ErrAuthentication is
// returned; nothing is registered or broadcast for it. On success the
// connection is registered, announced with user_connected and added to the
// default room. Room bookkeeping failures are logged, not returned.
func (g *Gateway) OnConnect(ctx context.Context, conn Conn, header http.Header) error {
	token, err := auth.BearerToken(header.Get("Authorization"))
	if err != nil {
		return g.refuse(conn, err)
	}

	verifyCtx, cancel := g.bounded(ctx)
	identity, err := g.verifier.Verify(verifyCtx, token)
	cancel()
	if err != nil {
		return g.refuse(conn, err)
	}

	putCtx, cancel := g.bounded(ctx)
	err = g.presence.Put(putCtx, conn.ID(), identity.UserID)
	cancel()
	if err != nil {
		g.log.Error("Presence registration failed, closing connection",
			"connection_id", conn.ID(), "user_id", identity.UserID, "error", err)
		g.close(conn)
		return fmt.Errorf("%w: %w", ErrPresence, err)
	}

	// A connection is authenticated before it is listed: every listed
	// connection receives the announcements of those listed after it.
	if !conn.State().Advance(StateAuthenticated) {
		g.deletePresence(ctx, conn.ID())
		return ErrNotAuthenticated
	}
	listing := g.directory.Add(presence.OnlineUser{ConnectionID: conn.ID(), Email: identity.Email})
	g.log.Info("Connection authenticated",
		"connection_id", conn.ID(), "user_id", identity.UserID, "online", len(listing))

	g.broadcast(EventUserConnected, listing, "connection_id", conn.ID())

	g.ensureMembership(ctx, identity)
	return nil
}

func (g *Gateway) refuse(conn Conn, cause error) error {
	g.log.Warn("Connection refused", "connection_id", conn.ID(), "error", cause)
	g.close(conn)
	return fmt.Errorf("%w: %w", ErrAuthentication, cause)
}

func (g *Gateway) close(conn Conn) {
	conn.State().Close()
	if err := conn.Close(); err != nil {
		g.log.Debug("Close after refusal returned an error", "connection_id", conn.ID(), "error", err)
	}
}

// ensureMembership is best effort: the connection stays admitted whatever happens here.
func (g *Gateway) ensureMembership(ctx context.Context, identity auth.Identity) {
	roomCtx, cancel := g.bounded(ctx)
	room, err := g.rooms.CreateDefaultRoomIfAbsent(roomCtx)
	cancel()
	if err != nil {
		g.log.Error("Failed to ensure default room", "user_id", identity.UserID, "error", err)
		return
	}

	addCtx, cancel := g.bounded(ctx)
	err = g.rooms.AddParticipant(addCtx, room.ID, identity.UserID)
	cancel()
	if err != nil {
		g.log.Error("Failed to add participant", "room_id", room.ID, "user_id", identity.UserID, "error", err)
	}
}

// OnDisconnect tears down conn. Only the first call for an authenticated
// connection removes its entries and broadcasts user_disconnected; later
// calls, and calls for connections that never authenticated, do nothing.
func (g *Gateway) OnDisconnect(ctx context.Context, conn Conn) {
	if previous := conn.State().Close(); previous != StateAuthenticated {
		return
	}

	g.deletePresence(ctx, conn.ID())
	if !g.directory.Remove(conn.ID()) {
		return
	}
	g.log.Info("Connection closed", "connection_id", conn.ID(), "online", g.directory.Len())

	g.broadcast(EventUserDisconnected, DisconnectPayload{ConnectionID: conn.ID()}, "connection_id", conn.ID())
}

// broadcast logs failures. A closed broadcaster means the process is
// shutting down, which is not an error.
func (g *Gateway) broadcast(event string, payload any, attrs ...any) {
	err := g.broadcaster.Broadcast(event, payload)
	if err == nil {
		return
	}
	attrs = append(attrs, "event", event, "error", err)
	if errors.Is(err, ErrBroadcasterClosed) {
		g.log.Debug("Broadcast skipped, broadcaster closed", attrs...)
		return
	}
	g.log.Error("Failed to broadcast", attrs...)
}

func (g *Gateway) deletePresence(ctx context.Context, connectionID string) {
	deleteCtx, cancel := g.bounded(ctx)
	defer cancel()
	if err := g.presence.Delete(deleteCtx, connectionID); err != nil {
		g.log.Error("Failed to delete presence entry", "connection_id", connectionID, "error", err)
	}
}

// OnMessage persists raw as a message from conn's registered user and
// broadcasts it as receive_message. Nothing is broadcast unless the
// message was persisted. A missing or null payload is rejected with
// ErrEmptyMessage.
func (g *Gateway) OnMessage(ctx context.Context, conn Conn, raw json.RawMessage) error {
	if conn.State().Current() != StateAuthenticated {
		return ErrNotAuthenticated
	}
	if isEmptyPayload(raw) {
		return ErrEmptyMessage
	}

	roomCtx, cancel := g.bounded(ctx)
	room, err := g.rooms.CreateDefaultRoomIfAbsent(roomCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResolveRoom, err)
	}

	getCtx, cancel := g.bounded(ctx)
	senderID, err := g.presence.Get(getCtx, conn.ID())
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnresolvedSender, err)
	}

	persistCtx, cancel := g.bounded(ctx)
	stored, err := g.messages.PersistMessage(persistCtx, chat.Message{
		RoomID:   room.ID,
		SenderID: senderID,
		Content:  messageContent(raw),
	})
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistMessage, err)
	}
	g.log.Debug("Message persisted", "message_id", stored.ID, "connection_id", conn.ID(), "user_id", senderID)

	g.broadcast(EventReceiveMessage, raw, "message_id", stored.ID)
	return nil
}

func isEmptyPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// messageContent is the stored form of an inbound payload: JSON strings are
// stored as text, anything else as its JSON encoding.
func messageContent(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}
