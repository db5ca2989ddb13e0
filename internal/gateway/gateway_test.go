package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/nexus-gateway/internal/auth"
	"github.com/Tyrowin/nexus-gateway/internal/chat"
	"github.com/Tyrowin/nexus-gateway/internal/gateway"
	"github.com/Tyrowin/nexus-gateway/internal/mocks"
	"github.com/Tyrowin/nexus-gateway/internal/presence"
)

var errStorage = errors.New("storage unavailable")

type fakeConn struct {
	id     string
	state  gateway.ConnState
	closed atomic.Int32
}

func (c *fakeConn) ID() string                { return c.id }
func (c *fakeConn) State() *gateway.ConnState { return &c.state }
func (c *fakeConn) closeCount() int           { return int(c.closed.Load()) }

func (c *fakeConn) Close() error {
	c.closed.Add(1)
	return nil
}

func newConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	gateway     *gateway.Gateway
	directory   *presence.Directory
	verifier    *mocks.MockVerifier
	registry    *mocks.MockRegistry
	rooms       *mocks.MockRoomMembership
	messages    *mocks.MockMessageStore
	broadcaster *mocks.MockBroadcaster
}

func newFixture(t *testing.T) fixture {
	return newFixtureWithLogger(t, discardLogger())
}

func newFixtureWithLogger(t *testing.T, log *slog.Logger) fixture {
	ctrl := gomock.NewController(t)
	f := fixture{
		directory:   presence.NewDirectory(),
		verifier:    mocks.NewMockVerifier(ctrl),
		registry:    mocks.NewMockRegistry(ctrl),
		rooms:       mocks.NewMockRoomMembership(ctrl),
		messages:    mocks.NewMockMessageStore(ctrl),
		broadcaster: mocks.NewMockBroadcaster(ctrl),
	}
	f.gateway = gateway.New(gateway.Options{
		Log:         log,
		Verifier:    f.verifier,
		Presence:    f.registry,
		Directory:   f.directory,
		Rooms:       f.rooms,
		Messages:    f.messages,
		Broadcaster: f.broadcaster,
	})
	return f
}

// admit drives conn through a successful OnConnect.
func (f fixture) admit(t *testing.T, conn *fakeConn, identity auth.Identity) {
	t.Helper()
	room := chat.Room{ID: "room-1", Name: "general"}
	f.verifier.EXPECT().Verify(gomock.Any(), "token-"+identity.UserID).Return(identity, nil)
	f.registry.EXPECT().Put(gomock.Any(), conn.ID(), identity.UserID).Return(nil)
	f.broadcaster.EXPECT().Broadcast(gateway.EventUserConnected, gomock.Any()).Return(nil)
	f.rooms.EXPECT().CreateDefaultRoomIfAbsent(gomock.Any()).Return(room, nil)
	f.rooms.EXPECT().AddParticipant(gomock.Any(), room.ID, identity.UserID).Return(nil)
	require.NoError(t, f.gateway.OnConnect(context.Background(), conn, bearer("token-"+identity.UserID)))
}

func TestOnConnect(t *testing.T) {
	alice := auth.Identity{UserID: "user-a", Email: "alice@example.com"}

	t.Run("should register, announce and join the default room", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		conn := newConn("conn-a")
		room := chat.Room{ID: "room-1", Name: "general"}

		gomock.InOrder(
			f.verifier.EXPECT().Verify(gomock.Any(), "good-token").Return(alice, nil),
			f.registry.EXPECT().Put(gomock.Any(), "conn-a", "user-a").Return(nil),
			f.broadcaster.EXPECT().
				Broadcast(gateway.EventUserConnected, []presence.OnlineUser{{ConnectionID: "conn-a", Email: "alice@example.com"}}).
				DoAndReturn(func(string, any) error {
					req.Equal(gateway.StateAuthenticated, conn.State().Current(), "new connection must receive its own announcement")
					return nil
				}),
			f.rooms.EXPECT().CreateDefaultRoomIfAbsent(gomock.Any()).Return(room, nil),
			f.rooms.EXPECT().AddParticipant(gomock.Any(), "room-1", "user-a").Return(nil),
		)

		err := f.gateway.OnConnect(context.Background(), conn, bearer("good-token"))

		req.NoError(err)
		req.Equal(gateway.StateAuthenticated, conn.State().Current())
		req.Equal([]presence.OnlineUser{{ConnectionID: "conn-a", Email: "alice@example.com"}}, f.directory.List())
		req.Zero(conn.closeCount())
	})

	t.Run("should announce the full listing to everyone", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.admit(t, newConn("conn-a"), alice)

		bob := auth.Identity{UserID: "user-b", Email: "bob@example.com"}
		f.verifier.EXPECT().Verify(gomock.Any(), "token-b").Return(bob, nil)
		f.registry.EXPECT().Put(gomock.Any(), "conn-b", "user-b").Return(nil)
		f.broadcaster.EXPECT().Broadcast(gateway.EventUserConnected, []presence.OnlineUser{
			{ConnectionID: "conn-a", Email: "alice@example.com"},
			{ConnectionID: "conn-b", Email: "bob@example.com"},
		}).Return(nil)
		f.rooms.EXPECT().CreateDefaultRoomIfAbsent(gomock.Any()).Return(chat.Room{ID: "room-1"}, nil)
		f.rooms.EXPECT().AddParticipant(gomock.Any(), "room-1", "user-b").Return(nil)

		req.NoError(f.gateway.OnConnect(context.Background(), newConn("conn-b"), bearer("token-b")))
		req.Equal(2, f.directory.Len())
	})

	refusals := []struct {
		name   string
		header http.Header
		cause  error
	}{
		{name: "missing header", header: http.Header{}, cause: auth.ErrMissingCredential},
		{name: "malformed header", header: http.Header{"Authorization": []string{"Bearer"}}, cause: auth.ErrMalformedCredential},
	}
	for _, tt := range refusals {
		t.Run("should close on "+tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			conn := newConn("conn-x")

			err := f.gateway.OnConnect(context.Background(), conn, tt.header)

			req.ErrorIs(err, gateway.ErrAuthentication)
			req.ErrorIs(err, tt.cause)
			req.Equal(1, conn.closeCount())
			req.Equal(gateway.StateClosed, conn.State().Current())
			req.Zero(f.directory.Len())
		})
	}

	t.Run("should close when verification fails", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		conn := newConn("conn-x")
		f.verifier.EXPECT().Verify(gomock.Any(), "expired").Return(auth.Identity{}, auth.ErrExpiredToken)

		err := f.gateway.OnConnect(context.Background(), conn, bearer("expired"))

		req.ErrorIs(err, gateway.ErrAuthentication)
		req.ErrorIs(err, auth.ErrExpiredToken)
		req.Equal(1, conn.closeCount())
		req.Zero(f.directory.Len())
	})

	t.Run("should close when presence cannot be written", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		conn := newConn("conn-a")
		f.verifier.EXPECT().Verify(gomock.Any(), "good-token").Return(alice, nil)
		f.registry.EXPECT().Put(gomock.Any(), "conn-a", "user-a").Return(errStorage)

		err := f.gateway.OnConnect(context.Background(), conn, bearer("good-token"))

		req.ErrorIs(err, gateway.ErrPresence)
		req.ErrorIs(err, errStorage)
		req.Equal(1, conn.closeCount())
		req.Zero(f.directory.Len())
	})

	t.Run("should undo presence when the connection closed meanwhile", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		conn := newConn("conn-a")
		f.verifier.EXPECT().Verify(gomock.Any(), "good-token").Return(alice, nil)
		f.registry.EXPECT().Put(gomock.Any(), "conn-a", "user-a").DoAndReturn(func(context.Context, string, string) error {
			conn.State().Close()
			return nil
		})
		f.registry.EXPECT().Delete(gomock.Any(), "conn-a").Return(nil)

		err := f.gateway.OnConnect(context.Background(), conn, bearer("good-token"))

		req.ErrorIs(err, gateway.ErrNotAuthenticated)
		req.Zero(f.directory.Len())
	})

	t.Run("should stay connected when room bookkeeping fails", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		conn := newConn("conn-a")
		f.verifier.EXPECT().Verify(gomock.Any(), "good-token").Return(alice, nil)
		f.registry.EXPECT().Put(gomock.Any(), "conn-a", "user-a").Return(nil)
		f.broadcaster.EXPECT().Broadcast(gateway.EventUserConnected, gomock.Any()).Return(nil)
		f.rooms.EXPECT().CreateDefaultRoomIfAbsent(gomock.Any()).Return(chat.Room{}, errStorage)

		err := f.gateway.OnConnect(context.Background(), conn, bearer("good-token"))

		req.NoError(err)
		req.Zero(conn.closeCount())
		req.Equal(1, f.directory.Len())
	})

	t.Run("should stay connected when adding the participant fails", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		conn := newConn("conn-a")
		f.verifier.EXPECT().Verify(gomock.Any(), "good-token").Return(alice, nil)
		f.registry.EXPECT().Put(gomock.Any(), "conn-a", "user-a").Return(nil)
		f.broadcaster.EXPECT().Broadcast(gateway.EventUserConnected, gomock.Any()).Return(nil)
		f.rooms.EXPECT().CreateDefaultRoomIfAbsent(gomock.Any()).Return(chat.Room{ID: "room-1"}, nil)
		f.rooms.EXPECT().AddParticipant(gomock.Any(), "room-1", "user-a").Return(errStorage)

		req.NoError(f.gateway.OnConnect(context.Background(), conn, bearer("good-token")))
		req.Equal(gateway.StateAuthenticated, conn.State().Current())
	})

	t.Run("should bound collaborator calls with a deadline", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		conn := newConn("conn-x")
		f.verifier.EXPECT().Verify(gomock.Any(), "slow").DoAndReturn(func(ctx context.Context, _ string) (auth.Identity, error) {
			_, ok := ctx.Deadline()
			req.True(ok)
			<-ctx.Done()
			return auth.Identity{}, ctx.Err()
		})
		g := gateway.New(gateway.Options{
			Log:         discardLogger(),
			Verifier:    f.verifier,
			Presence:    f.registry,
			Directory:   f.directory,
			Rooms:       f.rooms,
			Messages:    f.messages,
			Broadcaster: f.broadcaster,
			CallTimeout: 10 * time.Millisecond,
		})

		err := g.OnConnect(context.Background(), conn, bearer("slow"))

		req.ErrorIs(err, gateway.ErrAuthentication)
		req.ErrorIs(err, context.DeadlineExceeded)
		req.Equal(1, conn.closeCount())
	})
}

func TestOnDisconnect(t *testing.T) {
	alice := auth.Identity{UserID: "user-a", Email: "alice@example.com"}

	t.Run("should remove entries and announce once", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		conn := newConn("conn-a")
		f.admit(t, conn, alice)

		f.registry.EXPECT().Delete(gomock.Any(), "conn-a").Return(nil).Times(1)
		f.broadcaster.EXPECT().
			Broadcast(gateway.EventUserDisconnected, gateway.DisconnectPayload{ConnectionID: "conn-a"}).
			Return(nil).Times(1)

		f.gateway.OnDisconnect(context.Background(), conn)
		f.gateway.OnDisconnect(context.Background(), conn)

		req.Zero(f.directory.Len())
		req.Equal(gateway.StateClosed, conn.State().Current())
	})

	t.Run("should do nothing for a refused connection", func(t *testing.T) {
		f := newFixture(t)
		conn := newConn("conn-x")
		require.Error(t, f.gateway.OnConnect(context.Background(), conn, http.Header{}))

		// No registry or broadcaster expectations: any call fails the test.
		f.gateway.OnDisconnect(context.Background(), conn)
	})

	t.Run("should do nothing for a connection that never connected", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.OnDisconnect(context.Background(), newConn("conn-x"))
		require.Zero(t, f.directory.Len())
	})

	t.Run("should still announce when the presence delete fails", func(t *testing.T) {
		f := newFixture(t)
		conn := newConn("conn-a")
		f.admit(t, conn, alice)

		f.registry.EXPECT().Delete(gomock.Any(), "conn-a").Return(errStorage)
		f.broadcaster.EXPECT().Broadcast(gateway.EventUserDisconnected, gomock.Any()).Return(nil)

		f.gateway.OnDisconnect(context.Background(), conn)
		require.Zero(t, f.directory.Len())
	})

	t.Run("should not report a closed broadcaster as an error", func(t *testing.T) {
		req := require.New(t)
		var logs bytes.Buffer
		f := newFixtureWithLogger(t, slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
		conn := newConn("conn-a")
		f.admit(t, conn, alice)
		logs.Reset()

		f.registry.EXPECT().Delete(gomock.Any(), "conn-a").Return(nil)
		f.broadcaster.EXPECT().Broadcast(gateway.EventUserDisconnected, gomock.Any()).
			Return(fmt.Errorf("hub closed: %w", gateway.ErrBroadcasterClosed))

		f.gateway.OnDisconnect(context.Background(), conn)

		req.Zero(f.directory.Len())
		req.NotContains(logs.String(), "level=ERROR")
		req.Contains(logs.String(), "level=DEBUG")
	})

	t.Run("should report other broadcast failures as errors", func(t *testing.T) {
		var logs bytes.Buffer
		f := newFixtureWithLogger(t, slog.New(slog.NewTextHandler(&logs, nil)))
		conn := newConn("conn-a")
		f.admit(t, conn, alice)
		logs.Reset()

		f.registry.EXPECT().Delete(gomock.Any(), "conn-a").Return(nil)
		f.broadcaster.EXPECT().Broadcast(gateway.EventUserDisconnected, gomock.Any()).Return(errStorage)

		f.gateway.OnDisconnect(context.Background(), conn)

		require.Contains(t, logs.String(), "level=ERROR")
	})
}

func TestOnMessage(t *testing.T) {
	alice := auth.Identity{UserID: "user-a", Email: "alice@example.com"}
	room := chat.Room{ID: "room-1", Name: "general"}

	t.Run("should persist with the registered sender then broadcast the content", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		conn := newConn("conn-a")
		f.admit(t, conn, alice)
		raw := json.RawMessage(`"hi"`)

		gomock.InOrder(
			f.rooms.EXPECT().CreateDefaultRoomIfAbsent(gomock.Any()).Return(room, nil),
			f.registry.EXPECT().Get(gomock.Any(), "conn-a").Return("user-a", nil),
			f.messages.EXPECT().
				PersistMessage(gomock.Any(), chat.Message{RoomID: "room-1", SenderID: "user-a", Content: "hi"}).
				Return(chat.Message{ID: "msg-1", RoomID: "room-1", SenderID: "user-a", Content: "hi"}, nil).
				Times(1),
			f.broadcaster.EXPECT().Broadcast(gateway.EventReceiveMessage, raw).Return(nil).Times(1),
		)

		req.NoError(f.gateway.OnMessage(context.Background(), conn, raw))
	})

	t.Run("should store structured content as JSON text", func(t *testing.T) {
		f := newFixture(t)
		conn := newConn("conn-a")
		f.admit(t, conn, alice)
		raw := json.RawMessage(`{"text":"hi","mentions":["bob"]}`)

		f.rooms.EXPECT().CreateDefaultRoomIfAbsent(gomock.Any()).Return(room, nil)
		f.registry.EXPECT().Get(gomock.Any(), "conn-a").Return("user-a", nil)
		f.messages.EXPECT().
			PersistMessage(gomock.Any(), chat.Message{RoomID: "room-1", SenderID: "user-a", Content: `{"text":"hi","mentions":["bob"]}`}).
			Return(chat.Message{ID: "msg-1"}, nil)
		f.broadcaster.EXPECT().Broadcast(gateway.EventReceiveMessage, raw).Return(nil)

		require.NoError(t, f.gateway.OnMessage(context.Background(), conn, raw))
	})

	t.Run("should reject a sender without presence entry", func(t *testing.T) {
		f := newFixture(t)
		conn := newConn("conn-a")
		f.admit(t, conn, alice)

		f.rooms.EXPECT().CreateDefaultRoomIfAbsent(gomock.Any()).Return(room, nil)
		f.registry.EXPECT().Get(gomock.Any(), "conn-a").Return("", presence.ErrNotFound)

		err := f.gateway.OnMessage(context.Background(), conn, json.RawMessage(`"hi"`))

		require.ErrorIs(t, err, gateway.ErrUnresolvedSender)
		require.ErrorIs(t, err, presence.ErrNotFound)
	})

	t.Run("should reject a message without content", func(t *testing.T) {
		f := newFixture(t)
		conn := newConn("conn-a")
		f.admit(t, conn, alice)

		// No room, registry, store or broadcaster expectations: any call fails the test.
		for _, raw := range []json.RawMessage{nil, json.RawMessage(`null`), json.RawMessage(" null ")} {
			require.ErrorIs(t, f.gateway.OnMessage(context.Background(), conn, raw), gateway.ErrEmptyMessage)
		}
	})

	t.Run("should ignore unauthenticated connections", func(t *testing.T) {
		f := newFixture(t)

		err := f.gateway.OnMessage(context.Background(), newConn("conn-x"), json.RawMessage(`"hi"`))

		require.ErrorIs(t, err, gateway.ErrNotAuthenticated)
	})

	t.Run("should not broadcast what failed to persist", func(t *testing.T) {
		f := newFixture(t)
		conn := newConn("conn-a")
		f.admit(t, conn, alice)

		f.rooms.EXPECT().CreateDefaultRoomIfAbsent(gomock.Any()).Return(room, nil)
		f.registry.EXPECT().Get(gomock.Any(), "conn-a").Return("user-a", nil)
		f.messages.EXPECT().PersistMessage(gomock.Any(), gomock.Any()).Return(chat.Message{}, errStorage)

		err := f.gateway.OnMessage(context.Background(), conn, json.RawMessage(`"hi"`))

		require.ErrorIs(t, err, gateway.ErrPersistMessage)
		require.ErrorIs(t, err, errStorage)
	})

	t.Run("should fail when the default room is unavailable", func(t *testing.T) {
		f := newFixture(t)
		conn := newConn("conn-a")
		f.admit(t, conn, alice)

		f.rooms.EXPECT().CreateDefaultRoomIfAbsent(gomock.Any()).Return(chat.Room{}, errStorage)

		err := f.gateway.OnMessage(context.Background(), conn, json.RawMessage(`"hi"`))

		require.ErrorIs(t, err, gateway.ErrResolveRoom)
	})
}
