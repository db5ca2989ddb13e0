package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/nexus-gateway/internal/gateway"
)

// ErrHubClosed is returned by Broadcast once the hub has shut down. It wraps
// gateway.ErrBroadcasterClosed.
var ErrHubClosed = fmt.Errorf("hub closed: %w", gateway.ErrBroadcasterClosed)

// Hub owns the live connection set and fans events out to it. Delivery is
// limited to authenticated clients, in the order Broadcast was called.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger
}

// NewHub creates a Hub. Nothing is delivered until Run is started.
func NewHub(log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// Broadcast marshals one envelope for event and queues it for every
// authenticated client.
func (h *Hub) Broadcast(event string, payload any) error {
	frame, err := encodeEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	select {
	case h.broadcast <- frame:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// Register hands client to the hub, which starts its pumps. It reports false
// when the hub is no longer running.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Len returns the number of registered clients, authenticated or not.
func (h *Hub) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic in safeSend", "panic", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run processes registrations and broadcasts until ctx is cancelled or
// Shutdown is called.
func (h *Hub) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, h.cancel)
	defer stop()
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("Client registered", "connection_id", client.id, "addr", client.addr, "clients", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				close(client.send)
				h.log.Debug("Client unregistered", "connection_id", client.id, "addr", client.addr, "clients", clientCount)
			} else {
				h.mutex.Unlock()
			}

		case frame := <-h.broadcast:
			h.handleBroadcast(frame)
		}
	}
}

func (h *Hub) handleBroadcast(frame []byte) {
	clients := h.getClientSnapshot()
	clientsToRemove := h.broadcastToClients(clients, frame)
	h.removeFailedClients(clientsToRemove)
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// broadcastToClients sends frame to every authenticated client and returns
// the ones whose buffer was full.
func (h *Hub) broadcastToClients(clients []*Client, frame []byte) []*Client {
	var clientsToRemove []*Client

	for _, client := range clients {
		if client.State().Current() != gateway.StateAuthenticated {
			continue
		}
		if !h.safeSend(client, frame) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	return clientsToRemove
}

// removeFailedClients drops slow clients. Closing send makes the write pump
// close the socket, which ends the read pump and the session.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn("Client removed due to full send buffer", "connection_id", client.id, "addr", client.addr)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
		client.closed = true
	}
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		if err := client.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Error("Error closing client connection", "connection_id", client.id, "addr", client.addr, "error", err)
		}
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops the hub, closes every client and waits for their pumps to
// finish, up to timeout. Run must have been started.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some connections may still be closing")
		return context.DeadlineExceeded
	}
}
