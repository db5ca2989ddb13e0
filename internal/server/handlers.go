package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server serves the WebSocket endpoint and the health check.
type Server struct {
	cfg      Config
	hub      *Hub
	handler  EventHandler
	online   func() int
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Online int    `json:"online"`
}

// NewServer creates a Server whose clients register with hub and report
// their events to handler. online counts authenticated users for /health.
func NewServer(cfg Config, hub *Hub, handler EventHandler, online func() int, log *slog.Logger) *Server {
	origins := newOriginPolicy(cfg.Origins(), log)
	return &Server{
		cfg:     cfg,
		hub:     hub,
		handler: handler,
		online:  online,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		log: log,
	}
}

// WebSocketHandler upgrades GET requests and hands the connection to the
// hub. Authentication happens afterwards, from the handshake headers.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, s.handler, r.Header.Clone(), r.RemoteAddr, s.cfg, s.log)
	if !s.hub.Register(client) {
		s.log.Warn("Hub is shut down, rejecting connection", "addr", r.RemoteAddr)
		_ = client.Close()
	}
}

// HealthHandler reports that the server is up and how many users are online.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Online: s.online()}); err != nil {
		s.log.Error("Error writing health response", "error", err)
	}
}
