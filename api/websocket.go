package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seenimoa/openseai-risk/internal/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	clientBuffer = 256
)

// ============================================================
// Messages
// ============================================================

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type        string    `json:"type"`
	PortfolioID string    `json:"portfolio_id,omitempty"`
	Data        any       `json:"data,omitempty"`
	Time        time.Time `json:"time,omitempty"`
}

// wsRequest is a message received from a client:
// {"type":"subscribe","portfolio_id":"..."}, "unsubscribe" or "ping".
type wsRequest struct {
	Type        string `json:"type"`
	PortfolioID string `json:"portfolio_id"`
}

// ============================================================
// Hub
// ============================================================

// WSHub fans portfolio events out to connected WebSocket clients. It
// implements engine.Publisher.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{}
	closeOnce  sync.Once
}

// WSClient represents a single WebSocket connection. A client with no
// subscriptions receives every event.
type WSClient struct {
	hub  *WSHub
	send chan WSMessage
	// control carries replies to this client only; it is never closed.
	control chan WSMessage

	mu         sync.Mutex
	portfolios map[string]bool
}

func newWSClient(hub *WSHub) *WSClient {
	return &WSClient{
		hub:     hub,
		send:    make(chan WSMessage, clientBuffer),
		control: make(chan WSMessage, 8),
	}
}

// Subscribe restricts delivery to events of the given portfolios.
func (c *WSClient) Subscribe(portfolioID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.portfolios == nil {
		c.portfolios = make(map[string]bool)
	}
	c.portfolios[portfolioID] = true
}

// Unsubscribe removes a portfolio filter.
func (c *WSClient) Unsubscribe(portfolioID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.portfolios, portfolioID)
}

func (c *WSClient) reply(msg WSMessage) {
	select {
	case c.control <- msg:
	default:
	}
}

func (c *WSClient) wants(msg WSMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.portfolios) == 0 || msg.PortfolioID == "" {
		return true
	}
	return c.portfolios[msg.PortfolioID]
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. It returns after Close.
func (h *WSHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg) {
					continue
				}
				select {
				case client.send <- msg:
				default:
					// Slow client; disconnect
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close stops Run and closes every client channel.
func (h *WSHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Broadcast sends a message to all connected WebSocket clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		// Drop message if broadcast channel is full
	}
}

// Publish forwards an engine event to subscribed clients.
func (h *WSHub) Publish(e engine.Event) {
	h.Broadcast(WSMessage{Type: e.Type, PortfolioID: e.PortfolioID, Data: e.Data, Time: e.At})
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub.
func (h *WSHub) Register(client *WSClient) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ============================================================
// Connection pumps
// ============================================================

func (s *Server) upgrader() websocket.Upgrader {
	allowed := make(map[string]bool, len(s.cfg.API.CORSOrigins))
	for _, o := range s.cfg.API.CORSOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket and streams
// portfolio events to the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newWSClient(s.hub)
	if id := r.URL.Query().Get("portfolio_id"); id != "" {
		client.Subscribe(id)
	}
	s.hub.Register(client)

	go s.wsWritePump(conn, client)
	go s.wsReadPump(conn, client)
}

// wsReadPump handles client control messages until the connection closes.
func (s *Server) wsReadPump(conn *websocket.Conn, client *WSClient) {
	defer func() {
		client.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		switch req.Type {
		case "subscribe":
			client.Subscribe(req.PortfolioID)
			client.reply(WSMessage{Type: "subscribed", PortfolioID: req.PortfolioID})
		case "unsubscribe":
			client.Unsubscribe(req.PortfolioID)
		case "ping":
			client.reply(WSMessage{Type: "pong"})
		}
	}
}

// wsWritePump pumps messages from the hub to the WebSocket connection.
func (s *Server) wsWritePump(conn *websocket.Conn, client *WSClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case msg := <-client.control:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
