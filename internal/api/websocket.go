package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gap-reversion-bot/internal/events"
	"gap-reversion-bot/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 256
)

// WSClient represents a WebSocket client
type WSClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub fans bus events out to every connected client
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	quit       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *logging.Logger
}

// NewWSHub creates a new WebSocket hub. An empty allowedOrigins list
// accepts any origin.
func NewWSHub(allowedOrigins []string) *WSHub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan []byte, 1024),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		quit:       make(chan struct{}),
		logger:     logging.WithComponent("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
	}
}

// Run starts the WebSocket hub
func (h *WSHub) Run() {
	for {
		select {
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

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client, drop it
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every client and ends Run
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// BroadcastEvent broadcasts an event to all connected clients
func (h *WSHub) BroadcastEvent(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to marshal event", "event_type", string(event.Type))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "event_type", string(event.Type))
	}
}

// GetClientCount returns the number of connected clients
func (h *WSHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client
func (h *WSHub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		hub:  h,
	}

	// Queued before registration so it always precedes broadcasts
	welcome, _ := json.Marshal(map[string]interface{}{
		"type":      "CONNECTED",
		"timestamp": time.Now(),
	})
	client.send <- welcome

	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// writePump pumps messages from the hub to the websocket connection
func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}
	}
}
