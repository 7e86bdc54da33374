package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/skyward/utm/internal/events"
	"github.com/skyward/utm/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // visualisation clients connect from anywhere
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketClient represents a connected WebSocket client.
type WebSocketClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
}

// WebSocketHub fans bus events out to all connected clients. The client set
// is owned by the Run goroutine alone: connections arrive via the register
// channel, departures via unregister, and events via the bus stream, so no
// lock is needed.
type WebSocketHub struct {
	clients      map[*WebSocketClient]bool
	register     chan *WebSocketClient
	unregister   chan *WebSocketClient
	stream       <-chan events.Event
	cancelStream func()
	log          *logrus.Entry
}

// NewWebSocketHub creates a hub fed by a buffered stream of every bus event.
func NewWebSocketHub(bus *events.Bus, log *logrus.Entry) *WebSocketHub {
	hub := &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		log:        log,
	}
	if bus != nil {
		hub.stream, hub.cancelStream = bus.Stream(256)
	}
	return hub
}

// Run starts the hub's main loop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			observability.Get().WebSocketClients.Inc()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				observability.Get().WebSocketClients.Dec()
			}

		case event, ok := <-h.stream:
			if !ok {
				h.stream = nil // bus closed; keep serving connected clients
				continue
			}
			h.fanOut(event)
		}
	}
}

// fanOut delivers one event to every client; a client whose send buffer is
// full is disconnected rather than allowed to stall the stream.
func (h *WebSocketHub) fanOut(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Warn("event marshal failed")
		return
	}
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			delete(h.clients, client)
			close(client.send)
			observability.Get().WebSocketClients.Dec()
		}
	}
}

// ServeWS upgrades an HTTP request to a WebSocket subscription.
func (h *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &WebSocketClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains inbound frames so pings are answered; the stream is
// broadcast-only.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
