// Package ws pushes town notifications to websocket subscribers. Clients
// connect with optional partition and player query parameters; a
// notification addressed to a recipient only reaches that player's sockets.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"townsim/internal/app/ports"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	partition string
	player    string
}

func (c *client) wants(n ports.Notification) bool {
	if c.partition != "" && n.Partition != c.partition {
		return false
	}
	if n.Recipient != "" && n.Recipient != c.player {
		return false
	}
	return true
}

type outbound struct {
	n    ports.Notification
	body []byte
}

type Hub struct {
	Logger *slog.Logger

	clients    map[*client]struct{}
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	count      chan chan int
	done       chan struct{}

	upgrader websocket.Upgrader
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Logger:     logger,
		clients:    map[*client]struct{}{},
		broadcast:  make(chan outbound, 1024),
		register:   make(chan *client),
		unregister: make(chan *client),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.Logger.Debug("ws client registered", "partition", c.partition, "player", c.player)
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.wants(msg.n) {
					continue
				}
				select {
				case c.send <- msg.body:
				default:
					// slow consumer
					delete(h.clients, c)
					close(c.send)
				}
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Publish never blocks the simulation; a full queue drops the notification.
func (h *Hub) Publish(_ context.Context, n ports.Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		h.Logger.Warn("ws encode notification failed", "type", n.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- outbound{n: n, body: body}:
	default:
		h.Logger.Warn("ws notification dropped", "type", n.Type, "partition", n.Partition)
	}
}

// Clients reports the number of registered sockets. It needs Run.
func (h *Hub) Clients(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-ctx.Done():
		return 0
	case <-h.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("ws upgrade failed", "error", err)
		return
	}
	q := r.URL.Query()
	c := &client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		partition: q.Get("partition"),
		player:    q.Get("player"),
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump only consumes control frames; subscribers never send commands.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Debug("ws read failed", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
