package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Notification is a real-time message pushed to a connected user when one
// of their checks completes.
type Notification struct {
	Created time.Time `json:"created"`
	Info    string    `json:"info"`
	Error   bool      `json:"error"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin should be configured for the production domain.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub   *Hub
	email string
	conn  *websocket.Conn
	send  chan []byte
}

// Hub tracks active clients keyed by email. A user may hold several
// connections at once, one per open tab.
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.email]; !ok {
				h.clients[client.email] = make(map[*Client]bool)
			}
			h.clients[client.email][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if userClients, ok := h.clients[client.email]; ok {
				if _, ok := userClients[client]; ok {
					delete(userClients, client)
					close(client.send)
					if len(userClients) == 0 {
						delete(h.clients, client.email)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// SendToUser delivers a notification to every open connection for email.
func (h *Hub) SendToUser(email string, n Notification) {
	message, err := json.Marshal(n)
	if err != nil {
		log.Printf("Error marshalling notification for %s: %v", email, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	userClients, ok := h.clients[email]
	if !ok {
		return
	}
	for client := range userClients {
		select {
		case client.send <- message:
		default:
			// Client is stuck or gone, drop the connection.
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

// ServeWs upgrades an authenticated request to a websocket connection.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	email, _ := r.Context().Value(emailContextKey).(string)
	if email == "" {
		http.Error(w, "no authenticated user", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Println("Upgrade error:", err)
		return
	}

	client := &Client{hub: s.Hub, email: email, conn: conn, send: make(chan []byte, 256)}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) writePump() {
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

// readPump only exists to notice the peer closing the connection; clients
// never send us data.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Unexpected close error: %v", err)
			}
			break
		}
	}
}
