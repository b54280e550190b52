package server

// WebSocket event feed. Clients connect to /ws and receive engine events
// (rule evaluations, materializations) as they happen. Slow clients have
// messages dropped rather than blocking the sender.

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 16
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 45 * time.Second
)

// Event is one message on the feed.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan *Event
	server *Server
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan *Event, clientSendBuffer),
		server: s,
	}

	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection", "client_id", c.id)
		conn.Close()
		return
	}
	s.clients[c] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected", "client_id", c.id, "total_clients", total)

	s.wg.Add(2)
	go c.writePump()
	go c.readPump()
}

// broadcastEvent sends an event to all connected clients. Returns the number
// of clients that accepted it.
func (s *Server) broadcastEvent(eventType string, payload interface{}) int {
	event := &Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		select {
		case c.send <- event:
			sent++
		default:
			// Channel full - skip
		}
	}
	return sent
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
	}
	s.mu.Unlock()
	c.close()
}

func (c *client) close() {
	c.conn.Close()
}

// writePump forwards events to the peer and keeps the connection alive with
// pings.
func (c *client) writePump() {
	defer c.server.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.server.removeClient(c)

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				c.server.logger.Debugw("Client write failed", "client_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.server.ctx.Done():
			return
		}
	}
}

// readPump drains inbound frames so pings and close frames are processed.
// The feed is one-way; client payloads are discarded.
func (c *client) readPump() {
	defer c.server.wg.Done()
	defer c.server.removeClient(c)

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
