package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// Client is one websocket subscribed to a session. Frames are queued and
// written by the client's own goroutine, so publishers never wait on a socket.
type Client struct {
	room string
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}
	once sync.Once
}

// Send queues a frame. It reports false when the queue is full or the
// client is gone.
func (c *Client) Send(msg []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.quit)
		c.conn.Close()
	})
}

// Hub fans messages out to every websocket watching a session. Rooms are
// keyed by session id.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool

	log *logger.ZapLogger
}

func NewHub(log *logger.ZapLogger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]bool),
		log:   log,
	}
}

func (h *Hub) Register(roomID string, conn *websocket.Conn) *Client {
	c := &Client{
		room: roomID,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		quit: make(chan struct{}),
	}

	h.mu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][c] = true
	conns := len(h.rooms[roomID])
	h.mu.Unlock()

	go h.writePump(c)

	h.log.Log(logger.LogEntry{
		Level:   "debug",
		Message: "ws registered",
		Fields:  map[string]any{"sessionID": roomID, "conns": conns},
	})
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	conns, ok := h.rooms[c.room]
	if ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, c.room)
		}
	}
	left := len(conns)
	h.mu.Unlock()

	c.close()

	if ok {
		h.log.Log(logger.LogEntry{
			Level:   "debug",
			Message: "ws unregistered",
			Fields:  map[string]any{"sessionID": c.room, "conns": left},
		})
	}
}

func (h *Hub) Connections(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// SendToRoom queues msg for every client in the room and returns how many
// accepted it. A client whose queue is full is dropped.
func (h *Hub) SendToRoom(roomID string, msg []byte) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.Send(msg) {
			sent++
			continue
		}
		h.log.Log(logger.LogEntry{
			Level:   "warn",
			Message: "ws client too slow, dropping",
			Fields:  map[string]any{"sessionID": roomID},
		})
		h.Unregister(c)
	}
	return sent
}

func (h *Hub) writePump(c *Client) {
	for {
		select {
		case <-c.quit:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Log(logger.LogEntry{
					Level:   "warn",
					Message: "ws send failed",
					Error:   err,
					Fields:  map[string]any{"sessionID": c.room},
				})
				h.Unregister(c)
				return
			}
		}
	}
}

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
