package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ilievs/panelagent/command"
)

// writeWait bounds a single websocket write so a stalled client cannot hold up
// the broadcast to the others.
var writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub pushes the full command log to every websocket client whenever it changes.
// All writes happen on the Run goroutine.
type Hub struct {
	log    *command.Log
	logger *slog.Logger

	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan struct{}
	done       chan struct{}
	mutex      sync.RWMutex
}

func NewHub(log *command.Log, logger *slog.Logger) *Hub {
	return &Hub{
		log:        log,
		logger:     logger.With("component", "hub"),
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mutex.Lock()
		for conn := range h.clients {
			conn.Close()
			delete(h.clients, conn)
		}
		h.mutex.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mutex.Lock()
			h.clients[conn] = struct{}{}
			h.mutex.Unlock()
			h.logger.Debug("websocket client connected")
			h.send(conn, h.snapshot())

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()
			h.logger.Debug("websocket client disconnected")

		case <-h.broadcast:
			message := h.snapshot()
			h.mutex.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mutex.RUnlock()
			for _, conn := range conns {
				h.send(conn, message)
			}
		}
	}
}

func (h *Hub) snapshot() []byte {
	message, err := json.Marshal(h.log.Commands())
	if err != nil {
		h.logger.Error("failed to encode command log", "error", err)
		return nil
	}
	return message
}

func (h *Hub) send(conn *websocket.Conn, message []byte) {
	if message == nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		h.logger.Debug("websocket write error", "error", err)
		h.mutex.Lock()
		delete(h.clients, conn)
		h.mutex.Unlock()
		conn.Close()
	}
}

// LogChanged coalesces notifications; a pending broadcast already carries the
// latest log.
func (h *Hub) LogChanged() {
	select {
	case h.broadcast <- struct{}{}:
	default:
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", "error", err)
		return nil
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return nil
	}

	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket error", "error", err)
			}
			return nil
		}
	}
}
