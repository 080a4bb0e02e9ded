package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/statestore/internal/model"
	"github.com/vyrodovalexey/statestore/internal/state"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
	closeGrace     = time.Second
)

// wsClient is one connected stream consumer.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan model.WebSocketMessage
	cancel context.CancelFunc
	done   chan struct{}
}

// WebSocketHandler streams store transitions to WebSocket clients. It is a
// state.Observer: attach it to the containers whose transitions should be
// broadcast.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// Compile-time check that WebSocketHandler satisfies state.Observer.
var _ state.Observer = (*WebSocketHandler)(nil)

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// RegisterRoutes registers the WebSocket routes with the router.
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

// Observe broadcasts t to every connected client. A client whose send
// buffer is full misses the transition; Observe never blocks.
func (h *WebSocketHandler) Observe(t state.Transition) {
	event := model.TransitionEvent{
		Store:     t.Store,
		Action:    t.Action.Name,
		Seq:       t.Seq,
		ElapsedMs: float64(t.Action.Elapsed) / float64(time.Millisecond),
		Error:     t.Action.Err,
		State:     t.State,
	}
	msg := model.NewTransitionMessage(event)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("websocket client too slow, transition dropped",
				zap.String("client_id", c.id),
				zap.String("action", event.Action),
			)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles WebSocket connection requests.
//
//nolint:contextcheck // WebSocket connections outlive the HTTP request context
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	// The request context ends when this handler returns.
	ctx, cancel := context.WithCancel(context.Background())

	c := &wsClient{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan model.WebSocketMessage, sendBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		zap.String("client_id", c.id),
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)

	go h.writePump(ctx, c)
	go h.readPump(ctx, c)
}

// readPump consumes client frames. A {"type":"ping"} message is answered
// with a pong; anything else gets an error frame.
func (h *WebSocketHandler) readPump(ctx context.Context, c *wsClient) {
	defer h.removeClient(c)

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		reply := model.WebSocketMessage{Type: model.WSMessageTypePong, Timestamp: time.Now().UTC()}

		var msg model.WebSocketMessage
		switch err := json.Unmarshal(data, &msg); {
		case err != nil:
			h.logger.Debug("malformed client message", zap.String("client_id", c.id), zap.Error(err))
			reply.Type = model.WSMessageTypeError
			reply.Error = "malformed message"
		case msg.Type != model.WSMessageTypePing:
			h.logger.Debug("unsupported client message", zap.String("client_id", c.id), zap.String("type", msg.Type))
			reply.Type = model.WSMessageTypeError
			reply.Error = fmt.Sprintf("unsupported message type %q", msg.Type)
		}

		select {
		case c.send <- reply:
		default:
		}
	}
}

// writePump is the only writer of the connection.
func (h *WebSocketHandler) writePump(ctx context.Context, c *wsClient) {
	pingTicker := time.NewTicker(pingPeriod)

	defer func() {
		pingTicker.Stop()
		if err := c.conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		close(c.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.sendCloseMessage(c.conn)
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Debug("failed to send message", zap.String("client_id", c.id), zap.Error(err))
				c.cancel()
				return
			}
		case <-pingTicker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debug("failed to send ping", zap.String("client_id", c.id), zap.Error(err))
				c.cancel()
				return
			}
		}
	}
}

// sendCloseMessage sends a close frame to the connection.
func (h *WebSocketHandler) sendCloseMessage(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline for close", zap.Error(err))
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

// removeClient unregisters c and stops its writer.
func (h *WebSocketHandler) removeClient(c *wsClient) {
	c.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[c]; exists {
		delete(h.clients, c)
		h.logger.Info("websocket client disconnected", zap.String("client_id", c.id))
	}
}

// CloseAllConnections sends a close frame to every client and waits briefly
// for the writers to finish.
func (h *WebSocketHandler) CloseAllConnections() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.cancel()
	}

	timeout := time.After(closeGrace)
	for _, c := range clients {
		select {
		case <-c.done:
		case <-timeout:
			h.logger.Warn("websocket writers did not stop in time")
			return
		}
	}

	h.logger.Info("all websocket connections closed", zap.Int("count", len(clients)))
}
