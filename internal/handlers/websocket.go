// -----------------------------------------------------------------------
// WebSocket Handler - live queue event stream for admin clients
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local admin use
	},
}

// progressBurst bounds how many scrape.progress frames may pass before the
// throttle interval applies.
const progressBurst = 4

// WSMessage is the frame sent to every connected client.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler relays queue events to connected admin clients. Each
// connection gets its own write mutex; gorilla connections do not allow
// concurrent writers.
type WebSocketHandler struct {
	logger            arbor.ILogger
	clients           map[*websocket.Conn]bool
	clientMutex       map[*websocket.Conn]*sync.Mutex
	mu                sync.RWMutex
	eventService      interfaces.EventService
	progressThrottler *rate.Limiter
	serverInstanceID  string // clients use this to detect a worker restart
}

// NewWebSocketHandler creates the handler and subscribes it to the queue
// events it relays.
func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:            logger,
		clients:           make(map[*websocket.Conn]bool),
		clientMutex:       make(map[*websocket.Conn]*sync.Mutex),
		eventService:      eventService,
		progressThrottler: rate.NewLimiter(rate.Every(250*time.Millisecond), progressBurst),
		serverInstanceID:  uuid.New().String(),
	}

	if eventService != nil {
		h.subscribeQueueEvents()
	}

	return h
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategorySystem).
			Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().
		Str(common.FieldCategory, common.CategorySystem).
		Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendTo(conn, WSMessage{
		Type: "hello",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
			"version":            common.GetVersion(),
		},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().
			Str(common.FieldCategory, common.CategorySystem).
			Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read loop keeps the connection alive; inbound frames are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().
					Err(err).
					Str(common.FieldCategory, common.CategorySystem).
					Msg("WebSocket read error")
			}
			break
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every connected client.
func (h *WebSocketHandler) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategorySystem).
			Str("type", msg.Type).
			Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategorySystem).
				Str("type", msg.Type).
				Msg("Failed to send WebSocket message to client")
		}
	}
}

// sendTo writes a message to a single client.
func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	mutex, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	mutex.Lock()
	defer mutex.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategorySystem).
			Str("type", msg.Type).
			Msg("Failed to send WebSocket message to client")
	}
}

// subscribeQueueEvents relays item lifecycle events verbatim and throttles
// scrape progress so a fast multi-source run cannot flood clients.
func (h *WebSocketHandler) subscribeQueueEvents() {
	forward := func(ctx context.Context, event interfaces.Event) error {
		h.Broadcast(WSMessage{
			Type:    string(event.Type),
			Payload: event.Payload,
		})
		return nil
	}

	h.eventService.Subscribe(interfaces.EventItemCreated, forward)
	h.eventService.Subscribe(interfaces.EventItemUpdated, forward)
	h.eventService.Subscribe(interfaces.EventItemDeleted, forward)

	h.eventService.Subscribe(interfaces.EventScrapeProgress, func(ctx context.Context, event interfaces.Event) error {
		if !h.progressThrottler.Allow() {
			return nil
		}
		h.Broadcast(WSMessage{
			Type:    string(event.Type),
			Payload: event.Payload,
		})
		return nil
	})
}
