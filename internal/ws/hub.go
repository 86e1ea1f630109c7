package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-dashboard/internal/models"
	"chat-dashboard/internal/observability"
)

const (
	kindConversation = "conversation"
	writeWait        = 10 * time.Second
	sendBuffer       = 32
	wsRoutingKey     = "ws_events.conversations"
)

// Event is the JSON frame pushed to conversation watchers.
type Event struct {
	Type           string          `json:"type"`
	ConversationID int64           `json:"conversation_id"`
	Message        *models.Message `json:"message,omitempty"`
	Marked         int64           `json:"marked,omitempty"`
}

// Publisher receives websocket lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// client owns one connection. Frames are queued on send and written by the
// client's own writer goroutine; broadcasters never touch the socket.
type client struct {
	conn *websocket.Conn
	info ConnInfo
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, info ConnInfo) *client {
	return &client{conn: conn, info: info, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// enqueue reports false when the client buffer is full.
func (c *client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Hub maintains active websocket rooms keyed by conversation id.
type Hub struct {
	rooms     map[int64]map[*websocket.Conn]*client
	mu        sync.RWMutex
	publisher Publisher
	logger    *slog.Logger
}

// NewHub creates an empty hub. publisher may be nil.
func NewHub(publisher Publisher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:     make(map[int64]map[*websocket.Conn]*client),
		publisher: publisher,
		logger:    logger,
	}
}

// AddClient registers a websocket connection to a conversation room.
func (h *Hub) AddClient(conversationID int64, conn *websocket.Conn, info ConnInfo) {
	c := newClient(conn, info)
	h.mu.Lock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*websocket.Conn]*client)
	}
	if prev, ok := h.rooms[conversationID][conn]; ok {
		prev.stop()
	}
	h.rooms[conversationID][conn] = c
	h.mu.Unlock()

	go h.writeLoop(conversationID, c)
}

func (h *Hub) writeLoop(conversationID int64, c *client) {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Warn("websocket write failed", "conversation_id", conversationID, "conn_id", c.info.ConnID, "error", err)
				c.conn.Close()
				h.RemoveClient(conversationID, c.conn)
				h.publishLifecycle(context.Background(), "ws_error", conversationID, c.info, err.Error())
				return
			}
		}
	}
}

// RemoveClient removes a websocket connection from a conversation room.
func (h *Hub) RemoveClient(conversationID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[conversationID]; ok {
		if c, ok := clients[conn]; ok {
			c.stop()
		}
		delete(clients, conn)
		if len(clients) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// RoomSize returns the number of connections watching a conversation.
func (h *Hub) RoomSize(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// BroadcastMessage notifies watchers of a new message.
func (h *Hub) BroadcastMessage(conversationID int64, msg models.Message) {
	h.broadcast(conversationID, Event{Type: "message", ConversationID: conversationID, Message: &msg})
}

// BroadcastStatus notifies watchers that a message changed delivery status.
func (h *Hub) BroadcastStatus(conversationID int64, msg models.Message) {
	h.broadcast(conversationID, Event{Type: "status", ConversationID: conversationID, Message: &msg})
}

// BroadcastRead notifies watchers that the conversation was marked read.
func (h *Hub) BroadcastRead(conversationID int64, marked int64) {
	h.broadcast(conversationID, Event{Type: "read", ConversationID: conversationID, Marked: marked})
}

func (h *Hub) broadcast(conversationID int64, event Event) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[conversationID]))
	for _, c := range h.rooms[conversationID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("websocket encode failed", "event", event.Type, "error", err)
		return
	}
	for _, c := range clients {
		if !c.enqueue(payload) {
			h.logger.Warn("websocket client too slow, dropping", "conversation_id", conversationID, "conn_id", c.info.ConnID)
			h.RemoveClient(conversationID, c.conn)
			if c.conn != nil {
				c.conn.Close()
			}
			h.publishLifecycle(context.Background(), "ws_error", conversationID, c.info, "send buffer full")
			continue
		}
		observability.IncWSEvent(kindConversation, event.Type)
	}
}

func (h *Hub) publishLifecycle(ctx context.Context, event string, conversationID int64, info ConnInfo, reason string) {
	observability.IncWSEvent(kindConversation, event)
	if h.publisher == nil {
		return
	}
	envelope := observability.EventEnvelope{
		EventType:  "ws_events",
		EventName:  event,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID:  info.RequestID,
		TraceID:    info.TraceID,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        kindConversation,
				"resource_id": conversationID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id": info.UserID,
				"ip":      info.IP,
			},
		},
	}
	if err := h.publisher.Publish(ctx, wsRoutingKey, envelope); err != nil {
		observability.IncAMQPPublishError()
	}
}
