package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-dashboard/internal/chat"
	"chat-dashboard/internal/middleware"
	"chat-dashboard/internal/mocks"
	"chat-dashboard/internal/models"
)

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub(nil, nil)

	hub.AddClient(1, nil, ConnInfo{})
	if len(hub.rooms) != 1 {
		t.Fatalf("expected conversation room to be created")
	}

	hub.RemoveClient(1, nil)
	if len(hub.rooms) != 0 {
		t.Fatalf("expected conversation room to be removed")
	}
}

func TestHubBroadcastWithoutWatchersIsNoop(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.BroadcastMessage(9, models.Message{ID: 1})
	hub.BroadcastRead(9, 3)
	assert.Equal(t, 0, hub.RoomSize(9))
}

type lookupStub struct {
	owner int64
}

func (l lookupStub) GetConversation(_ context.Context, userID, conversationID int64) (models.ConversationWithContact, error) {
	if userID != l.owner {
		return models.ConversationWithContact{}, chat.ErrNotFound
	}
	return models.ConversationWithContact{Conversation: models.Conversation{ID: conversationID, UserID: userID}}, nil
}

func startServer(t *testing.T, hub *Hub, userID int64) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewConversationWebSocketHandler(hub, lookupStub{owner: 1})
	r.GET("/ws/conversations/:conversation_id", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}, handler.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func waitForRoom(t *testing.T, hub *Hub, conversationID int64, size int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.RoomSize(conversationID) == size }, 2*time.Second, 10*time.Millisecond)
}

func TestConversationSocketReceivesEvents(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, wsRoutingKey, mock.Anything).Return(nil)
	hub := NewHub(publisher, nil)
	srv := startServer(t, hub, 1)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/conversations/5"), nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForRoom(t, hub, 5, 1)

	content := "hello"
	hub.BroadcastMessage(5, models.Message{ID: 11, ConversationID: 5, Content: &content})
	hub.BroadcastRead(5, 2)

	var event Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "message", event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, int64(11), event.Message.ID)

	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "read", event.Type)
	assert.Equal(t, int64(2), event.Marked)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	waitForRoom(t, hub, 5, 0)
}

func TestConversationSocketRejectsForeignConversation(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := startServer(t, hub, 2)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/conversations/5"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, hub.RoomSize(5))
}

func TestConversationSocketRejectsBadID(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := startServer(t, hub, 1)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/conversations/abc"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubDropsClientWithFullBuffer(t *testing.T) {
	hub := NewHub(nil, nil)
	slow := newClient(nil, ConnInfo{ConnID: "slow"})
	for i := 0; i < sendBuffer; i++ {
		require.True(t, slow.enqueue([]byte("queued")))
	}
	hub.rooms[3] = map[*websocket.Conn]*client{nil: slow}

	returned := make(chan struct{})
	go func() {
		hub.BroadcastMessage(3, models.Message{ID: 1, ConversationID: 3})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}

	assert.Equal(t, 0, hub.RoomSize(3))
	select {
	case <-slow.done:
	default:
		t.Fatal("expected slow client to be stopped")
	}
}

func TestHubBroadcastDoesNotWaitForWrites(t *testing.T) {
	hub := NewHub(nil, nil)
	c := newClient(nil, ConnInfo{ConnID: "idle"})
	hub.rooms[4] = map[*websocket.Conn]*client{nil: c}

	hub.BroadcastMessage(4, models.Message{ID: 2, ConversationID: 4})
	hub.BroadcastRead(4, 1)

	require.Len(t, c.send, 2)
	assert.Contains(t, string(<-c.send), `"type":"message"`)
	assert.Contains(t, string(<-c.send), `"type":"read"`)
	assert.Equal(t, 1, hub.RoomSize(4))
}
