package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func newServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, r.URL.Query().Get("user"), r.URL.Query().Get("name"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user + "&name=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	frame := readFrame(t, conn)
	require.Equal(t, EventConnection, frame["type"])
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

type recordingRelay struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingRelay) Publish(_ context.Context, eventType string, _ []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingRelay) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestHub_BroadcastReachesEverySocket(t *testing.T) {
	relay := &recordingRelay{}
	hub := NewHub().WithRelay(relay)
	srv := newServer(t, hub)
	a := dial(t, srv, "alice")
	b := dial(t, srv, "bob")
	waitFor(t, func() bool { return hub.Count() == 2 })

	conv := &models.Conversation{Platform: models.PlatformWhatsApp, ExternalID: "48600100200"}
	conv.ID = uuid.Must(uuid.NewV7())
	msg := &models.Message{ConversationID: conv.ID, Direction: models.DirectionInbound, Content: "Hi"}
	msg.ID = uuid.Must(uuid.NewV7())
	NewNotifier(hub, nil).BroadcastNewMessage(context.Background(), conv, msg)

	for _, conn := range []*websocket.Conn{a, b} {
		frame := readFrame(t, conn)
		assert.Equal(t, EventNewMessage, frame["type"])
		assert.Equal(t, conv.ID.String(), frame["conversation_id"])
		assert.Equal(t, "WhatsApp", frame["platform_name"])
		block := frame["conversation"].(map[string]interface{})
		assert.Equal(t, "48600100200", block["external_id"])
		hint := block["client_hint"].(map[string]interface{})
		assert.Equal(t, "48600100200", hint["phone"])
		message := frame["message"].(map[string]interface{})
		assert.Equal(t, "Hi", message["content"])
		assert.Equal(t, []interface{}{}, message["attachments"])
	}
	assert.Equal(t, []string{EventNewMessage}, relay.seen())
}

func TestHub_ReconnectReplacesSocket(t *testing.T) {
	hub := NewHub()
	srv := newServer(t, hub)
	first := dial(t, srv, "alice")
	second := dial(t, srv, "alice")
	waitFor(t, func() bool { return hub.Count() == 1 })

	// The replaced socket is closed by the server
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	hub.Broadcast(context.Background(), EventMessageDeleted, map[string]interface{}{"message_id": "m1"})
	frame := readFrame(t, second)
	assert.Equal(t, EventMessageDeleted, frame["type"])
	assert.Equal(t, 1, hub.Count())
}

func TestHub_TypingAndPing(t *testing.T) {
	typed := make(chan string, 1)
	hub := NewHub().OnTyping(func(_ context.Context, conversationID string) { typed <- conversationID })
	srv := newServer(t, hub)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	waitFor(t, func() bool { return hub.Count() == 2 })

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "typing", "conversation_id": "c-1"}))
	frame := readFrame(t, bob)
	assert.Equal(t, EventTyping, frame["type"])
	assert.Equal(t, "c-1", frame["conversation_id"])
	assert.Equal(t, "alice", frame["user_id"])

	select {
	case id := <-typed:
		assert.Equal(t, "c-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("typing hook not called")
	}

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, EventPong, readFrame(t, alice)["type"])
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := NewHub()
	srv := newServer(t, hub)
	conn := dial(t, srv, "alice")
	waitFor(t, func() bool { return hub.Count() == 1 })

	require.NoError(t, conn.Close())
	waitFor(t, func() bool { return hub.Count() == 0 })

	// Broadcasting with nobody connected is a no-op
	hub.Broadcast(context.Background(), EventManagerAssigned, map[string]interface{}{"conversation_id": "c"})
}

func TestClient_FullBufferDropsFrames(t *testing.T) {
	c := &Client{userID: "slow", send: make(chan []byte, 1), done: make(chan struct{})}
	c.trySend([]byte("one"))
	c.trySend([]byte("two"))
	assert.Len(t, c.send, 1)
	assert.Equal(t, "one", string(<-c.send))
}
