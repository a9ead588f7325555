package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"commhub/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, reply string, delay time.Duration, captured *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if captured != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReplyBuildsConversationContext(t *testing.T) {
	var body map[string]interface{}
	srv := completionServer(t, "  Thanks, we will get back to you on Monday.  ", 0, &body)
	b := NewBridge("key", srv.URL, "test-model", time.Second)

	reply, err := b.Reply(context.Background(), ReplyRequest{
		Message:        "Do you translate contracts?",
		ConversationID: "c-1",
		Platform:       models.PlatformTelegram,
		Context: []models.Message{
			{Direction: models.DirectionInbound, Content: "Hello"},
			{Direction: models.DirectionOutbound, Content: "Hi, how can we help?"},
			{Direction: models.DirectionInbound, Content: "Do you translate contracts?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Thanks, we will get back to you on Monday.", reply)

	assert.Equal(t, "test-model", body["model"])
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]interface{})["role"])
	assert.Equal(t, "Do you translate contracts?", msgs[3].(map[string]interface{})["content"])
}

func TestReplyEmptyAndTimeout(t *testing.T) {
	srv := completionServer(t, "   ", 0, nil)
	_, err := NewBridge("key", srv.URL, "m", time.Second).Reply(context.Background(), ReplyRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrEmptyReply)

	slow := completionServer(t, "late", 2*time.Second, nil)
	_, err = NewBridge("key", slow.URL, "m", 50*time.Millisecond).Reply(context.Background(), ReplyRequest{Message: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
