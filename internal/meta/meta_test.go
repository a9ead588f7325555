package meta

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"commhub/internal/apperr"
	"commhub/internal/channel"
	"commhub/internal/testutil"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphServer struct {
	mu    sync.Mutex
	sends []SendRequest
}

func newGraph(t *testing.T) (*graphServer, *httptest.Server) {
	t.Helper()
	g := &graphServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "page-token", r.URL.Query().Get("access_token"))
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			var req SendRequest
			raw, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(raw, &req))
			g.mu.Lock()
			g.sends = append(g.sends, req)
			n := len(g.sends)
			g.mu.Unlock()
			w.Write([]byte(`{"recipient_id":"` + req.Recipient.ID + `","message_id":"mid.` + string(rune('0'+n)) + `"}`))
		case r.URL.Path == "/psid-1":
			assert.Contains(t, r.URL.Query().Get("fields"), "name")
			w.Write([]byte(`{"name":"Ewa Zielińska","id":"psid-1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":"Unknown path","code":803}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return g, srv
}

func newFacebook(t *testing.T, public string) (*Adapter, *graphServer) {
	t.Helper()
	g, srv := newGraph(t)
	a := NewFacebookAdapter(testutil.Settings{
		"facebook.access_token": "page-token",
		"facebook.page_id":      "page-1",
		"facebook.app_secret":   "fb-secret",
		KeyBaseURL:              srv.URL,
	}, public)
	clock := &testutil.Clock{T: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	a.now = clock.Now
	return a, g
}

func fbOutbound(content string, lastInbound *time.Time, atts ...models.Attachment) *channel.Outbound {
	msg := &models.Message{Content: content}
	msg.ID = uuid.New()
	return &channel.Outbound{
		Conversation:  &models.Conversation{Platform: models.PlatformFacebook, ExternalID: "psid-1"},
		Message:       msg,
		Attachments:   atts,
		LastInboundAt: lastInbound,
	}
}

func TestDeliver_TextAndAttachment(t *testing.T) {
	a, g := newFacebook(t, "https://crm.example.com/")
	last := a.now().Add(-time.Hour)
	att := models.Attachment{FilePath: "attachments/x.pdf", FileType: models.FileTypeDocument, OriginalName: "x.pdf"}

	d, err := a.Deliver(context.Background(), fbOutbound("Przesyłam wycenę", &last, att))
	require.NoError(t, err)
	assert.Equal(t, "mid.1", d.ExternalID)

	require.Len(t, g.sends, 2)
	assert.Equal(t, "RESPONSE", g.sends[0].MessagingType)
	assert.Equal(t, "psid-1", g.sends[0].Recipient.ID)
	assert.Equal(t, "Przesyłam wycenę", g.sends[0].Message.Text)

	require.NotNil(t, g.sends[1].Message.Attachment)
	assert.Equal(t, "file", g.sends[1].Message.Attachment.Type)
	assert.Equal(t, "https://crm.example.com/api/v1/communications/media/attachments/x.pdf", g.sends[1].Message.Attachment.Payload.URL)
}

func TestDeliver_WindowRules(t *testing.T) {
	a, g := newFacebook(t, "")
	stale := a.now().Add(-48 * time.Hour)

	_, err := a.Deliver(context.Background(), fbOutbound("hi", &stale))
	assert.Equal(t, apperr.KindProviderPermanent, apperr.KindOf(err))
	assert.Empty(t, g.sends)

	out := fbOutbound("hi", &stale)
	manager := uuid.New()
	out.Conversation.AssignedManagerID = &manager
	_, err = a.Deliver(context.Background(), out)
	require.NoError(t, err)
	require.Len(t, g.sends, 1)
	assert.Equal(t, "MESSAGE_TAG", g.sends[0].MessagingType)
	assert.Equal(t, "HUMAN_AGENT", g.sends[0].Tag)
}

func TestDeliver_AttachmentNeedsPublicURL(t *testing.T) {
	a, _ := newFacebook(t, "")
	last := a.now().Add(-time.Minute)
	att := models.Attachment{FilePath: "attachments/x.jpg", FileType: models.FileTypeImage, OriginalName: "x.jpg"}

	_, err := a.Deliver(context.Background(), fbOutbound("[Image: x.jpg]", &last, att))
	assert.Equal(t, apperr.KindProviderPermanent, apperr.KindOf(err))
}

const messengerPayload = `{
  "object": "page",
  "entry": [{
    "id": "page-1",
    "time": 1741600000000,
    "messaging": [
      {"sender": {"id": "psid-1"}, "recipient": {"id": "page-1"}, "timestamp": 1741600000000,
       "message": {"mid": "m_1", "text": "Czy tłumaczycie dokumenty z niemieckiego?"}},
      {"sender": {"id": "page-1"}, "recipient": {"id": "psid-1"}, "timestamp": 1741600001000,
       "message": {"mid": "m_2", "text": "Tak", "is_echo": true}},
      {"sender": {"id": "psid-1"}, "recipient": {"id": "page-1"}, "timestamp": 1741600002000,
       "message": {"mid": "m_3", "attachments": [{"type": "image", "payload": {"url": "https://cdn.example.com/a/photo.jpg?x=1"}}]}},
      {"sender": {"id": "psid-1"}, "recipient": {"id": "page-1"}, "delivery": {"mids": ["mid.1", "mid.2"]}}
    ]
  }]
}`

func TestReceive(t *testing.T) {
	a, _ := newFacebook(t, "")
	batch, err := a.Receive(context.Background(), []byte(messengerPayload))
	require.NoError(t, err)
	require.Len(t, batch.Messages, 3)

	first := batch.Messages[0]
	assert.Equal(t, models.PlatformFacebook, first.Platform)
	assert.Equal(t, "psid-1", first.ExternalID)
	assert.Equal(t, "Ewa Zielińska", first.Subject)
	assert.False(t, first.IsFromMe)
	require.NotNil(t, first.SentAt)
	assert.Equal(t, int64(1741600000), first.SentAt.Unix())

	echo := batch.Messages[1]
	assert.True(t, echo.IsFromMe)
	assert.Equal(t, "psid-1", echo.ExternalID)
	assert.Empty(t, echo.Subject)

	photo := batch.Messages[2]
	assert.Equal(t, models.MessageTypeImage, photo.MessageType)
	require.Len(t, photo.Attachments, 1)
	assert.Equal(t, "photo.jpg", photo.Attachments[0].Name)

	require.Len(t, batch.Statuses, 2)
	assert.Equal(t, "mid.2", batch.Statuses[1].ExternalMessageID)
	assert.Equal(t, models.StatusSent, batch.Statuses[1].Status)
}

func TestVerifyWebhook(t *testing.T) {
	a, _ := newFacebook(t, "")
	body := []byte(messengerPayload)
	assert.True(t, a.VerifyWebhook(context.Background(), channel.SignMeta("fb-secret", body), body))

	ig := NewInstagramAdapter(testutil.Settings{"facebook.app_secret": "fb-secret"}, "")
	assert.False(t, ig.VerifyWebhook(context.Background(), channel.SignMeta("fb-secret", body), body))
}

func TestFileNameFromURL(t *testing.T) {
	assert.Equal(t, "scan.pdf", fileNameFromURL("https://cdn.example.com/x/scan.pdf?sig=abc"))
	assert.Empty(t, fileNameFromURL("https://cdn.example.com/x/blob"))
	assert.Empty(t, fileNameFromURL("https://cdn.example.com/"))
}
