package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"commhub/internal/autobot"
	"commhub/internal/channel"
	"commhub/internal/repo"
	"commhub/internal/services"
	"commhub/internal/testutil"
	"commhub/internal/whatsapp"
	"commhub/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingHub struct {
	mu   sync.Mutex
	msgs []*models.Message
}

func (h *recordingHub) BroadcastNewMessage(_ context.Context, _ *models.Conversation, msg *models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

type countingBot struct {
	mu    sync.Mutex
	calls int
}

func (b *countingBot) Consider(context.Context, *models.Conversation, *models.Message) autobot.Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return autobot.OutcomeWorkingHours
}

type fixture struct {
	db        *gorm.DB
	mediaRoot string
	store     *repo.ConversationStore
	clients   *repo.ClientRepository
	hub       *recordingHub
	bot       *countingBot
	router    *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	store := repo.NewConversationStore(gdb)
	root := t.TempDir()
	backend, err := services.NewLocalBackend(root)
	require.NoError(t, err)
	media := services.NewMediaStore(backend, store)
	f := &fixture{
		db:        gdb,
		mediaRoot: root,
		store:     store,
		clients:   repo.NewClientRepository(gdb),
		hub:       &recordingHub{},
		bot:       &countingBot{},
	}
	f.router = NewRouter(store, media, f.hub, f.bot, f.clients)
	return f
}

const replayPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "48111222333", "phone_number_id": "PN1"},
        "contacts": [{"profile": {"name": "Ola"}, "wa_id": "48600100200"}],
        "messages": [{"from": "48600100200", "id": "wamid.X", "timestamp": "1767441600", "type": "text", "text": {"body": "Dzień dobry"}}]
      }
    }]
  }]
}`

func TestRouter_WebhookReplayIsDeduplicated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	adapter := whatsapp.NewAdapter(testutil.Settings{}, nil)

	for i := 0; i < 2; i++ {
		batch, err := adapter.Receive(ctx, []byte(replayPayload))
		require.NoError(t, err)
		f.router.HandleBatch(ctx, batch)
	}
	f.router.Wait()

	convs, err := f.store.ListInbox(ctx, models.InboxQuery{Filter: models.InboxAll, Limit: 10})
	require.NoError(t, err)
	require.Len(t, convs.Data, 1)
	window, err := f.store.GetConversationWindow(ctx, convs.Data[0].ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, window.Messages, 1)
	assert.Equal(t, "wamid.X", window.Messages[0].ExternalID)
	assert.Equal(t, "Dzień dobry", window.Messages[0].Content)
	assert.Equal(t, models.DirectionInbound, window.Messages[0].Direction)

	assert.Equal(t, 1, f.hub.count())
	assert.Equal(t, 1, f.bot.calls)
}

func TestRouter_LinksKnownClient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client, err := f.clients.Create(ctx, repo.ClientInput{Name: "Ola Nowak", Phone: "+48 600 100 200", Source: models.SourceForPlatform(models.PlatformWhatsApp)})
	require.NoError(t, err)

	res, err := f.router.Handle(ctx, channel.InboundEvent{
		Platform:          models.PlatformWhatsApp,
		ExternalID:        "48600100200",
		Subject:           "Ola",
		Sender:            channel.SenderInfo{Name: "Ola", Phone: "48600100200"},
		Content:           "Hi",
		ExternalMessageID: "wamid.1",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Conversation.ClientID)
	assert.Equal(t, client.ID, *res.Conversation.ClientID)
	assert.Equal(t, "Ola", res.Message.Metadata["sender_name"])
}

func TestRouter_DeferredMediaReplacesPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.router.Handle(ctx, channel.InboundEvent{
		Platform:          models.PlatformTelegram,
		ExternalID:        "42",
		Subject:           "Ola",
		Content:           channel.MediaPlaceholder,
		MessageType:       models.MessageTypeDocument,
		ExternalMessageID: "77",
		DeferredMedia: func(context.Context) ([]channel.InboundAttachment, error) {
			return []channel.InboundAttachment{{Data: []byte("%PDF-1.4 test"), MimeType: "application/pdf", Name: "umowa.pdf"}}, nil
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	f.router.Wait()

	msg, err := f.store.GetMessage(ctx, res.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, "[Document: umowa.pdf]", msg.Content)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, models.FileTypeDocument, msg.Attachments[0].FileType)
	// Stored, then re-announced with the media
	assert.Equal(t, 2, f.hub.count())
}

func TestRouter_InlineAttachmentPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.router.Handle(ctx, channel.InboundEvent{
		Platform:          models.PlatformEmail,
		ExternalID:        "ola@ex.com",
		Subject:           "Scan",
		ExternalMessageID: "abc@x",
		Attachments:       []channel.InboundAttachment{{Data: []byte("hello"), MimeType: "text/plain", Name: "notes.txt"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeDocument, res.Message.Type)
	assert.Equal(t, "[Document: notes.txt]", res.Message.Content)
	require.Len(t, res.Message.Attachments, 1)
}

func TestRouter_ReplayDoesNotRefetchMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	fetches := 0
	ev := channel.InboundEvent{
		Platform:          models.PlatformWhatsApp,
		ExternalID:        "48600100200",
		ExternalMessageID: "wamid.IMG",
		Attachments: []channel.InboundAttachment{{
			MimeType: "text/plain",
			Name:     "notes.txt",
			Fetch: func(context.Context) ([]byte, string, error) {
				fetches++
				return []byte("hello"), "text/plain", nil
			},
		}},
	}

	first, err := f.router.Handle(ctx, ev)
	require.NoError(t, err)
	assert.True(t, first.Created)
	replay, err := f.router.Handle(ctx, ev)
	require.NoError(t, err)
	assert.False(t, replay.Created)
	assert.Equal(t, first.Message.ID, replay.Message.ID)

	assert.Equal(t, 1, fetches)
	var rows int64
	require.NoError(t, f.db.Model(&models.Attachment{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
	files, err := os.ReadDir(filepath.Join(f.mediaRoot, "attachments"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, 1, f.hub.count())
}

func TestRouter_OwnMessagesAreOutboundWithoutAutobot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.router.Handle(ctx, channel.InboundEvent{
		Platform:          models.PlatformFacebook,
		ExternalID:        "psid-1",
		Content:           "Sent from the page inbox",
		ExternalMessageID: "mid.1",
		IsFromMe:          true,
	})
	require.NoError(t, err)
	f.router.Wait()
	assert.Equal(t, models.DirectionOutbound, res.Message.Direction)
	assert.Equal(t, models.StatusSent, res.Message.Status)
	assert.Equal(t, 0, f.bot.calls)
	assert.Equal(t, 1, f.hub.count())
}

func TestRouter_StatusAckNeverDowngrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	conv, _, err := f.store.UpsertConversation(ctx, repo.UpsertConversationInput{Platform: models.PlatformWhatsApp, ExternalID: "48600100200"})
	require.NoError(t, err)
	msg, _, err := f.store.AppendMessage(ctx, repo.AppendMessageInput{
		ConversationID: conv.ID,
		Direction:      models.DirectionOutbound,
		Content:        "Ready",
		Status:         models.StatusQueued,
	})
	require.NoError(t, err)
	_, err = f.store.UpdateOutboundStatus(ctx, msg.ID, models.StatusSent, "wamid.OUT", "")
	require.NoError(t, err)

	f.router.HandleBatch(ctx, &channel.Batch{Statuses: []channel.StatusEvent{
		{Platform: models.PlatformWhatsApp, ExternalMessageID: "wamid.OUT", Status: models.StatusRead},
		{Platform: models.PlatformWhatsApp, ExternalMessageID: "wamid.OUT", Status: models.StatusSent},
		{Platform: models.PlatformWhatsApp, ExternalMessageID: "wamid.unknown", Status: models.StatusRead},
	}})

	got, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, got.Status)
}
