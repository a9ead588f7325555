package telegram

import (
	"context"
	"errors"
	"testing"

	"commhub/internal/channel"
	"commhub/internal/repo"
	"commhub/internal/testutil"
	"commhub/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	chat    tgbotapi.Chat
	chatErr error
	sent    []tgbotapi.Chattable
	nextID  int
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: 100 + f.nextID}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.sent = append(f.sent, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetChat(tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
	return f.chat, f.chatErr
}

func (f *fakeBot) GetFileDirectURL(string) (string, error) {
	return "", errors.New("not used")
}

type memMedia map[string][]byte

func (m memMedia) ReadAll(_ context.Context, key string) ([]byte, error) {
	return m[key], nil
}

func newTestAdapter(bot *fakeBot, media memMedia) *Adapter {
	a := NewAdapter(testutil.Settings{
		KeyAccounts: `[{"name":"office","token":"123:abc"},{"name":"hooked","token":"456:def","webhook_secret":"s3cret"}]`,
	}, media)
	a.newBot = func(string) (botAPI, error) { return bot, nil }
	return a
}

func TestPrivateMessageEvent(t *testing.T) {
	a := newTestAdapter(&fakeBot{}, nil)
	update := &tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		Date:      1700000000,
		From:      &tgbotapi.User{ID: 42, FirstName: "Ola"},
		Chat:      &tgbotapi.Chat{ID: 123456, Type: "private"},
		Text:      "Cześć",
	}}

	ev, ok := a.toEvent(context.Background(), Account{Name: "office"}, &fakeBot{}, update)
	require.True(t, ok)
	assert.Equal(t, models.PlatformTelegram, ev.Platform)
	assert.Equal(t, "42", ev.ExternalID)
	assert.Equal(t, "Ola", ev.Subject)
	assert.False(t, ev.SubjectIsFallback)
	assert.Equal(t, "Cześć", ev.Content)
	assert.Equal(t, "office:123456:7", ev.ExternalMessageID)
	assert.Equal(t, models.MessageTypeText, ev.MessageType)
	require.NotNil(t, ev.SentAt)
	assert.Nil(t, ev.DeferredMedia)
}

func TestSameMessageIDOnTwoAccounts(t *testing.T) {
	a := newTestAdapter(&fakeBot{}, nil)
	update := func(text string) *tgbotapi.Update {
		return &tgbotapi.Update{Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 42, FirstName: "Ola"},
			Chat:      &tgbotapi.Chat{ID: 42, Type: "private"},
			Text:      text,
		}}
	}
	office, ok := a.toEvent(context.Background(), Account{Name: "office"}, &fakeBot{}, update("Dzień dobry"))
	require.True(t, ok)
	hooked, ok := a.toEvent(context.Background(), Account{Name: "hooked"}, &fakeBot{}, update("Czy jest ktoś?"))
	require.True(t, ok)
	assert.Equal(t, office.ExternalID, hooked.ExternalID)
	assert.NotEqual(t, office.ExternalMessageID, hooked.ExternalMessageID)

	store := repo.NewConversationStore(testutil.NewDB(t))
	ctx := context.Background()
	conv, _, err := store.UpsertConversation(ctx, repo.UpsertConversationInput{Platform: models.PlatformTelegram, ExternalID: office.ExternalID})
	require.NoError(t, err)
	for _, ev := range []channel.InboundEvent{office, hooked} {
		_, created, err := store.AppendMessage(ctx, repo.AppendMessageInput{
			ConversationID: conv.ID, Direction: models.DirectionInbound, Content: ev.Content, ExternalID: ev.ExternalMessageID,
		})
		require.NoError(t, err)
		assert.True(t, created, ev.Content)
	}
}

func TestGroupTitleFallbacks(t *testing.T) {
	tests := []struct {
		name         string
		chat         *tgbotapi.Chat
		bot          *fakeBot
		senderChat   *tgbotapi.Chat
		wantSubject  string
		wantFallback bool
	}{
		{
			name:        "title on message chat",
			chat:        &tgbotapi.Chat{ID: -100, Type: "group", Title: "Translators"},
			bot:         &fakeBot{},
			wantSubject: "Translators",
		},
		{
			name:        "title from chat info",
			chat:        &tgbotapi.Chat{ID: -100, Type: "group"},
			bot:         &fakeBot{chat: tgbotapi.Chat{ID: -100, Title: "Fetched"}},
			wantSubject: "Fetched",
		},
		{
			name:        "title from sender chat",
			chat:        &tgbotapi.Chat{ID: -100, Type: "supergroup"},
			bot:         &fakeBot{chatErr: errors.New("forbidden")},
			senderChat:  &tgbotapi.Chat{ID: -200, Title: "Channel"},
			wantSubject: "Channel",
		},
		{
			name:         "synthetic title",
			chat:         &tgbotapi.Chat{ID: -100, Type: "group"},
			bot:          &fakeBot{chatErr: errors.New("forbidden")},
			wantSubject:  "Group -100",
			wantFallback: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(tt.bot, nil)
			update := &tgbotapi.Update{Message: &tgbotapi.Message{
				MessageID:  1,
				From:       &tgbotapi.User{ID: 42, FirstName: "Ola"},
				Chat:       tt.chat,
				SenderChat: tt.senderChat,
				Text:       "hi",
			}}
			ev, ok := a.toEvent(context.Background(), Account{Name: "office"}, tt.bot, update)
			require.True(t, ok)
			assert.Equal(t, "-100", ev.ExternalID)
			assert.Equal(t, tt.wantSubject, ev.Subject)
			assert.Equal(t, tt.wantFallback, ev.SubjectIsFallback)
		})
	}
}

func TestMediaMessageIsDeferred(t *testing.T) {
	a := newTestAdapter(&fakeBot{}, nil)
	update := &tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 9,
		From:      &tgbotapi.User{ID: 42, FirstName: "Ola"},
		Chat:      &tgbotapi.Chat{ID: 42, Type: "private"},
		Document:  &tgbotapi.Document{FileID: "f1", FileName: "umowa.pdf", MimeType: "application/pdf", FileSize: 1024},
	}}

	ev, ok := a.toEvent(context.Background(), Account{Name: "office"}, &fakeBot{}, update)
	require.True(t, ok)
	assert.Equal(t, MediaPlaceholder, ev.Content)
	assert.Equal(t, models.MessageTypeDocument, ev.MessageType)
	assert.NotNil(t, ev.DeferredMedia)
	assert.Empty(t, ev.Attachments)
}

func TestEmptyUpdateIsDropped(t *testing.T) {
	a := newTestAdapter(&fakeBot{}, nil)
	_, ok := a.toEvent(context.Background(), Account{Name: "office"}, &fakeBot{}, &tgbotapi.Update{})
	assert.False(t, ok)
}

func TestDecodeWebhookRequiresKnownSecret(t *testing.T) {
	bot := &fakeBot{}
	a := newTestAdapter(bot, nil)
	body := []byte(`{"update_id":1,"message":{"message_id":5,"date":1700000000,"from":{"id":42,"first_name":"Ola"},"chat":{"id":42,"type":"private"},"text":"hej"}}`)

	_, err := a.DecodeWebhook(context.Background(), "wrong", "", body)
	assert.ErrorIs(t, err, ErrUnknownSecret)

	_, err = a.DecodeWebhook(context.Background(), "s3cret", "other", body)
	assert.ErrorIs(t, err, ErrUnknownSecret)

	batch, err := a.DecodeWebhook(context.Background(), "s3cret", "s3cret", body)
	require.NoError(t, err)
	require.Len(t, batch.Messages, 1)
	assert.Equal(t, "hooked", batch.Messages[0].Metadata["account"])
	assert.Equal(t, "hej", batch.Messages[0].Content)
}

func TestDeliverTextAndCaption(t *testing.T) {
	bot := &fakeBot{}
	a := newTestAdapter(bot, memMedia{"attachments/a.jpg": []byte("jpeg")})

	conv := &models.Conversation{Platform: models.PlatformTelegram, ExternalID: "42"}
	delivery, err := a.Deliver(context.Background(), &channel.Outbound{
		Conversation: conv,
		Message:      &models.Message{Content: "Hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "office:42:101", delivery.ExternalID)
	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "Hello", msg.Text)

	bot.sent = nil
	_, err = a.Deliver(context.Background(), &channel.Outbound{
		Conversation: conv,
		Message:      &models.Message{Content: "See attached"},
		Attachments: []models.Attachment{{
			FilePath: "attachments/a.jpg", FileType: models.FileTypeImage, MimeType: "image/jpeg", OriginalName: "a.jpg", FileSize: 4,
		}},
	})
	require.NoError(t, err)
	require.Len(t, bot.sent, 1)
	photo, ok := bot.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "See attached", photo.Caption)
}

func TestDeliverRejectsOversizedFiles(t *testing.T) {
	bot := &fakeBot{}
	a := newTestAdapter(bot, memMedia{})
	_, err := a.Deliver(context.Background(), &channel.Outbound{
		Conversation: &models.Conversation{ExternalID: "42"},
		Message:      &models.Message{Content: "[Document: big.pdf]"},
		Attachments: []models.Attachment{{
			FilePath: "attachments/big.pdf", FileType: models.FileTypeDocument, OriginalName: "big.pdf", FileSize: MaxDocumentSize + 1,
		}},
	})
	var perr *channel.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Temporary)
	assert.Empty(t, bot.sent)
}

func TestResolveChatUsesLearnedPeers(t *testing.T) {
	a := newTestAdapter(&fakeBot{}, nil)
	a.remember("office", 555, channel.SenderInfo{Username: "Ola_K", Phone: "+48 600 100 200"})

	id, err := a.resolveChat("@ola_k")
	require.NoError(t, err)
	assert.Equal(t, int64(555), id)

	id, err = a.resolveChat("+48600100200")
	require.NoError(t, err)
	assert.Equal(t, int64(555), id)

	id, err = a.resolveChat("777")
	require.NoError(t, err)
	assert.Equal(t, int64(777), id)

	_, err = a.resolveChat("nobody")
	assert.Error(t, err)
}

func TestLoadAccountsSkipsTokenless(t *testing.T) {
	accounts, err := LoadAccounts(context.Background(), testutil.Settings{
		KeyAccounts: `[{"name":"a","token":""},{"token":"t2"}]`,
	})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "bot2", accounts[0].Name)
	assert.True(t, accounts[0].Polled())
}
