package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"commhub/internal/channel"
	"commhub/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

const (
	maxMessageLength = 4096
	maxCaptionLength = 1024
	// MaxDocumentSize is the Bot API upload limit
	MaxDocumentSize = 50 << 20
	// MaxPhotoSize is the largest file still sent as a photo
	MaxPhotoSize = 20 << 20
)

// botAPI is the part of *tgbotapi.BotAPI the adapter uses
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetFileDirectURL(fileID string) (string, error)
}

// MediaReader reads stored attachment bytes
type MediaReader interface {
	ReadAll(ctx context.Context, key string) ([]byte, error)
}

// Adapter is the Telegram channel adapter
type Adapter struct {
	settings channel.Settings
	media    MediaReader
	newBot   func(token string) (botAPI, error)

	mu   sync.RWMutex
	bots map[string]botAPI
	// peers maps a learned phone or username to its chat id
	peers map[string]int64
	// routes maps a chat id to the account that last heard from it
	routes map[int64]string
}

// NewAdapter creates a new Telegram adapter
func NewAdapter(settings channel.Settings, media MediaReader) *Adapter {
	return &Adapter{
		settings: settings,
		media:    media,
		newBot: func(token string) (botAPI, error) {
			return tgbotapi.NewBotAPI(token)
		},
		bots:   make(map[string]botAPI),
		peers:  make(map[string]int64),
		routes: make(map[int64]string),
	}
}

func (a *Adapter) Platform() models.Platform { return models.PlatformTelegram }

func (a *Adapter) bot(token string) (botAPI, error) {
	a.mu.RLock()
	bot, ok := a.bots[token]
	a.mu.RUnlock()
	if ok {
		return bot, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[token]; ok {
		return bot, nil
	}
	bot, err := a.newBot(token)
	if err != nil {
		return nil, wrapError(err)
	}
	a.bots[token] = bot
	return bot, nil
}

// remember records how to reach a counterpart and through which account
func (a *Adapter) remember(account string, chatID int64, sender channel.SenderInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[chatID] = account
	if sender.Username != "" {
		a.peers[strings.ToLower(sender.Username)] = chatID
	}
	if phone := digits(sender.Phone); phone != "" {
		a.peers[phone] = chatID
	}
}

// resolveChat turns a conversation external id into a chat id. The id is
// tried as a learned phone, a learned username and finally a numeric chat id.
func (a *Adapter) resolveChat(externalID string) (int64, error) {
	id := strings.TrimSpace(externalID)
	a.mu.RLock()
	defer a.mu.RUnlock()
	if phone := digits(id); phone != "" && strings.HasPrefix(id, "+") {
		if chatID, ok := a.peers[phone]; ok {
			return chatID, nil
		}
	}
	if name := strings.ToLower(strings.TrimPrefix(id, "@")); name != "" {
		if chatID, ok := a.peers[name]; ok {
			return chatID, nil
		}
	}
	if chatID, err := strconv.ParseInt(id, 10, 64); err == nil {
		return chatID, nil
	}
	return 0, channel.Permanent(models.PlatformTelegram, "cannot resolve telegram recipient %q", externalID)
}

func (a *Adapter) accountFor(ctx context.Context, chatID int64) (Account, error) {
	accounts, err := LoadAccounts(ctx, a.settings)
	if err != nil {
		return Account{}, err
	}
	if len(accounts) == 0 {
		return Account{}, channel.Permanent(models.PlatformTelegram, "no telegram account is configured")
	}
	a.mu.RLock()
	name, ok := a.routes[chatID]
	a.mu.RUnlock()
	if ok {
		for _, acct := range accounts {
			if acct.Name == name {
				return acct, nil
			}
		}
	}
	return accounts[0], nil
}

// Deliver sends text and files. The text rides as caption on the first file
// when it fits; images over the photo limit go out as documents.
func (a *Adapter) Deliver(ctx context.Context, out *channel.Outbound) (*channel.Delivery, error) {
	chatID, err := a.resolveChat(out.Conversation.ExternalID)
	if err != nil {
		return nil, err
	}
	acct, err := a.accountFor(ctx, chatID)
	if err != nil {
		return nil, err
	}
	bot, err := a.bot(acct.Token)
	if err != nil {
		return nil, err
	}

	text := sanitizeText(strings.TrimSpace(out.Message.Content))
	if len(out.Attachments) > 0 {
		first := out.Attachments[0]
		if text == channel.AttachmentPlaceholder(channel.MessageTypeFor(first.FileType), first.OriginalName) {
			text = ""
		}
	}

	var firstID string
	record := func(m tgbotapi.Message) {
		if firstID == "" {
			firstID = messageKey(acct.Name, chatID, m.MessageID)
		}
	}

	caption := ""
	if len(out.Attachments) > 0 && utf8.RuneCountInString(text) <= maxCaptionLength {
		caption, text = text, ""
	}
	if text != "" {
		sent, err := bot.Send(tgbotapi.NewMessage(chatID, truncateText(text)))
		if err != nil {
			return nil, wrapError(err)
		}
		record(sent)
	}

	for i, att := range out.Attachments {
		if att.FileSize > MaxDocumentSize {
			return nil, channel.Permanent(models.PlatformTelegram, "%s exceeds the 50 MiB telegram limit", att.FileName())
		}
		data, err := a.media.ReadAll(ctx, att.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", att.ID, err)
		}
		c := ""
		if i == 0 {
			c = caption
		}
		sent, err := bot.Send(fileConfig(chatID, att, data, c))
		if err != nil {
			return nil, wrapError(err)
		}
		record(sent)
	}
	return &channel.Delivery{ExternalID: firstID}, nil
}

func fileConfig(chatID int64, att models.Attachment, data []byte, caption string) tgbotapi.Chattable {
	file := tgbotapi.FileBytes{Name: att.FileName(), Bytes: data}
	size := int64(len(data))
	switch att.FileType {
	case models.FileTypeImage:
		if size <= MaxPhotoSize {
			photo := tgbotapi.NewPhoto(chatID, file)
			photo.Caption = caption
			return photo
		}
	case models.FileTypeVideo:
		video := tgbotapi.NewVideo(chatID, file)
		video.Caption = caption
		return video
	case models.FileTypeAudio:
		if strings.HasPrefix(att.MimeType, "audio/ogg") {
			voice := tgbotapi.NewVoice(chatID, file)
			voice.Caption = caption
			return voice
		}
		audio := tgbotapi.NewAudio(chatID, file)
		audio.Caption = caption
		return audio
	}
	doc := tgbotapi.NewDocument(chatID, file)
	doc.Caption = caption
	return doc
}

// SendTyping shows the typing indicator in a chat
func (a *Adapter) SendTyping(ctx context.Context, externalID string) error {
	chatID, err := a.resolveChat(externalID)
	if err != nil {
		return err
	}
	acct, err := a.accountFor(ctx, chatID)
	if err != nil {
		return err
	}
	bot, err := a.bot(acct.Token)
	if err != nil {
		return err
	}
	if _, err := bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return wrapError(err)
	}
	return nil
}

// wrapError classifies Bot API failures; rate limits and server errors are temporary
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	code := 0
	var apiErr *tgbotapi.Error
	var apiVal tgbotapi.Error
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiVal):
		code = apiVal.Code
	default:
		return channel.TransportError(models.PlatformTelegram, err)
	}
	return &channel.ProviderError{
		Platform:   models.PlatformTelegram,
		StatusCode: code,
		Temporary:  code == 429 || code >= 500,
		Message:    err.Error(),
		Err:        err,
	}
}

func sanitizeText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

func truncateText(text string) string {
	if len(text) <= maxMessageLength {
		return text
	}
	const suffix = "..."
	limit := maxMessageLength - len(suffix)
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + suffix
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func logDrop(account string, reason string) {
	log.Debug().Str("account", account).Str("reason", reason).Msg("Telegram update ignored")
}
