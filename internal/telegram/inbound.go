package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"commhub/internal/channel"
	"commhub/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// MediaPlaceholder is stored until deferred media has been downloaded
const MediaPlaceholder = channel.MediaPlaceholder

var downloadClient = &http.Client{Timeout: 120 * time.Second}

// DecodeWebhook authenticates a webhook delivery by its secret and decodes
// the update it carries
func (a *Adapter) DecodeWebhook(ctx context.Context, secret, headerToken string, body []byte) (*channel.Batch, error) {
	accounts, err := LoadAccounts(ctx, a.settings)
	if err != nil {
		return nil, err
	}
	acct, ok := accountBySecret(accounts, secret)
	if !ok {
		return nil, ErrUnknownSecret
	}
	if headerToken != "" && headerToken != acct.WebhookSecret {
		return nil, ErrUnknownSecret
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("invalid telegram update: %w", err)
	}
	batch := &channel.Batch{}
	bot, err := a.bot(acct.Token)
	if err != nil {
		return nil, err
	}
	if ev, ok := a.toEvent(ctx, acct, bot, &update); ok {
		batch.Messages = append(batch.Messages, ev)
	}
	return batch, nil
}

// toEvent normalizes an update. Only new messages and channel posts produce events.
func (a *Adapter) toEvent(ctx context.Context, acct Account, bot botAPI, update *tgbotapi.Update) (channel.InboundEvent, bool) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil || msg.Chat == nil {
		logDrop(acct.Name, "no message")
		return channel.InboundEvent{}, false
	}

	ev := channel.InboundEvent{
		Platform:          models.PlatformTelegram,
		ExternalMessageID: messageKey(acct.Name, msg.Chat.ID, msg.MessageID),
		MessageType:       models.MessageTypeText,
		Metadata: map[string]interface{}{
			"account":   acct.Name,
			"chat_id":   msg.Chat.ID,
			"chat_type": msg.Chat.Type,
		},
	}
	if msg.Date > 0 {
		sent := time.Unix(int64(msg.Date), 0).UTC()
		ev.SentAt = &sent
	}
	if msg.ReplyToMessage != nil {
		ev.Metadata["reply_to_external_id"] = messageKey(acct.Name, msg.Chat.ID, msg.ReplyToMessage.MessageID)
	}

	if msg.From != nil {
		ev.Sender = channel.SenderInfo{
			Name:     fullName(msg.From.FirstName, msg.From.LastName, msg.From.UserName),
			Username: msg.From.UserName,
		}
		ev.Metadata["telegram_user_id"] = msg.From.ID
		if msg.From.UserName != "" {
			ev.Metadata["username"] = msg.From.UserName
		}
		if msg.Contact != nil && msg.Contact.UserID == msg.From.ID {
			ev.Sender.Phone = "+" + digits(msg.Contact.PhoneNumber)
		}
	}

	if msg.Chat.ID < 0 {
		ev.ExternalID = strconv.FormatInt(msg.Chat.ID, 10)
		ev.Subject, ev.SubjectIsFallback = groupTitle(bot, msg)
	} else {
		chatID := msg.Chat.ID
		if msg.From != nil {
			chatID = msg.From.ID
		}
		ev.ExternalID = strconv.FormatInt(chatID, 10)
		ev.Subject = ev.Sender.Name
		if ev.Subject == "" {
			ev.Subject = fullName(msg.Chat.FirstName, msg.Chat.LastName, msg.Chat.UserName)
		}
	}
	a.remember(acct.Name, msg.Chat.ID, ev.Sender)

	ev.Content = strings.TrimSpace(msg.Text)
	if ev.Content == "" {
		ev.Content = strings.TrimSpace(msg.Caption)
	}
	if msg.Contact != nil && ev.Content == "" {
		ev.Content = strings.TrimSpace(fmt.Sprintf("[Contact: %s %s]",
			fullName(msg.Contact.FirstName, msg.Contact.LastName, ""), msg.Contact.PhoneNumber))
	}

	if ref, ok := mediaOf(msg); ok {
		ev.MessageType = ref.msgType
		if ev.Content == "" {
			ev.Content = MediaPlaceholder
		}
		ev.DeferredMedia = func(ctx context.Context) ([]channel.InboundAttachment, error) {
			if ref.size > MaxDocumentSize {
				return nil, channel.Permanent(models.PlatformTelegram, "media exceeds the 50 MiB download limit")
			}
			data, mimeType, err := download(ctx, bot, ref.fileID)
			if err != nil {
				return nil, err
			}
			if ref.mimeType != "" {
				mimeType = ref.mimeType
			}
			return []channel.InboundAttachment{{Data: data, MimeType: mimeType, Name: ref.name}}, nil
		}
	}
	if ev.Content == "" {
		logDrop(acct.Name, "empty message")
		return channel.InboundEvent{}, false
	}
	return ev, true
}

// messageKey identifies a message across bots. Telegram numbers messages
// per chat, and every bot has its own private chat with a user.
func messageKey(account string, chatID int64, messageID int) string {
	return fmt.Sprintf("%s:%d:%d", account, chatID, messageID)
}

// groupTitle resolves a group name from the message chat, the chat info
// endpoint and the sender chat, in that order. A synthetic title is
// flagged as a fallback.
func groupTitle(bot botAPI, msg *tgbotapi.Message) (string, bool) {
	if title := strings.TrimSpace(msg.Chat.Title); title != "" {
		return title, false
	}
	if bot != nil {
		chat, err := bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: msg.Chat.ID}})
		if err != nil {
			log.Debug().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Failed to fetch telegram chat")
		} else if title := strings.TrimSpace(chat.Title); title != "" {
			return title, false
		}
	}
	if msg.SenderChat != nil {
		if title := strings.TrimSpace(msg.SenderChat.Title); title != "" {
			return title, false
		}
	}
	return fmt.Sprintf("Group %d", msg.Chat.ID), true
}

type mediaRef struct {
	fileID   string
	name     string
	mimeType string
	size     int64
	msgType  models.MessageType
}

func mediaOf(msg *tgbotapi.Message) (mediaRef, bool) {
	switch {
	case len(msg.Photo) > 0:
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return mediaRef{fileID: best.FileID, mimeType: "image/jpeg", size: int64(best.FileSize), msgType: models.MessageTypeImage}, true
	case msg.Document != nil:
		d := msg.Document
		return mediaRef{fileID: d.FileID, name: d.FileName, mimeType: d.MimeType, size: int64(d.FileSize), msgType: models.MessageTypeDocument}, true
	case msg.Video != nil:
		v := msg.Video
		return mediaRef{fileID: v.FileID, name: v.FileName, mimeType: v.MimeType, size: int64(v.FileSize), msgType: models.MessageTypeVideo}, true
	case msg.Voice != nil:
		v := msg.Voice
		return mediaRef{fileID: v.FileID, mimeType: v.MimeType, size: int64(v.FileSize), msgType: models.MessageTypeVoice}, true
	case msg.Audio != nil:
		au := msg.Audio
		return mediaRef{fileID: au.FileID, name: au.FileName, mimeType: au.MimeType, size: int64(au.FileSize), msgType: models.MessageTypeAudio}, true
	case msg.Sticker != nil:
		return mediaRef{fileID: msg.Sticker.FileID, size: int64(msg.Sticker.FileSize), msgType: models.MessageTypeSticker}, true
	case msg.Animation != nil:
		an := msg.Animation
		return mediaRef{fileID: an.FileID, name: an.FileName, mimeType: an.MimeType, size: int64(an.FileSize), msgType: models.MessageTypeVideo}, true
	}
	return mediaRef{}, false
}

func download(ctx context.Context, bot botAPI, fileID string) ([]byte, string, error) {
	link, err := bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, "", wrapError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return nil, "", channel.TransportError(models.PlatformTelegram, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, "", channel.TransportError(models.PlatformTelegram, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", channel.ResponseError(models.PlatformTelegram, resp.StatusCode, data)
	}
	mimeType := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	return data, mimeType, nil
}

func fullName(first, last, username string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		name = strings.TrimSpace(username)
	}
	return name
}
