package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"commhub/internal/channel"
	"commhub/pkg/models"
)

// WebhookPayload is the Cloud API webhook body
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value ChangeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ChangeValue carries messages and delivery statuses for one phone number
type ChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []InboundMessage `json:"messages"`
	Statuses []MessageStatus  `json:"statuses"`
}

// InboundMessage is one customer message
type InboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image    *InboundMedia `json:"image,omitempty"`
	Video    *InboundMedia `json:"video,omitempty"`
	Audio    *InboundMedia `json:"audio,omitempty"`
	Voice    *InboundMedia `json:"voice,omitempty"`
	Document *InboundMedia `json:"document,omitempty"`
	Sticker  *InboundMedia `json:"sticker,omitempty"`
	Button   *struct {
		Text string `json:"text"`
	} `json:"button,omitempty"`
	Context *struct {
		ID string `json:"id"`
	} `json:"context,omitempty"`
}

// InboundMedia references media held by the Cloud API
type InboundMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
	Voice    bool   `json:"voice"`
}

// MessageStatus is a delivery acknowledgement
type MessageStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code    int    `json:"code"`
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Receive decodes a webhook body into inbound events and status acks
func (a *Adapter) Receive(ctx context.Context, body []byte) (*channel.Batch, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid whatsapp payload: %w", err)
	}

	batch := &channel.Batch{}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			names := make(map[string]string, len(value.Contacts))
			for _, c := range value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range value.Messages {
				batch.Messages = append(batch.Messages, a.toEvent(m, names[m.From], value.Metadata.PhoneNumberID))
			}
			for _, s := range value.Statuses {
				if ev, ok := toStatus(s); ok {
					batch.Statuses = append(batch.Statuses, ev)
				}
			}
		}
	}
	return batch, nil
}

func (a *Adapter) toEvent(m InboundMessage, name, phoneNumberID string) channel.InboundEvent {
	phone := NormalizePhone(m.From)
	ev := channel.InboundEvent{
		Platform:          models.PlatformWhatsApp,
		ExternalID:        phone,
		Subject:           name,
		Sender:            channel.SenderInfo{Name: name, Phone: phone},
		MessageType:       models.MessageTypeText,
		ExternalMessageID: m.ID,
		Metadata: map[string]interface{}{
			"wa_id":           m.From,
			"phone_number_id": phoneNumberID,
			"whatsapp_type":   m.Type,
		},
	}
	if m.Context != nil && m.Context.ID != "" {
		ev.Metadata["reply_to_external_id"] = m.Context.ID
	}
	if ts, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil && ts > 0 {
		sent := time.Unix(ts, 0).UTC()
		ev.SentAt = &sent
	}

	var media *InboundMedia
	switch m.Type {
	case "text":
		if m.Text != nil {
			ev.Content = m.Text.Body
		}
	case "button":
		if m.Button != nil {
			ev.Content = m.Button.Text
		}
	case "image":
		media, ev.MessageType = m.Image, models.MessageTypeImage
	case "video":
		media, ev.MessageType = m.Video, models.MessageTypeVideo
	case "audio":
		media, ev.MessageType = m.Audio, models.MessageTypeAudio
		if media != nil && media.Voice {
			ev.MessageType = models.MessageTypeVoice
		}
	case "voice":
		media, ev.MessageType = m.Voice, models.MessageTypeVoice
	case "document":
		media, ev.MessageType = m.Document, models.MessageTypeDocument
	case "sticker":
		media, ev.MessageType = m.Sticker, models.MessageTypeSticker
	default:
		ev.Content = fmt.Sprintf("[Unsupported message: %s]", m.Type)
	}

	if media != nil {
		ev.Content = media.Caption
		mediaID := media.ID
		ev.Attachments = []channel.InboundAttachment{{
			MimeType: strings.TrimSpace(strings.Split(media.MimeType, ";")[0]),
			Name:     media.Filename,
			Fetch: func(ctx context.Context) ([]byte, string, error) {
				c, err := a.client(ctx)
				if err != nil {
					return nil, "", err
				}
				return c.DownloadMedia(ctx, mediaID)
			},
		}}
	}
	return ev
}

func toStatus(s MessageStatus) (channel.StatusEvent, bool) {
	ev := channel.StatusEvent{Platform: models.PlatformWhatsApp, ExternalMessageID: s.ID}
	switch s.Status {
	case "sent", "delivered":
		ev.Status = models.StatusSent
	case "read":
		ev.Status = models.StatusRead
	case "failed":
		ev.Status = models.StatusFailed
		if len(s.Errors) > 0 {
			ev.Error = strings.TrimSpace(s.Errors[0].Title + " " + s.Errors[0].Message)
		}
	default:
		return ev, false
	}
	return ev, true
}
