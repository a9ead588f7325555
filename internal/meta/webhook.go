package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"commhub/internal/channel"
	"commhub/pkg/models"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// WebhookPayload is the Messenger/Instagram webhook body
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string           `json:"id"`
		Time      int64            `json:"time"`
		Messaging []MessagingEvent `json:"messaging"`
	} `json:"entry"`
}

// MessagingEvent is one entry of the messaging array
type MessagingEvent struct {
	Sender    struct{ ID string } `json:"sender"`
	Recipient struct{ ID string } `json:"recipient"`
	Timestamp int64               `json:"timestamp"`
	Message   *struct {
		MID         string `json:"mid"`
		Text        string `json:"text"`
		IsEcho      bool   `json:"is_echo"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message,omitempty"`
	Delivery *struct {
		MIDs []string `json:"mids"`
	} `json:"delivery,omitempty"`
}

// Receive decodes a webhook body into inbound events and delivery acks
func (a *Adapter) Receive(ctx context.Context, body []byte) (*channel.Batch, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", a.platform, err)
	}

	batch := &channel.Batch{}
	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			if ev.Delivery != nil {
				for _, mid := range ev.Delivery.MIDs {
					batch.Statuses = append(batch.Statuses, channel.StatusEvent{
						Platform: a.platform, ExternalMessageID: mid, Status: models.StatusSent,
					})
				}
			}
			if ev.Message == nil || ev.Message.MID == "" {
				continue
			}
			batch.Messages = append(batch.Messages, a.toEvent(ctx, ev))
		}
	}
	return batch, nil
}

func (a *Adapter) toEvent(ctx context.Context, ev MessagingEvent) channel.InboundEvent {
	m := ev.Message
	counterpart := ev.Sender.ID
	if m.IsEcho {
		counterpart = ev.Recipient.ID
	}

	out := channel.InboundEvent{
		Platform:          a.platform,
		ExternalID:        counterpart,
		Content:           m.Text,
		MessageType:       models.MessageTypeText,
		ExternalMessageID: m.MID,
		IsFromMe:          m.IsEcho,
		Metadata: map[string]interface{}{
			"psid":    counterpart,
			"page_id": ev.Recipient.ID,
		},
	}
	if ev.Timestamp > 0 {
		sent := time.UnixMilli(ev.Timestamp).UTC()
		out.SentAt = &sent
	}
	if !m.IsEcho {
		if name := a.profileName(ctx, counterpart); name != "" {
			out.Subject = name
			out.Sender.Name = name
		}
	}

	for i, att := range m.Attachments {
		if att.Payload.URL == "" {
			continue
		}
		msgType := messageType(att.Type)
		if i == 0 {
			out.MessageType = msgType
		}
		link := att.Payload.URL
		out.Attachments = append(out.Attachments, channel.InboundAttachment{
			Name: fileNameFromURL(link),
			Fetch: func(ctx context.Context) ([]byte, string, error) {
				return a.download(ctx, link)
			},
		})
	}
	return out
}

// profileName looks up the display name of a PSID; failures yield ""
func (a *Adapter) profileName(ctx context.Context, psid string) string {
	creds, err := a.credentials(ctx)
	if err != nil {
		return ""
	}
	fields := "name"
	if a.platform == models.PlatformInstagram {
		fields = "name,username"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s?fields=%s&access_token=%s", creds.baseURL, url.PathEscape(psid), fields, url.QueryEscape(creds.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ""
	}
	resp, err := a.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("platform", string(a.platform)).Msg("Profile lookup failed")
		return ""
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || resp.StatusCode != http.StatusOK {
		return ""
	}
	parsed := gjson.ParseBytes(body)
	if name := parsed.Get("name").String(); name != "" {
		return name
	}
	return parsed.Get("username").String()
}

func (a *Adapter) download(ctx context.Context, link string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, "", err
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", channel.TransportError(a.platform, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", channel.TransportError(a.platform, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", channel.ResponseError(a.platform, resp.StatusCode, data)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func messageType(t string) models.MessageType {
	switch t {
	case "image":
		return models.MessageTypeImage
	case "video":
		return models.MessageTypeVideo
	case "audio":
		return models.MessageTypeAudio
	case "file":
		return models.MessageTypeDocument
	}
	return models.MessageTypeFile
}

func fileNameFromURL(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || !strings.Contains(name, ".") {
		return ""
	}
	return name
}
