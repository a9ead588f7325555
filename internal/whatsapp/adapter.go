package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"commhub/internal/channel"
	"commhub/pkg/models"
)

// ServiceWindow is the customer-service window after the last inbound message
// during which free-form messages are allowed
const ServiceWindow = 24 * time.Hour

// HumanAgentTag marks out-of-window replies from an assigned human agent
const HumanAgentTag = "HUMAN_AGENT"

// Settings keys
const (
	KeyAccessToken      = "whatsapp.access_token"
	KeyPhoneNumberID    = "whatsapp.phone_number_id"
	KeyAppSecret        = "whatsapp.app_secret"
	KeyVerifyToken      = "whatsapp.verify_token"
	KeyTemplateName     = "whatsapp.template_name"
	KeyTemplateLanguage = "whatsapp.template_language"
	KeyBaseURL          = "whatsapp.api_base_url"
)

// MediaReader reads stored attachment bytes
type MediaReader interface {
	ReadAll(ctx context.Context, key string) ([]byte, error)
}

// Adapter is the WhatsApp Cloud API channel adapter
type Adapter struct {
	settings channel.Settings
	media    MediaReader
	now      func() time.Time
}

// NewAdapter creates a new WhatsApp adapter
func NewAdapter(settings channel.Settings, media MediaReader) *Adapter {
	return &Adapter{settings: settings, media: media, now: time.Now}
}

// WithClock overrides the adapter clock
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

func (a *Adapter) Platform() models.Platform { return models.PlatformWhatsApp }

func (a *Adapter) client(ctx context.Context) (*Client, error) {
	token, err := a.settings.Get(ctx, KeyAccessToken)
	if err != nil {
		return nil, err
	}
	phoneID, err := a.settings.Get(ctx, KeyPhoneNumberID)
	if err != nil {
		return nil, err
	}
	if token == "" || phoneID == "" {
		return nil, channel.Permanent(models.PlatformWhatsApp, "WhatsApp credentials are not configured")
	}
	baseURL, err := a.settings.Get(ctx, KeyBaseURL)
	if err != nil {
		return nil, err
	}
	return NewClient(baseURL, token, phoneID), nil
}

// InWindow reports whether a free-form message may be sent given the time of
// the last inbound message
func InWindow(lastInbound *time.Time, now time.Time) bool {
	return lastInbound != nil && now.Sub(*lastInbound) < ServiceWindow
}

// Deliver sends an outbound message, switching to the configured template
// outside the 24-hour window
func (a *Adapter) Deliver(ctx context.Context, out *channel.Outbound) (*channel.Delivery, error) {
	c, err := a.client(ctx)
	if err != nil {
		return nil, err
	}
	to := NormalizePhone(out.Conversation.ExternalID)
	if to == "" {
		return nil, channel.Permanent(models.PlatformWhatsApp, "conversation has no phone number")
	}
	text := captionFor(out)

	if !InWindow(out.LastInboundAt, a.now()) {
		return a.deliverOutsideWindow(ctx, c, to, out, text)
	}

	if len(out.Attachments) == 0 {
		id, err := c.SendText(ctx, to, out.Message.Content, "")
		if err != nil {
			return nil, err
		}
		return &channel.Delivery{ExternalID: id}, nil
	}

	var firstID string
	for i, att := range out.Attachments {
		mediaType := mediaTypeFor(att.FileType)
		caption := ""
		if i == 0 && text != "" {
			if mediaType == "audio" {
				// Audio cannot carry a caption
				if _, err := c.SendText(ctx, to, text, ""); err != nil {
					return nil, err
				}
			} else {
				caption = text
			}
		}
		data, err := a.media.ReadAll(ctx, att.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", att.ID, err)
		}
		mediaID, err := c.UploadMedia(ctx, data, att.MimeType, att.OriginalName)
		if err != nil {
			return nil, err
		}
		id, err := c.SendMedia(ctx, to, mediaType, mediaID, caption, att.OriginalName)
		if err != nil {
			return nil, err
		}
		if firstID == "" {
			firstID = id
		}
	}
	return &channel.Delivery{ExternalID: firstID}, nil
}

func (a *Adapter) deliverOutsideWindow(ctx context.Context, c *Client, to string, out *channel.Outbound, text string) (*channel.Delivery, error) {
	if text == "" {
		text = out.Message.Content
	}
	template, err := a.settings.Get(ctx, KeyTemplateName)
	if err != nil {
		return nil, err
	}
	if template != "" {
		lang, err := a.settings.Get(ctx, KeyTemplateLanguage)
		if err != nil {
			return nil, err
		}
		id, err := c.SendTemplate(ctx, to, template, lang, text)
		if err != nil {
			return nil, err
		}
		return &channel.Delivery{ExternalID: id}, nil
	}
	if out.Conversation.AssignedManagerID != nil {
		id, err := c.SendText(ctx, to, text, HumanAgentTag)
		if err != nil {
			return nil, err
		}
		return &channel.Delivery{ExternalID: id}, nil
	}
	return nil, channel.Permanent(models.PlatformWhatsApp,
		"last customer message is older than 24 hours and no template is configured")
}

// MarkRead sends a read receipt for the newest inbound provider message
func (a *Adapter) MarkRead(ctx context.Context, externalMessageID string) error {
	if externalMessageID == "" {
		return nil
	}
	c, err := a.client(ctx)
	if err != nil {
		return err
	}
	return c.MarkAsRead(ctx, externalMessageID)
}

// VerifyWebhook checks the X-Hub-Signature-256 header
func (a *Adapter) VerifyWebhook(ctx context.Context, signature string, body []byte) bool {
	secret, err := a.settings.Get(ctx, KeyAppSecret)
	if err != nil {
		return false
	}
	return channel.VerifyMetaSignature(secret, signature, body)
}

// captionFor returns the operator text, or "" when the content is only the
// placeholder generated for an attachment-only message
func captionFor(out *channel.Outbound) string {
	content := strings.TrimSpace(out.Message.Content)
	if len(out.Attachments) > 0 {
		first := out.Attachments[0]
		if content == channel.AttachmentPlaceholder(channel.MessageTypeFor(first.FileType), first.OriginalName) {
			return ""
		}
	}
	return content
}

func mediaTypeFor(ft models.FileType) string {
	switch ft {
	case models.FileTypeImage:
		return "image"
	case models.FileTypeVideo:
		return "video"
	case models.FileTypeAudio:
		return "audio"
	}
	return "document"
}

// NormalizePhone keeps only the digits of a phone number
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
