// Package meta implements the Facebook Messenger and Instagram adapters over
// the Graph Send API.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"commhub/internal/channel"
	"commhub/pkg/models"
)

// DefaultBaseURL is the Graph API root
const DefaultBaseURL = "https://graph.facebook.com/v18.0"

// KeyBaseURL overrides the Graph API root for both platforms
const KeyBaseURL = "meta.api_base_url"

const messagingWindow = 24 * time.Hour

// Adapter is the Facebook or Instagram channel adapter
type Adapter struct {
	platform      models.Platform
	settings      channel.Settings
	publicBaseURL string
	http          *http.Client
	now           func() time.Time
}

// NewFacebookAdapter creates the Messenger adapter
func NewFacebookAdapter(settings channel.Settings, publicBaseURL string) *Adapter {
	return newAdapter(models.PlatformFacebook, settings, publicBaseURL)
}

// NewInstagramAdapter creates the Instagram adapter
func NewInstagramAdapter(settings channel.Settings, publicBaseURL string) *Adapter {
	return newAdapter(models.PlatformInstagram, settings, publicBaseURL)
}

func newAdapter(p models.Platform, settings channel.Settings, publicBaseURL string) *Adapter {
	return &Adapter{
		platform:      p,
		settings:      settings,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		http:          &http.Client{Timeout: 30 * time.Second},
		now:           time.Now,
	}
}

func (a *Adapter) Platform() models.Platform { return a.platform }

func (a *Adapter) key(name string) string { return string(a.platform) + "." + name }

type credentials struct {
	baseURL     string
	accessToken string
	pageID      string
}

func (a *Adapter) credentials(ctx context.Context) (*credentials, error) {
	token, err := a.settings.Get(ctx, a.key("access_token"))
	if err != nil {
		return nil, err
	}
	pageID, err := a.settings.Get(ctx, a.key("page_id"))
	if err != nil {
		return nil, err
	}
	if token == "" || pageID == "" {
		return nil, channel.Permanent(a.platform, "%s credentials are not configured", a.platform)
	}
	baseURL, err := a.settings.Get(ctx, KeyBaseURL)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &credentials{baseURL: strings.TrimRight(baseURL, "/"), accessToken: token, pageID: pageID}, nil
}

// SendRequest is the Send API body
type SendRequest struct {
	Recipient     Recipient   `json:"recipient"`
	MessagingType string      `json:"messaging_type"`
	Tag           string      `json:"tag,omitempty"`
	Message       SendMessage `json:"message"`
}

// Recipient addresses a page-scoped user id
type Recipient struct {
	ID string `json:"id"`
}

// SendMessage is either text or a single attachment
type SendMessage struct {
	Text       string          `json:"text,omitempty"`
	Attachment *SendAttachment `json:"attachment,omitempty"`
}

// SendAttachment is an attachment-by-URL
type SendAttachment struct {
	Type    string            `json:"type"`
	Payload AttachmentPayload `json:"payload"`
}

// AttachmentPayload points at a publicly reachable file
type AttachmentPayload struct {
	URL        string `json:"url"`
	IsReusable bool   `json:"is_reusable"`
}

// Deliver sends text and attachments to the PSID of the conversation
func (a *Adapter) Deliver(ctx context.Context, out *channel.Outbound) (*channel.Delivery, error) {
	creds, err := a.credentials(ctx)
	if err != nil {
		return nil, err
	}
	psid := strings.TrimSpace(out.Conversation.ExternalID)

	base := SendRequest{Recipient: Recipient{ID: psid}, MessagingType: "RESPONSE"}
	if out.LastInboundAt == nil || a.now().Sub(*out.LastInboundAt) >= messagingWindow {
		if out.Conversation.AssignedManagerID == nil {
			return nil, channel.Permanent(a.platform, "messaging window closed and no manager is assigned")
		}
		base.MessagingType = "MESSAGE_TAG"
		base.Tag = "HUMAN_AGENT"
	}

	var firstID string
	record := func(id string) {
		if firstID == "" {
			firstID = id
		}
	}

	text := strings.TrimSpace(out.Message.Content)
	if len(out.Attachments) > 0 {
		first := out.Attachments[0]
		if text == channel.AttachmentPlaceholder(channel.MessageTypeFor(first.FileType), first.OriginalName) {
			text = ""
		}
	}
	if text != "" {
		req := base
		req.Message = SendMessage{Text: text}
		id, err := a.send(ctx, creds, req)
		if err != nil {
			return nil, err
		}
		record(id)
	}

	for _, att := range out.Attachments {
		if a.publicBaseURL == "" {
			return nil, channel.Permanent(a.platform, "PUBLIC_BASE_URL is required to send attachments")
		}
		req := base
		req.Message = SendMessage{Attachment: &SendAttachment{
			Type: attachmentType(att.FileType),
			Payload: AttachmentPayload{
				URL:        a.publicBaseURL + "/api/v1/communications/media/" + att.FilePath,
				IsReusable: true,
			},
		}}
		id, err := a.send(ctx, creds, req)
		if err != nil {
			return nil, err
		}
		record(id)
	}
	return &channel.Delivery{ExternalID: firstID}, nil
}

func (a *Adapter) send(ctx context.Context, creds *credentials, body SendRequest) (string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/%s/messages?access_token=%s", creds.baseURL, creds.pageID, url.QueryEscape(creds.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", channel.TransportError(a.platform, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", channel.TransportError(a.platform, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", channel.ResponseError(a.platform, resp.StatusCode, respBody)
	}
	var out struct {
		RecipientID string `json:"recipient_id"`
		MessageID   string `json:"message_id"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to decode send response: %w", err)
	}
	return out.MessageID, nil
}

// VerifyWebhook checks the X-Hub-Signature-256 header
func (a *Adapter) VerifyWebhook(ctx context.Context, signature string, body []byte) bool {
	secret, err := a.settings.Get(ctx, a.key("app_secret"))
	if err != nil {
		return false
	}
	return channel.VerifyMetaSignature(secret, signature, body)
}

func attachmentType(ft models.FileType) string {
	switch ft {
	case models.FileTypeImage:
		return "image"
	case models.FileTypeVideo:
		return "video"
	case models.FileTypeAudio:
		return "audio"
	}
	return "file"
}
