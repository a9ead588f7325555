package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"commhub/internal/channel"
	"commhub/pkg/models"
)

// DefaultBaseURL is the Graph API root used for the Cloud API
const DefaultBaseURL = "https://graph.facebook.com/v18.0"

// Client represents a WhatsApp Cloud API client bound to one phone number
type Client struct {
	baseURL     string
	accessToken string
	phoneID     string
	http        *http.Client
	uploadHTTP  *http.Client
}

// NewClient creates a new WhatsApp Cloud API client
func NewClient(baseURL, accessToken, phoneID string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		phoneID:     phoneID,
		http:        &http.Client{Timeout: 30 * time.Second},
		uploadHTTP:  &http.Client{Timeout: 60 * time.Second},
	}
}

// SendMessageRequest represents a message send request
type SendMessageRequest struct {
	MessagingProduct string    `json:"messaging_product"`
	RecipientType    string    `json:"recipient_type"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Tag              string    `json:"tag,omitempty"`
	Text             *TextBody `json:"text,omitempty"`
	Image            *Media    `json:"image,omitempty"`
	Audio            *Media    `json:"audio,omitempty"`
	Video            *Media    `json:"video,omitempty"`
	Document         *Document `json:"document,omitempty"`
	Template         *Template `json:"template,omitempty"`
}

// TextBody represents text message content
type TextBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// Media represents media content
type Media struct {
	ID      string `json:"id,omitempty"`
	Link    string `json:"link,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Document represents document content
type Document struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Template is a pre-approved message template
type Template struct {
	Name       string              `json:"name"`
	Language   TemplateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

// TemplateLanguage selects the template translation
type TemplateLanguage struct {
	Code string `json:"code"`
}

// TemplateComponent fills one template section
type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters"`
}

// TemplateParameter is a single placeholder value
type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendMessageResponse represents the API response
type SendMessageResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText sends a text message; tag is set only outside the service window
func (c *Client) SendText(ctx context.Context, to, body, tag string) (string, error) {
	return c.send(ctx, SendMessageRequest{
		Type: "text",
		To:   to,
		Tag:  tag,
		Text: &TextBody{Body: body},
	})
}

// SendTemplate sends a template with a single body parameter
func (c *Client) SendTemplate(ctx context.Context, to, name, language, param string) (string, error) {
	if language == "" {
		language = "en_US"
	}
	return c.send(ctx, SendMessageRequest{
		Type: "template",
		To:   to,
		Template: &Template{
			Name:     name,
			Language: TemplateLanguage{Code: language},
			Components: []TemplateComponent{{
				Type:       "body",
				Parameters: []TemplateParameter{{Type: "text", Text: param}},
			}},
		},
	})
}

// SendMedia sends previously uploaded media by id
func (c *Client) SendMedia(ctx context.Context, to, mediaType, mediaID, caption, filename string) (string, error) {
	req := SendMessageRequest{Type: mediaType, To: to}
	switch mediaType {
	case "image":
		req.Image = &Media{ID: mediaID, Caption: caption}
	case "video":
		req.Video = &Media{ID: mediaID, Caption: caption}
	case "audio":
		req.Audio = &Media{ID: mediaID}
	default:
		req.Type = "document"
		req.Document = &Document{ID: mediaID, Caption: caption, Filename: filename}
	}
	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, request SendMessageRequest) (string, error) {
	request.MessagingProduct = "whatsapp"
	request.RecipientType = "individual"

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	var response SendMessageResponse
	if err := c.do(c.http, req, &response); err != nil {
		return "", err
	}
	if len(response.Messages) == 0 {
		return "", channel.Permanent(models.PlatformWhatsApp, "no message id in response")
	}
	return response.Messages[0].ID, nil
}

// UploadMedia uploads bytes to /media and returns the media id
func (c *Client) UploadMedia(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", err
	}
	if err := w.WriteField("type", mimeType); err != nil {
		return "", err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	url := fmt.Sprintf("%s/%s/media", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", w.FormDataContentType())

	var response struct {
		ID string `json:"id"`
	}
	if err := c.do(c.uploadHTTP, req, &response); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", channel.Permanent(models.PlatformWhatsApp, "no media id in upload response")
	}
	return response.ID, nil
}

// DownloadMedia resolves a media id and downloads its bytes
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.baseURL, mediaID), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	var info struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := c.do(c.http, req, &info); err != nil {
		return nil, "", err
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	resp, err := c.uploadHTTP.Do(req)
	if err != nil {
		return nil, "", channel.TransportError(models.PlatformWhatsApp, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", channel.TransportError(models.PlatformWhatsApp, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", channel.ResponseError(models.PlatformWhatsApp, resp.StatusCode, data)
	}
	return data, info.MimeType, nil
}

// MarkAsRead sends a read receipt for an inbound message
func (c *Client) MarkAsRead(ctx context.Context, messageID string) error {
	jsonData, err := json.Marshal(map[string]string{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	return c.do(c.http, req, nil)
}

func (c *Client) do(hc *http.Client, req *http.Request, out interface{}) error {
	resp, err := hc.Do(req)
	if err != nil {
		return channel.TransportError(models.PlatformWhatsApp, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return channel.TransportError(models.PlatformWhatsApp, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return channel.ResponseError(models.PlatformWhatsApp, resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
