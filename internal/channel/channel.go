// Package channel defines the adapter contract shared by every messaging
// platform, the normalized inbound envelope, and the outbound send policy.
package channel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"commhub/pkg/models"

	"github.com/google/uuid"
)

// Settings reads platform credentials
type Settings interface {
	Get(ctx context.Context, key string) (string, error)
}

// Adapter delivers outbound messages to one platform. Implementations must be
// safe for concurrent use by operator requests and pollers.
type Adapter interface {
	Platform() models.Platform
	Deliver(ctx context.Context, out *Outbound) (*Delivery, error)
}

// WebhookReceiver is implemented by adapters fed through provider webhooks
type WebhookReceiver interface {
	VerifyWebhook(ctx context.Context, signature string, body []byte) bool
	Receive(ctx context.Context, body []byte) (*Batch, error)
}

// Outbound is a queued message handed to an adapter
type Outbound struct {
	Conversation  *models.Conversation
	Message       *models.Message
	Attachments   []models.Attachment
	LastInboundAt *time.Time
}

// Delivery is the provider's acceptance of an outbound message
type Delivery struct {
	ExternalID string
}

// SenderInfo describes the counterpart of an inbound message
type SenderInfo struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// InboundAttachment is a file carried by an inbound message. Either Data is
// set or Fetch downloads it.
type InboundAttachment struct {
	Data     []byte
	MimeType string
	Name     string
	Fetch    func(ctx context.Context) ([]byte, string, error)
}

// Load returns the attachment bytes and MIME type, downloading when needed
func (a *InboundAttachment) Load(ctx context.Context) ([]byte, string, error) {
	if a.Data != nil || a.Fetch == nil {
		return a.Data, a.MimeType, nil
	}
	data, mimeType, err := a.Fetch(ctx)
	if err != nil {
		return nil, "", err
	}
	if mimeType == "" {
		mimeType = a.MimeType
	}
	return data, mimeType, nil
}

// InboundEvent is the normalized envelope every adapter produces
type InboundEvent struct {
	Platform   models.Platform
	ExternalID string
	Subject    string
	// SubjectIsFallback marks synthetic subjects that must not replace real ones
	SubjectIsFallback bool
	MailboxID         *uint
	Sender            SenderInfo
	Content           string
	MessageType       models.MessageType
	Attachments       []InboundAttachment
	// DeferredMedia downloads media after the message has been stored and
	// broadcast; used for slow providers
	DeferredMedia     func(ctx context.Context) ([]InboundAttachment, error)
	ExternalMessageID string
	Metadata          map[string]interface{}
	IsFromMe          bool
	SentAt            *time.Time
}

// StatusEvent is a provider delivery acknowledgement
type StatusEvent struct {
	Platform          models.Platform
	ExternalMessageID string
	Status            models.MessageStatus
	Error             string
}

// Batch is everything decoded from one webhook payload
type Batch struct {
	Messages []InboundEvent
	Statuses []StatusEvent
}

// Author identifies who sent an outbound message
type Author struct {
	ID      *uuid.UUID
	Name    string
	Display string
	Role    string
}

// AutobotAuthor is the author of autobot replies
var AutobotAuthor = Author{Name: "Autobot", Display: "Autobot", Role: "system"}

// Registry maps platforms to adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Platform]Adapter
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter of a platform
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

// Get returns the adapter of a platform
func (r *Registry) Get(p models.Platform) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	return a, ok
}

// MessageTypeFor maps an attachment file type to a message type
func MessageTypeFor(ft models.FileType) models.MessageType {
	switch ft {
	case models.FileTypeImage:
		return models.MessageTypeImage
	case models.FileTypeVideo:
		return models.MessageTypeVideo
	case models.FileTypeAudio:
		return models.MessageTypeAudio
	case models.FileTypeDocument:
		return models.MessageTypeDocument
	}
	return models.MessageTypeFile
}

// MediaPlaceholder is the content of a message whose media is still being
// downloaded
const MediaPlaceholder = "[Media message]"

// AttachmentPlaceholder is the content of a message that only carries a file
func AttachmentPlaceholder(t models.MessageType, filename string) string {
	label := string(t)
	if label == "" {
		label = "file"
	}
	label = strings.ToUpper(label[:1]) + label[1:]
	if filename == "" {
		return fmt.Sprintf("[%s]", label)
	}
	return fmt.Sprintf("[%s: %s]", label, filename)
}
