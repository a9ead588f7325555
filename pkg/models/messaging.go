package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Platform identifies the channel a conversation lives on
type Platform string

const (
	PlatformTelegram  Platform = "telegram"
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformEmail     Platform = "email"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
)

// AllPlatforms lists every supported platform in display order
var AllPlatforms = []Platform{PlatformTelegram, PlatformWhatsApp, PlatformEmail, PlatformFacebook, PlatformInstagram}

// ParsePlatform validates a platform string
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPlatforms {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Direction of a message relative to the hub
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageType is the content type of a message
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeHTML     MessageType = "html"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeDocument MessageType = "document"
	MessageTypeSticker  MessageType = "sticker"
	MessageTypeFile     MessageType = "file"
)

// MessageStatus is the delivery state of a message
type MessageStatus string

const (
	StatusQueued MessageStatus = "queued"
	StatusSent   MessageStatus = "sent"
	StatusRead   MessageStatus = "read"
	StatusFailed MessageStatus = "failed"
)

// statusRank orders statuses so acknowledgements never downgrade a message
var statusRank = map[MessageStatus]int{
	StatusQueued: 0,
	StatusSent:   1,
	StatusRead:   2,
}

// CanTransition reports whether a message in status from may move to status to.
// Failed is reachable only from queued or sent; read and failed are terminal.
func CanTransition(from, to MessageStatus) bool {
	if from == to {
		return false
	}
	if to == StatusFailed {
		return from == StatusQueued || from == StatusSent
	}
	if from == StatusFailed {
		return false
	}
	return statusRank[to] > statusRank[from]
}

// FileType classifies attachments
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeDocument FileType = "document"
	FileTypeFile     FileType = "file"
)

// Conversation is a persistent thread with one counterpart on one platform
// (and one mailbox, for email)
type Conversation struct {
	BaseModel
	Platform              Platform   `gorm:"size:20;not null;index" json:"platform"`
	ExternalID            string     `gorm:"size:255;not null;index" json:"external_id"`
	Subject               *string    `gorm:"size:500" json:"subject"`
	ClientID              *uuid.UUID `gorm:"type:uuid;index" json:"client_id"`
	AssignedManagerID     *uuid.UUID `gorm:"type:uuid;index" json:"assigned_manager_id"`
	AssignedManagerName   string     `gorm:"size:255" json:"assigned_manager_name,omitempty"`
	LastManagerResponseAt *time.Time `json:"last_manager_response_at"`
	LastMessageAt         *time.Time `gorm:"index" json:"last_message_at"`
	IsArchived            bool       `gorm:"default:false;index" json:"is_archived"`
	ManagerMailboxID      *uint      `gorm:"index" json:"manager_mailbox_id"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

// SubjectOrEmpty returns the subject or an empty string
func (c *Conversation) SubjectOrEmpty() string {
	if c.Subject == nil {
		return ""
	}
	return *c.Subject
}

// Message is a single inbound or outbound message in a conversation
type Message struct {
	BaseModel
	ConversationID uuid.UUID         `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Direction      Direction         `gorm:"size:10;not null" json:"direction"`
	Type           MessageType       `gorm:"size:20;not null;default:'text'" json:"type"`
	Content        string            `gorm:"type:text" json:"content"`
	Status         MessageStatus     `gorm:"size:10;not null;default:'queued'" json:"status"`
	ExternalID     string            `gorm:"size:255;index" json:"external_id,omitempty"`
	Error          string            `gorm:"type:text" json:"error,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	SentAt         *time.Time        `json:"sent_at"`

	Attachments []Attachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments"`
}

// IsUnread reports whether an inbound message has not been read by an operator
func (m *Message) IsUnread() bool {
	return m.Direction == DirectionInbound && m.Status != StatusRead
}

// Attachment is a file owned by a message. MessageID is null between upload
// and the send that claims it.
type Attachment struct {
	BaseModel
	MessageID    *uuid.UUID `gorm:"type:uuid;index" json:"message_id"`
	FilePath     string     `gorm:"size:500;not null;uniqueIndex" json:"file_path"`
	FileType     FileType   `gorm:"size:20;not null" json:"file_type"`
	MimeType     string     `gorm:"size:255" json:"mime_type"`
	OriginalName string     `gorm:"size:500" json:"original_name"`
	FileSize     int64      `json:"file_size"`
}

// FileName returns the stored file name without the attachments/ prefix
func (a *Attachment) FileName() string {
	if i := strings.LastIndex(a.FilePath, "/"); i >= 0 {
		return a.FilePath[i+1:]
	}
	return a.FilePath
}

// Normalize replaces nil collections so that an empty attachment list and a
// missing one serialize the same way
func (m *Message) Normalize() {
	if m.Attachments == nil {
		m.Attachments = []Attachment{}
	}
	if m.Metadata == nil {
		m.Metadata = datatypes.JSONMap{}
	}
}
