package models

import "github.com/google/uuid"

// PaginationResult represents paginated results
type PaginationResult[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationResult builds a page from a limit/offset query
func NewPaginationResult[T any](data []T, total int64, limit, offset int) PaginationResult[T] {
	if data == nil {
		data = []T{}
	}
	page, pages := 1, 0
	if limit > 0 {
		page = offset/limit + 1
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return PaginationResult[T]{Data: data, Total: total, Page: page, PerPage: limit, TotalPages: pages}
}

// InboxFilter selects which conversations the inbox lists
type InboxFilter string

const (
	InboxAll      InboxFilter = "all"
	InboxNew      InboxFilter = "new"
	InboxArchived InboxFilter = "archived"
)

// InboxQuery are the list_inbox parameters
type InboxQuery struct {
	Filter   InboxFilter
	Platform Platform
	Search   string
	Limit    int
	Offset   int
}

// InboxItem is one conversation summary in the inbox
type InboxItem struct {
	Conversation
	UnreadCount    int64    `json:"unread_count"`
	NeedsAttention bool     `json:"needs_attention"`
	LastMessage    *Message `json:"last_message"`
	ClientName     string   `json:"client_name,omitempty"`
	PlatformName   string   `json:"platform_name"`
	PlatformIcon   string   `json:"platform_icon"`
}

// ConversationWindow is a reverse-chronological page of one conversation
type ConversationWindow struct {
	Conversation    Conversation `json:"conversation"`
	Messages        []Message    `json:"messages"`
	Total           int64        `json:"total"`
	HasMoreMessages bool         `json:"has_more_messages"`
	ClientName      string       `json:"client_name,omitempty"`
}

// StatusUpdate is a provider acknowledgement for an outbound message
type StatusUpdate struct {
	MessageID  uuid.UUID
	ExternalID string
	Status     MessageStatus
	Error      string
}

// GetAllModels returns all models for migration
func GetAllModels() []interface{} {
	return []interface{}{
		&Conversation{},
		&Message{},
		&Attachment{},
		&AutobotSettings{},
		&Holiday{},
		&AutobotLog{},
		&Setting{},
		&EmailMailbox{},
		&Client{},
	}
}
