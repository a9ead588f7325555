// Package operator implements the commands operators and the RAG service
// run against conversations.
package operator

import (
	"context"
	"io"
	"strings"
	"time"

	"commhub/internal/apperr"
	"commhub/internal/auth"
	"commhub/internal/channel"
	"commhub/internal/repo"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store is the conversation store as seen by operator commands
type Store interface {
	ListInbox(ctx context.Context, q models.InboxQuery) (models.PaginationResult[models.InboxItem], error)
	GetConversationWindow(ctx context.Context, id uuid.UUID, limit, offset int) (*models.ConversationWindow, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	AssignManager(ctx context.Context, id, userID uuid.UUID, userName string) (*models.Conversation, bool, error)
	TouchManagerResponse(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkRead(ctx context.Context, id uuid.UUID) (int64, error)
	LatestInbound(ctx context.Context, id uuid.UUID) (*models.Message, error)
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
	DeleteMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	LinkClient(ctx context.Context, id, clientID uuid.UUID) error
}

// MessageSender runs the shared outbound policy
type MessageSender interface {
	Send(ctx context.Context, req channel.SendRequest) (*models.Message, error)
}

// Media stores uploads and removes files of deleted messages
type Media interface {
	PersistUpload(ctx context.Context, r io.Reader, declaredMIME, originalName string) (*models.Attachment, error)
	Delete(ctx context.Context, att *models.Attachment)
}

// Clients is the CRM client directory
type Clients interface {
	Create(ctx context.Context, in repo.ClientInput) (*models.Client, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Client, error)
}

// Notifier announces changes to connected operators
type Notifier interface {
	BroadcastMessageDeleted(ctx context.Context, conversationID, messageID uuid.UUID)
	BroadcastManagerAssigned(ctx context.Context, conv *models.Conversation)
}

// ReadReceipts sends provider read receipts
type ReadReceipts interface {
	MarkRead(ctx context.Context, externalMessageID string) error
}

// Service runs operator commands
type Service struct {
	store    Store
	sender   MessageSender
	media    Media
	clients  Clients
	notifier Notifier
	receipts map[models.Platform]ReadReceipts
	now      func() time.Time
}

// NewService creates a new operator service
func NewService(store Store, sender MessageSender, media Media, clients Clients, notifier Notifier) *Service {
	return &Service{
		store:    store,
		sender:   sender,
		media:    media,
		clients:  clients,
		notifier: notifier,
		receipts: make(map[models.Platform]ReadReceipts),
		now:      time.Now,
	}
}

// WithReadReceipts sends read receipts on mark-read for a platform
func (s *Service) WithReadReceipts(p models.Platform, r ReadReceipts) *Service {
	s.receipts[p] = r
	return s
}

// WithClock overrides the service clock
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Inbox lists conversations
func (s *Service) Inbox(ctx context.Context, q models.InboxQuery) (models.PaginationResult[models.InboxItem], error) {
	switch q.Filter {
	case "":
		q.Filter = models.InboxAll
	case models.InboxAll, models.InboxNew, models.InboxArchived:
	default:
		return models.PaginationResult[models.InboxItem]{}, apperr.Validation("unknown filter %q", q.Filter)
	}
	if q.Platform != "" {
		p, ok := models.ParsePlatform(string(q.Platform))
		if !ok {
			return models.PaginationResult[models.InboxItem]{}, apperr.Validation("unknown platform %q", q.Platform)
		}
		q.Platform = p
	}
	return s.store.ListInbox(ctx, q)
}

// GetConversation returns a conversation with a window of its messages
func (s *Service) GetConversation(ctx context.Context, id uuid.UUID, limit, offset int) (*models.ConversationWindow, error) {
	return s.store.GetConversationWindow(ctx, id, limit, offset)
}

// SendInput is an operator reply
type SendInput struct {
	Content       string                 `json:"content" validate:"max=65536"`
	AttachmentIDs []uuid.UUID            `json:"attachments" validate:"max=10"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// SendMessage sends a reply. A human sender becomes the manager of an
// unassigned conversation. On provider failure the failed message is
// returned with the error.
func (s *Service) SendMessage(ctx context.Context, p *auth.Principal, id uuid.UUID, in SendInput) (*models.Message, error) {
	if p == nil {
		return nil, apperr.Unauthorized("missing principal")
	}
	if strings.TrimSpace(in.Content) == "" && len(in.AttachmentIDs) == 0 {
		return nil, apperr.Validation("content or attachments are required")
	}
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.UserID != nil && conv.AssignedManagerID == nil {
		s.assign(ctx, conv.ID, *p.UserID, p.DisplayName)
	}

	msg, sendErr := s.sender.Send(ctx, channel.SendRequest{
		ConversationID: conv.ID,
		Content:        in.Content,
		AttachmentIDs:  in.AttachmentIDs,
		Metadata:       in.Metadata,
		Author:         authorOf(p),
	})
	if sendErr == nil && msg != nil {
		if err := s.store.TouchManagerResponse(context.WithoutCancel(ctx), conv.ID, s.now()); err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to record manager response")
		}
	}
	return msg, sendErr
}

func authorOf(p *auth.Principal) channel.Author {
	display := p.DisplayName
	if display == "" {
		display = "Manager"
	}
	return channel.Author{ID: p.UserID, Name: p.DisplayName, Display: display, Role: p.Role}
}

func (s *Service) assign(ctx context.Context, id, userID uuid.UUID, name string) *models.Conversation {
	conv, assigned, err := s.store.AssignManager(ctx, id, userID, name)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", id.String()).Msg("Failed to assign manager")
		return nil
	}
	if assigned && s.notifier != nil {
		s.notifier.BroadcastManagerAssigned(ctx, conv)
	}
	return conv
}

// MarkRead marks every inbound message read and, where supported, sends a
// read receipt for the newest one
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) (int64, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return 0, err
	}
	n, err := s.store.MarkRead(ctx, id)
	if err != nil {
		return 0, err
	}
	if r, ok := s.receipts[conv.Platform]; ok {
		latest, err := s.store.LatestInbound(ctx, id)
		if err == nil && latest != nil && latest.ExternalID != "" {
			if err := r.MarkRead(ctx, latest.ExternalID); err != nil {
				log.Warn().Err(err).
					Str("conversation_id", id.String()).
					Str("platform", string(conv.Platform)).
					Msg("Failed to send read receipt")
			}
		}
	}
	return n, nil
}

// Archive hides a conversation from the default inbox
func (s *Service) Archive(ctx context.Context, id uuid.UUID) error {
	return s.store.SetArchived(ctx, id, true)
}

// Unarchive restores an archived conversation
func (s *Service) Unarchive(ctx context.Context, id uuid.UUID) error {
	return s.store.SetArchived(ctx, id, false)
}

// DeleteMessage removes a message and its files
func (s *Service) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	msg, err := s.store.DeleteMessage(ctx, id)
	if err != nil {
		return err
	}
	for i := range msg.Attachments {
		s.media.Delete(ctx, &msg.Attachments[i])
	}
	if s.notifier != nil {
		s.notifier.BroadcastMessageDeleted(ctx, msg.ConversationID, msg.ID)
	}
	log.Info().
		Str("conversation_id", msg.ConversationID.String()).
		Str("message_id", msg.ID.String()).
		Msg("Message deleted")
	return nil
}

// AssignManager assigns the caller to a conversation that has no manager yet
func (s *Service) AssignManager(ctx context.Context, p *auth.Principal, id uuid.UUID) (*models.Conversation, error) {
	if p == nil || p.UserID == nil {
		return nil, apperr.Forbidden("only operators can be assigned")
	}
	conv, assigned, err := s.store.AssignManager(ctx, id, *p.UserID, p.DisplayName)
	if err != nil {
		return nil, err
	}
	if assigned && s.notifier != nil {
		s.notifier.BroadcastManagerAssigned(ctx, conv)
	}
	return conv, nil
}

// ClientOverrides replace the values derived from the conversation
type ClientOverrides struct {
	Name  string `json:"name" validate:"omitempty,max=255"`
	Phone string `json:"phone" validate:"omitempty,max=50"`
	Email string `json:"email" validate:"omitempty,email"`
}

// CreateClient creates a CRM client from a conversation and links it
func (s *Service) CreateClient(ctx context.Context, id uuid.UUID, overrides ClientOverrides) (*models.Client, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.ClientID != nil {
		return nil, apperr.Validation("conversation is already linked to a client")
	}

	in := repo.DefaultClientInput(conv)
	if v := strings.TrimSpace(overrides.Name); v != "" {
		in.Name = v
	}
	if v := strings.TrimSpace(overrides.Phone); v != "" {
		in.Phone = v
	}
	if v := strings.TrimSpace(overrides.Email); v != "" {
		in.Email = v
	}

	client, err := s.clients.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.LinkClient(ctx, conv.ID, client.ID); err != nil {
		return nil, err
	}
	log.Info().
		Str("conversation_id", conv.ID.String()).
		Str("client_id", client.ID.String()).
		Msg("Client created from conversation")
	return client, nil
}

// LinkClient links a conversation to an existing client
func (s *Service) LinkClient(ctx context.Context, id, clientID uuid.UUID) error {
	if _, err := s.clients.GetByID(ctx, clientID); err != nil {
		return err
	}
	return s.store.LinkClient(ctx, id, clientID)
}

// Upload stores an operator file for a later send
func (s *Service) Upload(ctx context.Context, r io.Reader, declaredMIME, originalName string) (*models.Attachment, error) {
	return s.media.PersistUpload(ctx, r, declaredMIME, originalName)
}
