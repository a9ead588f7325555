package channel

import (
	"context"
	"strings"

	"commhub/internal/apperr"
	"commhub/internal/metrics"
	"commhub/internal/repo"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MessageStore is the slice of the conversation store the sender needs
type MessageStore interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	AppendMessage(ctx context.Context, in repo.AppendMessageInput) (*models.Message, bool, error)
	UpdateOutboundStatus(ctx context.Context, id uuid.UUID, status models.MessageStatus, externalID, errMsg string) (*models.Message, error)
	ListAttachments(ctx context.Context, ids []uuid.UUID) ([]models.Attachment, error)
	LatestInbound(ctx context.Context, id uuid.UUID) (*models.Message, error)
}

// Broadcaster pushes message updates to connected operators
type Broadcaster interface {
	BroadcastNewMessage(ctx context.Context, conv *models.Conversation, msg *models.Message)
}

// SendRequest is an outbound message to a conversation
type SendRequest struct {
	ConversationID uuid.UUID
	Content        string
	AttachmentIDs  []uuid.UUID
	Metadata       map[string]interface{}
	Author         Author
}

// Sender applies the outbound policy shared by every platform: the message
// is stored as queued before the provider call, then flipped to sent or failed
type Sender struct {
	store    MessageStore
	registry *Registry
	hub      Broadcaster
}

// NewSender creates a new sender
func NewSender(store MessageStore, registry *Registry, hub Broadcaster) *Sender {
	return &Sender{store: store, registry: registry, hub: hub}
}

// Send stores and delivers an outbound message. On provider failure the
// failed message is returned together with the error.
func (s *Sender) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.AttachmentIDs) == 0 {
		return nil, apperr.Validation("content or attachments are required")
	}

	conv, err := s.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	adapter, ok := s.registry.Get(conv.Platform)
	if !ok {
		return nil, apperr.Validation("platform %s is not configured", conv.Platform)
	}
	attachments, err := s.store.ListAttachments(ctx, req.AttachmentIDs)
	if err != nil {
		return nil, err
	}

	msgType := models.MessageTypeText
	if len(attachments) > 0 {
		msgType = MessageTypeFor(attachments[0].FileType)
		if content == "" {
			content = AttachmentPlaceholder(msgType, attachments[0].OriginalName)
		}
	}

	msg, _, err := s.store.AppendMessage(ctx, repo.AppendMessageInput{
		ConversationID: conv.ID,
		Direction:      models.DirectionOutbound,
		Type:           msgType,
		Content:        content,
		Status:         models.StatusQueued,
		AttachmentIDs:  req.AttachmentIDs,
		Metadata:       AuthorMetadata(req.Metadata, req.Author),
	})
	if err != nil {
		return nil, err
	}

	out := &Outbound{Conversation: conv, Message: msg, Attachments: attachments}
	if last, err := s.store.LatestInbound(ctx, conv.ID); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to load latest inbound message")
	} else if last != nil {
		out.LastInboundAt = &last.CreatedAt
	}

	delivery, sendErr := adapter.Deliver(ctx, out)

	// The provider already acted; record the outcome even if the caller went away
	persistCtx := context.WithoutCancel(ctx)
	status, externalID, errMsg := models.StatusSent, "", ""
	if sendErr != nil {
		status, errMsg = models.StatusFailed, sendErr.Error()
		log.Error().Err(sendErr).
			Str("conversation_id", conv.ID.String()).
			Str("message_id", msg.ID.String()).
			Str("platform", string(conv.Platform)).
			Msg("Failed to deliver outbound message")
	} else if delivery != nil {
		externalID = delivery.ExternalID
	}

	updated, err := s.store.UpdateOutboundStatus(persistCtx, msg.ID, status, externalID, errMsg)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("Failed to update outbound status")
		updated = msg
		updated.Status = status
	}
	metrics.OutboundMessages.WithLabelValues(string(conv.Platform), string(status)).Inc()

	if s.hub != nil {
		s.hub.BroadcastNewMessage(persistCtx, conv, updated)
	}
	if sendErr != nil {
		return updated, sendErr
	}
	return updated, nil
}

// AuthorMetadata enriches outbound metadata with the author fields every
// outbound message carries
func AuthorMetadata(meta map[string]interface{}, author Author) map[string]interface{} {
	out := make(map[string]interface{}, len(meta)+5)
	for k, v := range meta {
		out[k] = v
	}
	out["sent_from_crm"] = true
	if author.ID != nil {
		out["author_id"] = author.ID.String()
	} else {
		out["author_id"] = nil
	}
	out["author_name"] = author.Name
	display := author.Display
	if display == "" {
		display = author.Name
	}
	out["author_display"] = display
	out["author_role"] = author.Role
	return out
}
