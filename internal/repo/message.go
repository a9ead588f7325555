package repo

import (
	"context"
	"errors"
	"time"

	"commhub/internal/apperr"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AppendMessageInput describes a message to append to a conversation
type AppendMessageInput struct {
	ConversationID uuid.UUID
	Direction      models.Direction
	Type           models.MessageType
	Content        string
	Status         models.MessageStatus
	// AttachmentIDs are previously persisted attachments the message claims
	AttachmentIDs []uuid.UUID
	Metadata      map[string]interface{}
	ExternalID    string
	SentAt        *time.Time
}

// AppendMessage appends a message and bumps the conversation. A repeated
// external_id within the conversation returns the stored message and false.
func (s *ConversationStore) AppendMessage(ctx context.Context, in AppendMessageInput) (*models.Message, bool, error) {
	if in.Direction != models.DirectionInbound && in.Direction != models.DirectionOutbound {
		return nil, false, apperr.Validation("invalid direction %q", in.Direction)
	}
	if in.Type == "" {
		in.Type = models.MessageTypeText
	}
	if in.Status == "" {
		in.Status = models.StatusQueued
	}

	var msg models.Message
	var existing *models.Message

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Where("id = ?", in.ConversationID).First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("conversation %s not found", in.ConversationID)
			}
			return err
		}

		if in.ExternalID != "" {
			found, err := findByExternalID(tx, in.ConversationID, in.ExternalID)
			if err != nil {
				return err
			}
			if found != nil {
				existing = found
				return nil
			}
		}

		now := s.now()
		msg = models.Message{
			ConversationID: in.ConversationID,
			Direction:      in.Direction,
			Type:           in.Type,
			Content:        in.Content,
			Status:         in.Status,
			ExternalID:     in.ExternalID,
			Metadata:       datatypes.JSONMap(in.Metadata),
			SentAt:         in.SentAt,
		}
		msg.CreatedAt = now
		msg.UpdatedAt = now
		if msg.Metadata == nil {
			msg.Metadata = datatypes.JSONMap{}
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		if len(in.AttachmentIDs) > 0 {
			err := tx.Model(&models.Attachment{}).
				Where("id IN ? AND message_id IS NULL", in.AttachmentIDs).
				Update("message_id", msg.ID).Error
			if err != nil {
				return err
			}
		}

		lastMessageAt := now
		if conv.LastMessageAt != nil && conv.LastMessageAt.After(now) {
			lastMessageAt = *conv.LastMessageAt
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]interface{}{
				"last_message_at": lastMessageAt,
				"is_archived":     false,
			}).Error
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) && in.ExternalID != "" {
		// Lost a race with a concurrent receive of the same provider message
		found, ferr := findByExternalID(s.db.WithContext(ctx), in.ConversationID, in.ExternalID)
		if ferr != nil {
			return nil, false, ferr
		}
		if found != nil {
			existing = found
			err = nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	stored, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// FindByExternalID returns the message a provider id already maps to within
// the conversation, or nil
func (s *ConversationStore) FindByExternalID(ctx context.Context, conversationID uuid.UUID, externalID string) (*models.Message, error) {
	if externalID == "" {
		return nil, nil
	}
	return findByExternalID(s.db.WithContext(ctx), conversationID, externalID)
}

func findByExternalID(tx *gorm.DB, conversationID uuid.UUID, externalID string) (*models.Message, error) {
	var msg models.Message
	err := tx.Where("conversation_id = ? AND external_id = ?", conversationID, externalID).
		Preload("Attachments").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg.Normalize()
	return &msg, nil
}

// GetMessage gets a message with its attachments
func (s *ConversationStore) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Preload("Attachments", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("message %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	msg.Normalize()
	return &msg, nil
}

// UpdateOutboundStatus moves an outbound message to a new status, recording
// the provider id and send time on success and the error on failure.
// Transitions that would downgrade the status are ignored.
func (s *ConversationStore) UpdateOutboundStatus(ctx context.Context, id uuid.UUID, status models.MessageStatus, externalID, errMsg string) (*models.Message, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.Where("id = ?", id).First(&msg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("message %s not found", id)
			}
			return err
		}
		if !models.CanTransition(msg.Status, status) {
			return nil
		}
		updates := map[string]interface{}{"status": status}
		if externalID != "" {
			updates["external_id"] = externalID
		}
		if status == models.StatusSent && msg.SentAt == nil {
			updates["sent_at"] = s.now()
		}
		if errMsg != "" {
			updates["error"] = errMsg
		}
		return tx.Model(&models.Message{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetMessage(ctx, id)
}

// ApplyStatusAck applies a provider delivery acknowledgement to the outbound
// message with the given provider id. It returns nil when no message matches
// or when the ack would downgrade the status.
func (s *ConversationStore) ApplyStatusAck(ctx context.Context, externalID string, status models.MessageStatus, errMsg string) (*models.Message, error) {
	if externalID == "" {
		return nil, nil
	}
	var msg models.Message
	err := s.db.WithContext(ctx).
		Where("direction = ? AND external_id = ?", models.DirectionOutbound, externalID).
		Order("created_at DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(msg.Status, status) {
		return nil, nil
	}
	return s.UpdateOutboundStatus(ctx, msg.ID, status, "", errMsg)
}

// DeleteMessage removes a message and its attachment rows. The deleted
// message is returned with its attachments so callers can remove files.
func (s *ConversationStore) DeleteMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Message{}).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// SetContent replaces the content of a message
func (s *ConversationStore) SetContent(ctx context.Context, id uuid.UUID, content string) error {
	return s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Update("content", content).Error
}
