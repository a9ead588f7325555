package repo

import (
	"context"
	"errors"

	"commhub/internal/apperr"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateAttachment stores an attachment row
func (s *ConversationStore) CreateAttachment(ctx context.Context, att *models.Attachment) error {
	return s.db.WithContext(ctx).Create(att).Error
}

// GetAttachment gets an attachment by ID
func (s *ConversationStore) GetAttachment(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	var att models.Attachment
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&att).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("attachment %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// GetAttachmentByPath gets an attachment by its media-relative path
func (s *ConversationStore) GetAttachmentByPath(ctx context.Context, path string) (*models.Attachment, error) {
	var att models.Attachment
	err := s.db.WithContext(ctx).Where("file_path = ?", path).First(&att).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("attachment %s not found", path)
	}
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// ListAttachments loads attachments by ID, preserving the requested order
func (s *ConversationStore) ListAttachments(ctx context.Context, ids []uuid.UUID) ([]models.Attachment, error) {
	if len(ids) == 0 {
		return []models.Attachment{}, nil
	}
	var atts []models.Attachment
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&atts).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Attachment, len(atts))
	for _, a := range atts {
		byID[a.ID] = a
	}
	out := make([]models.Attachment, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound("attachment %s not found", id)
		}
		out = append(out, a)
	}
	return out, nil
}

// ClaimAttachments attaches unowned attachments to a message
func (s *ConversationStore) ClaimAttachments(ctx context.Context, messageID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Attachment{}).
		Where("id IN ? AND message_id IS NULL", ids).
		Update("message_id", messageID).Error
}

// DeleteAttachment deletes an attachment row
func (s *ConversationStore) DeleteAttachment(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Attachment{}).Error
}
