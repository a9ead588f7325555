package repo

import (
	"context"
	"errors"
	"strings"

	"commhub/internal/apperr"
	"commhub/pkg/models"

	"gorm.io/gorm"
)

// MailboxRepository handles email mailbox data access
type MailboxRepository struct {
	db *gorm.DB
}

// NewMailboxRepository creates a new mailbox repository
func NewMailboxRepository(db *gorm.DB) *MailboxRepository {
	return &MailboxRepository{db: db}
}

// ListActive lists active mailboxes ordered by ID
func (r *MailboxRepository) ListActive(ctx context.Context) ([]models.EmailMailbox, error) {
	var mailboxes []models.EmailMailbox
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&mailboxes).Error
	return mailboxes, err
}

// GetByID gets a mailbox by ID
func (r *MailboxRepository) GetByID(ctx context.Context, id uint) (*models.EmailMailbox, error) {
	var mailbox models.EmailMailbox
	err := r.db.WithContext(ctx).First(&mailbox, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("mailbox %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &mailbox, nil
}

// FindActiveByAddress finds an active mailbox by email address, case-insensitively
func (r *MailboxRepository) FindActiveByAddress(ctx context.Context, address string) (*models.EmailMailbox, error) {
	var mailbox models.EmailMailbox
	err := r.db.WithContext(ctx).
		Where("LOWER(email_address) = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(address)), true).
		First(&mailbox).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mailbox, nil
}

// Create creates a mailbox
func (r *MailboxRepository) Create(ctx context.Context, mailbox *models.EmailMailbox) error {
	return r.db.WithContext(ctx).Create(mailbox).Error
}
