package repo

import (
	"context"
	"errors"
	"time"

	"commhub/internal/apperr"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AutobotRepository handles autobot settings, holidays and the action log
type AutobotRepository struct {
	db *gorm.DB
}

// NewAutobotRepository creates a new autobot repository
func NewAutobotRepository(db *gorm.DB) *AutobotRepository {
	return &AutobotRepository{db: db}
}

// GetSettings returns the settings of an office, or nil when none are stored
func (r *AutobotRepository) GetSettings(ctx context.Context, officeID uint) (*models.AutobotSettings, error) {
	var settings models.AutobotSettings
	err := r.db.WithContext(ctx).Where("office_id = ?", officeID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveSettings creates or replaces the settings of an office
func (r *AutobotRepository) SaveSettings(ctx context.Context, settings *models.AutobotSettings) error {
	existing, err := r.GetSettings(ctx, settings.OfficeID)
	if err != nil {
		return err
	}
	if existing != nil {
		settings.ID = existing.ID
		settings.CreatedAt = existing.CreatedAt
	}
	return r.db.WithContext(ctx).Save(settings).Error
}

// ListHolidays lists all holidays ordered by date
func (r *AutobotRepository) ListHolidays(ctx context.Context) ([]models.Holiday, error) {
	var holidays []models.Holiday
	err := r.db.WithContext(ctx).Order("date ASC").Find(&holidays).Error
	return holidays, err
}

// CreateHoliday creates a holiday
func (r *AutobotRepository) CreateHoliday(ctx context.Context, h *models.Holiday) error {
	return r.db.WithContext(ctx).Create(h).Error
}

// DeleteHoliday deletes a holiday
func (r *AutobotRepository) DeleteHoliday(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Holiday{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("holiday %d not found", id)
	}
	return nil
}

// HasRecentAutoReply reports whether a successful auto-reply was logged for
// the conversation at or after since
func (r *AutobotRepository) HasRecentAutoReply(ctx context.Context, conversationID uuid.UUID, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AutobotLog{}).
		Where("conversation_id = ? AND action = ? AND success = ? AND created_at >= ?",
			conversationID, models.AutobotActionAutoReply, true, since.UTC()).
		Count(&count).Error
	return count > 0, err
}

// CreateLog appends an autobot log row
func (r *AutobotRepository) CreateLog(ctx context.Context, entry *models.AutobotLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListLogs lists the newest log rows, optionally for one conversation
func (r *AutobotRepository) ListLogs(ctx context.Context, conversationID *uuid.UUID, limit int) ([]models.AutobotLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if conversationID != nil {
		q = q.Where("conversation_id = ?", *conversationID)
	}
	var logs []models.AutobotLog
	err := q.Find(&logs).Error
	return logs, err
}
