package services

import (
	"context"
	"errors"
	"strings"

	"commhub/pkg/models"

	"gorm.io/gorm"
)

// SettingsStore gives typed access to the settings key/value table holding
// platform credentials and feature flags. Values are read on every call so
// rotated credentials take effect without a restart.
type SettingsStore struct {
	db *gorm.DB
}

// NewSettingsStore creates a new settings store
func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the value of a setting, or an empty string when it is unset
func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).Where("setting_key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if setting.SettingValue == nil {
		return "", nil
	}
	return strings.TrimSpace(*setting.SettingValue), nil
}

// GetMany returns the values of several settings; unset keys are omitted
func (s *SettingsStore) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).Where("setting_key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		if r.SettingValue != nil && strings.TrimSpace(*r.SettingValue) != "" {
			out[r.SettingKey] = strings.TrimSpace(*r.SettingValue)
		}
	}
	return out, nil
}

// Set creates or updates a setting
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	setting := models.Setting{SettingKey: key, SettingValue: &value}
	return s.db.WithContext(ctx).
		Where("setting_key = ?", key).
		Assign(models.Setting{SettingValue: &value}).
		FirstOrCreate(&setting).Error
}
