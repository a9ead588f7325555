package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "ENV", "MEDIA_BACKEND", "AUTOBOT_OFFICE_ID", "ENABLE_POLLERS", "IMAP_CHECK_INTERVAL", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "local", cfg.MediaBackend)
	assert.Equal(t, uint(1), cfg.AutobotOfficeID)
	assert.True(t, cfg.EnablePollers)
	assert.Equal(t, time.Minute, cfg.IMAPCheckInterval)
	assert.Empty(t, cfg.CORSOrigins)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://crm.example.com, ,http://localhost:5173")
	t.Setenv("ENABLE_POLLERS", "false")
	t.Setenv("IMAP_CHECK_INTERVAL", "15")
	t.Setenv("AUTOBOT_OFFICE_ID", "-3")
	t.Setenv("PUBLIC_BASE_URL", "https://hub.example.com/")

	cfg := Load()
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://crm.example.com", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.False(t, cfg.EnablePollers)
	assert.Equal(t, 15*time.Second, cfg.IMAPCheckInterval)
	assert.Equal(t, uint(1), cfg.AutobotOfficeID)
	assert.Equal(t, "https://hub.example.com", cfg.PublicBaseURL)
}
