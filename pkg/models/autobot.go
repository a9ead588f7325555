package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AutobotSettings holds out-of-hours auto-reply configuration for one office.
// Working hours use the "15:04" layout; a day with either bound unset is non-working.
type AutobotSettings struct {
	ID                 uint    `gorm:"primaryKey" json:"id"`
	OfficeID           uint    `gorm:"uniqueIndex;not null" json:"office_id"`
	Enabled            bool    `gorm:"default:false" json:"enabled"`
	Timezone           string  `gorm:"size:64;default:'Europe/Warsaw'" json:"timezone"`
	MondayStart        *string `gorm:"size:5" json:"monday_start"`
	MondayEnd          *string `gorm:"size:5" json:"monday_end"`
	TuesdayStart       *string `gorm:"size:5" json:"tuesday_start"`
	TuesdayEnd         *string `gorm:"size:5" json:"tuesday_end"`
	WednesdayStart     *string `gorm:"size:5" json:"wednesday_start"`
	WednesdayEnd       *string `gorm:"size:5" json:"wednesday_end"`
	ThursdayStart      *string `gorm:"size:5" json:"thursday_start"`
	ThursdayEnd        *string `gorm:"size:5" json:"thursday_end"`
	FridayStart        *string `gorm:"size:5" json:"friday_start"`
	FridayEnd          *string `gorm:"size:5" json:"friday_end"`
	SaturdayStart      *string `gorm:"size:5" json:"saturday_start"`
	SaturdayEnd        *string `gorm:"size:5" json:"saturday_end"`
	SundayStart        *string `gorm:"size:5" json:"sunday_start"`
	SundayEnd          *string `gorm:"size:5" json:"sunday_end"`
	AutoReplyMessage   string  `gorm:"type:text" json:"auto_reply_message"`
	UseAIReply         bool    `gorm:"default:false" json:"use_ai_reply"`
	ReplyWindowMinutes int     `gorm:"default:120" json:"reply_window_minutes"`
	// Platforms is a comma separated list, e.g. "telegram,whatsapp". Empty means all.
	Platforms string    `gorm:"size:255" json:"platforms"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Window returns the working window for a weekday
func (s *AutobotSettings) Window(day time.Weekday) (start, end *string) {
	switch day {
	case time.Monday:
		return s.MondayStart, s.MondayEnd
	case time.Tuesday:
		return s.TuesdayStart, s.TuesdayEnd
	case time.Wednesday:
		return s.WednesdayStart, s.WednesdayEnd
	case time.Thursday:
		return s.ThursdayStart, s.ThursdayEnd
	case time.Friday:
		return s.FridayStart, s.FridayEnd
	case time.Saturday:
		return s.SaturdayStart, s.SaturdayEnd
	default:
		return s.SundayStart, s.SundayEnd
	}
}

// ReplyWindow returns the cooldown between two auto-replies on one conversation
func (s *AutobotSettings) ReplyWindow() time.Duration {
	if s.ReplyWindowMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(s.ReplyWindowMinutes) * time.Minute
}

// PlatformEnabled reports whether the autobot replies on a platform
func (s *AutobotSettings) PlatformEnabled(p Platform) bool {
	if strings.TrimSpace(s.Platforms) == "" {
		return true
	}
	for _, part := range strings.Split(s.Platforms, ",") {
		if Platform(strings.ToLower(strings.TrimSpace(part))) == p {
			return true
		}
	}
	return false
}

// Holiday is a non-working day. Recurring holidays match on month and day.
type Holiday struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Date        time.Time `gorm:"type:date;not null;index" json:"date"`
	Name        string    `gorm:"size:255;not null" json:"name" validate:"required"`
	IsRecurring bool      `gorm:"default:false" json:"is_recurring"`
	CreatedAt   time.Time `json:"created_at"`
}

// Matches reports whether the holiday falls on the calendar day of t
func (h *Holiday) Matches(t time.Time) bool {
	if h.IsRecurring {
		return h.Date.Month() == t.Month() && h.Date.Day() == t.Day()
	}
	y1, m1, d1 := h.Date.Date()
	y2, m2, d2 := t.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// AutobotAction enumerates audited autobot actions
type AutobotAction string

const (
	AutobotActionAutoReply     AutobotAction = "auto_reply"
	AutobotActionClientCreated AutobotAction = "client_created"
	AutobotActionOrderCreated  AutobotAction = "order_created"
	AutobotActionFileSaved     AutobotAction = "file_saved"
)

// AutobotLog is an append-only audit record of autobot actions
type AutobotLog struct {
	BaseModel
	Action         AutobotAction     `gorm:"size:32;not null;index:idx_autobot_logs_lookup,priority:2" json:"action"`
	ConversationID *uuid.UUID        `gorm:"type:uuid;index:idx_autobot_logs_lookup,priority:1" json:"conversation_id"`
	Success        bool              `gorm:"not null" json:"success"`
	Error          string            `gorm:"type:text" json:"error,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata"`
}
