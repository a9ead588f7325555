package models

import "time"

// Setting is a key/value row holding platform credentials and feature flags
type Setting struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SettingKey   string    `gorm:"size:255;not null;uniqueIndex" json:"key"`
	SettingValue *string   `gorm:"type:text" json:"value"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EmailMailbox is a configured SMTP/IMAP identity (a manager's inbox)
type EmailMailbox struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:255" json:"name"`
	EmailAddress string    `gorm:"size:255;not null;uniqueIndex" json:"email_address"`
	FromName     string    `gorm:"size:255" json:"from_name"`
	SMTPHost     string    `gorm:"size:255" json:"smtp_host"`
	SMTPPort     int       `gorm:"default:587" json:"smtp_port"`
	SMTPUsername string    `gorm:"size:255" json:"smtp_username"`
	SMTPPassword string    `gorm:"size:255" json:"-"`
	SMTPUseSSL   bool      `gorm:"default:false" json:"smtp_use_ssl"`
	IMAPHost     string    `gorm:"size:255" json:"imap_host"`
	IMAPPort     int       `gorm:"default:993" json:"imap_port"`
	IMAPUsername string    `gorm:"size:255" json:"imap_username"`
	IMAPPassword string    `gorm:"size:255" json:"-"`
	IMAPUseSSL   bool      `gorm:"default:true" json:"imap_use_ssl"`
	ManagerID    *string   `gorm:"size:64" json:"manager_id"`
	IsActive     bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
