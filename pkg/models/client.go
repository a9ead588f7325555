package models

// ClientSource records the channel a CRM client was first seen on
type ClientSource string

// SourceForPlatform maps a conversation platform to a client source
func SourceForPlatform(p Platform) ClientSource {
	return ClientSource(p)
}

// Client is the minimal CRM client record the hub links conversations to
type Client struct {
	BaseModel
	Name       string       `gorm:"size:255;not null" json:"name"`
	Phone      string       `gorm:"size:50;index" json:"phone"`
	Email      string       `gorm:"size:255;index" json:"email"`
	Source     ClientSource `gorm:"size:20" json:"source"`
	ExternalID string       `gorm:"size:255;index" json:"external_id"`
}
