package repo

import (
	"context"
	"errors"
	"strings"

	"commhub/internal/apperr"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClientLookup holds the contact keys a client can be found by
type ClientLookup struct {
	Platform   models.Platform
	Phone      string
	Email      string
	ExternalID string
}

// ClientInput is the data for creating a client
type ClientInput struct {
	Name       string
	Phone      string
	Email      string
	Source     models.ClientSource
	ExternalID string
}

// ClientRepository is the client directory over the clients table
type ClientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// FindByContact finds a client by phone, then email, then platform external
// id. It returns nil when nothing matches.
func (r *ClientRepository) FindByContact(ctx context.Context, lookup ClientLookup) (*models.Client, error) {
	db := r.db.WithContext(ctx)
	try := func(q *gorm.DB) (*models.Client, error) {
		var client models.Client
		err := q.Order("created_at ASC").First(&client).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &client, nil
	}

	if phone := DigitsOnly(lookup.Phone); phone != "" {
		c, err := try(db.Where("phone = ?", phone))
		if c != nil || err != nil {
			return c, err
		}
	}
	if email := strings.ToLower(strings.TrimSpace(lookup.Email)); email != "" {
		c, err := try(db.Where("LOWER(email) = ?", email))
		if c != nil || err != nil {
			return c, err
		}
	}
	if lookup.ExternalID != "" {
		return try(db.Where("source = ? AND external_id = ?", models.SourceForPlatform(lookup.Platform), lookup.ExternalID))
	}
	return nil, nil
}

// Create creates a client
func (r *ClientRepository) Create(ctx context.Context, in ClientInput) (*models.Client, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.Validation("client name is required")
	}
	client := models.Client{
		Name:       strings.TrimSpace(in.Name),
		Phone:      DigitsOnly(in.Phone),
		Email:      strings.ToLower(strings.TrimSpace(in.Email)),
		Source:     in.Source,
		ExternalID: in.ExternalID,
	}
	if err := r.db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

// GetByID gets a client by ID
func (r *ClientRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("client %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// DefaultClientInput derives a client from a conversation: the subject as
// name, the external id as phone for phone-based platforms or as email for
// email conversations
func DefaultClientInput(conv *models.Conversation) ClientInput {
	in := ClientInput{
		Name:       strings.TrimSpace(conv.SubjectOrEmpty()),
		Source:     models.SourceForPlatform(conv.Platform),
		ExternalID: conv.ExternalID,
	}
	switch conv.Platform {
	case models.PlatformEmail:
		in.Email = strings.ToLower(conv.ExternalID)
	case models.PlatformWhatsApp:
		in.Phone = DigitsOnly(conv.ExternalID)
	case models.PlatformTelegram:
		if strings.HasPrefix(conv.ExternalID, "+") {
			in.Phone = DigitsOnly(conv.ExternalID)
		}
	}
	if in.Name == "" {
		in.Name = conv.ExternalID
	}
	return in
}

// DigitsOnly strips everything but digits from a phone number
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
