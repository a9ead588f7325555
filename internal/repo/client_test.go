package repo

import (
	"context"
	"testing"

	"commhub/internal/apperr"
	"commhub/internal/testutil"
	"commhub/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRepository_FindByContact(t *testing.T) {
	r := NewClientRepository(testutil.NewDB(t))
	ctx := context.Background()

	byPhone, err := r.Create(ctx, ClientInput{Name: "Jan Nowak", Phone: "+48 600-100-200", Source: "whatsapp"})
	require.NoError(t, err)
	assert.Equal(t, "48600100200", byPhone.Phone)

	byEmail, err := r.Create(ctx, ClientInput{Name: "Biuro", Email: " Biuro@Example.COM ", Source: "email"})
	require.NoError(t, err)
	assert.Equal(t, "biuro@example.com", byEmail.Email)

	byExternal, err := r.Create(ctx, ClientInput{Name: "Anna", Source: models.SourceForPlatform(models.PlatformTelegram), ExternalID: "123456"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		lookup ClientLookup
		want   *models.Client
	}{
		{"phone digits", ClientLookup{Phone: "48600100200"}, byPhone},
		{"email case", ClientLookup{Email: "BIURO@example.com"}, byEmail},
		{"external id", ClientLookup{Platform: models.PlatformTelegram, ExternalID: "123456"}, byExternal},
		{"external id on other platform", ClientLookup{Platform: models.PlatformFacebook, ExternalID: "123456"}, nil},
		{"nothing", ClientLookup{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.FindByContact(ctx, tt.lookup)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want.ID, got.ID)
		})
	}
}

func TestClientRepository_Create(t *testing.T) {
	r := NewClientRepository(testutil.NewDB(t))
	ctx := context.Background()

	_, err := r.Create(ctx, ClientInput{Name: "  "})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = r.GetByID(ctx, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDefaultClientInput(t *testing.T) {
	subject := "Maria Kowalczyk"
	tests := []struct {
		name string
		conv models.Conversation
		want ClientInput
	}{
		{
			name: "whatsapp phone",
			conv: models.Conversation{Platform: models.PlatformWhatsApp, ExternalID: "48600100200", Subject: &subject},
			want: ClientInput{Name: subject, Phone: "48600100200", Source: "whatsapp", ExternalID: "48600100200"},
		},
		{
			name: "email address",
			conv: models.Conversation{Platform: models.PlatformEmail, ExternalID: "Maria@Example.com"},
			want: ClientInput{Name: "Maria@Example.com", Email: "maria@example.com", Source: "email", ExternalID: "Maria@Example.com"},
		},
		{
			name: "telegram phone id",
			conv: models.Conversation{Platform: models.PlatformTelegram, ExternalID: "+48 511 222 333"},
			want: ClientInput{Name: "+48 511 222 333", Phone: "48511222333", Source: "telegram", ExternalID: "+48 511 222 333"},
		},
		{
			name: "telegram chat id",
			conv: models.Conversation{Platform: models.PlatformTelegram, ExternalID: "987654", Subject: &subject},
			want: ClientInput{Name: subject, Source: "telegram", ExternalID: "987654"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultClientInput(&tt.conv))
		})
	}
}
