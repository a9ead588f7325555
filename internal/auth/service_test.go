package auth

import (
	"context"
	"testing"
	"time"

	"commhub/internal/apperr"
	"commhub/internal/testutil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_TokenRoundTrip(t *testing.T) {
	svc := NewService("secret", testutil.Settings{})
	id := uuid.Must(uuid.NewV7())

	token, err := svc.GenerateToken(id, "Anna", "anna@office.pl", "manager", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	p := claims.Principal()
	require.NotNil(t, p.UserID)
	assert.Equal(t, id, *p.UserID)
	assert.Equal(t, "Anna", p.DisplayName)
	assert.False(t, p.IsAI())
}

func TestService_RejectsBadTokens(t *testing.T) {
	svc := NewService("secret", testutil.Settings{})
	id := uuid.Must(uuid.NewV7())

	expired, err := svc.GenerateToken(id, "Anna", "", "manager", -time.Minute)
	require.NoError(t, err)
	other, err := NewService("other", testutil.Settings{}).GenerateToken(id, "Anna", "", "manager", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, TokenClaims{UserID: id}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{"expired": expired, "wrong key": other, "unsigned": none, "garbage": "abc"} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.True(t, apperr.Is(err, apperr.KindAuth))
		})
	}
}

func TestService_AuthenticateRAG(t *testing.T) {
	ctx := context.Background()
	hash, err := HashToken("hashed-secret")
	require.NoError(t, err)
	svc := NewService("secret", testutil.Settings{KeyRAGToken: "plain-secret", KeyRAGTokenHash: hash})

	p, err := svc.AuthenticateRAG(ctx, "plain-secret")
	require.NoError(t, err)
	assert.True(t, p.IsAI())
	assert.Nil(t, p.UserID)
	assert.Equal(t, "AI Assistant", p.DisplayName)

	_, err = svc.AuthenticateRAG(ctx, "hashed-secret")
	assert.NoError(t, err)

	_, err = svc.AuthenticateRAG(ctx, "wrong")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = svc.AuthenticateRAG(ctx, "")
	assert.True(t, apperr.Is(err, apperr.KindAuth))
}

func TestPrincipalContext(t *testing.T) {
	ctx := WithPrincipal(context.Background(), AIPrincipal())
	assert.True(t, FromContext(ctx).IsAI())
	assert.Nil(t, FromContext(context.Background()))
}
