package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"commhub/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RAG token settings
const (
	KeyRAGToken     = "rag.token"
	KeyRAGTokenHash = "rag.token_hash"
)

// RoleAI is the role of the RAG service principal
const RoleAI = "ai"

// Issuer is set on tokens minted by this service
const Issuer = "commhub"

// Principal is the caller of an operator command
type Principal struct {
	// UserID is nil for the AI principal
	UserID      *uuid.UUID
	DisplayName string
	Role        string
}

// IsAI reports whether the caller is the RAG service
func (p *Principal) IsAI() bool {
	return p != nil && p.Role == RoleAI
}

// AIPrincipal is the principal of requests authenticated with the RAG token
func AIPrincipal() *Principal {
	return &Principal{DisplayName: "AI Assistant", Role: RoleAI}
}

// TokenClaims represents JWT token claims
type TokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// Principal converts claims into a principal
func (c *TokenClaims) Principal() *Principal {
	id := c.UserID
	name := c.Name
	if name == "" {
		name = c.Email
	}
	return &Principal{UserID: &id, DisplayName: name, Role: c.Role}
}

// SettingsReader reads stored secrets
type SettingsReader interface {
	Get(ctx context.Context, key string) (string, error)
}

// Service validates operator tokens and the RAG service secret
type Service struct {
	secret   []byte
	settings SettingsReader
	now      func() time.Time
}

// NewService creates a new auth service
func NewService(jwtSecret string, settings SettingsReader) *Service {
	return &Service{secret: []byte(jwtSecret), settings: settings, now: time.Now}
}

// GenerateToken signs an access token for an operator
func (s *Service) GenerateToken(userID uuid.UUID, name, email, role string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := TokenClaims{
		UserID: userID,
		Name:   name,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates and parses a JWT token
func (s *Service) ValidateToken(tokenString string) (*TokenClaims, error) {
	if len(s.secret) == 0 {
		return nil, apperr.Unauthorized("token validation is not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, apperr.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, apperr.Unauthorized("invalid token")
	}
	return claims, nil
}

// AuthenticateRAG checks the X-RAG-TOKEN value against the stored plain
// token or its bcrypt hash
func (s *Service) AuthenticateRAG(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apperr.Unauthorized("missing RAG token")
	}
	plain, err := s.settings.Get(ctx, KeyRAGToken)
	if err != nil {
		return nil, apperr.Internal("failed to read RAG token", err)
	}
	if plain != "" && subtle.ConstantTimeCompare([]byte(plain), []byte(token)) == 1 {
		return AIPrincipal(), nil
	}
	hash, err := s.settings.Get(ctx, KeyRAGTokenHash)
	if err != nil {
		return nil, apperr.Internal("failed to read RAG token hash", err)
	}
	if hash != "" && bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil {
		return AIPrincipal(), nil
	}
	return nil, apperr.Forbidden("invalid RAG token")
}

// HashToken hashes a RAG token for the rag.token_hash setting
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type principalKey struct{}

// WithPrincipal stores the caller in ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the caller stored in ctx, or nil
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
