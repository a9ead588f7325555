package middleware

import (
	"net/http"
	"strings"

	"commhub/internal/auth"

	"github.com/labstack/echo/v4"
)

// RAGTokenHeader authenticates the RAG service
const RAGTokenHeader = "X-RAG-TOKEN"

// PrincipalKey is the echo context key of the authenticated caller
const PrincipalKey = "principal"

// Authenticate accepts either a JWT bearer token or the RAG service token
func Authenticate(authService *auth.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var principal *auth.Principal

			if ragToken := c.Request().Header.Get(RAGTokenHeader); ragToken != "" {
				p, err := authService.AuthenticateRAG(c.Request().Context(), ragToken)
				if err != nil {
					return err
				}
				principal = p
			} else {
				authHeader := c.Request().Header.Get("Authorization")
				if authHeader == "" {
					return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
				}
				if !strings.HasPrefix(authHeader, "Bearer ") {
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
				}
				tokenString := strings.TrimSpace(authHeader[7:])
				if tokenString == "" {
					return echo.NewHTTPError(http.StatusUnauthorized, "Missing token")
				}
				claims, err := authService.ValidateToken(tokenString)
				if err != nil {
					return err
				}
				principal = claims.Principal()
				c.Set("user_email", claims.Email)
			}

			c.Set(PrincipalKey, principal)
			c.Set("user_role", principal.Role)
			if principal.UserID != nil {
				c.Set("user_id", *principal.UserID)
			}
			c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), principal)))
			return next(c)
		}
	}
}

// GetPrincipal returns the authenticated caller
func GetPrincipal(c echo.Context) *auth.Principal {
	p, _ := c.Get(PrincipalKey).(*auth.Principal)
	return p
}

// RequireOperator rejects the RAG service principal
func RequireOperator() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := GetPrincipal(c)
			if p == nil || p.UserID == nil {
				return echo.NewHTTPError(http.StatusForbidden, "Operator access required")
			}
			return next(c)
		}
	}
}
