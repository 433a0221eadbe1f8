// internal/auth/middleware.go
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/formhive/webhook-service/pkg/api"
)

type Middleware struct {
	authService *Service
}

func NewMiddleware(authService *Service) *Middleware {
	return &Middleware{
		authService: authService,
	}
}

// UserAuthMiddleware validates JWT tokens for user authentication
func (m *Middleware) UserAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.extractBearerToken(r)
		if token == "" {
			api.WriteUnauthorizedResponse(w, "missing authorization token")
			return
		}

		claims, err := m.authService.ValidateUserToken(token)
		if err != nil {
			api.WriteUnauthorizedResponse(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// APIKeyAuthMiddleware validates API keys for agent-scoped operations
func (m *Middleware) APIKeyAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := m.extractBearerToken(r)
		if apiKey == "" {
			api.WriteUnauthorizedResponse(w, "missing API key")
			return
		}

		claims, err := m.authService.ValidateAPIKey(r.Context(), apiKey)
		if err != nil {
			api.WriteUnauthorizedResponse(w, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), APIKeyContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScopes middleware to check if API key has required scopes
func (m *Middleware) RequireScopes(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetAPIKeyClaims(r.Context())
			if !ok {
				api.WriteForbiddenResponse(w, "API key required")
				return
			}

			if !m.hasRequiredScopes(claims.Scopes, requiredScopes) {
				api.WriteForbiddenResponse(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAgentMatch ensures the {agentId} URL parameter matches the agent the
// API key was issued for. A key can never read or act across agents.
func (m *Middleware) RequireAgentMatch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetAPIKeyClaims(r.Context())
		if !ok {
			api.WriteForbiddenResponse(w, "API key required")
			return
		}

		agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
		if err != nil {
			api.WriteBadRequestResponse(w, "Invalid agent ID")
			return
		}

		if claims.AgentID != agentID {
			api.WriteForbiddenResponse(w, "API key does not belong to this agent")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Helper methods

func (m *Middleware) extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}

func (m *Middleware) hasRequiredScopes(keyScopes, requiredScopes []string) bool {
	scopeMap := make(map[string]bool)
	for _, scope := range keyScopes {
		scopeMap[scope] = true
	}

	for _, requiredScope := range requiredScopes {
		if !scopeMap[requiredScope] {
			return false
		}
	}

	return true
}

// Helper functions to extract claims from context

func GetUserClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}

func GetAPIKeyClaims(ctx context.Context) (*APIKeyClaims, bool) {
	claims, ok := ctx.Value(APIKeyContextKey).(*APIKeyClaims)
	return claims, ok
}
