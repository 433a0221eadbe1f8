// internal/auth/handlers.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/formhive/webhook-service/pkg/api"
	cV "github.com/formhive/webhook-service/pkg/validator"
)

// AgentVerifier confirms a user owns an agent before keys are minted for it.
// Implemented by the agents service; injected to avoid a package cycle.
type AgentVerifier interface {
	VerifyOwnership(ctx context.Context, userID, agentID uuid.UUID) error
}

type Handlers struct {
	service   *Service
	agents    AgentVerifier
	validator *validator.Validate
}

func NewHandlers(service *Service, agents AgentVerifier) *Handlers {
	return &Handlers{
		service:   service,
		agents:    agents,
		validator: cV.GetValidator(),
	}
}

// RegisterHandler creates a new user account
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrEmailAlreadyExists) {
			api.WriteConflictResponse(w, err.Error())
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusCreated, user)
}

// LoginHandler exchanges credentials for a JWT
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	response, err := h.service.LoginUser(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserLocked):
			api.WriteErrorResponse(w, http.StatusLocked, err.Error())
		case errors.Is(err, ErrInvalidCredentials):
			api.WriteUnauthorizedResponse(w, err.Error())
		default:
			api.WriteInternalErrorResponse(w, err.Error())
		}
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, response)
}

// CreateAPIKeyHandler mints an agent-scoped API key. The key is returned
// exactly once.
func (h *Handlers) CreateAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetUserClaims(r.Context())
	if !ok {
		api.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	if err := h.agents.VerifyOwnership(r.Context(), claims.UserID, req.AgentID); err != nil {
		api.WriteForbiddenResponse(w, "agent not found or not owned by user")
		return
	}

	response, err := h.service.GenerateAPIKey(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidScopes) {
			api.WriteBadRequestResponse(w, err.Error())
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusCreated, response)
}

// ListAPIKeysHandler returns an agent's keys without key material
func (h *Handlers) ListAPIKeysHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetUserClaims(r.Context())
	if !ok {
		api.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	if err := h.agents.VerifyOwnership(r.Context(), claims.UserID, agentID); err != nil {
		api.WriteForbiddenResponse(w, "agent not found or not owned by user")
		return
	}

	keys, err := h.service.ListAPIKeys(r.Context(), agentID)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"api_keys": keys,
		"total":    len(keys),
	})
}

// RevokeAPIKeyHandler deletes an API key
func (h *Handlers) RevokeAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetUserClaims(r.Context())
	if !ok {
		api.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	keyID, err := uuid.Parse(chi.URLParam(r, "keyId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid key ID")
		return
	}

	if err := h.agents.VerifyOwnership(r.Context(), claims.UserID, agentID); err != nil {
		api.WriteForbiddenResponse(w, "agent not found or not owned by user")
		return
	}

	if err := h.service.RevokeAPIKey(r.Context(), agentID, keyID); err != nil {
		if errors.Is(err, ErrAPIKeyNotFound) {
			api.WriteNotFoundResponse(w, "API key not found")
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"message": "API key revoked",
	})
}
