// internal/agents/handlers.go
package agents

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/formhive/webhook-service/internal/auth"
	"github.com/formhive/webhook-service/pkg/api"
	cV "github.com/formhive/webhook-service/pkg/validator"
)

type Handlers struct {
	service   *Service
	validator *validator.Validate
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{
		service:   service,
		validator: cV.GetValidator(),
	}
}

// CreateAgentHandler creates a new agent owned by the authenticated user
func (h *Handlers) CreateAgentHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserClaims(r.Context())
	if !ok {
		api.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	agent, err := h.service.CreateAgent(r.Context(), claims.UserID, req)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusCreated, agent)
}

// GetAgentHandler returns one agent owned by the authenticated user
func (h *Handlers) GetAgentHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserClaims(r.Context())
	if !ok {
		api.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	agent, err := h.service.GetAgent(r.Context(), claims.UserID, agentID)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			api.WriteNotFoundResponse(w, "Agent not found")
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, agent)
}

// ListAgentsHandler returns all agents owned by the authenticated user
func (h *Handlers) ListAgentsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserClaims(r.Context())
	if !ok {
		api.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	agents, err := h.service.ListAgents(r.Context(), claims.UserID)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"agents": agents,
		"total":  len(agents),
	})
}

// UpdateAgentHandler applies a partial update to an agent
func (h *Handlers) UpdateAgentHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserClaims(r.Context())
	if !ok {
		api.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	var req UpdateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	agent, err := h.service.UpdateAgent(r.Context(), claims.UserID, agentID, req)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			api.WriteNotFoundResponse(w, "Agent not found")
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, agent)
}

// DeleteAgentHandler removes an agent and its webhooks and keys
func (h *Handlers) DeleteAgentHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserClaims(r.Context())
	if !ok {
		api.WriteUnauthorizedResponse(w, "authentication required")
		return
	}

	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	if err := h.service.DeleteAgent(r.Context(), claims.UserID, agentID); err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			api.WriteNotFoundResponse(w, "Agent not found")
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Agent deleted",
	})
}
