// internal/webhooks/handlers.go
package webhooks

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

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

// CreateWebhookHandler registers a new webhook for an agent
func (h *Handlers) CreateWebhookHandler(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	var req CreateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	wh, err := h.service.CreateWebhook(r.Context(), agentID, req)
	if err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			api.WriteBadRequestResponse(w, err.Error())
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusCreated, wh.ToResponse())
}

// UpdateWebhookHandler applies a partial update to a webhook
func (h *Handlers) UpdateWebhookHandler(w http.ResponseWriter, r *http.Request) {
	agentID, webhookID, ok := parseAgentAndWebhook(w, r)
	if !ok {
		return
	}

	var req UpdateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	wh, err := h.service.UpdateWebhook(r.Context(), agentID, webhookID, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrWebhookNotFound):
			api.WriteNotFoundResponse(w, "Webhook not found")
		case errors.Is(err, ErrInvalidConfig):
			api.WriteBadRequestResponse(w, err.Error())
		default:
			api.WriteInternalErrorResponse(w, err.Error())
		}
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, wh.ToResponse())
}

// GetWebhookHandler returns one webhook with its secret masked
func (h *Handlers) GetWebhookHandler(w http.ResponseWriter, r *http.Request) {
	agentID, webhookID, ok := parseAgentAndWebhook(w, r)
	if !ok {
		return
	}

	wh, err := h.service.GetWebhook(r.Context(), agentID, webhookID)
	if err != nil {
		if errors.Is(err, ErrWebhookNotFound) {
			api.WriteNotFoundResponse(w, "Webhook not found")
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, wh.ToResponse())
}

// ListWebhooksHandler returns all webhooks owned by an agent
func (h *Handlers) ListWebhooksHandler(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	webhooks, err := h.service.ListWebhooks(r.Context(), agentID)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	responses := make([]*WebhookResponse, 0, len(webhooks))
	for _, wh := range webhooks {
		responses = append(responses, wh.ToResponse())
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"webhooks": responses,
		"total":    len(responses),
	})
}

// DeleteWebhookHandler removes a webhook; its delivery history is retained
func (h *Handlers) DeleteWebhookHandler(w http.ResponseWriter, r *http.Request) {
	agentID, webhookID, ok := parseAgentAndWebhook(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteWebhook(r.Context(), agentID, webhookID); err != nil {
		if errors.Is(err, ErrWebhookNotFound) {
			api.WriteNotFoundResponse(w, "Webhook not found")
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Webhook deleted",
	})
}

func parseAgentAndWebhook(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return uuid.Nil, uuid.Nil, false
	}
	webhookID, err := uuid.Parse(chi.URLParam(r, "webhookId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid webhook ID")
		return uuid.Nil, uuid.Nil, false
	}
	return agentID, webhookID, true
}
