// internal/deliveries/handlers.go
package deliveries

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/formhive/webhook-service/internal/webhooks"
	"github.com/formhive/webhook-service/pkg/api"
)

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// ListDeliveriesHandler returns the delivery log for an agent, filterable by
// webhook_id, session_id, and status.
func (h *Handlers) ListDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	var filter ListFilter

	if v := r.URL.Query().Get("webhook_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			api.WriteBadRequestResponse(w, "Invalid webhook_id filter")
			return
		}
		filter.WebhookID = &id
	}
	if v := r.URL.Query().Get("session_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			api.WriteBadRequestResponse(w, "Invalid session_id filter")
			return
		}
		filter.SessionID = &id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		switch v {
		case StatusPending, StatusAttempting, StatusSuccess, StatusRetrying, StatusFailed:
			filter.Status = v
		default:
			api.WriteBadRequestResponse(w, "Invalid status filter")
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 100 {
			filter.Limit = l
		}
	}

	deliveries, err := h.service.ListDeliveries(r.Context(), agentID, filter)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"deliveries": deliveries,
		"total":      len(deliveries),
	})
}

// GetDeliveryHandler returns one delivery with its attempt history.
func (h *Handlers) GetDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	deliveryID, err := uuid.Parse(chi.URLParam(r, "deliveryId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid delivery ID")
		return
	}

	detail, err := h.service.GetDelivery(r.Context(), agentID, deliveryID)
	if err != nil {
		if errors.Is(err, ErrDeliveryNotFound) {
			api.WriteNotFoundResponse(w, "Delivery not found")
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, detail)
}

// ResendDeliveryHandler creates a fresh delivery for the same event and
// webhook. The original delivery's audit trail is preserved.
func (h *Handlers) ResendDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	deliveryID, err := uuid.Parse(chi.URLParam(r, "deliveryId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid delivery ID")
		return
	}

	delivery, err := h.service.Resend(r.Context(), agentID, deliveryID)
	if err != nil {
		switch {
		case errors.Is(err, ErrDeliveryNotFound):
			api.WriteNotFoundResponse(w, "Delivery not found")
		case errors.Is(err, ErrResendNotAllowed), errors.Is(err, ErrWebhookUnavailable):
			api.WriteErrorResponse(w, http.StatusConflict, err.Error())
		default:
			api.WriteInternalErrorResponse(w, err.Error())
		}
		return
	}

	api.WriteSuccessResponse(w, http.StatusAccepted, delivery)
}

// TestWebhookHandler sends a synthetic payload to a webhook endpoint to
// verify its configuration end to end.
func (h *Handlers) TestWebhookHandler(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	webhookID, err := uuid.Parse(chi.URLParam(r, "webhookId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid webhook ID")
		return
	}

	result, err := h.service.TestWebhook(r.Context(), agentID, webhookID)
	if err != nil {
		if errors.Is(err, webhooks.ErrWebhookNotFound) {
			api.WriteNotFoundResponse(w, "Webhook not found")
			return
		}
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, result)
}
