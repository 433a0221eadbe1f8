// internal/events/handlers.go
package events

import (
	"encoding/json"
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

// RaiseEventHandler ingests a session lifecycle event and fans it out to
// subscribed webhooks. Called by the session runtime.
func (h *Handlers) RaiseEventHandler(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	var req RaiseEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequestResponse(w, "invalid JSON payload")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		api.WriteValidationErrorResponse(w, err)
		return
	}

	if len(req.Data) > 0 && !json.Valid(req.Data) {
		api.WriteBadRequestResponse(w, "data must be a valid JSON value")
		return
	}

	response, err := h.service.Publish(r.Context(), agentID, req)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusAccepted, response)
}

// ListSessionEventsHandler returns the event history of one session
func (h *Handlers) ListSessionEventsHandler(w http.ResponseWriter, r *http.Request) {
	agentID, err := uuid.Parse(chi.URLParam(r, "agentId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid agent ID")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		api.WriteBadRequestResponse(w, "Invalid session ID")
		return
	}

	events, err := h.service.ListSessionEvents(r.Context(), agentID, sessionID)
	if err != nil {
		api.WriteInternalErrorResponse(w, err.Error())
		return
	}

	api.WriteSuccessResponse(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}
