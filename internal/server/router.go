package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Use(s.contentTypeMiddleware)

	r.Get("/health", s.healthHandler)
	r.Get("/health/db", s.healthDBHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth routes
		r.Post("/auth/register", s.authHandlers.RegisterHandler)
		r.Post("/auth/login", s.authHandlers.LoginHandler)

		// Dashboard routes (JWT)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware.UserAuthMiddleware)

			// Agent management
			r.Post("/agents", s.agentHandlers.CreateAgentHandler)
			r.Get("/agents", s.agentHandlers.ListAgentsHandler)
			r.Get("/agents/{agentId}", s.agentHandlers.GetAgentHandler)
			r.Put("/agents/{agentId}", s.agentHandlers.UpdateAgentHandler)
			r.Delete("/agents/{agentId}", s.agentHandlers.DeleteAgentHandler)

			// API key management
			r.Post("/api-keys", s.authHandlers.CreateAPIKeyHandler)
			r.Get("/agents/{agentId}/api-keys", s.authHandlers.ListAPIKeysHandler)
			r.Delete("/agents/{agentId}/api-keys/{keyId}", s.authHandlers.RevokeAPIKeyHandler)
		})

		// Agent-scoped engine routes (API key)
		r.Route("/agents/{agentId}/engine", func(r chi.Router) {
			r.Use(s.authMiddleware.APIKeyAuthMiddleware)
			r.Use(s.authMiddleware.RequireAgentMatch)

			// Webhook registry
			r.With(s.authMiddleware.RequireScopes("webhooks:manage")).Post("/webhooks", s.webhookHandlers.CreateWebhookHandler)
			r.With(s.authMiddleware.RequireScopes("webhooks:read")).Get("/webhooks", s.webhookHandlers.ListWebhooksHandler)
			r.With(s.authMiddleware.RequireScopes("webhooks:read")).Get("/webhooks/{webhookId}", s.webhookHandlers.GetWebhookHandler)
			r.With(s.authMiddleware.RequireScopes("webhooks:manage")).Put("/webhooks/{webhookId}", s.webhookHandlers.UpdateWebhookHandler)
			r.With(s.authMiddleware.RequireScopes("webhooks:manage")).Delete("/webhooks/{webhookId}", s.webhookHandlers.DeleteWebhookHandler)
			r.With(s.authMiddleware.RequireScopes("webhooks:manage")).Post("/webhooks/{webhookId}/test", s.deliveryHandlers.TestWebhookHandler)

			// Event ingestion
			r.With(s.authMiddleware.RequireScopes("events:write")).Post("/events", s.eventHandlers.RaiseEventHandler)
			r.With(s.authMiddleware.RequireScopes("deliveries:read")).Get("/sessions/{sessionId}/events", s.eventHandlers.ListSessionEventsHandler)

			// Delivery audit log
			r.With(s.authMiddleware.RequireScopes("deliveries:read")).Get("/deliveries", s.deliveryHandlers.ListDeliveriesHandler)
			r.With(s.authMiddleware.RequireScopes("deliveries:read")).Get("/deliveries/{deliveryId}", s.deliveryHandlers.GetDeliveryHandler)
			r.With(s.authMiddleware.RequireScopes("deliveries:resend")).Post("/deliveries/{deliveryId}/resend", s.deliveryHandlers.ResendDeliveryHandler)
		})
	})

	return r
}
