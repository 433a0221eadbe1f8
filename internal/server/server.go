package server

import (
	"github.com/formhive/webhook-service/internal/agents"
	"github.com/formhive/webhook-service/internal/auth"
	"github.com/formhive/webhook-service/internal/config"
	"github.com/formhive/webhook-service/internal/deliveries"
	"github.com/formhive/webhook-service/internal/events"
	"github.com/formhive/webhook-service/internal/storage"
	"github.com/formhive/webhook-service/internal/webhooks"
)

type Server struct {
	config           *config.Config
	db               *storage.DB
	authMiddleware   *auth.Middleware
	authHandlers     *auth.Handlers
	agentHandlers    *agents.Handlers
	webhookHandlers  *webhooks.Handlers
	eventHandlers    *events.Handlers
	deliveryHandlers *deliveries.Handlers
	worker           *deliveries.Worker
}

func New(cfg *config.Config, db *storage.DB) *Server {
	// Initialize services in dependency order
	authService := auth.NewService(db, cfg)
	authMiddleware := auth.NewMiddleware(authService)

	agentService := agents.NewService(db)
	agentHandlers := agents.NewHandlers(agentService)
	authHandlers := auth.NewHandlers(authService, agentService)

	deliveryStore := deliveries.NewPGStore(db)
	webhookService := webhooks.NewService(db, deliveryStore)
	webhookHandlers := webhooks.NewHandlers(webhookService)

	dispatcher := deliveries.NewDispatcher(cfg.DispatchTimeout, cfg.MaxResponseBytes)
	deliveryService := deliveries.NewService(deliveryStore, webhookService, dispatcher)
	deliveryHandlers := deliveries.NewHandlers(deliveryService)

	eventService := events.NewService(db, webhookService, deliveryStore)
	eventHandlers := events.NewHandlers(eventService)

	worker := deliveries.NewWorker(deliveryStore, webhookService, dispatcher, deliveries.WorkerConfig{
		WorkerCount:    cfg.WorkerCount,
		PollInterval:   cfg.WorkerPollInterval,
		ClaimBatchSize: cfg.ClaimBatchSize,
	})

	return &Server{
		config:           cfg,
		db:               db,
		authMiddleware:   authMiddleware,
		authHandlers:     authHandlers,
		agentHandlers:    agentHandlers,
		webhookHandlers:  webhookHandlers,
		eventHandlers:    eventHandlers,
		deliveryHandlers: deliveryHandlers,
		worker:           worker,
	}
}

// StartWorker launches the background delivery worker pool.
func (s *Server) StartWorker() {
	s.worker.Start()
}

// StopWorker drains in-flight deliveries and stops the pool.
func (s *Server) StopWorker() {
	s.worker.Stop()
}
