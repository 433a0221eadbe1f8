package agents

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/formhive/webhook-service/internal/storage"
)

var ErrAgentNotFound = errors.New("agent not found")

type Service struct {
	db *storage.DB
}

func NewService(db *storage.DB) *Service {
	return &Service{db: db}
}

const agentColumns = `id, owner_id, name, description, created_at, updated_at`

func (s *Service) CreateAgent(ctx context.Context, ownerID uuid.UUID, req CreateAgentRequest) (*Agent, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO agents (owner_id, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING `+agentColumns,
		ownerID, req.Name, req.Description)

	agent, err := scanAgent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	log.Printf("Agent %s (%s) created by user %s", agent.ID, agent.Name, ownerID)
	return agent, nil
}

func (s *Service) GetAgent(ctx context.Context, ownerID, agentID uuid.UUID) (*Agent, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1 AND owner_id = $2`,
		agentID, ownerID)

	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

func (s *Service) ListAgents(ctx context.Context, ownerID uuid.UUID) ([]*Agent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read agents: %w", err)
	}
	return agents, nil
}

func (s *Service) UpdateAgent(ctx context.Context, ownerID, agentID uuid.UUID, req UpdateAgentRequest) (*Agent, error) {
	agent, err := s.GetAgent(ctx, ownerID, agentID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.Description != nil {
		agent.Description = *req.Description
	}

	row := s.db.QueryRow(ctx,
		`UPDATE agents SET name = $1, description = $2, updated_at = now()
		 WHERE id = $3 AND owner_id = $4
		 RETURNING `+agentColumns,
		agent.Name, agent.Description, agentID, ownerID)

	updated, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to update agent: %w", err)
	}
	return updated, nil
}

// DeleteAgent removes an agent and, via cascade, its webhooks and API keys.
// Events and deliveries are retained for audit.
func (s *Service) DeleteAgent(ctx context.Context, ownerID, agentID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM agents WHERE id = $1 AND owner_id = $2`, agentID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}

	log.Printf("Agent %s deleted by user %s", agentID, ownerID)
	return nil
}

// VerifyOwnership reports whether userID owns agentID. Satisfies the auth
// package's AgentVerifier.
func (s *Service) VerifyOwnership(ctx context.Context, userID, agentID uuid.UUID) error {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM agents WHERE id = $1 AND owner_id = $2)`,
		agentID, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to verify agent ownership: %w", err)
	}
	if !exists {
		return ErrAgentNotFound
	}
	return nil
}

func scanAgent(row pgx.Row) (*Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Description, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
