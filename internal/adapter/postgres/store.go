package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/domain/agent"
	"github.com/muhammad-robitulloh/vareon/internal/domain/owner"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Owners ---

func (s *Store) CreateOwner(ctx context.Context, o *owner.Owner) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO owners (name, key_prefix, api_key_hash, default_model)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		o.Name, o.KeyPrefix, o.APIKeyHash, o.DefaultModel)
	if err := row.Scan(&o.ID, &o.CreatedAt); err != nil {
		return fmt.Errorf("create owner: %w", err)
	}
	return nil
}

func (s *Store) GetOwner(ctx context.Context, id string) (*owner.Owner, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, key_prefix, api_key_hash, default_model, created_at
		 FROM owners WHERE id = $1`, id)
	return scanOwner(row, "get owner "+id)
}

func (s *Store) GetOwnerByKeyPrefix(ctx context.Context, prefix string) (*owner.Owner, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, key_prefix, api_key_hash, default_model, created_at
		 FROM owners WHERE key_prefix = $1`, prefix)
	return scanOwner(row, "get owner by key prefix")
}

func (s *Store) UpdateOwnerDefaultModel(ctx context.Context, id, modelName string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE owners SET default_model = $2 WHERE id = $1`, id, modelName)
	if err != nil {
		return fmt.Errorf("update owner default model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update owner %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanOwner(row pgx.Row, op string) (*owner.Owner, error) {
	var o owner.Owner
	err := row.Scan(&o.ID, &o.Name, &o.KeyPrefix, &o.APIKeyHash, &o.DefaultModel, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &o, nil
}

// --- Agents ---

const agentColumns = `id, owner_id, name, persona, mode, objective, status, config, created_at, updated_at`

func (s *Store) ListAgents(ctx context.Context, ownerID string) ([]agent.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)

	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get agent %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return &a, nil
}

func (s *Store) CreateAgent(ctx context.Context, ownerID string, req agent.CreateRequest) (*agent.Agent, error) {
	configJSON, err := json.Marshal(orEmptyMap(req.Config))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO agents (owner_id, name, persona, mode, objective, config)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+agentColumns,
		ownerID, req.Name, req.Persona, req.Mode, req.Objective, configJSON)

	a, err := scanAgent(row)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return &a, nil
}

func (s *Store) UpdateAgent(ctx context.Context, a *agent.Agent) error {
	configJSON, err := json.Marshal(orEmptyMap(a.Config))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET name = $2, persona = $3, mode = $4, objective = $5, status = $6, config = $7, updated_at = now()
		 WHERE id = $1`,
		a.ID, a.Name, a.Persona, a.Mode, a.Objective, a.Status, configJSON)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update agent %s: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete agent %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanAgent(scanner interface{ Scan(dest ...any) error }) (agent.Agent, error) {
	var a agent.Agent
	var configJSON []byte
	err := scanner.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Persona, &a.Mode, &a.Objective, &a.Status, &configJSON, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(configJSON, &a.Config); err != nil {
		a.Config = map[string]string{}
	}
	return a, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
