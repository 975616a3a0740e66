package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
)

const modelColumns = `id, name, provider, roles, active, created_at, updated_at`

func (s *Store) CreateModel(ctx context.Context, m *model.Model) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO models (name, provider, roles, active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		m.Name, m.Provider, m.Roles, m.Active)
	if err := row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("create model: %w", err)
	}
	return nil
}

func (s *Store) GetModelByName(ctx context.Context, name string) (*model.Model, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+modelColumns+` FROM models WHERE name = $1`, name)

	m, err := scanModel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get model %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get model %q: %w", name, err)
	}
	return &m, nil
}

func (s *Store) ListModels(ctx context.Context) ([]model.Model, error) {
	return s.listModels(ctx, `SELECT `+modelColumns+` FROM models ORDER BY name ASC`)
}

func (s *Store) ListActiveModels(ctx context.Context) ([]model.Model, error) {
	return s.listModels(ctx, `SELECT `+modelColumns+` FROM models WHERE active ORDER BY name ASC`)
}

func (s *Store) listModels(ctx context.Context, query string) ([]model.Model, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var models []model.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

func (s *Store) DeleteModel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM models WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete model %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// --- Credentials ---

func (s *Store) UpsertCredential(ctx context.Context, provider string, ciphertext []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (provider, ciphertext, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (provider) DO UPDATE SET ciphertext = EXCLUDED.ciphertext, updated_at = now()`,
		provider, ciphertext)
	if err != nil {
		return fmt.Errorf("upsert credential for %s: %w", provider, err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, provider string) ([]byte, error) {
	var ciphertext []byte
	err := s.pool.QueryRow(ctx,
		`SELECT ciphertext FROM credentials WHERE provider = $1`, provider).Scan(&ciphertext)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get credential for %s: %w", provider, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get credential for %s: %w", provider, err)
	}
	return ciphertext, nil
}

func scanModel(scanner interface{ Scan(dest ...any) error }) (model.Model, error) {
	var m model.Model
	err := scanner.Scan(&m.ID, &m.Name, &m.Provider, &m.Roles, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, err
	}
	return m, nil
}
