package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/domain/routing"
)

const ruleColumns = `id, owner_id, name, condition, target_model, priority, created_at, updated_at`

func (s *Store) CreateRule(ctx context.Context, r *routing.Rule) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO routing_rules (owner_id, name, condition, target_model, priority)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		r.OwnerID, r.Name, []byte(r.Condition), r.TargetModel, r.Priority)
	if err := row.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (s *Store) GetRule(ctx context.Context, id string) (*routing.Rule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM routing_rules WHERE id = $1`, id)

	r, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get rule %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	return &r, nil
}

func (s *Store) ListRulesByOwner(ctx context.Context, ownerID string) ([]routing.Rule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM routing_rules
		 WHERE owner_id = $1 ORDER BY priority DESC, created_at ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []routing.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("list rules: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) UpdateRule(ctx context.Context, r *routing.Rule) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE routing_rules SET name = $2, condition = $3, target_model = $4, priority = $5, updated_at = now()
		 WHERE id = $1`,
		r.ID, r.Name, []byte(r.Condition), r.TargetModel, r.Priority)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update rule %s: %w", r.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM routing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete rule %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanRule(scanner interface{ Scan(dest ...any) error }) (routing.Rule, error) {
	var r routing.Rule
	var condition []byte
	err := scanner.Scan(&r.ID, &r.OwnerID, &r.Name, &condition, &r.TargetModel, &r.Priority, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.Condition = condition
	return r, nil
}
