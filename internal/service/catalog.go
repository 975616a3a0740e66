package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
	"github.com/muhammad-robitulloh/vareon/internal/domain/routing"
	"github.com/muhammad-robitulloh/vareon/internal/port/database"
)

// CatalogService manages routing rules and the model catalog. Catalog writes
// invalidate the router's cached snapshot; rule writes take effect on the
// next resolution because rules are never cached.
type CatalogService struct {
	store  database.Store
	router *Router
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(store database.Store, router *Router) *CatalogService {
	return &CatalogService{store: store, router: router}
}

// --- Routing rules ---

func (s *CatalogService) CreateRule(ctx context.Context, ownerID string, r *routing.Rule) (*routing.Rule, error) {
	r.OwnerID = ownerID
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateRule(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *CatalogService) GetRule(ctx context.Context, ownerID, id string) (*routing.Rule, error) {
	r, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.OwnerID != ownerID {
		return nil, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

func (s *CatalogService) ListRules(ctx context.Context, ownerID string) ([]routing.Rule, error) {
	return s.store.ListRulesByOwner(ctx, ownerID)
}

func (s *CatalogService) UpdateRule(ctx context.Context, ownerID, id string, upd *routing.Rule) (*routing.Rule, error) {
	r, err := s.GetRule(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	r.Name = upd.Name
	r.Condition = upd.Condition
	r.TargetModel = upd.TargetModel
	r.Priority = upd.Priority
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRule(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *CatalogService) DeleteRule(ctx context.Context, ownerID, id string) error {
	if _, err := s.GetRule(ctx, ownerID, id); err != nil {
		return err
	}
	return s.store.DeleteRule(ctx, id)
}

// --- Model catalog ---

func (s *CatalogService) CreateModel(ctx context.Context, m *model.Model) (*model.Model, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if existing, err := s.store.GetModelByName(ctx, m.Name); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: model %q already exists", domain.ErrValidation, m.Name)
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err := s.store.CreateModel(ctx, m); err != nil {
		return nil, err
	}
	s.router.InvalidateCatalog()
	return m, nil
}

func (s *CatalogService) ListModels(ctx context.Context) ([]model.Model, error) {
	return s.store.ListModels(ctx)
}

func (s *CatalogService) DeleteModel(ctx context.Context, id string) error {
	if err := s.store.DeleteModel(ctx, id); err != nil {
		return err
	}
	s.router.InvalidateCatalog()
	return nil
}
