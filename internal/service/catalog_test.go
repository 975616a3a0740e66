package service

import (
	"context"
	"errors"
	"testing"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
)

func TestCreateModelRejectsDuplicateName(t *testing.T) {
	store := newMockStore()
	router := NewRouter(store, &mockCreds{keys: map[string]string{}}, nil)
	svc := NewCatalogService(store, router)

	first := &model.Model{Name: "gpt-large", Provider: model.ProviderOpenAI, Roles: []string{model.RoleChat}, Active: true}
	if _, err := svc.CreateModel(context.Background(), first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &model.Model{Name: "gpt-large", Provider: model.ProviderAnthropic, Roles: []string{model.RoleChat}, Active: true}
	_, err := svc.CreateModel(context.Background(), dup)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for duplicate name, got %v", err)
	}

	models, err := svc.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(models) != 1 {
		t.Errorf("expected 1 model after rejected duplicate, got %d", len(models))
	}
}
