package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/domain/model"
	"github.com/muhammad-robitulloh/vareon/internal/domain/routing"
	"github.com/muhammad-robitulloh/vareon/internal/port/credentials"
	"github.com/muhammad-robitulloh/vareon/internal/port/database"
)

// CatalogCache caches the active model catalog between resolutions.
type CatalogCache interface {
	Get() ([]model.Model, bool)
	Set(models []model.Model)
	Invalidate()
}

// Router resolves which model (and credential) a request should use. Rules
// are loaded fresh on every call; only the active-model catalog is cached.
type Router struct {
	store database.Store
	creds credentials.Store
	cache CatalogCache
}

// NewRouter creates a Router. cache may be nil to disable catalog caching.
func NewRouter(store database.Store, creds credentials.Store, cache CatalogCache) *Router {
	return &Router{store: store, creds: creds, cache: cache}
}

// Resolve selects a model for a request. Fallback order: explicit model,
// owner routing rules by descending priority, owner default preference,
// any active model tagged with the intent's role, any active chat model.
// A missing credential for the chosen model is a hard failure; it is never
// masked by falling back further.
func (r *Router) Resolve(ctx context.Context, ownerID, intent, prompt, explicitModel string) (model.Candidate, error) {
	catalog, err := r.activeModels(ctx)
	if err != nil {
		return model.Candidate{}, err
	}

	// 1. Explicit model name.
	if explicitModel != "" {
		if m := findByName(catalog, explicitModel); m != nil {
			return r.candidate(ctx, m)
		}
	}

	// 2. Routing rules, descending priority, first structural match wins.
	// A matching rule whose target model is inactive ends rule evaluation
	// and falls through to the owner default.
	rules, err := r.store.ListRulesByOwner(ctx, ownerID)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("load routing rules: %w", err)
	}
	facts := routing.Facts{Intent: intent, Prompt: prompt}
	for i := range rules {
		rule := &rules[i]
		cond, err := routing.ParseCondition(rule.Condition)
		if err != nil {
			slog.Warn("skipping rule with malformed condition", "rule_id", rule.ID, "error", err)
			continue
		}
		if !routing.Evaluate(cond, facts) {
			continue
		}
		if m := findByName(catalog, rule.TargetModel); m != nil {
			return r.candidate(ctx, m)
		}
		slog.Warn("matched rule targets inactive model", "rule_id", rule.ID, "target_model", rule.TargetModel)
		break
	}

	// 3. Owner default preference.
	o, err := r.store.GetOwner(ctx, ownerID)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("load owner: %w", err)
	}
	if o.DefaultModel != "" {
		if m := findByName(catalog, o.DefaultModel); m != nil {
			return r.candidate(ctx, m)
		}
	}

	// 4. Role-tagged fallback, then any chat model.
	if role := roleForIntent(intent); role != model.RoleChat {
		if m := findByRole(catalog, role); m != nil {
			return r.candidate(ctx, m)
		}
	}
	if m := findByRole(catalog, model.RoleChat); m != nil {
		return r.candidate(ctx, m)
	}

	return model.Candidate{}, fmt.Errorf("owner %s intent %q: %w", ownerID, intent, domain.ErrNoModelAvailable)
}

// InvalidateCatalog drops the cached catalog snapshot after a catalog write.
func (r *Router) InvalidateCatalog() {
	if r.cache != nil {
		r.cache.Invalidate()
	}
}

func (r *Router) activeModels(ctx context.Context) ([]model.Model, error) {
	if r.cache != nil {
		if models, ok := r.cache.Get(); ok {
			return models, nil
		}
	}
	models, err := r.store.ListActiveModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load model catalog: %w", err)
	}
	if r.cache != nil {
		r.cache.Set(models)
	}
	return models, nil
}

// candidate fetches the provider credential for the chosen model. The
// credential lives only for this invocation.
func (r *Router) candidate(ctx context.Context, m *model.Model) (model.Candidate, error) {
	cred, err := r.creds.Resolve(ctx, m.Provider)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("model %s: %w", m.Name, err)
	}
	return model.Candidate{Provider: m.Provider, Name: m.Name, Credential: cred}, nil
}

func findByName(catalog []model.Model, name string) *model.Model {
	for i := range catalog {
		if catalog[i].Name == name {
			return &catalog[i]
		}
	}
	return nil
}

func findByRole(catalog []model.Model, role string) *model.Model {
	for i := range catalog {
		if catalog[i].HasRole(role) {
			return &catalog[i]
		}
	}
	return nil
}

// roleForIntent maps a detected intent onto a catalog role tag.
func roleForIntent(intent string) string {
	switch intent {
	case "code_generation", "coding":
		return model.RoleCodeGeneration
	case "reasoning":
		return model.RoleReasoning
	case "intent_detection":
		return model.RoleIntentDetection
	default:
		return model.RoleChat
	}
}
