// Package routing defines owner-scoped routing rules and the boolean
// condition DSL they are written in.
package routing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
)

// Rule maps a condition to a target model for one owner. Rules are evaluated
// in descending priority order; the first match wins. The condition is kept
// as raw JSON so a malformed or forward-incompatible tree never breaks
// reading the rule — it is parsed (and possibly skipped) at evaluation time.
type Rule struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Name        string          `json:"name"`
	Condition   json.RawMessage `json:"condition"`
	TargetModel string          `json:"target_model"`
	Priority    int             `json:"priority"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks the fields required to persist a rule. The condition only
// needs to be syntactically valid JSON; unknown operators inside it degrade
// at evaluation time instead of failing the write.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if r.TargetModel == "" {
		return fmt.Errorf("%w: target_model is required", domain.ErrValidation)
	}
	if len(r.Condition) > 0 && !json.Valid(r.Condition) {
		return fmt.Errorf("%w: condition is not valid JSON", domain.ErrValidation)
	}
	return nil
}
