// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates invalid input. Wrap with details:
// fmt.Errorf("%w: goal is required", domain.ErrValidation).
var ErrValidation = errors.New("validation failed")

// ErrInvalidState indicates an operation was rejected because the entity is
// not in the state the operation requires (e.g. resuming a job that is not
// awaiting human input). Nothing is mutated.
var ErrInvalidState = errors.New("invalid state")

// ErrNoModelAvailable indicates model resolution exhausted every fallback.
var ErrNoModelAvailable = errors.New("no model available")

// ErrCredentialMissing indicates no decryptable credential exists for the
// resolved provider. Credential problems surface as hard failures for the
// call; they are never masked by falling through to another routing rule.
var ErrCredentialMissing = errors.New("credential missing")
