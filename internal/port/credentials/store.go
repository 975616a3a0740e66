// Package credentials defines the credential store port.
package credentials

import "context"

// Store resolves a provider identifier to a decrypted credential. Resolution
// happens at call time; results must not be cached beyond one invocation.
// A missing or undecryptable credential fails with domain.ErrCredentialMissing.
type Store interface {
	Resolve(ctx context.Context, provider string) (string, error)
}
