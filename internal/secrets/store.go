package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/muhammad-robitulloh/vareon/internal/domain"
	"github.com/muhammad-robitulloh/vareon/internal/port/database"
)

// CredentialStore resolves provider credentials from the database,
// decrypting them with the configured key. It implements credentials.Store.
// Decrypted values are returned to the caller and never cached here.
type CredentialStore struct {
	store database.Store
	key   []byte
}

// NewCredentialStore creates a CredentialStore with a key derived from the
// configured encryption secret.
func NewCredentialStore(store database.Store, encryptionSecret string) *CredentialStore {
	return &CredentialStore{
		store: store,
		key:   DeriveKey(encryptionSecret),
	}
}

// Resolve returns the decrypted credential for the provider. A missing row
// or a decryption failure both surface as domain.ErrCredentialMissing:
// either way the call cannot proceed and must not be masked by fallback.
func (s *CredentialStore) Resolve(ctx context.Context, provider string) (string, error) {
	ciphertext, err := s.store.GetCredential(ctx, provider)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("provider %s: %w", provider, domain.ErrCredentialMissing)
		}
		return "", fmt.Errorf("get credential for %s: %w", provider, err)
	}

	plaintext, err := Decrypt(ciphertext, s.key)
	if err != nil {
		return "", fmt.Errorf("decrypt credential for %s: %w", provider, domain.ErrCredentialMissing)
	}
	return string(plaintext), nil
}

// Save encrypts and upserts a provider credential. Used by the admin CLI.
func (s *CredentialStore) Save(ctx context.Context, provider, credential string) error {
	ciphertext, err := Encrypt([]byte(credential), s.key)
	if err != nil {
		return fmt.Errorf("encrypt credential for %s: %w", provider, err)
	}
	return s.store.UpsertCredential(ctx, provider, ciphertext)
}
