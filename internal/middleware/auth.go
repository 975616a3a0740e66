package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/muhammad-robitulloh/vareon/internal/domain/owner"
)

const headerAPIKey = "X-API-Key"

// KeyPrefixLen is the number of leading key characters used for lookup.
// The full key is verified against the stored bcrypt hash.
const KeyPrefixLen = 12

type ownerKey struct{}

// OwnerLookup resolves an API-key prefix to an owner record.
type OwnerLookup interface {
	GetOwnerByKeyPrefix(ctx context.Context, prefix string) (*owner.Owner, error)
}

// APIKeyAuth authenticates requests via the X-API-Key header and stores the
// resolved owner id in the request context. Requests without a valid key
// get 401; no route behind this middleware runs unauthenticated.
func APIKeyAuth(lookup OwnerLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerAPIKey)
			if len(key) < KeyPrefixLen {
				unauthorized(w)
				return
			}

			o, err := lookup.GetOwnerByKeyPrefix(r.Context(), key[:KeyPrefixLen])
			if err != nil {
				unauthorized(w)
				return
			}
			if bcrypt.CompareHashAndPassword([]byte(o.APIKeyHash), []byte(key)) != nil {
				slog.Warn("api key hash mismatch", "prefix", key[:KeyPrefixLen])
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), ownerKey{}, o.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerIDFromContext returns the authenticated owner id, or "" when the
// request did not pass through APIKeyAuth.
func OwnerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ownerKey{}).(string)
	return id
}

// WithOwnerID stores an owner id in the context. Used by tests and the
// admin CLI, which bypass HTTP authentication.
func WithOwnerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ownerKey{}, id)
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid or missing API key"}`))
}
