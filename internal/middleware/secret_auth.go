package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// DefaultCronSecret is the placeholder shipped in example environments.
// It is rejected in production.
const DefaultCronSecret = "change-me-in-production"

// SecretAuth authenticates machine callers with a shared secret sent as
// "Authorization: Bearer <secret>" or in an optional extra header.
// An empty secret rejects every request. Query-string secrets are never accepted.
type SecretAuth struct {
	name   string
	secret []byte
	header string
	logger *zap.Logger
}

// NewSecretAuth creates an authenticator. header may be empty to accept only the bearer form.
func NewSecretAuth(name, secret, header string, logger *zap.Logger) *SecretAuth {
	return &SecretAuth{name: name, secret: []byte(secret), header: header, logger: logger}
}

// Authorize reports whether r carries the secret
func (a *SecretAuth) Authorize(r *http.Request) bool {
	if len(a.secret) == 0 {
		return false
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && a.matches(token) {
		return true
	}
	if a.header != "" {
		if v := r.Header.Get(a.header); v != "" && a.matches(v) {
			return true
		}
	}
	return false
}

func (a *SecretAuth) matches(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), a.secret) == 1
}

// Middleware rejects unauthenticated requests with 401
func (a *SecretAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Authorize(r) {
			if len(a.secret) == 0 {
				a.logger.Error("Shared secret not configured, rejecting request",
					zap.String("auth", a.name),
					zap.String("path", r.URL.Path),
				)
			} else {
				a.logger.Warn("Unauthorized request",
					zap.String("auth", a.name),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
