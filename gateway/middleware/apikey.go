package middleware

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"

	"arbitrationd/gateway/auth"
)

// ContextKeyPrincipal holds the authenticated API-key principal for
// handlers that want to record who issued a governance or resolver call.
const ContextKeyPrincipal contextKey = "gateway.principal"

// APIKeyAuthenticator adapts gateway/auth.Authenticator (HMAC request
// signing with replay protection) into the same chi-middleware shape as
// Authenticator's JWT bearer check, for service-to-service callers
// (a governance relayer, a resolver's automation) that hold a shared
// secret instead of a user-facing JWT.
type APIKeyAuthenticator struct {
	inner  *auth.Authenticator
	logger *log.Logger
}

// NewAPIKeyAuthenticator wraps an already-configured auth.Authenticator.
// A nil inner authenticator makes the middleware a no-op passthrough,
// matching how Authenticator.Middleware behaves when cfg.Enabled is false.
func NewAPIKeyAuthenticator(inner *auth.Authenticator, logger *log.Logger) *APIKeyAuthenticator {
	if logger == nil {
		logger = log.Default()
	}
	return &APIKeyAuthenticator{inner: inner, logger: logger}
}

// Middleware verifies the request's API key, timestamp, nonce and body
// signature before calling next; on failure it writes 401 and stops.
func (a *APIKeyAuthenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil || a.inner == nil {
				next.ServeHTTP(w, r)
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, int64(auth.MaxBodyForSignature)+1))
			if err != nil {
				http.Error(w, "read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			principal, err := a.inner.Authenticate(r, body)
			if err != nil {
				a.logger.Printf("apikey auth: %v", err)
				http.Error(w, "invalid request signature", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
