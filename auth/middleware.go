package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const claimsContextKey contextKey = "radioClaims"

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the claims stored by the middleware, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// Middleware guards handlers with bearer token checks.
type Middleware struct {
	secret []byte
	logger *slog.Logger
}

// NewMiddleware returns a Middleware verifying tokens signed with secret.
func NewMiddleware(secret []byte, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{secret: secret, logger: logger.With(slog.String("component", "auth"))}
}

// RequireAnyRole admits requests whose token carries at least one of roles. Everything else gets
// 401 {"error":"Unauthorized"}.
func (m *Middleware) RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" || len(m.secret) == 0 {
				unauthorized(w)
				return
			}

			claims, err := Parse(m.secret, token)
			if err != nil {
				m.logger.Debug("Rejected bearer token", slog.String("error", err.Error()), slog.String("path", r.URL.Path))
				unauthorized(w)
				return
			}
			if !HasAnyRole(claims.Role, roles...) {
				m.logger.Info("Insufficient role",
					slog.String("uid", claims.UserID),
					slog.String("role", claims.Role),
					slog.String("path", r.URL.Path))
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
