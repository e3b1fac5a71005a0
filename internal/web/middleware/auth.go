package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/config"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/logging"
)

// Headers set by the identity proxy in front of the registry.
const (
	HeaderPrincipalID   = "X-Principal-ID"
	HeaderPrincipalRole = "X-Principal-Role"
	HeaderAPIKey        = "X-API-Key"
)

type principalKey struct{}

// PrincipalFrom returns the principal stored by Identity. Requests without
// identity headers yield the zero Principal, which core rejects for every
// role-gated operation.
func PrincipalFrom(ctx context.Context) core.Principal {
	p, _ := ctx.Value(principalKey{}).(core.Principal)
	return p
}

// WithPrincipal stores p in ctx. Tests use it to bypass header parsing.
func WithPrincipal(ctx context.Context, p core.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Identity reads the principal claim from the identity headers.
//
// If RequireAPIKey is false the headers are trusted as sent. If it is true
// they are trusted only alongside a valid X-API-Key: a request with no key
// is treated as anonymous, and a request with a wrong key is rejected.
// An unrecognized role is kept verbatim so core answers it with AUTH001.
func Identity(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trusted := true
			if cfg.RequireAPIKey {
				apiKey := r.Header.Get(HeaderAPIKey)
				switch {
				case apiKey == "":
					trusted = false
				case !isValidAPIKey(apiKey, cfg.APIKeys):
					slog.Warn("auth: invalid API key",
						"path", r.URL.Path,
						"method", r.Method,
						"remote_addr", r.RemoteAddr,
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					w.Write([]byte(`{"error":"invalid API key","message":"invalid API key","code":"AUTH001"}`))
					return
				}
			}

			if !trusted {
				next.ServeHTTP(w, r)
				return
			}

			id := strings.TrimSpace(r.Header.Get(HeaderPrincipalID))
			raw := r.Header.Get(HeaderPrincipalRole)
			if id == "" && raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			p := core.Principal{ID: id, Role: core.Role(raw)}
			if role, ok := core.ParseRole(raw); ok {
				p.Role = role
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logging.WithPrincipal(ctx, p.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// isValidAPIKey checks if the provided key matches any configured key.
// Uses constant-time comparison and checks ALL keys so the comparison time
// does not depend on which key matches.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}
