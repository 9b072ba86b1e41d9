package httpapi

import (
	"errors"
	"net/http"

	"github.com/memogarden/memogarden-core/internal/auth"
)

const (
	authHeader   = "Authorization"
	apiKeyHeader = "X-API-Key"
)

var publicPaths = []string{
	"/admin/register",
	"/auth/login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.resolver == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := a.resolver.Authenticate(r.Context(),
			r.Header.Get(authHeader), r.Header.Get(apiKeyHeader))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrAuthenticationRequired):
				writeError(w, r, http.StatusUnauthorized, "authentication required")
			case errors.Is(err, auth.ErrExpiredCredential):
				writeError(w, r, http.StatusUnauthorized, "credential expired")
			case errors.Is(err, auth.ErrInvalidCredential):
				writeError(w, r, http.StatusUnauthorized, "invalid credential")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireIdentity pulls the authenticated caller out of the context; the
// middleware guarantees it is present on protected paths.
func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Identity{}, false
	}
	return id, true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
