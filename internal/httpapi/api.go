// Package httpapi exposes the record store and credential services over
// HTTP/JSON.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/memogarden/memogarden-core/internal/auth"
	"github.com/memogarden/memogarden-core/internal/config"
	"github.com/memogarden/memogarden-core/internal/obs"
	"github.com/memogarden/memogarden-core/internal/store"
)

// ReadyProbe reports whether the service can reach its database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	store      *store.Store
	auth       *auth.Service
	tokens     *auth.TokenService
	resolver   *auth.Resolver
	readyProbe ReadyProbe
	version    string

	defaultCurrency string
	bypassLocalhost bool
}

func New(st *store.Store, svc *auth.Service, tokens *auth.TokenService, cfg config.Config, version string) *API {
	a := &API{
		mux:             http.NewServeMux(),
		store:           st,
		auth:            svc,
		tokens:          tokens,
		resolver:        auth.NewResolver(tokens, svc),
		version:         version,
		defaultCurrency: cfg.DefaultCurrency,
		bypassLocalhost: cfg.BypassLocalhostCheck,
	}
	if st != nil {
		a.readyProbe = ReadyProbe{DB: st.DB()}
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// setup + sessions
	a.mux.HandleFunc("/admin/register", a.handleAdminRegister)
	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/auth/me", a.handleMe)

	// API keys
	a.mux.HandleFunc("/api-keys", a.handleAPIKeysCollection)
	a.mux.HandleFunc("/api-keys/", a.handleAPIKeyResource)

	// records
	a.mux.HandleFunc("/api/v1/transactions", a.handleTransactionsCollection)
	a.mux.HandleFunc("/api/v1/transactions/", a.handleTransactionResource)
	a.mux.HandleFunc("/api/v1/recurrences", a.handleRecurrencesCollection)
	a.mux.HandleFunc("/api/v1/recurrences/", a.handleRecurrenceResource)

	// unmatched paths fall through to 404
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full handler chain for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "memogarden-core",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":             "memogarden-core",
		"time":             time.Now().UTC().Format(time.RFC3339),
		"version":          a.version,
		"default_currency": a.defaultCurrency,
	})
}
