// Package httpapi is the HTTP surface of the identity core: the
// authentication gate, scope middleware, auth endpoints, RBAC mutations, and
// the ops endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"costscope.io/api/spec"
	"costscope.io/internal/auth"
	"costscope.io/internal/obs"
	"costscope.io/internal/revocation"
	"costscope.io/internal/scope"
)

// ReadyProbe pings the backends /readyz depends on.
type ReadyProbe struct {
	DB    *sql.DB
	Redis interface {
		Ping(ctx context.Context) error
	}
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// API is the HTTP layer.
type API struct {
	mux         *http.ServeMux
	authSvc     *auth.Service
	revocations *revocation.Store
	scopes      *scope.Resolver
	permissions *auth.PermissionResolver
	readyProbe  ReadyProbe
	version     string
}

// Config wires the API's collaborators.
type Config struct {
	Auth        *auth.Service
	Revocations *revocation.Store
	Scopes      *scope.Resolver
	Permissions *auth.PermissionResolver
	ReadyProbe  ReadyProbe
	Version     string
}

func New(cfg Config) (*API, error) {
	if cfg.Auth == nil || cfg.Revocations == nil || cfg.Scopes == nil || cfg.Permissions == nil {
		return nil, errors.New("httpapi: auth, revocations, scopes, and permissions are required")
	}
	a := &API{
		mux:         http.NewServeMux(),
		authSvc:     cfg.Auth,
		revocations: cfg.Revocations,
		scopes:      cfg.Scopes,
		permissions: cfg.Permissions,
		readyProbe:  cfg.ReadyProbe,
		version:     cfg.Version,
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("GET /openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("POST /v1/auth/revoke", a.handleRevoke)

	// introspection
	a.mux.HandleFunc("GET /v1/me", a.handleMe)
	a.mux.HandleFunc("GET /v1/context", a.handleContext)

	// rbac
	a.mux.HandleFunc("POST /v1/roles/{id}/assign", a.handleAssignRole)
	a.mux.HandleFunc("POST /v1/roles/{id}/remove", a.handleRemoveRole)
	a.mux.HandleFunc("PUT /v1/roles/{id}/permissions", a.handleSetRolePermissions)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a, nil
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withScope(h)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- ops handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "costscope-api",
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
		"name":    "costscope-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	if status == http.StatusUnauthorized {
		obs.AuthRejected(code)
	}
	writeJSON(w, status, map[string]any{"error": errorBody{Code: code, Message: message}})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
