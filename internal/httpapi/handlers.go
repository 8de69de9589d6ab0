package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/peakfit/gymcore/internal/auth"
	"github.com/peakfit/gymcore/internal/obs"
	"github.com/peakfit/gymcore/internal/revoke"
	"github.com/peakfit/gymcore/internal/sync"
	"github.com/peakfit/gymcore/internal/token"
	"github.com/peakfit/gymcore/internal/txid"
)

// ReadyProbe checks readiness dependencies (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the API's collaborators.
type Config struct {
	ReadyProbe ReadyProbe
	Version    string

	Auth    *auth.Service
	Tokens  *token.Service
	Revoked revoke.Store
	Engine  *sync.Engine

	LoginRateBurst     int
	LoginRatePerSecond int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth    *auth.Service
	tokens  *token.Service
	revoked revoke.Store
	engine  *sync.Engine
}

// New builds the router. Protected operations are wrapped by their
// capability at registration time.
func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		auth:       cfg.Auth,
		tokens:     cfg.Tokens,
		revoked:    cfg.Revoked,
		engine:     cfg.Engine,
	}

	burst, perSecond := cfg.LoginRateBurst, cfg.LoginRatePerSecond
	if burst <= 0 {
		burst = 10
	}
	if perSecond <= 0 {
		perSecond = 5
	}

	anyRole := []auth.Role{auth.RoleTrainee, auth.RoleTrainer}

	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), burst, perSecond))
	a.mux.Handle("/v1/auth/logout", Require(Capability{
		AllowedRoles: anyRole,
	}, http.HandlerFunc(a.handleLogout)))
	a.mux.Handle("/v1/auth/password", Require(Capability{
		AllowedRoles: anyRole,
		OwnedBy:      anyRole,
		SubjectOf:    SubjectFromJSONBody("username"),
	}, http.HandlerFunc(a.handleChangePassword)))

	a.mux.Handle("/v1/sync/full", Require(Capability{
		AllowedRoles: []auth.Role{auth.RoleTrainer},
	}, http.HandlerFunc(a.handleFullResync)))

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = Transaction(h)
	return obs.Instrument(h)
}

// --- ambient handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gymcore-api",
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
		"name":    "gymcore-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if id, ok := txid.From(r.Context()); ok {
		payload["transaction_id"] = id
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError maps domain errors onto the fixed client-visible statuses.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		writeError(w, r, http.StatusLocked, "account locked")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrNoActiveSession), errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		obs.Error("request_failed", err, logFields(r))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func logFields(r *http.Request) map[string]any {
	fields := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if id, ok := txid.From(r.Context()); ok {
		fields["transaction_id"] = id
	}
	return fields
}
