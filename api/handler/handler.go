package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"quickdeploy/api/auth"
	"quickdeploy/api/hub"
	"quickdeploy/api/model"
)

type Deployer interface {
	Deploy(ctx context.Context, callerID, repoRef string) model.Result
}

type Profiles interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	Credential(ctx context.Context, userID string) (string, error)
}

// Repos lists what a stored credential can see on the source host.
type Repos interface {
	ListRepos(ctx context.Context, credential string) ([]model.RepoSummary, error)
}

// Check tests one dependency. A nil Fn reports the service as not
// configured.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Handler struct {
	deployer Deployer
	users    Profiles
	repos    Repos
	ws       *hub.Hub
	checks   []Check
	version  string
	logger   *slog.Logger
}

func New(deployer Deployer, users Profiles, repos Repos, ws *hub.Hub, version string, logger *slog.Logger, checks ...Check) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		deployer: deployer,
		users:    users,
		repos:    repos,
		ws:       ws,
		checks:   checks,
		version:  version,
		logger:   logger,
	}
}

// Mount registers the API routes. Everything except health and version
// requires a verified caller.
func (h *Handler) Mount(r chi.Router, verifier *auth.Verifier) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/version", h.Version)
		r.Group(func(r chi.Router) {
			r.Use(verifier.Middleware)
			r.Post("/deploy", h.Deploy)
			r.Get("/me", h.Me)
			r.Get("/repos", h.Repos)
		})
	})
	r.With(verifier.Middleware).Get("/ws", h.Events)
}

func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": h.version})
}

// Events streams the caller's deployment events over a websocket.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	h.ws.Serve(w, r, caller.ID)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
