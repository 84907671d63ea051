package handler

import (
	"errors"
	"net/http"

	"quickdeploy/api/auth"
	"quickdeploy/api/model"
	"quickdeploy/api/source"
	"quickdeploy/api/store"
)

// Repos lists the repositories the caller's stored GitHub token can
// deploy from.
func (h *Handler) Repos(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.users == nil || h.repos == nil {
		http.Error(w, "repository listing unavailable", http.StatusServiceUnavailable)
		return
	}

	credential, err := h.users.Credential(r.Context(), caller.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("load credential", "caller_id", caller.ID, "error", err)
		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch repositories"})
		return
	}
	if credential == "" {
		writeJSONStatus(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	repos, err := h.repos.ListRepos(r.Context(), credential)
	if errors.Is(err, source.ErrUnauthorized) {
		writeJSONStatus(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("list repos", "caller_id", caller.ID, "error", err)
		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch repositories"})
		return
	}
	if repos == nil {
		repos = []model.RepoSummary{}
	}
	writeJSON(w, map[string]interface{}{"repos": repos})
}
