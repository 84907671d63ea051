package handler

import (
	"errors"
	"net/http"

	"quickdeploy/api/auth"
	"quickdeploy/api/store"
)

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.users == nil {
		http.Error(w, "user store unavailable", http.StatusServiceUnavailable)
		return
	}
	u, err := h.users.GetUser(r.Context(), caller.ID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("load profile", "caller_id", caller.ID, "error", err)
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, u)
}
