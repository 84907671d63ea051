package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"quickdeploy/api/auth"
	"quickdeploy/api/model"
)

type DeployRequest struct {
	RepoFullName string `json:"repoFullName"`
}

// Deploy runs a deployment synchronously and answers with its result.
// The job is detached from the request, so a client that hangs up does
// not stop it.
func (h *Handler) Deploy(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		writeJSONStatus(w, http.StatusUnauthorized, model.Failed("Access token required"))
		return
	}

	var req DeployRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, model.Failed("invalid request body"))
		return
	}

	res := h.deployer.Deploy(context.WithoutCancel(r.Context()), caller.ID, req.RepoFullName)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	writeJSONStatus(w, status, res)
}
