package handler

import (
	"context"
	"net/http"
	"time"
)

type ServiceHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // up, down, unknown
	Details string `json:"details,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make([]ServiceHealth, 0, len(h.checks))
	allUp := true
	for _, c := range h.checks {
		s := runCheck(ctx, c)
		if s.Status == "down" {
			allUp = false
		}
		services = append(services, s)
	}

	status := "healthy"
	if !allUp {
		status = "degraded"
	}

	writeJSON(w, map[string]interface{}{
		"status":   status,
		"services": services,
	})
}

func runCheck(ctx context.Context, c Check) ServiceHealth {
	if c.Fn == nil {
		return ServiceHealth{Name: c.Name, Status: "unknown", Details: "not configured"}
	}
	if err := c.Fn(ctx); err != nil {
		return ServiceHealth{Name: c.Name, Status: "down", Details: err.Error()}
	}
	return ServiceHealth{Name: c.Name, Status: "up"}
}
