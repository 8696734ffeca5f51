package handler

import (
	"context"
	"net/http"

	"github.com/progami/wms-ecomos-sub005/pkg/httputil"
)

// HealthCheck reports the state of one dependency. A "status" of "down"
// marks the service degraded; "disabled" dependencies are ignored.
type HealthCheck func(ctx context.Context) map[string]string

// HealthHandler reports the state of the service and its dependencies
type HealthHandler struct {
	service string
	checks  map[string]HealthCheck
}

// NewHealthHandler creates a health handler for the named service
func NewHealthHandler(service string) *HealthHandler {
	return &HealthHandler{service: service, checks: make(map[string]HealthCheck)}
}

// Register adds a dependency check
func (h *HealthHandler) Register(name string, check HealthCheck) {
	h.checks[name] = check
}

// Health responds 200 when every dependency is healthy and 503 otherwise
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"service": h.service,
	}

	status, code := "healthy", http.StatusOK
	for name, check := range h.checks {
		result := check(r.Context())
		body[name] = result
		if result["status"] == "down" {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	body["status"] = status

	httputil.JSON(w, code, body)
}
