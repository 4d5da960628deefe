package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// HealthChecker is a dependency that can report its health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BreakerReporter lists upstream circuit breakers that are not closed
type BreakerReporter interface {
	OpenBreakers() []string
}

// HealthHandler reports the state of the monitor and its dependencies
type HealthHandler struct {
	required map[string]HealthChecker
	optional map[string]HealthChecker
	breakers BreakerReporter
	entries  func() int
	version  string
}

// HealthResponse is the health endpoint payload
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Services     map[string]string `json:"services"`
	OpenBreakers []string          `json:"open_breakers"`
	CachedKeys   int               `json:"cached_keys"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
}

// NewHealthHandler creates a health handler. Required checkers failing make
// the service unhealthy; optional ones and open breakers only degrade it.
func NewHealthHandler(required, optional map[string]HealthChecker, breakers BreakerReporter, entries func() int, version string) *HealthHandler {
	return &HealthHandler{
		required: required,
		optional: optional,
		breakers: breakers,
		entries:  entries,
		version:  version,
	}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := make(map[string]string, len(h.required)+len(h.optional))
	status := "healthy"

	for name, checker := range h.required {
		if err := checker.HealthCheck(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			services[name] = "healthy"
		}
	}
	for name, checker := range h.optional {
		if err := checker.HealthCheck(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			services[name] = "healthy"
		}
	}

	openBreakers := []string{}
	if h.breakers != nil {
		if names := h.breakers.OpenBreakers(); len(names) > 0 {
			openBreakers = names
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	response := HealthResponse{
		Status:       status,
		Timestamp:    time.Now(),
		Services:     services,
		OpenBreakers: openBreakers,
		Version:      h.version,
		Uptime:       time.Since(startTime).String(),
	}
	if h.entries != nil {
		response.CachedKeys = h.entries()
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}
