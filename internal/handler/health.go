package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"cors-relay/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the build version and where requests are relayed to.
func (h *HealthHandler) Status(c echo.Context) error {
	timeout := "unbounded"
	if s := h.cfg.Upstream.TimeoutSeconds; s > 0 {
		timeout = (time.Duration(s) * time.Second).String()
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":           "ok",
		"version":          string(h.version),
		"upstream_url":     h.cfg.Upstream.URL,
		"upstream_timeout": timeout,
	})
}
