package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cors-relay/internal/config"
	"cors-relay/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Every POST
// and OPTIONS path belongs to the relay; the supporting endpoints are GET only.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, relay *RelayHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/relay/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.OPTIONS("/*", relay.Preflight)
	e.POST("/*", relay.Relay)
}
