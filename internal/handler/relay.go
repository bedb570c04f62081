package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-relay/internal/model"
	"cors-relay/internal/service"
)

// Preflight response header values.
const (
	allowOrigin  = "*"
	allowMethods = "POST, OPTIONS"
	allowHeaders = "Content-Type"
)

// RelayHandler answers CORS preflights and relays POST bodies upstream.
type RelayHandler struct {
	service *service.RelayService
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(svc *service.RelayService, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service: svc,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Preflight answers an OPTIONS request with the permissive CORS headers and
// an empty 200. The request itself is not inspected.
func (h *RelayHandler) Preflight(c echo.Context) error {
	header := c.Response().Header()
	header.Set(echo.HeaderAccessControlAllowOrigin, allowOrigin)
	header.Set(echo.HeaderAccessControlAllowMethods, allowMethods)
	header.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)
	return c.NoContent(http.StatusOK)
}

// Relay reads the request body, posts it to the upstream and writes the
// upstream status and body back unchanged.
func (h *RelayHandler) Relay(c echo.Context) error {
	req := c.Request()
	c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, allowOrigin)

	body, err := service.ReadBody(req.Body, req.ContentLength)
	if err != nil {
		h.logger.Warn("rejecting request body",
			"err", err,
			"path", req.URL.Path,
			"content_length", req.ContentLength,
		)
		return c.String(http.StatusBadRequest, err.Error())
	}

	resp, err := h.service.Forward(&model.InboundRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          req.URL.Path,
		ContentLength: req.ContentLength,
		Body:          body,
	})
	if err != nil {
		h.logger.Error("upstream exception",
			"err", err,
			"reason", service.FailureReason(err),
			"path", req.URL.Path,
		)
		return c.String(http.StatusInternalServerError, err.Error())
	}

	if resp.OK() {
		h.logger.Info("upstream success", "status", resp.StatusCode)
		return c.Blob(resp.StatusCode, echo.MIMEApplicationJSON, resp.Body)
	}

	h.logger.Warn("upstream error", "status", resp.StatusCode)
	c.Response().WriteHeader(resp.StatusCode)
	// The status is already on the wire, so a failed write can only be logged.
	if _, err := c.Response().Write(resp.Body); err != nil {
		h.logger.Error("writing upstream error body", "err", err, "path", req.URL.Path)
	}
	return nil
}
