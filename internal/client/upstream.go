// Package client provides the outbound HTTP client for the relay upstream.
package client

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"cors-relay/internal/config"
	"cors-relay/internal/metrics"
)

// UpstreamClient sends relayed requests to the upstream.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient. A zero upstream.timeout_seconds
// leaves the call unbounded. The metrics parameter is optional; pass nil to
// disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	return &UpstreamClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes req against the upstream. The caller is responsible for
// closing the response body.
func (c *UpstreamClient) Do(req *http.Request) (*http.Response, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"url", req.URL.Redacted(),
		"bytes", req.ContentLength,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller
	if c.metrics != nil {
		c.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	}
	return resp, nil
}
