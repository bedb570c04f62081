// Package service implements the relay forwarding logic.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"cors-relay/internal/client"
	"cors-relay/internal/config"
	"cors-relay/internal/metrics"
	"cors-relay/internal/model"
)

var (
	// ErrUnknownLength is returned when the inbound request declares no Content-Length.
	ErrUnknownLength = errors.New("content length required")
	// ErrShortBody is returned when the inbound body ends before the declared length.
	ErrShortBody = errors.New("request body shorter than content length")
)

// Fixed outbound headers. Nothing from the inbound request is forwarded.
const (
	contentType = "application/json"
	userAgent   = "Mozilla/5.0"
)

// Failure reasons reported by FailureReason.
const (
	ReasonTimeout    = "timeout"
	ReasonDNS        = "dns"
	ReasonConnection = "connection"
	ReasonOther      = "other"
)

// RelayService forwards inbound bodies to the single configured upstream.
type RelayService struct {
	client  *client.UpstreamClient
	logger  *slog.Logger
	metrics *metrics.Metrics
	target  *url.URL
}

// NewRelayService creates a RelayService. The metrics parameter is optional.
func NewRelayService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*RelayService, error) {
	u, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}

	return &RelayService{
		client:  c,
		logger:  logger.With("component", "relay_service"),
		metrics: m,
		target:  u,
	}, nil
}

// Target returns the upstream URL every request is relayed to.
func (s *RelayService) Target() string {
	return s.target.String()
}

// ReadBody reads exactly contentLength bytes from r. A negative length means
// the caller declared none.
func ReadBody(r io.Reader, contentLength int64) ([]byte, error) {
	if contentLength < 0 {
		return nil, ErrUnknownLength
	}
	if contentLength == 0 || r == nil {
		return []byte{}, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, contentLength))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) < contentLength {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrShortBody, len(body), contentLength)
	}
	return body, nil
}

// Forward posts the inbound body verbatim to the upstream and returns the
// fully read response. Any HTTP status, 2xx or not, is a successful Forward;
// an error means no usable response arrived.
//
// The outbound call ignores cancellation of the inbound request: once issued
// it runs until the upstream answers, fails, or the configured timeout fires.
func (s *RelayService) Forward(in *model.InboundRequest) (*model.UpstreamResponse, error) {
	ctx := in.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.target.String(), bytes.NewReader(in.Body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)

	s.logger.Debug("forwarding request",
		"method", in.Method,
		"path", in.Path,
		"bytes", len(in.Body),
	)
	s.countBytes("request", len(in.Body))

	resp, err := s.client.Do(req)
	if err != nil {
		s.countFailure(err)
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.countFailure(err)
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	s.countBytes("response", len(body))

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

func (s *RelayService) countBytes(direction string, n int) {
	if s.metrics != nil {
		s.metrics.RelayedBytes.WithLabelValues(direction).Add(float64(n))
	}
}

func (s *RelayService) countFailure(err error) {
	if s.metrics != nil {
		s.metrics.UpstreamFailures.WithLabelValues(FailureReason(err)).Inc()
	}
}

// FailureReason maps an upstream error to a coarse, bounded label for logs
// and metrics.
func FailureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonDNS
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ReasonConnection
	}

	return ReasonOther
}
