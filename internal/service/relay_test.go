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
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"cors-relay/internal/client"
	"cors-relay/internal/config"
	"cors-relay/internal/metrics"
	"cors-relay/internal/model"
)

func newTestRelayService(t *testing.T, upstreamURL string, m *metrics.Metrics) *RelayService {
	t.Helper()
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{URL: upstreamURL, TimeoutSeconds: 10},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewRelayService(client.NewUpstreamClient(cfg, logger, m), cfg, logger, m)
	if err != nil {
		t.Fatalf("NewRelayService: %v", err)
	}
	return svc
}

func TestReadBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		length  int64
		want    string
		wantErr error
	}{
		{name: "exact length", body: `{"amount":100}`, length: 14, want: `{"amount":100}`},
		{name: "reads only declared bytes", body: `{"a":1}trailing`, length: 7, want: `{"a":1}`},
		{name: "zero length", body: "", length: 0, want: ""},
		{name: "unknown length", body: `{}`, length: -1, wantErr: ErrUnknownLength},
		{name: "short body", body: `{"a"`, length: 10, wantErr: ErrShortBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadBody(strings.NewReader(tt.body), tt.length)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ReadBody() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadBody() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ReadBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForward_BodyAndHeaders(t *testing.T) {
	payload := []byte(`{"items":[{"name":"café","price":1990}],"handle":"shop"}`)

	type seen struct {
		method string
		header http.Header
		body   []byte
	}
	received := make(chan seen, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received <- seen{method: r.Method, header: r.Header.Clone(), body: b}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer upstream.Close()

	svc := newTestRelayService(t, upstream.URL+"/invoices/public/checkout/links", nil)

	resp, err := svc.Forward(&model.InboundRequest{
		Ctx:           context.Background(),
		Method:        http.MethodPost,
		Path:          "/anything",
		ContentLength: int64(len(payload)),
		Body:          payload,
	})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	got := <-received
	gotBody, gotHeader, gotMethod := got.body, got.header, got.method
	if !bytes.Equal(gotBody, payload) {
		t.Errorf("upstream body = %q, want %q", gotBody, payload)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("upstream method = %q, want POST", gotMethod)
	}
	if ct := gotHeader.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	if ua := gotHeader.Get("User-Agent"); ua != "Mozilla/5.0" {
		t.Errorf("User-Agent = %q, want %q", ua, "Mozilla/5.0")
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if string(resp.Body) != `{"id":"abc"}` {
		t.Errorf("Body = %q, want %q", resp.Body, `{"id":"abc"}`)
	}
}

func TestForward_AlwaysTargetsConfiguredURL(t *testing.T) {
	paths := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	svc := newTestRelayService(t, upstream.URL+"/fixed/target", nil)

	_, err := svc.Forward(&model.InboundRequest{
		Ctx:  context.Background(),
		Path: "/some/other/path",
		Body: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if gotPath := <-paths; gotPath != "/fixed/target" {
		t.Errorf("upstream path = %q, want %q", gotPath, "/fixed/target")
	}
}

func TestForward_UpstreamErrorStatusIsNotAnError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"invalid"}`))
	}))
	defer upstream.Close()

	svc := newTestRelayService(t, upstream.URL, nil)

	resp, err := svc.Forward(&model.InboundRequest{Ctx: context.Background(), Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
	if resp.OK() {
		t.Error("OK() = true for 422")
	}
	if string(resp.Body) != `{"error":"invalid"}` {
		t.Errorf("Body = %q, want %q", resp.Body, `{"error":"invalid"}`)
	}
}

func TestForward_IgnoresInboundCancellation(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	svc := newTestRelayService(t, upstream.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := svc.Forward(&model.InboundRequest{Ctx: ctx, Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Forward() error = %v; canceled inbound context must not abort the upstream call", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestForward_Unreachable(t *testing.T) {
	m := metrics.New()
	svc := newTestRelayService(t, "http://127.0.0.1:1/links", m)

	_, err := svc.Forward(&model.InboundRequest{Ctx: context.Background(), Body: []byte(`{}`)})
	if err == nil {
		t.Fatal("Forward() expected error for unreachable upstream, got nil")
	}
	if err.Error() == "" {
		t.Error("expected non-empty error text")
	}

	families, gerr := m.Registry.Gather()
	if gerr != nil {
		t.Fatalf("Gather() error = %v", gerr)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "cors_relay_upstream_failures_total" {
			for _, metric := range f.GetMetric() {
				if metric.GetCounter().GetValue() == 1 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected cors_relay_upstream_failures_total to be incremented")
	}
}

func TestForward_CountsRelayedBytes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer upstream.Close()

	m := metrics.New()
	svc := newTestRelayService(t, upstream.URL, m)

	if _, err := svc.Forward(&model.InboundRequest{Ctx: context.Background(), Body: []byte(`{"amount":100}`)}); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	got := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "cors_relay_relayed_bytes_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "direction" {
					got[lp.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	if got["request"] != 14 {
		t.Errorf("request bytes = %v, want 14", got["request"])
	}
	if got["response"] != 12 {
		t.Errorf("response bytes = %v, want 12", got["response"])
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline exceeded",
			err:  fmt.Errorf("forward to upstream: %w", context.DeadlineExceeded),
			want: ReasonTimeout,
		},
		{
			name: "dns",
			err:  fmt.Errorf("forward to upstream: %w", &net.DNSError{Err: "no such host", Name: "api.example.com"}),
			want: ReasonDNS,
		},
		{
			name: "connection refused",
			err: fmt.Errorf("forward to upstream: %w", &url.Error{
				Op: "Post", URL: "https://api.example.com", Err: errors.New("connection refused"),
			}),
			want: ReasonConnection,
		},
		{
			name: "other",
			err:  errors.New("unexpected EOF"),
			want: ReasonOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureReason(tt.err); got != tt.want {
				t.Errorf("FailureReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRelayService_Target(t *testing.T) {
	svc := newTestRelayService(t, config.DefaultUpstreamURL, nil)
	if svc.Target() != config.DefaultUpstreamURL {
		t.Errorf("Target() = %q, want %q", svc.Target(), config.DefaultUpstreamURL)
	}
}

func TestNewRelayService_BadURL(t *testing.T) {
	cfg := &config.Config{Upstream: config.UpstreamConfig{URL: "://bad"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewRelayService(nil, cfg, logger, nil); err == nil {
		t.Fatal("NewRelayService() expected error for unparsable url, got nil")
	}
}
