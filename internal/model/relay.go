// Package model defines the transient values that live for a single relayed request.
package model

import "context"

// InboundRequest is the browser request accepted by the relay.
type InboundRequest struct {
	Ctx    context.Context
	Method string
	Path   string
	// ContentLength is the declared body length; -1 when the caller sent none.
	ContentLength int64
	Body          []byte
}

// UpstreamResponse is the fully read reply from the upstream.
type UpstreamResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream answered with a 2xx status.
func (r *UpstreamResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
