package model

import "testing"

func TestUpstreamResponse_OK(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{199, false},
		{200, true},
		{201, true},
		{299, true},
		{300, false},
		{422, false},
		{500, false},
	}

	for _, tt := range tests {
		r := &UpstreamResponse{StatusCode: tt.status}
		if got := r.OK(); got != tt.want {
			t.Errorf("OK() for %d = %v, want %v", tt.status, got, tt.want)
		}
	}
}
