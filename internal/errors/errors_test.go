package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http/httptest"
	"syscall"
	"testing"
)

func TestWriteJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrNoRoute.WriteJSON(rec)

	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Allow-Origin = %q", origin)
	}

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    any    `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if body.Code != 503 || body.Message != "Service temporarily unavailable" || body.Data != nil {
		t.Errorf("body = %+v", body)
	}
}

func TestTranslateClassification(t *testing.T) {
	refused := &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
	reset := &net.OpError{Op: "read", Err: syscall.ECONNRESET}

	tests := []struct {
		name string
		err  error
		want *GatewayError
	}{
		{"nil", nil, nil},
		{"gateway error passthrough", ErrUnauthorized, ErrUnauthorized},
		{"wrapped gateway error", fmt.Errorf("pipeline: %w", ErrRateLimited), ErrRateLimited},
		{"deadline", context.DeadlineExceeded, ErrUpstreamTimeout},
		{"wrapped deadline", fmt.Errorf("forward: %w", context.DeadlineExceeded), ErrUpstreamTimeout},
		{"connection refused", refused, ErrUpstreamConnect},
		{"other transport failure", reset, ErrNoRoute},
		{"unclassified", fmt.Errorf("boom"), ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Translate(tt.err); got != tt.want {
				t.Errorf("Translate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTranslateNetTimeout(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: &timeoutErr{}}
	if got := Translate(err); got != ErrUpstreamTimeout {
		t.Errorf("Translate(timeout) = %v, want ErrUpstreamTimeout", got)
	}
}

type timeoutErr struct{}

func (*timeoutErr) Error() string   { return "i/o timeout" }
func (*timeoutErr) Timeout() bool   { return true }
func (*timeoutErr) Temporary() bool { return true }

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("root cause")
	ge := Wrap(cause, 500, "wrapped")

	if ge.Unwrap() != cause {
		t.Error("Unwrap lost the cause")
	}
	if found, ok := IsGatewayError(fmt.Errorf("outer: %w", ge)); !ok || found != ge {
		t.Error("IsGatewayError missed a wrapped GatewayError")
	}
}
