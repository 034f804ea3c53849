package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// GatewayError is a failure that can be returned to clients as the uniform
// response envelope {code, message, data:null}.
type GatewayError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
	underlying error
}

func (e *GatewayError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.underlying
}

// WriteJSON writes the error envelope to the response. Status, content type
// and CORS headers are set uniformly for every failure category.
func (e *GatewayError) WriteJSON(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
	w.WriteHeader(e.Code)
	if pre, ok := preSerialized[e]; ok {
		w.Write(pre)
		return
	}
	json.NewEncoder(w).Encode(e)
}

// Common errors
var (
	ErrNoRoute = &GatewayError{
		Code:    http.StatusServiceUnavailable,
		Message: "Service temporarily unavailable",
	}

	ErrUpstreamConnect = &GatewayError{
		Code:    http.StatusBadGateway,
		Message: "Unable to connect to downstream service",
	}

	ErrUpstreamTimeout = &GatewayError{
		Code:    http.StatusGatewayTimeout,
		Message: "Gateway timeout",
	}

	ErrUnauthorized = &GatewayError{
		Code:    http.StatusUnauthorized,
		Message: "Unauthorized access",
	}

	ErrForbidden = &GatewayError{
		Code:    http.StatusForbidden,
		Message: "Access forbidden",
	}

	ErrRateLimited = &GatewayError{
		Code:    http.StatusTooManyRequests,
		Message: "Rate limit exceeded",
	}

	ErrBadParams = &GatewayError{
		Code:    http.StatusBadRequest,
		Message: "Invalid request parameters",
	}

	ErrInternal = &GatewayError{
		Code:    http.StatusInternalServerError,
		Message: "Internal server error",
	}
)

// preSerialized holds JSON-encoded bytes for base error singletons.
var preSerialized map[*GatewayError][]byte

func init() {
	bases := []*GatewayError{
		ErrNoRoute, ErrUpstreamConnect, ErrUpstreamTimeout,
		ErrUnauthorized, ErrForbidden, ErrRateLimited,
		ErrBadParams, ErrInternal,
	}
	preSerialized = make(map[*GatewayError][]byte, len(bases))
	for _, e := range bases {
		b, _ := json.Marshal(e)
		b = append(b, '\n') // match json.Encoder behavior
		preSerialized[e] = b
	}
}

// New creates a new GatewayError
func New(code int, message string) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a client-facing status and message
func Wrap(err error, code int, message string) *GatewayError {
	return &GatewayError{
		Code:       code,
		Message:    message,
		underlying: err,
	}
}

// IsGatewayError checks if an error is a GatewayError
func IsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// Translate maps an internal failure to its client-facing envelope.
// Filter-raised GatewayErrors pass through with their own status; upstream
// transport failures are classified by cause; everything else is a 500.
func Translate(err error) *GatewayError {
	if err == nil {
		return nil
	}

	if ge, ok := IsGatewayError(err); ok {
		return ge
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrUpstreamTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrUpstreamConnect
	}

	// Other dial/transport failures mean the upstream is unreachable
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrNoRoute
	}

	return ErrInternal
}
