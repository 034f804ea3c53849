package filter

import (
	"net"
	"net/http"
	"strings"
)

// Filter is one stage of a route's request pipeline. A filter either calls
// next (at most once, optionally with a header-mutated request) to delegate
// to the rest of the chain, or writes a response itself to terminate it.
type Filter interface {
	Name() string
	Process(w http.ResponseWriter, r *http.Request, next func(*http.Request))
}

// ClientIP resolves the caller's address: the first X-Forwarded-For
// element, then X-Real-IP, then the transport peer, then "unknown".
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		return addr
	}
	return "unknown"
}

// StatusWriter records the status code written downstream so the logging
// stage can report it after the chain completes.
type StatusWriter struct {
	http.ResponseWriter
	status int
}

// NewStatusWriter wraps w with a 200 default status.
func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	return &StatusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *StatusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Status returns the recorded status code.
func (w *StatusWriter) Status() int { return w.status }

// Flush forwards to the underlying writer so streamed upstream responses
// keep flushing through the pipeline.
func (w *StatusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
