package filter

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/milkpudding/gateway/internal/logging"
	"github.com/milkpudding/gateway/internal/metrics"
	"github.com/milkpudding/gateway/internal/middleware"
)

// LoggingFilter records request entry and, after the remaining chain has
// run to completion, the duration and final status.
type LoggingFilter struct {
	routeID string
	metrics *metrics.Metrics
}

// NewLoggingFilter creates a logging stage for the route. m may be nil.
func NewLoggingFilter(routeID string, m *metrics.Metrics) *LoggingFilter {
	return &LoggingFilter{routeID: routeID, metrics: m}
}

func (f *LoggingFilter) Name() string { return "Logging" }

func (f *LoggingFilter) Process(w http.ResponseWriter, r *http.Request, next func(*http.Request)) {
	start := time.Now()
	clientIP := ClientIP(r)

	logging.Info("request received",
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.String("route_id", f.routeID),
		zap.String("method", r.Method),
		zap.String("uri", r.RequestURI),
		zap.String("client_ip", clientIP),
	)

	next(r)

	elapsed := time.Since(start)
	status := 0
	if sw, ok := w.(*StatusWriter); ok {
		status = sw.Status()
	}

	logging.Info("request completed",
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.String("route_id", f.routeID),
		zap.Int("status", status),
		zap.Duration("duration", elapsed),
	)
	if f.metrics != nil {
		f.metrics.ObserveRequest(f.routeID, r.Method, status, elapsed)
	}
}
