package filter

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/milkpudding/gateway/internal/errors"
	"github.com/milkpudding/gateway/internal/logging"
	"github.com/milkpudding/gateway/internal/metrics"
	"github.com/milkpudding/gateway/internal/ratelimit"
)

// RateLimitFilter denies requests whose client key has exhausted the
// route's token bucket.
type RateLimitFilter struct {
	routeID string
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
}

// NewRateLimitFilter creates a rate-limit stage for the route. m may be nil.
func NewRateLimitFilter(routeID string, limiter *ratelimit.Limiter, m *metrics.Metrics) *RateLimitFilter {
	return &RateLimitFilter{routeID: routeID, limiter: limiter, metrics: m}
}

func (f *RateLimitFilter) Name() string { return "RateLimit" }

func (f *RateLimitFilter) Process(w http.ResponseWriter, r *http.Request, next func(*http.Request)) {
	key := ClientIP(r)

	allowed, remaining := f.limiter.AllowDetail(key)
	if !allowed {
		logging.Warn("rate limit exceeded",
			zap.String("route_id", f.routeID),
			zap.String("client_ip", key),
			zap.String("path", r.URL.Path),
		)
		if f.metrics != nil {
			f.metrics.RateLimited(f.routeID)
		}
		w.Header().Set("Retry-After", "1")
		errors.ErrRateLimited.WriteJSON(w)
		return
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	next(r)
}
