package filter

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/milkpudding/gateway/internal/errors"
	"github.com/milkpudding/gateway/internal/logging"
	"github.com/milkpudding/gateway/internal/metrics"
	"github.com/milkpudding/gateway/internal/token"
)

const bearerPrefix = "Bearer "

// AuthFilter validates the bearer token on non-exempt paths and injects
// the caller's identity as forwarded headers.
type AuthFilter struct {
	codec       *token.Codec
	exemptPaths []string
	metrics     *metrics.Metrics
}

// NewAuthFilter creates an auth stage. exemptPaths entries match their
// path exactly or as a prefix followed by a slash. m may be nil.
func NewAuthFilter(codec *token.Codec, exemptPaths []string, m *metrics.Metrics) *AuthFilter {
	return &AuthFilter{codec: codec, exemptPaths: exemptPaths, metrics: m}
}

func (f *AuthFilter) Name() string { return "Auth" }

// Exempt reports whether the path skips authentication.
func (f *AuthFilter) Exempt(path string) bool {
	for _, p := range f.exemptPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func (f *AuthFilter) Process(w http.ResponseWriter, r *http.Request, next func(*http.Request)) {
	if f.Exempt(r.URL.Path) {
		next(r)
		return
	}

	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, bearerPrefix) {
		f.reject(w, r, "missing or malformed Authorization header")
		return
	}

	claims, err := f.codec.Parse(strings.TrimPrefix(authz, bearerPrefix))
	if err != nil {
		f.reject(w, r, "token validation failed")
		return
	}

	r.Header.Set("X-User-Id", claims.Subject)
	r.Header.Set("X-Username", claims.Username)
	next(r)
}

func (f *AuthFilter) reject(w http.ResponseWriter, r *http.Request, reason string) {
	logging.Warn("request rejected by auth",
		zap.String("path", r.URL.Path),
		zap.String("reason", reason),
	)
	if f.metrics != nil {
		f.metrics.AuthRejected()
	}
	errors.ErrUnauthorized.WriteJSON(w)
}
