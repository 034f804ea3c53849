package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/milkpudding/gateway/internal/errors"
	"github.com/milkpudding/gateway/internal/logging"
)

// Recovery converts handler panics into a 500 envelope instead of letting
// them kill the connection.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logging.Error("panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)
					errors.ErrInternal.WriteJSON(w)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
