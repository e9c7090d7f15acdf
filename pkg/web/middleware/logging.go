package middleware

import (
	"time"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/fluxorio/todo/pkg/web"
)

// AccessLog logs one line per request: method, path, status and duration.
// 5xx answers are logged at warn level.
func AccessLog(logger core.Logger) web.FastMiddleware {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.StatusCode()
			entry := logger.WithContext(ctx.Context()).WithFields(map[string]interface{}{
				"method":      string(ctx.Method()),
				"path":        string(ctx.Path()),
				"status":      status,
				"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
			})
			if status >= 500 || err != nil {
				entry.Warn("request completed")
			} else {
				entry.Info("request completed")
			}
			return err
		}
	}
}
