package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/fluxorio/todo/pkg/web"
	"github.com/valyala/fasthttp"
)

// RecoveryConfig configures panic recovery middleware
type RecoveryConfig struct {
	// Logger is the logger to use for panic logging (default: core.NewDefaultLogger())
	Logger core.Logger

	// StackTrace logs the goroutine stack with the panic
	StackTrace bool
}

// DefaultRecoveryConfig returns a default recovery configuration
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Logger:     core.NewDefaultLogger(),
		StackTrace: true,
	}
}

// Recovery middleware recovers from panics and returns the generic 500 error.
// The panic value is logged, never sent to the client.
func Recovery(config RecoveryConfig) web.FastMiddleware {
	logger := config.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					fields := map[string]interface{}{
						"method": string(ctx.Method()),
						"path":   string(ctx.Path()),
					}
					if config.StackTrace {
						fields["stack"] = string(debug.Stack())
					}
					logger.WithContext(ctx.Context()).WithFields(fields).Errorf("Panic recovered: %v", r)

					ctx.RequestCtx.Response.ResetBody()
					err = web.WriteError(ctx, fasthttp.StatusInternalServerError, "internal_server_error", "Internal Server Error")
					if err != nil {
						err = fmt.Errorf("write panic response: %w", err)
					}
				}
			}()

			return next(ctx)
		}
	}
}
