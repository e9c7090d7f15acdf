package web

import (
	"strings"
	"sync"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/fluxorio/todo/pkg/core/failfast"
	"github.com/valyala/fasthttp"
)

// FastRequestHandler handles fasthttp requests. A returned error is logged
// and answered with a generic 500.
type FastRequestHandler func(ctx *FastRequestContext) error

// FastMiddleware is middleware for fasthttp
type FastMiddleware func(handler FastRequestHandler) FastRequestHandler

// ErrorResponse is the JSON body of every error answered by the router
type ErrorResponse struct {
	Code      string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Router is an explicit method+path route table.
// Paths are matched segment by segment; a segment starting with ':' captures a parameter.
type Router struct {
	mu         sync.RWMutex
	routes     []*fastRoute
	middleware []FastMiddleware
	chain      FastRequestHandler // dispatch wrapped in middleware, rebuilt by Use
	logger     core.Logger
}

type fastRoute struct {
	method  string
	path    string
	handler FastRequestHandler
}

// NewRouter creates an empty route table
func NewRouter(logger core.Logger) *Router {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	r := &Router{
		routes:     make([]*fastRoute, 0),
		middleware: make([]FastMiddleware, 0),
		logger:     logger,
	}
	r.chain = r.dispatch
	return r
}

// Handle registers handler for method and path. Route middleware wraps only
// this handler, inside any global middleware.
func (r *Router) Handle(method, path string, handler FastRequestHandler, middleware ...FastMiddleware) {
	failfast.NotEmpty(method, "method")
	failfast.NotNil(handler, "handler")
	failfast.If(strings.HasPrefix(path, "/"), "route path must start with '/': %q", path)
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, route := range r.routes {
		failfast.If(route.method != method || route.path != path, "duplicate route %s %s", method, path)
	}
	r.routes = append(r.routes, &fastRoute{method: method, path: path, handler: handler})
}

// GET registers a GET route
func (r *Router) GET(path string, handler FastRequestHandler, middleware ...FastMiddleware) {
	r.Handle(fasthttp.MethodGet, path, handler, middleware...)
}

// POST registers a POST route
func (r *Router) POST(path string, handler FastRequestHandler, middleware ...FastMiddleware) {
	r.Handle(fasthttp.MethodPost, path, handler, middleware...)
}

// Use adds global middleware. Global middleware also sees 404 and 405 answers.
// The first middleware added is the outermost.
func (r *Router) Use(middleware ...FastMiddleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware...)

	chain := r.dispatch
	for i := len(r.middleware) - 1; i >= 0; i-- {
		chain = r.middleware[i](chain)
	}
	r.chain = chain
}

// ServeFastHTTP dispatches one request through global middleware and the route table
func (r *Router) ServeFastHTTP(ctx *FastRequestContext) {
	r.mu.RLock()
	handler := r.chain
	r.mu.RUnlock()

	if err := handler(ctx); err != nil {
		r.internalError(ctx, err)
	}
}

func (r *Router) dispatch(ctx *FastRequestContext) error {
	method := string(ctx.Method())
	path := string(ctx.Path())

	r.mu.RLock()
	var (
		matched *fastRoute
		allowed []string
	)
	for _, route := range r.routes {
		if !matchPath(route.path, path) {
			continue
		}
		if route.method == method {
			matched = route
			break
		}
		allowed = appendUnique(allowed, route.method)
	}
	r.mu.RUnlock()

	if matched != nil {
		extractParams(matched.path, path, ctx.Params)
		ctx.route = matched.path
		if err := matched.handler(ctx); err != nil {
			r.internalError(ctx, err)
		}
		return nil
	}

	if len(allowed) > 0 {
		ctx.SetHeader("Allow", strings.Join(allowed, ", "))
		return WriteError(ctx, fasthttp.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
	}
	return WriteError(ctx, fasthttp.StatusNotFound, "not_found", "Not Found")
}

func (r *Router) internalError(ctx *FastRequestContext, err error) {
	r.logger.WithContext(ctx.Context()).WithFields(map[string]interface{}{
		"method": string(ctx.Method()),
		"path":   string(ctx.Path()),
	}).Errorf("request failed: %v", err)
	ctx.RequestCtx.Response.ResetBody()
	_ = WriteError(ctx, fasthttp.StatusInternalServerError, "internal_server_error", "Internal Server Error")
}

// WriteError writes an ErrorResponse carrying the request ID
func WriteError(ctx *FastRequestContext, statusCode int, code, message string) error {
	return ctx.JSON(statusCode, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: ctx.RequestID(),
	})
}

func matchPath(pattern, path string) bool {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return false
	}

	for i, part := range patternParts {
		if strings.HasPrefix(part, ":") {
			if pathParts[i] == "" {
				return false
			}
			continue
		}
		if part != pathParts[i] {
			return false
		}
	}
	return true
}

func extractParams(pattern, path string, params map[string]string) {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	for i, part := range patternParts {
		if strings.HasPrefix(part, ":") && i < len(pathParts) {
			params[strings.TrimPrefix(part, ":")] = pathParts[i]
		}
	}
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
