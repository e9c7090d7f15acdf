package web

import (
	"context"
	"fmt"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/valyala/fasthttp"
)

// FastRequestContext wraps a fasthttp RequestCtx for the duration of one request.
// It must not be retained after the handler returns.
type FastRequestContext struct {
	RequestCtx *fasthttp.RequestCtx
	Params     map[string]string
	requestID  string
	route      string
	ctx        context.Context
}

func newFastRequestContext(rc *fasthttp.RequestCtx, requestID string) *FastRequestContext {
	return &FastRequestContext{
		RequestCtx: rc,
		Params:     make(map[string]string),
		requestID:  requestID,
		ctx:        core.WithRequestID(context.Background(), requestID),
	}
}

// JSON writes a JSON response - fail-fast
func (c *FastRequestContext) JSON(statusCode int, data interface{}) error {
	if statusCode < 100 || statusCode > 599 {
		return fmt.Errorf("invalid status code: %d", statusCode)
	}

	jsonData, err := core.JSONEncode(data)
	if err != nil {
		return fmt.Errorf("json encode error: %w", err)
	}

	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("application/json; charset=utf-8")
	c.RequestCtx.SetBody(jsonData)
	return nil
}

// BindJSON binds the JSON request body to v - fail-fast
func (c *FastRequestContext) BindJSON(v interface{}) error {
	if v == nil {
		return fmt.Errorf("cannot bind to nil value")
	}

	body := c.RequestCtx.PostBody()
	if len(body) == 0 {
		return fmt.Errorf("empty request body")
	}
	return core.JSONDecode(body, v)
}

// Text writes a plain text response
func (c *FastRequestContext) Text(statusCode int, text string) error {
	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("text/plain; charset=utf-8")
	c.RequestCtx.SetBodyString(text)
	return nil
}

// Data writes a raw response with the given content type
func (c *FastRequestContext) Data(statusCode int, contentType string, body []byte) error {
	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType(contentType)
	c.RequestCtx.SetBody(body)
	return nil
}

// SetHeader sets a response header
func (c *FastRequestContext) SetHeader(key, value string) {
	c.RequestCtx.Response.Header.Set(key, value)
}

// Param returns path parameter value
func (c *FastRequestContext) Param(key string) string {
	return c.Params[key]
}

// Method returns HTTP method
func (c *FastRequestContext) Method() []byte {
	return c.RequestCtx.Method()
}

// Path returns request path
func (c *FastRequestContext) Path() []byte {
	return c.RequestCtx.Path()
}

// StatusCode returns the response status written so far
func (c *FastRequestContext) StatusCode() int {
	return c.RequestCtx.Response.StatusCode()
}

// RequestID returns the request ID for this request
func (c *FastRequestContext) RequestID() string {
	return c.requestID
}

// Route returns the pattern of the matched route, or "" when no route matched.
// It is only set once dispatch has happened.
func (c *FastRequestContext) Route() string {
	return c.route
}

// Context returns the request-scoped context carrying the request ID
func (c *FastRequestContext) Context() context.Context {
	return c.ctx
}

// SetContext replaces the request-scoped context (used by tracing middleware)
func (c *FastRequestContext) SetContext(ctx context.Context) {
	if ctx == nil {
		panic("context cannot be nil")
	}
	c.ctx = ctx
}
