package security

import (
	"strconv"

	"github.com/fluxorio/todo/pkg/web"
)

// HeadersConfig configures security headers. Empty string fields are not sent.
type HeadersConfig struct {
	// HSTS (HTTP Strict Transport Security)
	HSTS           bool
	HSTSMaxAge     int // in seconds, default 31536000 (1 year)
	HSTSIncludeSub bool

	CSP                       string
	XFrameOptions             string
	XContentTypeOptions       bool // nosniff
	ReferrerPolicy            string
	PermissionsPolicy         string
	CrossOriginOpenerPolicy   string
	CrossOriginResourcePolicy string

	// Custom headers
	CustomHeaders map[string]string
}

// DefaultHeadersConfig returns headers for JSON API responses
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		HSTS:                      true,
		HSTSMaxAge:                31536000,
		HSTSIncludeSub:            true,
		CSP:                       "default-src 'none'; frame-ancestors 'none'; base-uri 'none'",
		XFrameOptions:             "DENY",
		XContentTypeOptions:       true,
		ReferrerPolicy:            "no-referrer",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-origin",
	}
}

// DocsHeadersConfig returns headers for the API reference page, which loads
// its script from the Scalar CDN and fetches the OpenAPI document from this origin.
func DocsHeadersConfig() HeadersConfig {
	cfg := DefaultHeadersConfig()
	cfg.CSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
		"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net https://fonts.googleapis.com; " +
		"font-src 'self' data: https://fonts.gstatic.com https://cdn.jsdelivr.net; " +
		"img-src 'self' data: https:; connect-src 'self'; frame-ancestors 'none'; base-uri 'none'"
	cfg.CrossOriginResourcePolicy = "cross-origin"
	return cfg
}

// Headers middleware adds security headers to responses
func Headers(config HeadersConfig) web.FastMiddleware {
	headers := config.build()

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			for _, h := range headers {
				ctx.SetHeader(h[0], h[1])
			}
			return next(ctx)
		}
	}
}

// build resolves the config once into header name/value pairs
func (c HeadersConfig) build() [][2]string {
	var headers [][2]string
	add := func(name, value string) {
		if value != "" {
			headers = append(headers, [2]string{name, value})
		}
	}

	if c.HSTS {
		maxAge := c.HSTSMaxAge
		if maxAge <= 0 {
			maxAge = 31536000
		}
		hsts := "max-age=" + strconv.Itoa(maxAge)
		if c.HSTSIncludeSub {
			hsts += "; includeSubDomains"
		}
		add("Strict-Transport-Security", hsts)
	}
	add("Content-Security-Policy", c.CSP)
	add("X-Frame-Options", c.XFrameOptions)
	if c.XContentTypeOptions {
		add("X-Content-Type-Options", "nosniff")
	}
	add("Referrer-Policy", c.ReferrerPolicy)
	add("Permissions-Policy", c.PermissionsPolicy)
	add("Cross-Origin-Opener-Policy", c.CrossOriginOpenerPolicy)
	add("Cross-Origin-Resource-Policy", c.CrossOriginResourcePolicy)
	for key, value := range c.CustomHeaders {
		add(key, value)
	}
	return headers
}
