// Package docs serves the OpenAPI description and the Scalar API reference.
package docs

import (
	_ "embed"
	"fmt"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/fluxorio/todo/pkg/web"
	"github.com/valyala/fasthttp"
	"gopkg.in/yaml.v3"
)

const (
	// OpenAPIPath serves the OpenAPI document as JSON
	OpenAPIPath = "/openapi/v1.json"

	// ReferencePath serves the Scalar API reference page
	ReferencePath = "/scalar/v1"
)

//go:embed openapi.yaml
var openAPIYAML []byte

// OpenAPIJSON converts the embedded OpenAPI YAML document to JSON
func OpenAPIJSON() ([]byte, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(openAPIYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	return core.JSONEncode(doc)
}

const referencePage = `<!doctype html>
<html>
  <head>
    <title>Todo API Reference</title>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
  </head>
  <body>
    <script id="api-reference" data-url="%s"></script>
    <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
  </body>
</html>
`

// Register adds the documentation routes to router. The document is
// converted once here so a broken document fails at startup.
func Register(router *web.Router, middleware ...web.FastMiddleware) error {
	doc, err := OpenAPIJSON()
	if err != nil {
		return err
	}
	page := []byte(fmt.Sprintf(referencePage, OpenAPIPath))

	router.GET(OpenAPIPath, func(ctx *web.FastRequestContext) error {
		return ctx.Data(fasthttp.StatusOK, "application/json; charset=utf-8", doc)
	}, middleware...)
	router.GET(ReferencePath, func(ctx *web.FastRequestContext) error {
		return ctx.Data(fasthttp.StatusOK, "text/html; charset=utf-8", page)
	}, middleware...)
	return nil
}
