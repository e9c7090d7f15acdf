package docs

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/fluxorio/todo/pkg/web"
	"github.com/valyala/fasthttp"
)

func TestOpenAPIJSON(t *testing.T) {
	data, err := OpenAPIJSON()
	if err != nil {
		t.Fatalf("OpenAPIJSON: %v", err)
	}

	var doc struct {
		OpenAPI string                            `json:"openapi"`
		Paths   map[string]map[string]interface{} `json:"paths"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document is not valid JSON: %v", err)
	}
	if doc.OpenAPI != "3.1.0" {
		t.Errorf("openapi = %q", doc.OpenAPI)
	}
	ops := doc.Paths["/todos"]
	if _, ok := ops["get"]; !ok {
		t.Error("missing GET /todos")
	}
	if _, ok := ops["post"]; !ok {
		t.Error("missing POST /todos")
	}
}

func TestRegister(t *testing.T) {
	router := web.NewRouter(core.NewNopLogger())
	if err := Register(router); err != nil {
		t.Fatalf("Register: %v", err)
	}
	server := web.NewServer(web.DefaultServerConfig(""), router, core.NewNopLogger())

	tests := []struct {
		path        string
		contentType string
		contains    string
	}{
		{OpenAPIPath, "application/json", `"openapi":"3.1.0"`},
		{ReferencePath, "text/html", `data-url="/openapi/v1.json"`},
	}
	for _, tt := range tests {
		rc := &fasthttp.RequestCtx{}
		rc.Request.Header.SetMethod(fasthttp.MethodGet)
		rc.Request.SetRequestURI(tt.path)
		server.Handler()(rc)

		if rc.Response.StatusCode() != 200 {
			t.Errorf("%s: status = %d", tt.path, rc.Response.StatusCode())
		}
		if ct := string(rc.Response.Header.ContentType()); !strings.HasPrefix(ct, tt.contentType) {
			t.Errorf("%s: Content-Type = %s", tt.path, ct)
		}
		if !strings.Contains(string(rc.Response.Body()), tt.contains) {
			t.Errorf("%s: body missing %s", tt.path, tt.contains)
		}
	}
}
