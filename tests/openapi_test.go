package tests

import (
	"io"
	"net/http"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

// TestOpenAPISpecIsValid fetches the served OpenAPI 3.0 document and runs the
// full schema validation over it.
func TestOpenAPISpecIsValid(t *testing.T) {
	ts := startServer(t)

	resp := ts.httpDo(t, http.MethodGet, "/api/openapi-3.0", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read spec: %v", err)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		t.Fatalf("OpenAPI document is invalid: %v", err)
	}

	// Every public operation must be present.
	for _, path := range []string{
		"/api/create", "/api/view", "/api/update",
		"/api/custom-name", "/api/delete",
		"/api/list", "/api/list-pending",
		"/health",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("OpenAPI document missing path %s", path)
		}
	}
}
