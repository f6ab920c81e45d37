package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/idone-su/inigma/internal/api"
	"github.com/idone-su/inigma/internal/audit"
	"github.com/idone-su/inigma/internal/secrets"
	"github.com/idone-su/inigma/internal/storage"
)

func init() {
	audit.Enabled = false
}

// testServer holds a running server for integration tests.
type testServer struct {
	URL    string
	server *http.Server
	store  *storage.SQLiteStore
}

// serverConfig allows customizing server and manager configuration for tests.
type serverConfig struct {
	serverOpts    []api.ServerOption
	managerConfig secrets.ManagerConfig
}

// startServer starts a fresh server on a random port with default options.
func startServer(t *testing.T) *testServer {
	t.Helper()
	return startServerWithConfig(t, serverConfig{})
}

// startServerWithConfig starts a server with custom options.
func startServerWithConfig(t *testing.T, cfg serverConfig) *testServer {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	mgr := secrets.NewManager(store, cfg.managerConfig)
	srv := api.NewServer(mgr, "https://inigma.test", cfg.serverOpts...)
	router := srv.Router()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = httpServer.Serve(listener) }()

	ts := &testServer{
		URL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		server: httpServer,
		store:  store,
	}

	// Wait for server to be ready.
	for i := 0; i < 50; i++ {
		resp, err := http.Get(ts.URL + "/health")
		if err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Cleanup(func() {
		_ = httpServer.Close()
		_ = store.Close()
	})
	return ts
}

// httpDo is a helper for direct HTTP API calls against the test server.
func (ts *testServer) httpDo(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// httpJSON decodes a JSON response body into v and closes the body.
func httpJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("failed to unmarshal response (%s): %v", string(b), err)
	}
}

// createSecret creates a secret over HTTP and returns its id.
func (ts *testServer) createSecret(t *testing.T, body map[string]any) string {
	t.Helper()
	resp := ts.httpDo(t, http.MethodPost, "/api/create", body)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("create failed with %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		URL  string `json:"url"`
		View string `json:"view"`
	}
	httpJSON(t, resp, &out)
	if out.View == "" {
		t.Fatal("create returned empty view id")
	}
	return out.View
}
