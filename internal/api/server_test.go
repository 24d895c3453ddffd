package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danabrams/codegen/internal/completion"
	"github.com/danabrams/codegen/internal/kv"
	"github.com/danabrams/codegen/internal/manager"
	"github.com/danabrams/codegen/internal/runner"
	"github.com/danabrams/codegen/internal/session"
	"github.com/danabrams/codegen/internal/settings"
	"github.com/danabrams/codegen/internal/testutil"
)

type fakeRunner struct {
	res *runner.Result
	err error
}

func (f *fakeRunner) Run(ctx context.Context, code string) (*runner.Result, error) {
	return f.res, f.err
}

type testServer struct {
	*Server
	endpoint *testutil.MockEndpoint
	store    kv.Store
}

func setupTestServer(t *testing.T, steps ...testutil.Step) *testServer {
	return setupTestServerWithConfig(t, Config{Port: 8080, APIKey: "test-key"}, steps...)
}

func setupTestServerWithConfig(t *testing.T, cfg Config, steps ...testutil.Step) *testServer {
	t.Helper()
	endpoint := testutil.NewMockEndpoint(t, steps...)
	store := kv.NewMemory()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	m := manager.New(
		session.NewStore(store),
		settings.NewStore(store, settings.Defaults{BaseURL: endpoint.BaseURL()}),
		completion.NewClient(),
		manager.WithRenderer(hub),
	)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("manager init: %v", err)
	}

	run := &fakeRunner{res: &runner.Result{ConsoleOutput: []string{"hi"}}}
	return &testServer{
		Server:   New(cfg, m, hub, run),
		endpoint: endpoint,
		store:    store,
	}
}

func doRequest(srv *Server, method, path string, body any, auth string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupTestServer(t)

	// Health endpoint should work without auth
	w := doRequest(srv.Server, "GET", "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("health check returned %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupTestServer(t)

	doRequest(srv.Server, "GET", "/health", nil, "")
	w := doRequest(srv.Server, "GET", "/metrics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics returned %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("codegen_http_requests_total")) {
		t.Error("expected http request counter in metrics output")
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv := setupTestServer(t)

	tests := []struct {
		name       string
		path       string
		auth       string
		wantStatus int
	}{
		{"no auth", "/api/sessions", "", http.StatusUnauthorized},
		{"invalid format", "/api/sessions", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "/api/sessions", "Bearer wrong-key", http.StatusUnauthorized},
		{"valid key", "/api/sessions", "Bearer test-key", http.StatusOK},
		{"query token", "/api/sessions?token=test-key", "", http.StatusOK},
		{"health is open", "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(srv.Server, "GET", tt.path, nil, tt.auth)
			if w.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNoAuthWhenKeyUnset(t *testing.T) {
	srv := setupTestServerWithConfig(t, Config{})

	w := doRequest(srv.Server, "GET", "/api/sessions", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", w.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	srv := setupTestServer(t)

	w := doRequest(srv.Server, "GET", "/health", nil, "")
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected generated request id")
	}

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS allow-origin header on preflight")
	}
}
