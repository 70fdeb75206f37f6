package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nnvector/ivfcoord/pkg/api/rest/middleware"
	"github.com/nnvector/ivfcoord/pkg/observability"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := Config{
		Host:        "127.0.0.1",
		Port:        0,
		CORSEnabled: true,
		CORSOrigins: []string{"*"},
		Auth:        middleware.AuthConfig{Enabled: false},
		RateLimit:   middleware.RateLimitConfig{Enabled: false},
	}
	return NewServer(cfg, testCoordinator(t), SearchDefaults{}, observability.NewMetrics(), observability.NewDefaultLogger())
}

func TestServerRoutesHealth(t *testing.T) {
	s := testServer(t)
	handler := s.withMiddleware(s.mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestServerCORSPreflight(t *testing.T) {
	s := testServer(t)
	handler := s.withMiddleware(s.mux)

	req := httptest.NewRequest(http.MethodOptions, "/v1/search", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("expected wildcard CORS origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestServerAuthRejectsWithoutToken(t *testing.T) {
	cfg := Config{
		Host: "127.0.0.1",
		Auth: middleware.AuthConfig{
			Enabled:     true,
			JWTSecret:   "test-secret",
			PublicPaths: []string{"/v1/health"},
		},
		RateLimit: middleware.RateLimitConfig{Enabled: false},
	}
	s := NewServer(cfg, testCoordinator(t), SearchDefaults{}, observability.NewMetrics(), observability.NewDefaultLogger())
	handler := s.withMiddleware(s.mux)

	// public path still works without a token
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public path to bypass auth, got %d", rec.Code)
	}

	// protected path requires a token
	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestServerAuthAcceptsValidToken(t *testing.T) {
	secret := "test-secret"
	cfg := Config{
		Host: "127.0.0.1",
		Auth: middleware.AuthConfig{
			Enabled:     true,
			JWTSecret:   secret,
			PublicPaths: []string{"/v1/health"},
		},
		RateLimit: middleware.RateLimitConfig{Enabled: false},
	}
	s := NewServer(cfg, testCoordinator(t), SearchDefaults{}, observability.NewMetrics(), observability.NewDefaultLogger())
	handler := s.withMiddleware(s.mux)

	token, err := middleware.GenerateToken("u1", "alice", []string{"user"}, "", secret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid token, got %d: %s", rec.Code, rec.Body.String())
	}
}
