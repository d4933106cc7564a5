package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsTestHandler() http.Handler {
	return CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestCORSAllowsLocalhost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/persons", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	recorder := httptest.NewRecorder()

	corsTestHandler().ServeHTTP(recorder, req)

	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("expected localhost origin to be allowed, got %q", got)
	}
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/persons", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	recorder := httptest.NewRecorder()

	corsTestHandler().ServeHTTP(recorder, req)

	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for unknown origin, got %q", got)
	}
}

func TestCORSAllowsWhitelistedOrigin(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://photos.example.com, https://other.example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/persons", nil)
	req.Header.Set("Origin", "https://photos.example.com")
	recorder := httptest.NewRecorder()

	corsTestHandler().ServeHTTP(recorder, req)

	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://photos.example.com" {
		t.Errorf("expected whitelisted origin to be allowed, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/persons", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	recorder := httptest.NewRecorder()

	corsTestHandler().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected preflight to short-circuit with 200, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("expected allow-methods header on preflight")
	}
}
