package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	var called bool
	mw := CORS(CORSOptions{AllowedOrigins: []string{"https://dash.example.com"}})
	req := httptest.NewRequest(http.MethodGet, "/assign-ai", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization, X-Request-ID", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	var called bool
	mw := CORS(CORSOptions{AllowedOrigins: []string{"https://dash.example.com"}})
	req := httptest.NewRequest(http.MethodGet, "/assign-ai", nil)
	req.Header.Set("Origin", "https://unknown.example")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	var called bool
	mw := CORS(CORSOptions{AllowedOrigins: []string{"*"}, MaxAgeSeconds: 60})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://random.example")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	assert.Equal(t, "https://random.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "60", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSHandlesPreflight(t *testing.T) {
	var called bool
	mw := CORS(CORSOptions{AllowedOrigins: []string{"https://dash.example.com"}})
	req := httptest.NewRequest(http.MethodOptions, "/send-message", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCORSWithoutOriginPassesThrough(t *testing.T) {
	var called bool
	mw := CORS(CORSOptions{})
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/health", nil))

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
