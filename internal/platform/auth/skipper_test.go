package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		skip bool
	}{
		{"/health", true},
		{"/api/v1/polls", false},
		{"/", false},
		{"/healthz", false},
	}

	e := echo.New()
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetPath(tt.path)

		if got := AuthSkipper(c); got != tt.skip {
			t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.skip)
		}
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health") {
		t.Error("/health should be public")
	}
	if IsPublicPath("/api/v1/polls") {
		t.Error("/api/v1/polls must not be public")
	}
}

// Probes carry no credentials; the liveness endpoint must answer 200
// through the full production middleware chain.
func TestJWTMiddleware_HealthBypassesAuth(t *testing.T) {
	e := echo.New()
	e.Use(JWTMiddleware(testKey))
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("unauthenticated /health = %d, want 200", rec.Code)
	}
}

func TestJWTMiddleware_ProtectedPathStillRequiresToken(t *testing.T) {
	e := echo.New()
	e.Use(JWTMiddleware(testKey))
	e.GET("/api/v1/polls", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/polls", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated protected path = %d, want 401", rec.Code)
	}
}
