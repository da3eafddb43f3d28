package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func applySecurityHeaders(t *testing.T, config SecurityConfig) http.Header {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := SecurityHeadersWithConfig(config)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatal(err)
	}
	return rec.Header()
}

func TestSecurityHeaders(t *testing.T) {
	h := applySecurityHeaders(t, SecurityConfig{
		AllowedDomains: []string{"*"},
		AllowInlineJS:  false,
	})

	if got := h.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := h.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}

	csp := h.Get("Content-Security-Policy")
	if !strings.Contains(csp, "script-src 'self'") || strings.Contains(csp, "script-src 'self' 'unsafe-inline'") {
		t.Errorf("CSP %q should forbid inline scripts", csp)
	}
	if !strings.Contains(csp, "connect-src 'self' *") {
		t.Errorf("CSP %q missing allowed domains", csp)
	}
}

func TestSecurityHeadersInlineJS(t *testing.T) {
	h := applySecurityHeaders(t, SecurityConfig{AllowInlineJS: true})

	csp := h.Get("Content-Security-Policy")
	if !strings.Contains(csp, "script-src 'self' 'unsafe-inline'") {
		t.Errorf("CSP %q should allow inline scripts", csp)
	}
	if strings.Contains(csp, "connect-src") {
		t.Errorf("CSP %q has connect-src without allowed domains", csp)
	}
}
