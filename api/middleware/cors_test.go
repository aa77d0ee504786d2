package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORSAllowsPublicSiteOrigin(t *testing.T) {
	handler := CORS("https://give.wildroots.org/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/donations/checkout", nil)
	req.Header.Set("Origin", "https://give.wildroots.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, Idempotency-Key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://give.wildroots.org" {
		t.Fatalf("expected origin allowed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/donations/checkout", nil)
	req.Header.Set("Origin", "https://give.wildroots.org")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "Idempotent-Replayed") {
		t.Fatalf("expected replay header exposed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/projects/x/funding", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected origin allowed: %q", got)
	}
}
