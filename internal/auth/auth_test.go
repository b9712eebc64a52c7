package auth

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
)

func extractCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionCookieFormat(t *testing.T) {
	rr := httptest.NewRecorder()
	CreateSession(rr, 7)
	c := extractCookie(rr, "session")
	if c == nil {
		t.Fatalf("missing session cookie")
	}
	if !regexp.MustCompile(`^[0-9]+\.[A-Za-z0-9_-]+$`).MatchString(c.Value) {
		t.Fatalf("bad cookie format: %s", c.Value)
	}
}

func TestParseSessionRoundTrip(t *testing.T) {
	rr := httptest.NewRecorder()
	CreateSession(rr, 42)
	c := extractCookie(rr, "session")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	uid, ok := ParseSession(req)
	if !ok || uid != 42 {
		t.Fatalf("expected uid 42, got %d (%v)", uid, ok)
	}
}

func TestParseSessionRejectsTampering(t *testing.T) {
	rr := httptest.NewRecorder()
	CreateSession(rr, 42)
	c := extractCookie(rr, "session")

	// swap the user id, keep the signature
	tampered := "43." + c.Value[len("42."):]
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: tampered})
	if _, ok := ParseSession(req); ok {
		t.Fatalf("tampered cookie accepted")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "garbage"})
	if _, ok := ParseSession(req); ok {
		t.Fatalf("garbage cookie accepted")
	}
}

func TestRequireAuthWithoutSession(t *testing.T) {
	h := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/abonnes", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
