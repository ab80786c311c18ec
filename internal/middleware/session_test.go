package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func sessionEcho(t *testing.T) (http.Handler, *string) {
	t.Helper()
	var captured string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetSessionIDFromContext(r.Context())
		if !ok {
			t.Errorf("session id missing from context")
		}
		captured = id
		w.WriteHeader(http.StatusOK)
	})
	return h, &captured
}

func TestSessionMiddleware_IssuesNewSession(t *testing.T) {
	m := NewSessionMiddleware("secret")
	h, captured := sessionEcho(t)

	rec := httptest.NewRecorder()
	m.Middleware(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if *captured == "" {
		t.Fatalf("expected a fresh session id")
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatalf("session cookie must be http-only")
	}
}

func TestSessionMiddleware_ReusesValidCookie(t *testing.T) {
	m := NewSessionMiddleware("secret")
	h, captured := sessionEcho(t)

	// Первый запрос выдаёт cookie, второй должен попасть в ту же сессию.
	first := httptest.NewRecorder()
	m.Middleware(h).ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	firstID := *captured

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(first.Result().Cookies()[0])

	second := httptest.NewRecorder()
	m.Middleware(h).ServeHTTP(second, req)

	if *captured != firstID {
		t.Fatalf("session id = %s, want %s", *captured, firstID)
	}
	if len(second.Result().Cookies()) != 0 {
		t.Fatalf("no new cookie must be issued for a valid session")
	}
}

func TestSessionMiddleware_RejectsTamperedCookie(t *testing.T) {
	m := NewSessionMiddleware("secret")
	h, captured := sessionEcho(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "forged.deadbeef"})

	rec := httptest.NewRecorder()
	m.Middleware(h).ServeHTTP(rec, req)

	// Порченый cookie не даёт доступ к чужой корзине: выдаётся новая сессия.
	if *captured == "forged" {
		t.Fatalf("tampered session id must not be accepted")
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Fatalf("expected replacement cookie")
	}
}

func TestSessionMiddleware_DifferentSecretInvalidatesCookie(t *testing.T) {
	issuer := NewSessionMiddleware("secret-a")
	h, captured := sessionEcho(t)

	first := httptest.NewRecorder()
	issuer.Middleware(h).ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	firstID := *captured

	verifier := NewSessionMiddleware("secret-b")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(first.Result().Cookies()[0])

	rec := httptest.NewRecorder()
	verifier.Middleware(h).ServeHTTP(rec, req)

	if *captured == firstID {
		t.Fatalf("cookie signed with another key must not be accepted")
	}
}
