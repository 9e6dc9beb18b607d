package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/store"
)

func sessionStore(sessions map[string]store.Session) fakeStore {
	return fakeStore{
		getSessionFn: func(ctx context.Context, sessionID string) (store.Session, error) {
			sess, ok := sessions[sessionID]
			if !ok {
				return store.Session{}, store.ErrSessionNotFound
			}
			return sess, nil
		},
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMissingSession(t *testing.T) {
	h := AuthMiddleware(sessionStore(nil), okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/queues", nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestAuthInvalidSession(t *testing.T) {
	h := AuthMiddleware(sessionStore(nil), okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/queues", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestAuthHealthzIsPublic(t *testing.T) {
	h := AuthMiddleware(sessionStore(nil), okHandler())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestAuthRoles(t *testing.T) {
	sessions := map[string]store.Session{
		"counter-sess": {SessionID: "counter-sess", Role: store.RoleCounter},
		"care-sess":    {SessionID: "care-sess", Role: store.RolePatientCare},
		"admin-sess":   {SessionID: "admin-sess", Role: store.RoleAdmin},
	}

	cases := []struct {
		name    string
		method  string
		path    string
		session string
		want    int
	}{
		{"counter registers", http.MethodPost, "/api/entries", "counter-sess", http.StatusOK},
		{"care cannot register", http.MethodPost, "/api/entries", "care-sess", http.StatusForbidden},
		{"care operates queue", http.MethodPost, "/api/entries/actions/call-next", "care-sess", http.StatusOK},
		{"counter cannot operate queue", http.MethodPost, "/api/entries/actions/call-next", "counter-sess", http.StatusForbidden},
		{"admin registers", http.MethodPost, "/api/entries", "admin-sess", http.StatusOK},
		{"admin operates queue", http.MethodGet, "/api/queues", "admin-sess", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := AuthMiddleware(sessionStore(sessions), okHandler())

			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("X-Session-ID", tc.session)
			resp := httptest.NewRecorder()
			h.ServeHTTP(resp, req)

			if resp.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, resp.Code)
			}
		})
	}
}

func TestSessionReachesHandlers(t *testing.T) {
	sessions := map[string]store.Session{
		"care-sess": {SessionID: "care-sess", UserID: "u7", Role: store.RolePatientCare},
	}

	var got store.Session
	var found bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = sessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := AuthMiddleware(sessionStore(sessions), inner)

	req := httptest.NewRequest(http.MethodGet, "/api/queues", nil)
	req.Header.Set("X-Session-ID", "care-sess")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !found || got.UserID != "u7" || got.Role != store.RolePatientCare {
		t.Fatalf("session not propagated to handler: found=%v session=%+v", found, got)
	}
}

func TestBearerTokenParsing(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := bearerToken(tc.header); got != tc.want {
			t.Fatalf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
