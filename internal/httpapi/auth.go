package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/store"
)

type authContextKey struct{}

// AuthMiddleware is the role-checked command boundary: registration
// needs the counter role, queue operations need the patient-care role,
// admin passes everywhere. Sessions are resolved through the store.
func AuthMiddleware(entryStore store.EntryStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, err := entryStore.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		if !roleAllowed(r, session.Role) {
			writeError(w, http.StatusForbidden, "access_denied", "role not allowed for this action")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (store.Session, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return store.Session{}, false
	}
	session, ok := value.(store.Session)
	return session, ok
}

func roleAllowed(r *http.Request, role string) bool {
	if role == store.RoleAdmin {
		return true
	}
	if r.URL.Path == "/api/entries" && r.Method == http.MethodPost {
		return role == store.RoleCounter
	}
	return role == store.RolePatientCare
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
