package middleware

import (
	"net/http"

	"github.com/potholewatch/backend/internal/auth"
)

// RequireAdmin lets through the unscoped admin and authority-scoped admins.
// Per-report scoping is enforced by the report service.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(GetRole(r.Context())) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
