package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/potholewatch/backend/internal/auth"
)

type contextKey string

const (
	ContextKeySubject   contextKey = "subject"
	ContextKeyRole      contextKey = "role"
	ContextKeyName      contextKey = "name"
	ContextKeyAuthority contextKey = "authority"
)

// Auth requires a valid bearer token and puts its claims in the context.
func Auth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "AUTH", "missing token")
				return
			}

			claims, err := jwtManager.ParseAndValidate(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "AUTH", "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth accepts anonymous requests. A token that is present but
// invalid is still rejected so clients notice expired sessions.
func OptionalAuth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := jwtManager.ParseAndValidate(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "AUTH", "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, ContextKeySubject, claims.Subject)
	ctx = context.WithValue(ctx, ContextKeyRole, claims.Role)
	ctx = context.WithValue(ctx, ContextKeyName, claims.Name)
	ctx = context.WithValue(ctx, ContextKeyAuthority, claims.Authority)
	return ctx
}

// GetSubject returns the authenticated user id, or "".
func GetSubject(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeySubject).(string)
	return val
}

// GetRole returns the authenticated role, or "".
func GetRole(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeyRole).(string)
	return val
}

// GetName returns the display name carried by the token.
func GetName(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeyName).(string)
	return val
}

// GetAuthority returns the authority of a scoped admin token.
func GetAuthority(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeyAuthority).(string)
	return val
}

// Authenticated reports whether a token was verified for this request.
func Authenticated(ctx context.Context) bool {
	return GetSubject(ctx) != ""
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
