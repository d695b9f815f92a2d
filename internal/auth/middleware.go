package auth

import (
	"errors"
	"net/http"
	"strings"
)

// RequireScope rejects requests that do not carry a valid bearer token with
// the given scope. A nil Service disables the check.
func RequireScope(authSvc *Service, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authSvc == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="queuehealth"`)
				writeAuthError(w, "authentication required", http.StatusUnauthorized)
				return
			}
			claims, err := authSvc.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, ErrTokenExpired) {
					msg = "token expired"
				}
				writeAuthError(w, msg, http.StatusUnauthorized)
				return
			}
			if !claims.HasScope(scope) {
				writeAuthError(w, ErrInsufficientScope.Error(), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
