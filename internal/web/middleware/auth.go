package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireAPIKey rejects requests that do not carry key either as a bearer
// token or in the apikey header. An empty key disables the check.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validKey(requestKey(r), key) {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"success": false, "error": "unauthorized", "matches": []}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.Header.Get("apikey")
}

func validKey(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
