package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/conductor-go/internal/logging"
)

const authRealm = `Bearer realm="conductor"`

// authMiddleware requires "Authorization: Bearer <apiKey>". An empty apiKey
// disables the check. Token values are never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		switch {
		case !ok:
			deny(w, r, authRealm, "authorization required", "missing bearer token")
		case subtle.ConstantTimeCompare([]byte(token), want) != 1:
			deny(w, r, authRealm+` error="invalid_token"`, "invalid token", "invalid bearer token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func deny(w http.ResponseWriter, r *http.Request, challenge, body, reason string) {
	logging.FromContext(r.Context()).Warn("auth: request denied",
		slog.String("reason", reason),
		slog.String("remote", clientIP(r)),
	)
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, body, http.StatusUnauthorized)
}

// bearerToken returns the token of a Bearer Authorization header. The scheme
// is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
