package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// openAPIPaths stay reachable without a key so health checks keep working.
var openAPIPaths = map[string]bool{
	"/api/health": true,
}

// Auth guards the /api surface with a shared key, accepted either as an
// "Authorization: Bearer" token or in X-API-Key. The WebSocket and metrics
// endpoints live outside /api and are not guarded. An empty apiKey disables
// the check.
func Auth(apiKey string) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(want) == 0 || !strings.HasPrefix(r.URL.Path, "/api/") || openAPIPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			got, ok := presentedKey(r)
			switch {
			case !ok:
				deny(w, r, "missing api key")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				deny(w, r, "invalid api key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// presentedKey returns the key the caller sent. A Bearer token wins over the
// X-API-Key header.
func presentedKey(r *http.Request) (string, bool) {
	if scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " "); found && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}
	return "", false
}

func deny(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="betslip"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":     msg,
		"requestId": RequestIDFrom(r.Context()),
	})
}
