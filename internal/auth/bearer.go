package auth

import (
	"net/http"
	"strings"
)

// BearerToken extracts the credential from an "Authorization: Bearer"
// header. It returns "" when the header is absent or uses another scheme.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// LiveCredential is BearerToken with a fallback to the "token" query
// parameter, for websocket clients that cannot set headers.
func LiveCredential(r *http.Request) string {
	if token := BearerToken(r); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}
