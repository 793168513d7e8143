package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth guards state-changing requests (opening via POST /api/opportunities,
// manual closes) with apiKey. Reads stay open so dashboards need no secret.
// An empty apiKey disables the check.
func Auth(apiKey string) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || readOnly(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			switch tok := requestToken(r); {
			case tok == "":
				writeJSONError(w, http.StatusUnauthorized, "missing api key")
			case subtle.ConstantTimeCompare([]byte(tok), want) != 1:
				writeJSONError(w, http.StatusUnauthorized, "invalid api key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func readOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// requestToken reads X-API-Key, or an Authorization bearer token.
func requestToken(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(tok)
	}
	return ""
}
