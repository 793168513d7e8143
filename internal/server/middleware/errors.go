package middleware

import (
	"encoding/json"
	"net/http"
)

// writeJSONError writes {"error": msg} with status. The handler package has
// its own helpers; middleware must not import it.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// probePath reports whether path is scraped or polled by infrastructure
// rather than called by operators.
func probePath(path string) bool {
	return path == "/metrics" || path == "/api/health"
}
