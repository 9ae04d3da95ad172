package middleware

import (
	"encoding/json"
	"net/http"
)

// writeJSONError writes an error body shaped like the handlers' envelopes.
func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": kind})
}
