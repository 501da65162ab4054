// Package httpx holds small HTTP response helpers shared by the upgrade
// handler and the request middleware. It keeps only the error-writer
// convention from the teacher's core/pkg/api package (WriteUnauthorized);
// the teacher's full RFC-7807 ProblemDetail machinery is heavier than this
// gateway needs — see DESIGN.md.
package httpx

import (
	"encoding/json"
	"net/http"
)

// errorBody is the JSON body shape spec.md §6 requires for a rejected
// upgrade: {"error": "...", "details": "..."}.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// WriteUnauthorized writes a 401 with the Shield error-body shape.
func WriteUnauthorized(w http.ResponseWriter, details string) {
	writeError(w, http.StatusUnauthorized, "Unauthorized", details)
}

func writeError(w http.ResponseWriter, status int, title, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: title, Details: details})
}
