package api

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the envelope every non-2xx handler reply uses.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes data as a JSON body with the given status code. The
// header is committed before encoding, so encode failures can only be
// logged by the caller's middleware.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes message inside the standard error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
