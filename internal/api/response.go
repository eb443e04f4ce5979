package api

import (
	"encoding/json"
	"net/http"
)

// Error is the error body inside a Response envelope. Handlers in the
// sub-packages build their own envelopes; this shape keeps the
// top-level endpoints consistent with them.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the standard API response wrapper.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{Data: data}
	json.NewEncoder(w).Encode(resp)
}

// OK writes a 200 OK response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}
