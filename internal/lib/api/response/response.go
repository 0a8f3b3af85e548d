// Package response writes the JSON envelopes returned by every endpoint.
package response

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every failed request.
type Error struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// OK is the common part of successful bodies. Endpoints embed it.
type OK struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func NewOK(code int, msg string) OK {
	return OK{Success: true, StatusCode: code, Message: msg}
}

// WriteJSON writes v with the given status code. Responses are never cached
// since most of them carry tokens or personal data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

func WriteError(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, Error{
		Success:    false,
		StatusCode: code,
		Message:    msg,
	})
}

func InternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal error")
}
