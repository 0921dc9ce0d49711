package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/authcore"
)

type errorBody struct {
	Error string `json:"error"`
}

// WriteError answers with the status and stable code of an engine error.
// The error text itself is never written.
func WriteError(w http.ResponseWriter, err error) {
	code := authcore.ErrorCode(err)
	if code == "" {
		code = "internal_error"
	}
	WriteJSON(w, authcore.HTTPStatus(err), errorBody{Error: code})
}

// WriteJSON writes v as a JSON body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
