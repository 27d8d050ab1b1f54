// Package respond writes the JSON envelope shared by every endpoint: a
// "success" flag plus either the payload fields or a "message".
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/isdelr/blog-be/internal/apperror"
)

// Body is a response payload; "success" is filled in by JSON and Error.
type Body map[string]any

// JSON writes payload with success=true.
func JSON(w http.ResponseWriter, status int, payload Body) {
	if payload == nil {
		payload = Body{}
	}
	payload["success"] = true
	write(w, status, payload)
}

// Message writes a success envelope carrying only a message.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, Body{"message": msg})
}

// Error maps err to its status code and writes a failure envelope.
// Unexpected and upstream errors are logged here; their detail never reaches the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperror.KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
	}
	Fail(w, status, apperror.MessageOf(err))
}

// Fail writes a failure envelope with an explicit status and message.
func Fail(w http.ResponseWriter, status int, msg string) {
	write(w, status, Body{"success": false, "message": msg})
}

func write(w http.ResponseWriter, status int, payload Body) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}
