package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/auth"
)

const maxJSONBody = 1 << 20

// decodeJSON reads exactly one JSON object into dst. Fields dst does not
// declare are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperror.PayloadTooLarge("Request body is too large")
		case errors.Is(err, io.EOF):
			return apperror.Validation("Request body is required")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return apperror.Validation("Unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field "))
		default:
			return apperror.Validation("Invalid request body")
		}
	}
	if dec.More() {
		return apperror.Validation("Request body must contain a single JSON object")
	}
	return nil
}

// principal returns the caller attached by the auth middleware. Handlers
// behind RequireAuth can rely on it being present.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
