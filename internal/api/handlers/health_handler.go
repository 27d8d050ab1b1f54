package handlers

import (
	"net/http"
	"time"

	"github.com/isdelr/blog-be/internal/api/respond"
)

// Health reports that the server is up.
func Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, respond.Body{
		"message":   "Server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
