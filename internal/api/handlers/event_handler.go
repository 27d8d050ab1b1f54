package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/isdelr/blog-be/internal/api/respond"
	"github.com/isdelr/blog-be/internal/services"
)

// EventHandler handles HTTP requests related to the activity log.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent handles the request to get recent activity/events.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	events, err := h.service.GetRecentEvents(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve events")
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Body{"count": len(events), "events": events})
}
