package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/blog-be/internal/api/respond"
	"github.com/isdelr/blog-be/internal/models"
	"github.com/isdelr/blog-be/internal/services"
)

// UserHandler handles HTTP requests for user administration.
type UserHandler struct {
	service services.UserServiceProvider
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider) *UserHandler {
	return &UserHandler{service: service}
}

// UserUpdatePayload lists what an administrator may change on an account.
type UserUpdatePayload struct {
	Name  *string      `json:"name"`
	Email *string      `json:"email"`
	Role  *models.Role `json:"role"`
}

// GetAll handles listing every user.
func (h *UserHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users")
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Body{"count": len(users), "users": users})
}

// Get handles retrieving a user by their ID.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := h.service.GetUserByID(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("user_id", id).Msg("Failed to get user by ID")
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Body{"user": user})
}

// Update handles changing a user's name, email or role.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var payload UserUpdatePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), principal(r), id, services.UserUpdate{
		Name:  payload.Name,
		Email: payload.Email,
		Role:  payload.Role,
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", id).Msg("Failed to update user")
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Body{"message": "User updated successfully", "user": user})
}

// Delete handles the permanent deletion of a user account and its posts.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteUser(r.Context(), principal(r), id); err != nil {
		log.Warn().Err(err).Str("user_id", id).Msg("Failed to delete user")
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, http.StatusOK, "User removed")
}
