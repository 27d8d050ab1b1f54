package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/isdelr/blog-be/internal/api/respond"
	"github.com/isdelr/blog-be/internal/auth"
	"github.com/isdelr/blog-be/internal/models"
	"github.com/isdelr/blog-be/internal/services"
)

// AuthHandler handles registration, login and the caller's own account.
type AuthHandler struct {
	service      services.UserServiceProvider
	tokens       *auth.TokenManager
	secureCookie bool
}

// NewAuthHandler creates a new AuthHandler. secureCookie marks the session
// cookie Secure and should be set in production.
func NewAuthHandler(service services.UserServiceProvider, tokens *auth.TokenManager, secureCookie bool) *AuthHandler {
	return &AuthHandler{service: service, tokens: tokens, secureCookie: secureCookie}
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// LoginPayload defines the structure for login requests.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles new user registration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), services.RegisterInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
		Role:     payload.Role,
	})
	if err != nil {
		log.Warn().Err(err).Str("email", payload.Email).Msg("Failed to register user")
		respond.Error(w, r, err)
		return
	}
	h.issueSession(w, r, http.StatusCreated, "User registered successfully", user)
}

// Login handles user authentication and JWT generation.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), payload.Email, payload.Password)
	if err != nil {
		log.Warn().Err(err).Str("email", payload.Email).Msg("Failed authentication attempt")
		respond.Error(w, r, err)
		return
	}
	h.issueSession(w, r, http.StatusOK, "Login successful", user)
}

func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, status int, msg string, user models.User) {
	token, err := h.tokens.GenerateJWT(user.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate JWT")
		respond.Error(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.tokens.Expiry()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	respond.JSON(w, status, respond.Body{"message": msg, "token": token, "user": user})
}

// Logout clears the session cookie. Bearer tokens stay valid until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	respond.Message(w, http.StatusOK, "Logged out successfully")
}

// Me returns the authenticated caller's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByID(r.Context(), principal(r).UserID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Body{"user": user})
}

// UpdateProfile changes the caller's name and email.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  *string `json:"name"`
		Email *string `json:"email"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	id := principal(r).UserID
	user, err := h.service.UpdateProfile(r.Context(), id, services.ProfileUpdate{Name: payload.Name, Email: payload.Email})
	if err != nil {
		log.Warn().Err(err).Str("user_id", id).Msg("Failed to update profile")
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Body{"message": "Profile updated successfully", "user": user})
}

// ChangePassword handles changing the caller's password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	id := principal(r).UserID
	if err := h.service.UpdatePassword(r.Context(), id, payload.CurrentPassword, payload.NewPassword); err != nil {
		log.Warn().Err(err).Str("user_id", id).Msg("Failed to change password")
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, http.StatusOK, "Password changed successfully")
}
