package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"medicapp-sync/internal/domain"
	"medicapp-sync/internal/service"
	"medicapp-sync/pkg/response"
)

type AuthHandler struct {
	auth     *service.AuthService
	sessions *service.SessionService
}

func NewAuthHandler(auth *service.AuthService, sessions *service.SessionService) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	res, err := h.auth.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(w, "Invalid credentials")
			return
		}
		writeServiceError(w, err, "Login failed")
		return
	}

	response.Success(w, res)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(); err != nil {
		response.InternalError(w, "Logout failed")
		return
	}

	response.Success(w, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.CurrentUser()
	if err != nil {
		response.InternalError(w, "Failed to read session")
		return
	}
	if user == nil {
		response.Unauthorized(w, "No active session")
		return
	}

	response.Success(w, map[string]interface{}{
		"user":              user,
		"minutes_remaining": h.sessions.GetTimeRemaining(),
	})
}
