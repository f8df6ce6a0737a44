package http

import (
	"encoding/json"
	"net/http"
	"strings"

	httpmiddleware "github.com/potholewatch/backend/internal/http/middleware"
	"github.com/potholewatch/backend/internal/service"
)

type loginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Role         string `json:"role"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Authority    string `json:"authority,omitempty"`
}

// Signup registers a regular user.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "invalid JSON", nil)
		return
	}

	profile, err := h.accounts.Signup(r.Context(), service.SignupInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, profile)
}

// Login exchanges credentials for tokens.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "invalid JSON", nil)
		return
	}
	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "email and password are required", nil)
		return
	}

	result, err := h.accounts.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toLoginResponse(result))
}

// Refresh rotates a refresh token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "invalid JSON", nil)
		return
	}

	result, err := h.accounts.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toLoginResponse(result))
}

// Logout revokes a refresh token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "invalid JSON", nil)
		return
	}

	if err := h.accounts.Logout(r.Context(), payload.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}

// Me returns the profile of the authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.accounts.GetMe(r.Context(), httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

func toLoginResponse(result *service.LoginResult) loginResponse {
	return loginResponse{
		Token:        result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    int64(result.ExpiresIn.Seconds()),
		Role:         result.Profile.Role,
		UserID:       result.Profile.ID,
		Name:         result.Profile.Name,
		Authority:    result.Profile.Authority,
	}
}
