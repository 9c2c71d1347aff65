package handlers

import (
	"net/http"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/http/middleware"
	"github.com/diagnosis/visitor-management/internal/http/response"
)

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		response.FromError(w, r, err)
		return
	}

	resp, err := h.authService.Login(r.Context(), &req, middleware.ClientIP(r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Logout(r.Context(), middleware.Session(r)); err != nil {
		response.FromError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	sess := middleware.Session(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":       sess.User,
		"expires_at": sess.ExpiresAt,
	})
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.ProfileUpdate
	if err := decodeJSON(r, &req); err != nil {
		response.FromError(w, r, err)
		return
	}

	user, err := h.authService.UpdateProfile(r.Context(), middleware.Session(r), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		response.FromError(w, r, err)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), middleware.Session(r), &req); err != nil {
		response.FromError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
