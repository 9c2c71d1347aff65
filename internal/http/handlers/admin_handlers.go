package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/http/middleware"
	"github.com/diagnosis/visitor-management/internal/http/response"
)

func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers(r.Context(), middleware.Session(r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetUser(r.Context(), middleware.Session(r), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		response.FromError(w, r, err)
		return
	}

	user, err := h.userService.CreateUser(r.Context(), middleware.Session(r), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		response.FromError(w, r, err)
		return
	}

	user, err := h.userService.UpdateUser(r.Context(), middleware.Session(r), chi.URLParam(r, "id"), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.userService.DeleteUser(r.Context(), middleware.Session(r), chi.URLParam(r, "id")); err != nil {
		response.FromError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListAllLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.locationService.ListAll(r.Context(), middleware.Session(r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}

func (h *Handlers) GetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.locationService.Get(r.Context(), middleware.Session(r), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *Handlers) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req domain.LocationRequest
	if err := decodeJSON(r, &req); err != nil {
		response.FromError(w, r, err)
		return
	}

	loc, err := h.locationService.Create(r.Context(), middleware.Session(r), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (h *Handlers) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req domain.LocationRequest
	if err := decodeJSON(r, &req); err != nil {
		response.FromError(w, r, err)
		return
	}

	loc, err := h.locationService.Update(r.Context(), middleware.Session(r), chi.URLParam(r, "id"), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *Handlers) DeactivateLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.locationService.Deactivate(r.Context(), middleware.Session(r), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *Handlers) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := h.locationService.Delete(r.Context(), middleware.Session(r), chi.URLParam(r, "id")); err != nil {
		response.FromError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
