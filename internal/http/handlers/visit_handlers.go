package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/http/middleware"
	"github.com/diagnosis/visitor-management/internal/http/response"
)

func (h *Handlers) ListVisits(w http.ResponseWriter, r *http.Request) {
	q, err := parseVisitQuery(r, h.config.Server.Location())
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	page, err := h.visitService.List(r.Context(), middleware.Session(r), q)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ExportVisits streams the filtered, unpaginated log as CSV. The body is
// buffered so a failure midway still produces a proper error response.
func (h *Handlers) ExportVisits(w http.ResponseWriter, r *http.Request) {
	q, err := parseVisitQuery(r, h.config.Server.Location())
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := h.visitService.Export(r.Context(), middleware.Session(r), q, &buf); err != nil {
		response.FromError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="visitor-log-%s.csv"`, h.now().Format("2006-01-02")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handlers) VisitStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.visitService.Stats(r.Context(), middleware.Session(r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) GetVisit(w http.ResponseWriter, r *http.Request) {
	visit, err := h.visitService.Get(r.Context(), middleware.Session(r), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

func (h *Handlers) GetVisitor(w http.ResponseWriter, r *http.Request) {
	visitor, err := h.visitService.GetVisitor(r.Context(), middleware.Session(r), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visitor)
}

func (h *Handlers) PreRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.PreRegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		response.FromError(w, r, err)
		return
	}

	resp, err := h.visitService.PreRegister(r.Context(), middleware.Session(r), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) transition(event domain.VisitEvent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visit, err := h.visitService.Transition(r.Context(), middleware.Session(r), chi.URLParam(r, "id"), event)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, visit)
	}
}

func (h *Handlers) HostVisits(w http.ResponseWriter, r *http.Request) {
	visits, err := h.visitService.HostVisits(r.Context(), middleware.Session(r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visits)
}

func (h *Handlers) ListActiveLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.locationService.ListActive(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}

func (h *Handlers) ListHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.userService.ListHosts(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}
