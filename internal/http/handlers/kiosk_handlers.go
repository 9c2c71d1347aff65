package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/http/response"
	"github.com/diagnosis/visitor-management/internal/kiosk"
)

func (h *Handlers) StartKiosk(w http.ResponseWriter, r *http.Request) {
	start, err := h.kioskService.Start(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, start)
}

func (h *Handlers) KioskDirectory(w http.ResponseWriter, r *http.Request) {
	dir, err := h.kioskService.Directory(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dir)
}

func (h *Handlers) GetKioskFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.kioskService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

type kioskEventIn struct {
	Event kiosk.Event `json:"event"`
}

func (h *Handlers) FireKioskEvent(w http.ResponseWriter, r *http.Request) {
	var in kioskEventIn
	if err := decodeJSON(r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	if in.Event == "" {
		response.FromError(w, r, domain.NewValidationError("event", "is required"))
		return
	}

	flow, err := h.kioskService.Fire(r.Context(), chi.URLParam(r, "id"), in.Event)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (h *Handlers) ScanPass(w http.ResponseWriter, r *http.Request) {
	var scan domain.KioskQRScan
	if err := decodeJSON(r, &scan); err != nil {
		response.FromError(w, r, err)
		return
	}

	flow, err := h.kioskService.ScanPass(r.Context(), chi.URLParam(r, "id"), &scan)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (h *Handlers) SubmitKioskForm(w http.ResponseWriter, r *http.Request) {
	var form domain.KioskFormRequest
	if err := decodeJSON(r, &form); err != nil {
		response.FromError(w, r, err)
		return
	}

	flow, err := h.kioskService.SubmitForm(r.Context(), chi.URLParam(r, "id"), &form)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (h *Handlers) CaptureKioskPhoto(w http.ResponseWriter, r *http.Request) {
	var req domain.KioskPhotoRequest
	if err := decodeJSON(r, &req); err != nil {
		response.FromError(w, r, err)
		return
	}

	flow, err := h.kioskService.CapturePhoto(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}
