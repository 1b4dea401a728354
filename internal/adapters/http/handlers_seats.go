package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
)

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	var req application.SeatRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, r, "activate", err)
		return
	}
	res, err := h.service.Activate(r.Context(), requestActor(r.Context()), req)
	if err != nil {
		writeMappedError(r.Context(), w, r, "activate", err)
		return
	}
	status := http.StatusCreated
	if res.Reactivated {
		status = http.StatusOK
	}
	writeSuccess(w, r, status, res)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	var req application.DeactivateInput
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, r, "deactivate", err)
		return
	}
	res, err := h.service.Deactivate(r.Context(), requestActor(r.Context()), req)
	if err != nil {
		writeMappedError(r.Context(), w, r, "deactivate", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, res)
}

func (h *Handler) verifyActivation(w http.ResponseWriter, r *http.Request) {
	var req application.SeatRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, r, "verify_activation", err)
		return
	}
	res, err := h.service.VerifyActivation(r.Context(), requestActor(r.Context()), req)
	if err != nil {
		writeMappedError(r.Context(), w, r, "verify_activation", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, res)
}

func (h *Handler) forceDeactivate(w http.ResponseWriter, r *http.Request) {
	var req application.ForceDeactivateInput
	if err := decodeOptionalBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, r, "force_deactivate", err)
		return
	}
	res, err := h.service.ForceDeactivateAll(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_id"), req)
	if err != nil {
		writeMappedError(r.Context(), w, r, "force_deactivate", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, res)
}

func (h *Handler) seatUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.service.SeatUsage(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_id"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "seat_usage", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, usage)
}

func (h *Handler) listActivations(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListActivations(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_id"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "list_activations", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, map[string]any{"activations": items})
}

func (h *Handler) customerLicensesInBrand(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.CustomerLicensesInBrand(r.Context(), requestActor(r.Context()), r.URL.Query().Get("email"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "customer_licenses_in_brand", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, summary)
}

func (h *Handler) customerLicenses(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.CustomerLicenses(r.Context(), requestActor(r.Context()), r.URL.Query().Get("email"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "customer_licenses", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, summary)
}
