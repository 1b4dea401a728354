package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
)

func (h *Handler) createLicenseKey(w http.ResponseWriter, r *http.Request) {
	var req application.CreateLicenseKeyInput
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, r, "create_license_key", err)
		return
	}
	key, err := h.service.CreateLicenseKey(r.Context(), requestActor(r.Context()), req)
	if err != nil {
		writeMappedError(r.Context(), w, r, "create_license_key", err)
		return
	}
	writeSuccess(w, r, http.StatusCreated, key)
}

func (h *Handler) getLicenseKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.service.GetLicenseKey(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_key_id"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "get_license_key", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, key)
}

func (h *Handler) updateLicenseKey(w http.ResponseWriter, r *http.Request) {
	var req application.UpdateLicenseKeyInput
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, r, "update_license_key", err)
		return
	}
	key, err := h.service.UpdateLicenseKey(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_key_id"), req)
	if err != nil {
		writeMappedError(r.Context(), w, r, "update_license_key", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, key)
}

func (h *Handler) licenseKeyStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.LicenseKeyStatus(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_key_id"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "license_key_status", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, status)
}

func (h *Handler) listLicenses(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListLicenses(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_key_id"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "list_licenses", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, map[string]any{"licenses": items})
}

func (h *Handler) createLicense(w http.ResponseWriter, r *http.Request) {
	var req application.CreateLicenseInput
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, r, "create_license", err)
		return
	}
	license, err := h.service.CreateLicense(r.Context(), requestActor(r.Context()), req)
	if err != nil {
		writeMappedError(r.Context(), w, r, "create_license", err)
		return
	}
	writeSuccess(w, r, http.StatusCreated, license)
}

func (h *Handler) getLicense(w http.ResponseWriter, r *http.Request) {
	license, err := h.service.GetLicense(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_id"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "get_license", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, license)
}

func (h *Handler) renewLicense(w http.ResponseWriter, r *http.Request) {
	var req application.RenewLicenseInput
	if err := decodeOptionalBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, r, "renew_license", err)
		return
	}
	license, err := h.service.RenewLicense(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_id"), req)
	if err != nil {
		writeMappedError(r.Context(), w, r, "renew_license", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, license)
}

func (h *Handler) suspendLicense(w http.ResponseWriter, r *http.Request) {
	license, err := h.service.SuspendLicense(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_id"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "suspend_license", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, license)
}

func (h *Handler) resumeLicense(w http.ResponseWriter, r *http.Request) {
	license, err := h.service.ResumeLicense(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_id"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "resume_license", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, license)
}

func (h *Handler) cancelLicense(w http.ResponseWriter, r *http.Request) {
	license, err := h.service.CancelLicense(r.Context(), requestActor(r.Context()), chi.URLParam(r, "license_id"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "cancel_license", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, license)
}
