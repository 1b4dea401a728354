package http

import (
	"net/http"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
)

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, r, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		if err := h.opts.Ready(r.Context()); err != nil {
			logHTTPOperationError(r.Context(), "readyz", http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable", err)
			writeError(w, r, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable")
			return
		}
	}
	writeMessage(w, r, http.StatusOK, "ready")
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req application.IssueTokenInput
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, r, "issue_token", err)
		return
	}
	token, err := h.service.IssueAccessToken(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, r, "issue_token", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, token)
}

func (h *Handler) getBrand(w http.ResponseWriter, r *http.Request) {
	brand, err := h.service.GetBrand(r.Context(), requestActor(r.Context()))
	if err != nil {
		writeMappedError(r.Context(), w, r, "get_brand", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, brand)
}
