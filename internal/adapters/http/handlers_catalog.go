package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
)

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req application.CreateProductInput
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, r, "create_product", err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), requestActor(r.Context()), req)
	if err != nil {
		writeMappedError(r.Context(), w, r, "create_product", err)
		return
	}
	writeSuccess(w, r, http.StatusCreated, product)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListProducts(r.Context(), requestActor(r.Context()))
	if err != nil {
		writeMappedError(r.Context(), w, r, "list_products", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, map[string]any{"products": items})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), requestActor(r.Context()), chi.URLParam(r, "product_id"))
	if err != nil {
		writeMappedError(r.Context(), w, r, "get_product", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req application.UpdateProductInput
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, r, "update_product", err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), requestActor(r.Context()), chi.URLParam(r, "product_id"), req)
	if err != nil {
		writeMappedError(r.Context(), w, r, "update_product", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, product)
}
