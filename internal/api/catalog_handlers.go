package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/command"
)

// Category Handlers

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.queryHandler.ListCategories(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *Handlers) GetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.queryHandler.GetCategory(r.Context(), chi.URLParam(r, "categoryID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, category)
}

func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateCategory
	if err := decodeJSON(r, &cmd); err != nil {
		respondBadRequest(w, err.Error())
		return
	}

	category, err := h.cmdHandler.CreateCategory(r.Context(), middleware.CallerFromContext(r.Context()), cmd)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, category)
}

func (h *Handlers) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var cmd command.UpdateCategory
	if err := decodeJSON(r, &cmd); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	cmd.CategoryID = chi.URLParam(r, "categoryID")

	category, err := h.cmdHandler.UpdateCategory(r.Context(), middleware.CallerFromContext(r.Context()), cmd)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, category)
}

func (h *Handlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	cmd := command.DeleteCategory{CategoryID: chi.URLParam(r, "categoryID")}
	if err := h.cmdHandler.DeleteCategory(r.Context(), middleware.CallerFromContext(r.Context()), cmd); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Product Handlers

// ListProducts returns active products, optionally filtered by
// ?category_id=.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.queryHandler.ListProducts(r.Context(), r.URL.Query().Get("category_id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.queryHandler.GetProduct(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "productID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateProduct
	if err := decodeJSON(r, &cmd); err != nil {
		respondBadRequest(w, err.Error())
		return
	}

	product, err := h.cmdHandler.CreateProduct(r.Context(), middleware.CallerFromContext(r.Context()), cmd)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var cmd command.UpdateProduct
	if err := decodeJSON(r, &cmd); err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	cmd.ProductID = chi.URLParam(r, "productID")

	product, err := h.cmdHandler.UpdateProduct(r.Context(), middleware.CallerFromContext(r.Context()), cmd)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	cmd := command.DeleteProduct{ProductID: chi.URLParam(r, "productID")}
	if err := h.cmdHandler.DeleteProduct(r.Context(), middleware.CallerFromContext(r.Context()), cmd); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
