package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mercadinho/api/internal/store"
)

// CategoryStore defines the store methods needed by category handlers.
// Satisfied by any store.Store; narrow interface for testability.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]store.Category, error)
	GetCategory(ctx context.Context, id int64) (store.Category, error)
	CreateCategory(ctx context.Context, c store.Category) (store.Category, error)
	UpdateCategory(ctx context.Context, c store.Category) (store.Category, error)
}

// CategoryHandler handles category CRUD endpoints.
type CategoryHandler struct {
	store CategoryStore
}

func NewCategoryHandler(store CategoryStore) *CategoryHandler {
	return &CategoryHandler{store: store}
}

// RegisterRoutes registers category endpoints. Expected mount: /categories
func (h *CategoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
}

// --- Request / Response types ---

type categoryRequest struct {
	Name               string `json:"name"`
	DiscountPercentage string `json:"discount_percentage"`
}

type categoryResponse struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	DiscountPercentage string `json:"discount_percentage"`
}

func toCategoryResponse(c store.Category) categoryResponse {
	return categoryResponse{
		ID:                 c.ID,
		Name:               c.Name,
		DiscountPercentage: c.DiscountPercentage.StringFixed(2),
	}
}

func parseDiscount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New("invalid discount_percentage")
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, errors.New("discount_percentage must be between 0 and 100")
	}
	return d, nil
}

// --- Handlers ---

// List returns all categories ordered by id. Sentinel categories (name still
// equal to their numeric id) are included; pending metadata is a valid state,
// not something to hide.
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		log.Printf("ERROR: list categories: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]categoryResponse, len(categories))
	for i, c := range categories {
		resp[i] = toCategoryResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create adds a new category with a fresh id.
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	discount, err := parseDiscount(req.DiscountPercentage)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	created, err := h.store.CreateCategory(r.Context(), store.Category{
		Name:               req.Name,
		DiscountPercentage: discount,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "category already registered"})
			return
		}
		log.Printf("ERROR: create category: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toCategoryResponse(created))
}

// Update renames a category or changes its discount. This is also how a
// sentinel category gets its real name through the manual path.
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid category ID"})
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	discount, err := parseDiscount(req.DiscountPercentage)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	updated, err := h.store.UpdateCategory(r.Context(), store.Category{
		ID:                 id,
		Name:               req.Name,
		DiscountPercentage: discount,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "category not found"})
			return
		}
		if errors.Is(err, store.ErrConflict) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "category already registered"})
			return
		}
		log.Printf("ERROR: update category: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toCategoryResponse(updated))
}
