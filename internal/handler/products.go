package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mercadinho/api/internal/store"
)

const (
	defaultPageSize = 15
	maxPageSize     = 200
)

// ProductStore defines the store methods needed by product handlers.
// Satisfied by any store.Store; narrow interface for testability.
type ProductStore interface {
	ListProducts(ctx context.Context, f store.ProductFilter) ([]store.Product, int, int, error)
	GetProduct(ctx context.Context, id int64) (store.Product, error)
	CreateProduct(ctx context.Context, p store.Product) (store.Product, error)
	UpdateProduct(ctx context.Context, p store.Product) (store.Product, error)
	ListCategories(ctx context.Context) ([]store.Category, error)
}

// ProductHandler handles product CRUD and listing endpoints.
type ProductHandler struct {
	store ProductStore
}

func NewProductHandler(store ProductStore) *ProductHandler {
	return &ProductHandler{store: store}
}

// RegisterRoutes registers product endpoints. Expected mount: /products
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
}

// --- Request / Response types ---

type productRequest struct {
	Name       string `json:"name"`
	Price      string `json:"price"`
	CategoryID int64  `json:"category_id"`
}

type categoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type productResponse struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Price      string       `json:"price"`
	CategoryID int64        `json:"category_id"`
	Category   *categoryRef `json:"category"`
}

type listProductsResponse struct {
	Items         []productResponse `json:"items"`
	TotalFiltered int               `json:"total_filtered"`
	TotalAll      int               `json:"total_all"`
	Page          int               `json:"page"`
	PageSize      int               `json:"page_size"`
}

// toProductResponse joins the category read model. A dangling category_id
// yields a nil category, the explicit "uncategorized" marker, instead of an
// error.
func toProductResponse(p store.Product, categories map[int64]store.Category) productResponse {
	resp := productResponse{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price.StringFixed(2),
		CategoryID: p.CategoryID,
	}
	if c, ok := categories[p.CategoryID]; ok {
		resp.Category = &categoryRef{ID: c.ID, Name: c.Name}
	}
	return resp
}

func parsePrice(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, errors.New("price is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New("invalid price")
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("price must be >= 0")
	}
	return d, nil
}

// --- Handlers ---

// List returns a filtered, paginated product page. Filtering happens before
// pagination; pages are 1-based and a page past the end is an empty list,
// not an error.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.ProductFilter{
		Search:   q.Get("search"),
		Page:     1,
		PageSize: defaultPageSize,
	}

	if raw := q.Get("category_id"); raw != "" && raw != "all" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid category_id"})
			return
		}
		filter.CategoryID = id
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid page"})
			return
		}
		filter.Page = page
	}

	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > maxPageSize {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid page_size"})
			return
		}
		filter.PageSize = size
	}

	items, totalFiltered, totalAll, err := h.store.ListProducts(r.Context(), filter)
	if err != nil {
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	categories, err := h.categoryMap(r.Context())
	if err != nil {
		log.Printf("ERROR: list categories for join: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := listProductsResponse{
		Items:         make([]productResponse, len(items)),
		TotalFiltered: totalFiltered,
		TotalAll:      totalAll,
		Page:          filter.Page,
		PageSize:      filter.PageSize,
	}
	for i, p := range items {
		resp.Items[i] = toProductResponse(p, categories)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single product with its joined category.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	categories, err := h.categoryMap(r.Context())
	if err != nil {
		log.Printf("ERROR: list categories for join: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product, categories))
}

// Create adds a new product. The referenced category must already exist on
// this path; only CSV import may create sentinel categories.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	price, err := parsePrice(req.Price)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	created, err := h.store.CreateProduct(r.Context(), store.Product{
		Name:       req.Name,
		Price:      price,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		if errors.Is(err, store.ErrReference) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid category_id"})
			return
		}
		log.Printf("ERROR: create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	categories, err := h.categoryMap(r.Context())
	if err != nil {
		log.Printf("ERROR: list categories for join: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(created, categories))
}

// Update modifies an existing product.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	price, err := parsePrice(req.Price)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	updated, err := h.store.UpdateProduct(r.Context(), store.Product{
		ID:         id,
		Name:       req.Name,
		Price:      price,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		if errors.Is(err, store.ErrReference) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid category_id"})
			return
		}
		log.Printf("ERROR: update product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	categories, err := h.categoryMap(r.Context())
	if err != nil {
		log.Printf("ERROR: list categories for join: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(updated, categories))
}

func (h *ProductHandler) categoryMap(ctx context.Context) (map[int64]store.Category, error) {
	categories, err := h.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]store.Category, len(categories))
	for _, c := range categories {
		m[c.ID] = c
	}
	return m, nil
}
