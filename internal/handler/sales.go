package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mercadinho/api/internal/pricing"
	"github.com/mercadinho/api/internal/store"
)

const defaultSalesPageSize = 50

// SaleStore defines the store methods needed by sale handlers.
// Satisfied by any store.Store; narrow interface for testability.
type SaleStore interface {
	ListSales(ctx context.Context, f store.SaleFilter) ([]store.Sale, int, error)
	GetSale(ctx context.Context, id int64) (store.Sale, error)
	CreateSale(ctx context.Context, s store.Sale) (store.Sale, error)
	UpdateSale(ctx context.Context, s store.Sale) (store.Sale, error)
	GetProduct(ctx context.Context, id int64) (store.Product, error)
	ListProducts(ctx context.Context, f store.ProductFilter) ([]store.Product, int, int, error)
}

// SaleHandler handles sale entry and listing endpoints.
type SaleHandler struct {
	store SaleStore
}

func NewSaleHandler(store SaleStore) *SaleHandler {
	return &SaleHandler{store: store}
}

// RegisterRoutes registers sale endpoints. Expected mount: /sales
func (h *SaleHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
}

// --- Request / Response types ---

// TotalPrice and Profit may be supplied together to override the computed
// values (historical data correction); otherwise both are derived from the
// product price.
type saleRequest struct {
	ProductID  int64   `json:"product_id"`
	Quantity   int     `json:"quantity"`
	TotalPrice *string `json:"total_price"`
	Profit     *string `json:"profit"`
	Date       string  `json:"date"`
}

type productRef struct {
	Name string `json:"name"`
}

type saleResponse struct {
	ID         int64       `json:"id"`
	ProductID  int64       `json:"product_id"`
	Quantity   int         `json:"quantity"`
	TotalPrice string      `json:"total_price"`
	Profit     string      `json:"profit"`
	Date       string      `json:"date"`
	Product    *productRef `json:"product"`
}

type listSalesResponse struct {
	Items    []saleResponse `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

func toSaleResponse(s store.Sale, products map[int64]store.Product) saleResponse {
	resp := saleResponse{
		ID:         s.ID,
		ProductID:  s.ProductID,
		Quantity:   s.Quantity,
		TotalPrice: s.TotalPrice.StringFixed(2),
		Profit:     s.Profit.StringFixed(2),
		Date:       s.Date.Format(time.RFC3339),
	}
	if p, ok := products[s.ProductID]; ok {
		resp.Product = &productRef{Name: p.Name}
	}
	return resp
}

// resolveSaleValues applies the derived-field rule shared with CSV import:
// recompute from the product unless the caller supplied both overrides.
func resolveSaleValues(req saleRequest, product store.Product) (decimal.Decimal, decimal.Decimal, error) {
	if req.TotalPrice != nil && req.Profit != nil {
		total, err := decimal.NewFromString(*req.TotalPrice)
		if err != nil {
			return decimal.Zero, decimal.Zero, errors.New("invalid total_price")
		}
		if total.IsNegative() {
			return decimal.Zero, decimal.Zero, errors.New("total_price must be >= 0")
		}
		profit, err := decimal.NewFromString(*req.Profit)
		if err != nil {
			return decimal.Zero, decimal.Zero, errors.New("invalid profit")
		}
		return total, profit, nil
	}
	total, profit := pricing.ComputeSaleValues(product.Price, req.Quantity)
	return total, profit, nil
}

func parseSaleDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

// --- Handlers ---

// List returns a page of the sales ledger with joined product names.
func (h *SaleHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.SaleFilter{Page: 1, PageSize: defaultSalesPageSize}
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

	sales, total, err := h.store.ListSales(r.Context(), filter)
	if err != nil {
		log.Printf("ERROR: list sales: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	products, err := h.productMap(r.Context())
	if err != nil {
		log.Printf("ERROR: list products for join: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := listSalesResponse{
		Items:    make([]saleResponse, len(sales)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	for i, s := range sales {
		resp.Items[i] = toSaleResponse(s, products)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create registers a sale, deriving total_price and profit unless both are
// supplied explicitly. Either the whole sale is written or nothing is.
func (h *SaleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be positive"})
		return
	}

	product, err := h.store.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("product %d not found", req.ProductID)})
			return
		}
		log.Printf("ERROR: resolve sale product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	total, profit, err := resolveSaleValues(req, product)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	date, err := parseSaleDate(req.Date)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	created, err := h.store.CreateSale(r.Context(), store.Sale{
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		TotalPrice: total,
		Profit:     profit,
		Date:       date,
	})
	if err != nil {
		if errors.Is(err, store.ErrReference) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("product %d not found", req.ProductID)})
			return
		}
		log.Printf("ERROR: create sale: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toSaleResponse(created, map[int64]store.Product{product.ID: product}))
}

// Update edits a sale in place. Derived fields are recomputed against the
// (possibly new) product unless the caller overrides them; a blind overwrite
// of stale totals is never performed.
func (h *SaleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sale ID"})
		return
	}

	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be positive"})
		return
	}

	existing, err := h.store.GetSale(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sale not found"})
			return
		}
		log.Printf("ERROR: get sale: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	product, err := h.store.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("product %d not found", req.ProductID)})
			return
		}
		log.Printf("ERROR: resolve sale product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	total, profit, err := resolveSaleValues(req, product)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	date := existing.Date
	if req.Date != "" {
		if date, err = parseSaleDate(req.Date); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	updated, err := h.store.UpdateSale(r.Context(), store.Sale{
		ID:         id,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		TotalPrice: total,
		Profit:     profit,
		Date:       date,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sale not found"})
			return
		}
		log.Printf("ERROR: update sale: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toSaleResponse(updated, map[int64]store.Product{product.ID: product}))
}

func (h *SaleHandler) productMap(ctx context.Context) (map[int64]store.Product, error) {
	products, _, _, err := h.store.ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		return nil, err
	}
	m := make(map[int64]store.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m, nil
}
