package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mercadinho/api/internal/store"
	"github.com/mercadinho/api/internal/store/memory"
)

// doRequest runs one request through the given router and returns the
// recorder. A non-nil body is JSON-encoded.
func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func newRouter(register func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	register(r)
	return r
}

func seedCategory(t *testing.T, st *memory.Store, name, discount string) store.Category {
	t.Helper()
	c, err := st.CreateCategory(context.Background(), store.Category{
		Name:               name,
		DiscountPercentage: decimal.RequireFromString(discount),
	})
	if err != nil {
		t.Fatalf("seed category %q: %v", name, err)
	}
	return c
}

func seedProduct(t *testing.T, st *memory.Store, name, price string, categoryID int64) store.Product {
	t.Helper()
	p, err := st.CreateProduct(context.Background(), store.Product{
		Name:       name,
		Price:      decimal.RequireFromString(price),
		CategoryID: categoryID,
	})
	if err != nil {
		t.Fatalf("seed product %q: %v", name, err)
	}
	return p
}

func seedSale(t *testing.T, st *memory.Store, productID int64, qty int, total, profit string, date time.Time) store.Sale {
	t.Helper()
	s, err := st.CreateSale(context.Background(), store.Sale{
		ProductID:  productID,
		Quantity:   qty,
		TotalPrice: decimal.RequireFromString(total),
		Profit:     decimal.RequireFromString(profit),
		Date:       date,
	})
	if err != nil {
		t.Fatalf("seed sale: %v", err)
	}
	return s
}
