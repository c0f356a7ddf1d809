package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mercadinho/api/internal/store"
)

// DashboardStore defines the aggregate queries needed by the dashboard.
// Satisfied by any store.Store; narrow interface for testability.
type DashboardStore interface {
	CountProducts(ctx context.Context) (int, error)
	SalesTotals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error)
	SalesSeries(ctx context.Context, g store.Granularity) ([]store.SeriesPoint, error)
}

// DashboardHandler serves the aggregated dashboard view. Every call
// recomputes from current store state; there is no caching layer.
type DashboardHandler struct {
	store              DashboardStore
	defaultGranularity store.Granularity
}

func NewDashboardHandler(st DashboardStore, defaultGranularity store.Granularity) *DashboardHandler {
	return &DashboardHandler{store: st, defaultGranularity: defaultGranularity}
}

// RegisterRoutes registers the dashboard endpoint. Expected mount: /
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard-stats", h.Stats)
}

// --- Response types ---

type chartPoint struct {
	Date       string `json:"date"`
	TotalSales string `json:"total_sales"`
	Profit     string `json:"profit"`
}

type dashboardResponse struct {
	TotalProducts   int          `json:"total_products"`
	TotalSalesValue string       `json:"total_sales_value"`
	TotalProfit     string       `json:"total_profit"`
	ChartData       []chartPoint `json:"chart_data"`
}

// Stats aggregates product count, sales totals and the time-bucketed series.
// The empty dataset yields zeros and an empty chart, not an error.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	granularity := h.defaultGranularity
	if raw := r.URL.Query().Get("granularity"); raw != "" {
		var err error
		if granularity, err = store.ParseGranularity(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	ctx := r.Context()

	totalProducts, err := h.store.CountProducts(ctx)
	if err != nil {
		log.Printf("ERROR: count products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	salesValue, profit, err := h.store.SalesTotals(ctx)
	if err != nil {
		log.Printf("ERROR: sales totals: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	series, err := h.store.SalesSeries(ctx, granularity)
	if err != nil {
		log.Printf("ERROR: sales series: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := dashboardResponse{
		TotalProducts:   totalProducts,
		TotalSalesValue: salesValue.StringFixed(2),
		TotalProfit:     profit.StringFixed(2),
		ChartData:       make([]chartPoint, len(series)),
	}
	for i, pt := range series {
		resp.ChartData[i] = chartPoint{
			Date:       pt.Date,
			TotalSales: pt.TotalSales.StringFixed(2),
			Profit:     pt.Profit.StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
