package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mercadinho/api/internal/config"
	"github.com/mercadinho/api/internal/csvio"
	"github.com/mercadinho/api/internal/handler"
	"github.com/mercadinho/api/internal/store"
)

// New creates a Chi router with all application routes wired up. The
// presentation layer (served elsewhere) talks to these endpoints only.
func New(cfg *config.Config, st store.Store) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	categoryHandler := handler.NewCategoryHandler(st)
	r.Route("/categories", categoryHandler.RegisterRoutes)

	productHandler := handler.NewProductHandler(st)
	r.Route("/products", productHandler.RegisterRoutes)

	saleHandler := handler.NewSaleHandler(st)
	r.Route("/sales", saleHandler.RegisterRoutes)

	granularity, err := store.ParseGranularity(cfg.DashboardGranularity)
	if err != nil {
		granularity = store.GranularityDaily
	}
	dashboardHandler := handler.NewDashboardHandler(st, granularity)
	dashboardHandler.RegisterRoutes(r)

	importHandler := handler.NewImportHandler(csvio.NewImporter(st), csvio.NewExporter(st))
	importHandler.RegisterRoutes(r)

	return r
}
