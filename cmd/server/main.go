package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mercadinho/api/internal/config"
	"github.com/mercadinho/api/internal/router"
	"github.com/mercadinho/api/internal/store"
	"github.com/mercadinho/api/internal/store/memory"
	"github.com/mercadinho/api/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	var st store.Store
	switch cfg.Store {
	case "memory":
		log.Println("WARNING: using in-memory store; data is lost on restart")
		st = memory.New()
	case "postgres":
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("connect to database: %v", err)
		}
		defer pool.Close()
		st = postgres.New(pool)
	default:
		log.Fatalf("unknown STORE %q (want postgres or memory)", cfg.Store)
	}

	r := router.New(cfg, st)

	log.Printf("Starting server on :%s", cfg.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		log.Fatal(err)
	}
}
