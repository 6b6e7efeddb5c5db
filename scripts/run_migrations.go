package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/safar/cart-billing/internal/config"
	"github.com/safar/cart-billing/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := database.Ping(ctx, db); err != nil {
		log.Fatalf("Ping database: %v", err)
	}

	applied, err := database.RunMigrations(ctx, db, "migrations", direction)
	if err != nil {
		log.Fatalf("Run migrations: %v", err)
	}

	for _, filename := range applied {
		log.Printf("Ran migration: %s", filename)
	}
	log.Printf("Successfully ran %d migration(s) %s", len(applied), direction)
}
