package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	_ "github.com/lib/pq"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type seedProduct struct {
	name      string
	price     int64 // minor units
	available int
}

// A small demo catalog. Running the seeder twice inserts a fresh batch; it is
// meant for empty development databases.
var products = []seedProduct{
	{"Wireless Mouse", 79900, 40},
	{"Mechanical Keyboard", 349900, 25},
	{"USB-C Hub", 199900, 30},
	{"Desk Lamp", 129900, 50},
	{"Laptop Stand", 159900, 35},
	{"Noise Cancelling Headphones", 899900, 15},
	{"Webcam", 249900, 20},
	{"Portable SSD 1TB", 649900, 18},
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	for _, p := range products {
		id := uuid.New().String()
		_, err := db.ExecContext(ctx, `
			INSERT INTO products (id, name, price, available, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
		`, id, p.name, p.price, p.available)
		if err != nil {
			logger.Error("failed to insert product", "error", err, "name", p.name)
			os.Exit(1)
		}
		logger.Info("product inserted", "id", id, "name", p.name, "price", p.price, "available", p.available)
	}

	logger.Info("seed complete", "products", len(products))
}
