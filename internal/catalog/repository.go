package catalog

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/aftabansari2005/client-ecommerce/internal/domain"
)

// Repository is the read-only catalog collaborator: the order engine consults
// it for product existence and for the unit price snapshotted onto line items.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByIDs returns the matching products keyed by id. Callers detect unknown
// products by absence from the map.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price, available, created_at, updated_at
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}
