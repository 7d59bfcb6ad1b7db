package domain

import "time"

// Product carries the catalog fields the order engine needs: the unit price to
// snapshot and the available quantity the ledger owns.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Available int       `json:"available"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
