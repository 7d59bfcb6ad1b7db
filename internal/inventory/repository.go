package inventory

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found")
)

// LedgerRepository owns the available quantity of every product. Stock is only
// mutated through Reserve and Release; the check-and-decrement is a single
// conditional UPDATE so concurrent reservations for the last unit cannot both
// succeed.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Reserve decrements available stock by quantity if and only if enough is
// available. It returns ErrInsufficientStock or ErrProductNotFound otherwise.
func (r *LedgerRepository) Reserve(ctx context.Context, productID string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET available = available - $2, updated_at = NOW()
		WHERE id = $1 AND available >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// The guard rejects both a missing row and a short row; a follow-up
		// read classifies which, the decrement itself stays atomic.
		var available int
		err := r.db.QueryRowContext(ctx, `
			SELECT available FROM products WHERE id = $1
		`, productID).Scan(&available)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}
		return ErrInsufficientStock
	}

	return nil
}

// Release restores quantity after a failed downstream step. It is the
// compensating half of Reserve and must be called at most once per successful
// reservation.
func (r *LedgerRepository) Release(ctx context.Context, productID string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET available = available + $2, updated_at = NOW()
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// Available returns the current available quantity for a product.
func (r *LedgerRepository) Available(ctx context.Context, productID string) (int, error) {
	var available int
	err := r.db.QueryRowContext(ctx, `
		SELECT available FROM products WHERE id = $1
	`, productID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, err
	}
	return available, nil
}
