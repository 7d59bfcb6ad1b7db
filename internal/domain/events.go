package domain

import "time"

// OrderPlacedEvent is published after checkout to drive the best-effort
// receipt notification. It is never consumed to mutate order state.
type OrderPlacedEvent struct {
	OrderID     string     `json:"order_id"`
	CustomerID  string     `json:"customer_id"`
	Items       []LineItem `json:"items"`
	TotalItems  int        `json:"total_items"`
	TotalAmount int64      `json:"total_amount"`
	PlacedAt    time.Time  `json:"placed_at"`
}
