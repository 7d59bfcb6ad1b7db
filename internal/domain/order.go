package domain

import "time"

type FulfillmentStatus string

const (
	FulfillmentPending   FulfillmentStatus = "pending"
	FulfillmentConfirmed FulfillmentStatus = "confirmed"
	FulfillmentDelivered FulfillmentStatus = "delivered"
	FulfillmentCancelled FulfillmentStatus = "cancelled"
)

func (s FulfillmentStatus) Valid() bool {
	switch s {
	case FulfillmentPending, FulfillmentConfirmed, FulfillmentDelivered, FulfillmentCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentAwaiting PaymentStatus = "awaiting"
	PaymentReceived PaymentStatus = "received"
	PaymentFailed   PaymentStatus = "failed"
)

// Terminal reports whether no further payment event may alter the status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentReceived || s == PaymentFailed
}

// NextPaymentStatus applies the forward-only transition rule: awaiting may move
// to received or failed, terminal states absorb every later event. It returns
// the resulting status and whether the transition applied.
func NextPaymentStatus(current, target PaymentStatus) (PaymentStatus, bool) {
	if current != PaymentAwaiting {
		return current, false
	}
	if !target.Terminal() {
		return current, false
	}
	return target, true
}

// LineItem is a snapshot taken at order time. UnitPrice is in minor currency
// units and is immune to later catalog price changes.
type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type Address struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	PinCode string `json:"pin_code"`
	Phone   string `json:"phone"`
}

type Order struct {
	ID               string            `json:"id"`
	CustomerID       string            `json:"customer_id"`
	Items            []LineItem        `json:"items"`
	TotalItems       int               `json:"total_items"`
	TotalAmount      int64             `json:"total_amount"`
	Fulfillment      FulfillmentStatus `json:"fulfillment_status"`
	Payment          PaymentStatus     `json:"payment_status"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	ShippingAddress  Address           `json:"shipping_address"`
	Deleted          bool              `json:"deleted"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ComputeTotals derives the order totals from its line items. Totals are never
// taken from client input.
func ComputeTotals(items []LineItem) (totalItems int, totalAmount int64) {
	for _, item := range items {
		totalItems += item.Quantity
		totalAmount += int64(item.Quantity) * item.UnitPrice
	}
	return totalItems, totalAmount
}
