package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aftabansari2005/client-ecommerce/internal/domain"
)

var (
	ErrValidation          = errors.New("invalid order")
	ErrReferenceAlreadySet = errors.New("payment reference already set")
	ErrPaymentPending      = errors.New("order has a pending payment")
)

// StoreRepository is the durable record of orders and the single source of
// truth for payment and fulfillment state.
type StoreRepository struct {
	db *sql.DB
}

func NewStoreRepository(db *sql.DB) *StoreRepository {
	return &StoreRepository{db: db}
}

// Create persists the order and its line items in one transaction. The order
// arrives with server-computed totals and payment status awaiting; Create
// assigns the id and timestamps.
func (r *StoreRepository) Create(ctx context.Context, order *domain.Order) error {
	if len(order.Items) == 0 {
		return fmt.Errorf("%w: no line items", ErrValidation)
	}
	for _, item := range order.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("%w: quantity %d for product %s", ErrValidation, item.Quantity, item.ProductID)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_id, fulfillment_status, payment_status,
			total_amount, total_items,
			ship_name, ship_street, ship_city, ship_pin_code, ship_phone,
			deleted, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $12)
	`, order.ID, order.CustomerID, order.Fulfillment, order.Payment,
		order.TotalAmount, order.TotalItems,
		order.ShippingAddress.Name, order.ShippingAddress.Street, order.ShippingAddress.City,
		order.ShippingAddress.PinCode, order.ShippingAddress.Phone, now)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New().String(), order.ID, item.ProductID, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *StoreRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// FindByPaymentReference locates the order a gateway event refers to. The
// processor's reference is the correlation key; the event never supplies an
// order id directly.
func (r *StoreRepository) FindByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	return r.getOne(ctx, `WHERE payment_reference = $1`, reference)
}

func (r *StoreRepository) getOne(ctx context.Context, where string, arg any) (*domain.Order, error) {
	order := &domain.Order{}
	var reference sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, fulfillment_status, payment_status, payment_reference,
		       total_amount, total_items,
		       ship_name, ship_street, ship_city, ship_pin_code, ship_phone,
		       deleted, created_at, updated_at
		FROM orders
	`+where, arg).Scan(
		&order.ID, &order.CustomerID, &order.Fulfillment, &order.Payment, &reference,
		&order.TotalAmount, &order.TotalItems,
		&order.ShippingAddress.Name, &order.ShippingAddress.Street, &order.ShippingAddress.City,
		&order.ShippingAddress.PinCode, &order.ShippingAddress.Phone,
		&order.Deleted, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	order.PaymentReference = reference.String

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
	`, order.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

// SetPaymentReference stores the gateway intent id on the order. The reference
// is set at most once; a second write for the same order fails.
func (r *StoreRepository) SetPaymentReference(ctx context.Context, orderID, reference string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_reference = $2, updated_at = NOW()
		WHERE id = $1 AND payment_reference IS NULL
	`, orderID, reference)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		order, err := r.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return sql.ErrNoRows
		}
		return ErrReferenceAlreadySet
	}

	return nil
}

// SetPaymentStatus transitions the payment status under the forward-only rule:
// only awaiting may move, and only for the order matching the reference. The
// WHERE guard makes concurrent and redundant deliveries safe; applying the
// same terminal status twice reports applied=false with no error.
func (r *StoreRepository) SetPaymentStatus(ctx context.Context, orderID, reference string, status domain.PaymentStatus) (applied bool, err error) {
	if !status.Terminal() {
		return false, fmt.Errorf("%w: %q is not a terminal payment status", ErrValidation, status)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $3, updated_at = NOW()
		WHERE id = $1 AND payment_reference = $2 AND payment_status = $4
	`, orderID, reference, status, domain.PaymentAwaiting)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

type ListFilter struct {
	IncludeDeleted bool
	SortKey        string
	SortDesc       bool
	Page           int
	Limit          int
}

// Allowed sort keys; anything else falls back to created_at.
var sortColumns = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"total_amount": "total_amount",
}

// List is the administrative query: page of orders plus the total count for
// the same filter. Soft-deleted orders are excluded unless asked for.
func (r *StoreRepository) List(ctx context.Context, filter ListFilter) ([]domain.Order, int, error) {
	where := `WHERE deleted = FALSE`
	if filter.IncludeDeleted {
		where = `WHERE TRUE`
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders `+where).Scan(&total); err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[filter.SortKey]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, customer_id, fulfillment_status, payment_status, payment_reference,
		       total_amount, total_items,
		       ship_name, ship_street, ship_city, ship_pin_code, ship_phone,
		       deleted, created_at, updated_at
		FROM orders
		%s
		ORDER BY %s %s
		LIMIT $1 OFFSET $2
	`, where, column, direction), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		var reference sql.NullString
		if err := rows.Scan(
			&order.ID, &order.CustomerID, &order.Fulfillment, &order.Payment, &reference,
			&order.TotalAmount, &order.TotalItems,
			&order.ShippingAddress.Name, &order.ShippingAddress.Street, &order.ShippingAddress.City,
			&order.ShippingAddress.PinCode, &order.ShippingAddress.Phone,
			&order.Deleted, &order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		order.PaymentReference = reference.String
		order.Items = []domain.LineItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, total, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.LineItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, 0, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, 0, err
	}

	result := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *orderMap[id])
	}

	return result, total, nil
}

// Patch carries the only fields administrative updates may touch. Line items,
// totals and payment status are never patched.
type Patch struct {
	ShippingAddress *domain.Address
	Fulfillment     *domain.FulfillmentStatus
}

func (r *StoreRepository) Update(ctx context.Context, id string, patch Patch) (*domain.Order, error) {
	if patch.Fulfillment != nil && !patch.Fulfillment.Valid() {
		return nil, fmt.Errorf("%w: unknown fulfillment status %q", ErrValidation, *patch.Fulfillment)
	}

	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, nil
	}

	fulfillment := order.Fulfillment
	if patch.Fulfillment != nil {
		fulfillment = *patch.Fulfillment
	}
	address := order.ShippingAddress
	if patch.ShippingAddress != nil {
		address = *patch.ShippingAddress
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE orders
		SET fulfillment_status = $2,
		    ship_name = $3, ship_street = $4, ship_city = $5, ship_pin_code = $6, ship_phone = $7,
		    updated_at = NOW()
		WHERE id = $1
	`, id, fulfillment, address.Name, address.Street, address.City, address.PinCode, address.Phone)
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

// SoftDelete marks the order deleted. An order whose payment reference is
// still awaiting its outcome is refused: reconciliation must be able to find
// it.
func (r *StoreRepository) SoftDelete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET deleted = TRUE, updated_at = NOW()
		WHERE id = $1
		  AND NOT (payment_reference IS NOT NULL AND payment_status = $2)
	`, id, domain.PaymentAwaiting)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		order, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if order == nil {
			return sql.ErrNoRows
		}
		return ErrPaymentPending
	}

	return nil
}
