package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/aftabansari2005/client-ecommerce/internal/domain"
	"github.com/aftabansari2005/client-ecommerce/internal/inventory"
	"github.com/aftabansari2005/client-ecommerce/internal/payment"
)

var (
	ErrInvalidRequest          = errors.New("invalid checkout request")
	ErrStockUnavailable        = errors.New("stock unavailable")
	ErrPersistence             = errors.New("order persistence failed")
	ErrNotFound                = errors.New("order not found")
	ErrPaymentAlreadyInitiated = errors.New("payment already initiated")
)

// PaymentInitiationError means the order was persisted but no payment intent
// could be created for it. The order id lets the caller retry intent creation
// alone; reservation and persistence are never repeated.
type PaymentInitiationError struct {
	OrderID string
	Err     error
}

func (e *PaymentInitiationError) Error() string {
	return fmt.Sprintf("payment initiation failed for order %s: %v", e.OrderID, e.Err)
}

func (e *PaymentInitiationError) Unwrap() error { return e.Err }

// Ledger is the inventory collaborator: atomic check-and-decrement plus the
// compensating release.
type Ledger interface {
	Reserve(ctx context.Context, productID string, quantity int) error
	Release(ctx context.Context, productID string, quantity int) error
}

// Store is the order store surface the coordinator drives.
type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*domain.Order, error)
	SetPaymentReference(ctx context.Context, orderID, reference string) error
	SetPaymentStatus(ctx context.Context, orderID, reference string, status domain.PaymentStatus) (bool, error)
}

// Catalog resolves product existence and the unit prices snapshotted at
// checkout.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// Publisher carries the best-effort receipt notification.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Dedup is an optional fast-path filter for redelivered gateway events.
type Dedup interface {
	Seen(ctx context.Context, eventID string) bool
	Mark(ctx context.Context, eventID string)
}

type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutRequest struct {
	CustomerID      string         `json:"customer_id"`
	Items           []CheckoutItem `json:"items"`
	ShippingAddress domain.Address `json:"shipping_address"`
}

type CheckoutResult struct {
	Order        *domain.Order
	ClientSecret string
}

// Coordinator drives the order lifecycle: checkout as a compensated sequence
// of reserve, persist and intent creation, and reconciliation of asynchronous
// payment outcomes onto stored orders.
type Coordinator struct {
	ledger        Ledger
	store         Store
	catalog       Catalog
	gateway       payment.Gateway
	producer      Publisher
	dedup         Dedup
	logger        *slog.Logger
	currency      string
	ledgerTimeout time.Duration

	ordersPlaced metric.Int64Counter
}

type CoordinatorOption func(*Coordinator)

// WithReceiptPublisher enables the best-effort receipt pipeline.
func WithReceiptPublisher(p Publisher) CoordinatorOption {
	return func(c *Coordinator) { c.producer = p }
}

// WithEventDedup enables the webhook redelivery fast path.
func WithEventDedup(d Dedup) CoordinatorOption {
	return func(c *Coordinator) { c.dedup = d }
}

func WithLedgerTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.ledgerTimeout = timeout }
}

func NewCoordinator(ledger Ledger, store Store, catalog Catalog, gateway payment.Gateway, currency string, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		ledger:        ledger,
		store:         store,
		catalog:       catalog,
		gateway:       gateway,
		logger:        logger,
		currency:      currency,
		ledgerTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.Meter("checkout")
	counter, err := meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Orders persisted through checkout"))
	if err == nil {
		c.ordersPlaced = counter
	}

	return c
}

// CreateOrder turns a checkout request into a durable order: validate, price
// snapshot, reserve stock, persist, create a payment intent, then dispatch a
// best-effort receipt. Reservation and persistence are one unit of work: any
// failure after a reservation releases everything granted so far.
func (c *Coordinator) CreateOrder(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}

	products, err := c.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}

	// Client-supplied prices are ignored; the snapshot comes from the catalog.
	items := make([]domain.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown product %s", ErrInvalidRequest, item.ProductID)
		}
		items = append(items, domain.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
	}

	totalItems, totalAmount := domain.ComputeTotals(items)

	reserved, err := c.reserveAll(ctx, items)
	if err != nil {
		c.releaseAll(ctx, reserved)
		return nil, err
	}

	order := &domain.Order{
		CustomerID:      req.CustomerID,
		Items:           items,
		TotalItems:      totalItems,
		TotalAmount:     totalAmount,
		Fulfillment:     domain.FulfillmentPending,
		Payment:         domain.PaymentAwaiting,
		ShippingAddress: req.ShippingAddress,
	}

	if err := c.store.Create(ctx, order); err != nil {
		// Reservations must never outlive a failed order write.
		c.releaseAll(ctx, items)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if c.ordersPlaced != nil {
		c.ordersPlaced.Add(ctx, 1)
	}

	secret, err := c.initiatePayment(ctx, order)
	if err != nil {
		c.logger.Error("payment intent creation failed", "error", err, "order_id", order.ID)
		return nil, &PaymentInitiationError{OrderID: order.ID, Err: err}
	}

	c.publishReceipt(ctx, order)

	return &CheckoutResult{Order: order, ClientSecret: secret}, nil
}

// RetryPaymentIntent retries intent creation for an order persisted without a
// payment reference. Stock is not re-reserved and the order is not rewritten.
func (c *Coordinator) RetryPaymentIntent(ctx context.Context, orderID string) (*CheckoutResult, error) {
	order, err := c.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil || order.Deleted {
		return nil, ErrNotFound
	}
	if order.PaymentReference != "" {
		return nil, ErrPaymentAlreadyInitiated
	}

	secret, err := c.initiatePayment(ctx, order)
	if err != nil {
		c.logger.Error("payment intent retry failed", "error", err, "order_id", order.ID)
		return nil, &PaymentInitiationError{OrderID: order.ID, Err: err}
	}

	c.publishReceipt(ctx, order)

	return &CheckoutResult{Order: order, ClientSecret: secret}, nil
}

// ReconcilePayment applies an out-of-band gateway event to the order it
// correlates with. Signature and payload violations surface as errors;
// business-level mismatches (unknown reference, already settled order) are
// logged and acknowledged so the processor does not redeliver.
func (c *Coordinator) ReconcilePayment(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := c.gateway.VerifyAndParseEvent(payload, signatureHeader)
	if err != nil {
		return err
	}

	if event.Kind == payment.EventUnhandled {
		c.logger.Info("ignoring unhandled gateway event", "event_id", event.ID, "type", event.Type)
		return nil
	}

	if c.dedup != nil && c.dedup.Seen(ctx, event.ID) {
		c.logger.Info("skipping redelivered gateway event", "event_id", event.ID)
		return nil
	}

	var target domain.PaymentStatus
	switch event.Kind {
	case payment.EventPaymentSucceeded:
		target = domain.PaymentReceived
	case payment.EventPaymentFailed:
		target = domain.PaymentFailed
	default:
		c.logger.Info("ignoring gateway event kind", "event_id", event.ID, "kind", string(event.Kind))
		return nil
	}

	order, err := c.store.FindByPaymentReference(ctx, event.Reference)
	if err != nil {
		return fmt.Errorf("find order by payment reference: %w", err)
	}
	if order == nil {
		// Never invent an order for an uncorrelated event.
		c.logger.Warn("gateway event references unknown payment",
			"event_id", event.ID, "reference", event.Reference)
		return nil
	}

	if _, ok := domain.NextPaymentStatus(order.Payment, target); !ok {
		c.logger.Info("dropping payment event for settled order",
			"event_id", event.ID, "order_id", order.ID, "payment_status", string(order.Payment))
		c.markProcessed(ctx, event.ID)
		return nil
	}

	applied, err := c.store.SetPaymentStatus(ctx, order.ID, event.Reference, target)
	if err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}
	if applied {
		c.logger.Info("payment reconciled",
			"order_id", order.ID, "reference", event.Reference, "payment_status", string(target))
	} else {
		c.logger.Info("payment already settled concurrently",
			"order_id", order.ID, "reference", event.Reference)
	}

	c.markProcessed(ctx, event.ID)
	return nil
}

func validateRequest(req CheckoutRequest) error {
	if req.CustomerID == "" {
		return fmt.Errorf("%w: missing customer id", ErrInvalidRequest)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: missing product id", ErrInvalidRequest)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: quantity %d for product %s", ErrInvalidRequest, item.Quantity, item.ProductID)
		}
		if seen[item.ProductID] {
			return fmt.Errorf("%w: duplicate line item for product %s", ErrInvalidRequest, item.ProductID)
		}
		seen[item.ProductID] = true
	}
	if req.ShippingAddress.Name == "" || req.ShippingAddress.Street == "" || req.ShippingAddress.City == "" {
		return fmt.Errorf("%w: incomplete shipping address", ErrInvalidRequest)
	}
	return nil
}

// reserveAll reserves stock item by item under a bounded wait. On the first
// failure it returns what was granted so far; the caller compensates.
func (c *Coordinator) reserveAll(ctx context.Context, items []domain.LineItem) ([]domain.LineItem, error) {
	reserved := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		reserveCtx, cancel := context.WithTimeout(ctx, c.ledgerTimeout)
		err := c.ledger.Reserve(reserveCtx, item.ProductID, item.Quantity)
		cancel()
		if err != nil {
			if errors.Is(err, inventory.ErrInsufficientStock) || errors.Is(err, inventory.ErrProductNotFound) {
				return reserved, fmt.Errorf("%w: product %s", ErrStockUnavailable, item.ProductID)
			}
			return reserved, fmt.Errorf("reserve stock for product %s: %w", item.ProductID, err)
		}
		reserved = append(reserved, item)
	}
	return reserved, nil
}

// releaseAll is the compensating rollback: granted reservations are released
// in reverse acquisition order, even when the request context is already
// cancelled.
func (c *Coordinator) releaseAll(ctx context.Context, reserved []domain.LineItem) {
	base := context.WithoutCancel(ctx)
	for i := len(reserved) - 1; i >= 0; i-- {
		item := reserved[i]
		releaseCtx, cancel := context.WithTimeout(base, c.ledgerTimeout)
		err := c.ledger.Release(releaseCtx, item.ProductID, item.Quantity)
		cancel()
		if err != nil {
			c.logger.Error("failed to release reservation",
				"error", err, "product_id", item.ProductID, "quantity", item.Quantity)
		}
	}
}

func (c *Coordinator) initiatePayment(ctx context.Context, order *domain.Order) (string, error) {
	intent, err := c.gateway.CreateIntent(ctx, order.TotalAmount, c.currency, order.ID)
	if err != nil {
		return "", err
	}

	if err := c.store.SetPaymentReference(ctx, order.ID, intent.ID); err != nil {
		return "", fmt.Errorf("store payment reference: %w", err)
	}
	order.PaymentReference = intent.ID

	return intent.ClientSecret, nil
}

// publishReceipt is fire-and-forget: a failure is logged and never changes
// the checkout result.
func (c *Coordinator) publishReceipt(ctx context.Context, order *domain.Order) {
	if c.producer == nil {
		return
	}

	event := domain.OrderPlacedEvent{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		Items:       order.Items,
		TotalItems:  order.TotalItems,
		TotalAmount: order.TotalAmount,
		PlacedAt:    order.CreatedAt,
	}
	if err := c.producer.Publish(ctx, order.ID, event); err != nil {
		c.logger.Error("failed to publish receipt event", "error", err, "order_id", order.ID)
	}
}

func (c *Coordinator) markProcessed(ctx context.Context, eventID string) {
	if c.dedup != nil {
		c.dedup.Mark(ctx, eventID)
	}
}
