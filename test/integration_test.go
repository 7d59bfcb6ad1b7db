//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aftabansari2005/client-ecommerce/internal/domain"
	"github.com/aftabansari2005/client-ecommerce/internal/inventory"
	"github.com/aftabansari2005/client-ecommerce/internal/messaging"
	"github.com/aftabansari2005/client-ecommerce/internal/notifier"
	"github.com/aftabansari2005/client-ecommerce/internal/orders"
)

func insertProduct(t *testing.T, db *sql.DB, name string, price int64, available int) string {
	t.Helper()
	id := uuid.New().String()
	_, err := db.Exec(`
		INSERT INTO products (id, name, price, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`, id, name, price, available)
	if err != nil {
		t.Fatalf("failed to insert product: %v", err)
	}
	return id
}

func sampleOrder(productID string) *domain.Order {
	items := []domain.LineItem{{ProductID: productID, Quantity: 2, UnitPrice: 2500}}
	totalItems, totalAmount := domain.ComputeTotals(items)
	return &domain.Order{
		CustomerID:  "customer-1",
		Items:       items,
		TotalItems:  totalItems,
		TotalAmount: totalAmount,
		Fulfillment: domain.FulfillmentPending,
		Payment:     domain.PaymentAwaiting,
		ShippingAddress: domain.Address{
			Name: "Asha Rao", Street: "12 MG Road", City: "Bengaluru", PinCode: "560001", Phone: "9000000000",
		},
	}
}

func TestOrderStoreFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := orders.NewStoreRepository(db)
	productID := insertProduct(t, db, "Desk Lamp", 2500, 10)

	order := sampleOrder(productID)
	if err := store.Create(ctx, order); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if order.ID == "" {
		t.Fatal("expected an order id")
	}

	fetched, err := store.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if fetched == nil {
		t.Fatal("order not found after create")
	}
	if fetched.TotalAmount != 5000 || fetched.Payment != domain.PaymentAwaiting {
		t.Fatalf("unexpected order state: total=%d payment=%s", fetched.TotalAmount, fetched.Payment)
	}
	if len(fetched.Items) != 1 || fetched.Items[0].UnitPrice != 2500 {
		t.Fatalf("unexpected line items: %+v", fetched.Items)
	}

	t.Run("payment reference is set at most once", func(t *testing.T) {
		if err := store.SetPaymentReference(ctx, order.ID, "pi_123"); err != nil {
			t.Fatalf("SetPaymentReference() error = %v", err)
		}
		if err := store.SetPaymentReference(ctx, order.ID, "pi_456"); !errors.Is(err, orders.ErrReferenceAlreadySet) {
			t.Fatalf("second SetPaymentReference() error = %v, want ErrReferenceAlreadySet", err)
		}

		found, err := store.FindByPaymentReference(ctx, "pi_123")
		if err != nil {
			t.Fatalf("FindByPaymentReference() error = %v", err)
		}
		if found == nil || found.ID != order.ID {
			t.Fatal("order not found by payment reference")
		}
	})

	t.Run("soft delete refuses a pending payment", func(t *testing.T) {
		if err := store.SoftDelete(ctx, order.ID); !errors.Is(err, orders.ErrPaymentPending) {
			t.Fatalf("SoftDelete() error = %v, want ErrPaymentPending", err)
		}
	})

	t.Run("payment status moves forward exactly once", func(t *testing.T) {
		applied, err := store.SetPaymentStatus(ctx, order.ID, "pi_123", domain.PaymentReceived)
		if err != nil {
			t.Fatalf("SetPaymentStatus() error = %v", err)
		}
		if !applied {
			t.Fatal("expected the first transition to apply")
		}

		// Redelivery and a conflicting late event are both absorbed.
		applied, err = store.SetPaymentStatus(ctx, order.ID, "pi_123", domain.PaymentReceived)
		if err != nil || applied {
			t.Fatalf("redelivered event: applied=%v err=%v, want no-op", applied, err)
		}
		applied, err = store.SetPaymentStatus(ctx, order.ID, "pi_123", domain.PaymentFailed)
		if err != nil || applied {
			t.Fatalf("conflicting event: applied=%v err=%v, want no-op", applied, err)
		}

		settled, err := store.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if settled.Payment != domain.PaymentReceived {
			t.Fatalf("payment status = %s, want received", settled.Payment)
		}
	})

	t.Run("soft delete works once the payment settled", func(t *testing.T) {
		if err := store.SoftDelete(ctx, order.ID); err != nil {
			t.Fatalf("SoftDelete() error = %v", err)
		}
		deleted, err := store.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if !deleted.Deleted {
			t.Fatal("expected the order to be marked deleted")
		}
	})
}

func TestListOrders(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := orders.NewStoreRepository(db)
	productID := insertProduct(t, db, "Desk Lamp", 2500, 100)

	var ids []string
	for i := 0; i < 3; i++ {
		order := sampleOrder(productID)
		if err := store.Create(ctx, order); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		ids = append(ids, order.ID)
	}

	page, total, err := store.List(ctx, orders.ListFilter{SortKey: "created_at", Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(page) != 2 {
		t.Errorf("page size = %d, want 2", len(page))
	}
	for _, order := range page {
		if len(order.Items) == 0 {
			t.Errorf("order %s listed without items", order.ID)
		}
	}

	if err := store.SoftDelete(ctx, ids[0]); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	_, total, err = store.List(ctx, orders.ListFilter{Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 {
		t.Errorf("total after delete = %d, want 2", total)
	}

	_, total, err = store.List(ctx, orders.ListFilter{IncludeDeleted: true, Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total with deleted = %d, want 3", total)
	}
}

func TestLedgerConcurrentReserve(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	ledger := inventory.NewLedgerRepository(db)
	productID := insertProduct(t, db, "Portable SSD 1TB", 649900, 1)

	const contenders = 8
	results := make(chan error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.Reserve(ctx, productID, 1)
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, exhausted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, inventory.ErrInsufficientStock):
			exhausted++
		default:
			t.Errorf("unexpected reserve error: %v", err)
		}
	}
	if succeeded != 1 || exhausted != contenders-1 {
		t.Fatalf("succeeded=%d exhausted=%d, want exactly one winner", succeeded, exhausted)
	}

	available, err := ledger.Available(ctx, productID)
	if err != nil {
		t.Fatalf("Available() error = %v", err)
	}
	if available != 0 {
		t.Fatalf("available = %d, want 0", available)
	}

	if err := ledger.Release(ctx, productID, 1); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	available, err = ledger.Available(ctx, productID)
	if err != nil {
		t.Fatalf("Available() error = %v", err)
	}
	if available != 1 {
		t.Fatalf("available after release = %d, want 1", available)
	}
}

func TestReceiptPipeline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	var mu sync.Mutex
	var sent map[string]string
	emailServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			t.Errorf("failed to decode email request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer emailServer.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	producer := messaging.NewProducer(brokers, messaging.TopicOrderPlaced)
	defer func() { _ = producer.Close() }()

	event := domain.OrderPlacedEvent{
		OrderID:    "ord-1",
		CustomerID: "customer-1",
		Items: []domain.LineItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: 2500},
		},
		TotalItems:  2,
		TotalAmount: 5000,
		PlacedAt:    time.Now().UTC(),
	}
	if err := producer.Publish(ctx, event.OrderID, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	receiptHandler := notifier.NewReceiptHandler(emailServer.URL, "inr", emailServer.Client(), logger)

	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderPlaced, "receipt-worker-test")
	defer func() { _ = consumer.Close() }()

	err := consumer.Consume(consumeCtx, func(ctx context.Context, payload []byte) error {
		defer stopConsumer()
		return receiptHandler.Handle(ctx, payload)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Consume() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if sent == nil {
		t.Fatal("no email was sent")
	}
	if sent["subject"] != "Order Received: ord-1" {
		t.Errorf("subject = %q", sent["subject"])
	}
	if sent["to"] != "customer-1@example.com" {
		t.Errorf("to = %q", sent["to"])
	}
}
