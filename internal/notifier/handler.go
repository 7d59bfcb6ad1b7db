package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aftabansari2005/client-ecommerce/internal/domain"
)

// ReceiptHandler turns order-placed events into receipt emails. The pipeline
// is best effort: checkout never waits for it, and a returned error only makes
// the consumer retry this one event.
type ReceiptHandler struct {
	emailServiceURL string
	currency        string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewReceiptHandler(emailServiceURL, currency string, client *http.Client, logger *slog.Logger) *ReceiptHandler {
	return &ReceiptHandler{
		emailServiceURL: emailServiceURL,
		currency:        currency,
		httpClient:      client,
		logger:          logger,
	}
}

func (h *ReceiptHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	h.logger.Info("processing order placed event", "order_id", event.OrderID, "customer_id", event.CustomerID)

	body := map[string]string{
		"to":      event.CustomerID + "@example.com",
		"subject": "Order Received: " + event.OrderID,
		"body":    renderReceipt(event, h.currency),
	}
	if err := h.sendEmail(ctx, body); err != nil {
		h.logger.Error("failed to send receipt email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send receipt email: %w", err)
	}

	h.logger.Info("receipt sent", "order_id", event.OrderID)
	return nil
}

// renderReceipt builds the plain-text invoice body. Amounts arrive in minor
// currency units.
func renderReceipt(event domain.OrderPlacedEvent, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order %s.\n\n", event.OrderID)
	for _, item := range event.Items {
		fmt.Fprintf(&b, "%d x %s @ %s\n", item.Quantity, item.ProductID, formatAmount(item.UnitPrice, currency))
	}
	fmt.Fprintf(&b, "\nTotal (%d items): %s\n", event.TotalItems, formatAmount(event.TotalAmount, currency))
	b.WriteString("We will email you again once your payment is confirmed.\n")
	return b.String()
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", strings.ToUpper(currency), minor/100, minor%100)
}

func (h *ReceiptHandler) sendEmail(ctx context.Context, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
