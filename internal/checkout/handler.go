package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aftabansari2005/client-ecommerce/internal/domain"
	"github.com/aftabansari2005/client-ecommerce/internal/orders"
	"github.com/aftabansari2005/client-ecommerce/internal/payment"
)

// Webhook payloads are small; anything bigger is not a gateway event.
const maxWebhookBody = 64 << 10

// AdminStore is the listing and maintenance surface behind the /orders
// endpoints.
type AdminStore interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter orders.ListFilter) ([]domain.Order, int, error)
	Update(ctx context.Context, id string, patch orders.Patch) (*domain.Order, error)
	SoftDelete(ctx context.Context, id string) error
}

type Handler struct {
	coordinator *Coordinator
	store       AdminStore
	logger      *slog.Logger
}

func NewHandler(coordinator *Coordinator, store AdminStore, logger *slog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		store:       store,
		logger:      logger,
	}
}

type checkoutResponse struct {
	domain.Order
	ClientSecret string `json:"client_secret,omitempty"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.coordinator.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	h.logger.Info("order placed",
		"order_id", result.Order.ID, "customer_id", result.Order.CustomerID,
		"total_amount", result.Order.TotalAmount)
	h.writeJSON(w, http.StatusCreated, checkoutResponse{Order: *result.Order, ClientSecret: result.ClientSecret})
}

func (h *Handler) HandleRetryPaymentIntent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	result, err := h.coordinator.RetryPaymentIntent(r.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	case errors.Is(err, ErrPaymentAlreadyInitiated):
		h.writeError(w, http.StatusConflict, "payment already initiated")
		return
	case err != nil:
		h.writeCheckoutError(w, err)
		return
	}

	h.logger.Info("payment intent created", "order_id", result.Order.ID)
	h.writeJSON(w, http.StatusOK, checkoutResponse{Order: *result.Order, ClientSecret: result.ClientSecret})
}

// HandleWebhook receives gateway events. A 2xx acknowledges the event; any
// other status makes the processor redeliver, so only signature and payload
// problems get a 400 and only transient store failures get a 500.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	err = h.coordinator.ReconcilePayment(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payment.ErrSignatureInvalid):
		h.writeError(w, http.StatusBadRequest, "invalid signature")
		return
	case errors.Is(err, payment.ErrMalformedPayload):
		h.writeError(w, http.StatusBadRequest, "malformed payload")
		return
	case err != nil:
		h.logger.Error("failed to reconcile payment event", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := orders.ListFilter{
		IncludeDeleted: query.Get("includeDeleted") == "true",
		SortKey:        query.Get("sort"),
		SortDesc:       query.Get("order") == "desc",
	}
	if page, err := strconv.Atoi(query.Get("page")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}

	list, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateOrderRequest struct {
	ShippingAddress   *domain.Address           `json:"shipping_address"`
	FulfillmentStatus *domain.FulfillmentStatus `json:"fulfillment_status"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.store.Update(r.Context(), id, orders.Patch{
		ShippingAddress: req.ShippingAddress,
		Fulfillment:     req.FulfillmentStatus,
	})
	switch {
	case errors.Is(err, orders.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to update order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	case order == nil:
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.logger.Info("order updated", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	err := h.store.SoftDelete(r.Context(), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	case errors.Is(err, orders.ErrPaymentPending):
		h.writeError(w, http.StatusConflict, "order has a pending payment")
		return
	case err != nil:
		h.logger.Error("failed to delete order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("order deleted", "order_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	var initErr *PaymentInitiationError
	switch {
	case errors.Is(err, ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStockUnavailable):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &initErr):
		// The order exists; the client retries the intent, not the checkout.
		h.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":    "payment initiation failed",
			"order_id": initErr.OrderID,
		})
	default:
		h.logger.Error("checkout failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
