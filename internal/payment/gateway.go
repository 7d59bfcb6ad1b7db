package payment

import (
	"context"
	"errors"
)

var (
	// ErrSignatureInvalid means the webhook payload failed signature
	// verification; the payload must not be trusted in any way.
	ErrSignatureInvalid = errors.New("invalid webhook signature")
	// ErrMalformedPayload means the payload was correctly signed but is not a
	// parsable event.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Intent is the processor-side payment attempt created for an order. The
// client secret is handed to the buyer's client to complete payment; the id
// becomes the order's payment reference.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventPaymentFailed    EventKind = "payment_failed"
	EventUnhandled        EventKind = "unhandled"
)

// Event is a verified, parsed gateway notification. Reference carries the
// intent id for payment outcome events and is empty for unhandled kinds.
type Event struct {
	ID        string
	Kind      EventKind
	Reference string
	Type      string
}

// Gateway is the boundary to the external payment processor. It holds no
// local state.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency, orderID string) (*Intent, error)
	VerifyAndParseEvent(payload []byte, signatureHeader string) (*Event, error)
}
