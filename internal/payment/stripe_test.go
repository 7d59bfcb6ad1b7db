package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testWebhookSecret = "whsec_test_secret"

func signPayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeGateway_VerifyAndParseEvent(t *testing.T) {
	gw := NewStripeGateway("sk_test_unused", testWebhookSecret)

	t.Run("maps payment_intent.succeeded to a succeeded event", func(t *testing.T) {
		payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123","object":"payment_intent"}}}`)

		event, err := gw.VerifyAndParseEvent(payload, signPayload(t, payload, testWebhookSecret))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if event.Kind != EventPaymentSucceeded {
			t.Errorf("expected kind %s, got %s", EventPaymentSucceeded, event.Kind)
		}
		if event.Reference != "pi_123" {
			t.Errorf("expected reference pi_123, got %s", event.Reference)
		}
		if event.ID != "evt_1" {
			t.Errorf("expected event id evt_1, got %s", event.ID)
		}
	})

	t.Run("maps payment_intent.payment_failed to a failed event", func(t *testing.T) {
		payload := []byte(`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_456","object":"payment_intent"}}}`)

		event, err := gw.VerifyAndParseEvent(payload, signPayload(t, payload, testWebhookSecret))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if event.Kind != EventPaymentFailed {
			t.Errorf("expected kind %s, got %s", EventPaymentFailed, event.Kind)
		}
		if event.Reference != "pi_456" {
			t.Errorf("expected reference pi_456, got %s", event.Reference)
		}
	})

	t.Run("passes unknown event types through as unhandled", func(t *testing.T) {
		payload := []byte(`{"id":"evt_3","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`)

		event, err := gw.VerifyAndParseEvent(payload, signPayload(t, payload, testWebhookSecret))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if event.Kind != EventUnhandled {
			t.Errorf("expected kind %s, got %s", EventUnhandled, event.Kind)
		}
		if event.Reference != "" {
			t.Errorf("expected empty reference, got %s", event.Reference)
		}
		if event.Type != "charge.refunded" {
			t.Errorf("expected raw type charge.refunded, got %s", event.Type)
		}
	})

	t.Run("rejects a payload signed with the wrong secret", func(t *testing.T) {
		payload := []byte(`{"id":"evt_4","type":"payment_intent.succeeded","data":{"object":{"id":"pi_789","object":"payment_intent"}}}`)

		_, err := gw.VerifyAndParseEvent(payload, signPayload(t, payload, "whsec_other_secret"))
		if !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("rejects a missing signature header", func(t *testing.T) {
		payload := []byte(`{"id":"evt_5","type":"payment_intent.succeeded","data":{"object":{"id":"pi_789","object":"payment_intent"}}}`)

		_, err := gw.VerifyAndParseEvent(payload, "")
		if !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("rejects a correctly signed but unparsable payload", func(t *testing.T) {
		payload := []byte(`{"id":"evt_6",`)

		_, err := gw.VerifyAndParseEvent(payload, signPayload(t, payload, testWebhookSecret))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("expected ErrMalformedPayload, got %v", err)
		}
	})

	t.Run("rejects an outcome event without an intent id", func(t *testing.T) {
		payload := []byte(`{"id":"evt_7","type":"payment_intent.succeeded","data":{"object":{"object":"payment_intent"}}}`)

		_, err := gw.VerifyAndParseEvent(payload, signPayload(t, payload, testWebhookSecret))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("expected ErrMalformedPayload, got %v", err)
		}
	})
}
