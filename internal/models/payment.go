package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payment intent status enums.
const (
	IntentStatusPending   = "PENDING"
	IntentStatusCompleted = "COMPLETED"
)

// Payment event providers.
const (
	ProviderWebhook = "lnbits_webhook"
	ProviderPoll    = "lnbits_poll"
)

// PaymentIntent is an expected inbound payment, keyed by the provider's payment hash.
type PaymentIntent struct {
	PaymentHash    string    `json:"payment_hash"`
	UserID         uuid.UUID `json:"user_id"`
	AmountSats     int64     `json:"amount_sats"`
	PaymentRequest string    `json:"payment_request"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// Expired reports whether the invoice behind the intent has expired at now.
func (p *PaymentIntent) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// PaymentEvent is the audit record of a processed inbound payment.
// payment_hash is unique and serves as the idempotency key.
type PaymentEvent struct {
	ID          uuid.UUID       `json:"id"`
	PaymentHash string          `json:"payment_hash"`
	Provider    string          `json:"provider"`
	AmountSats  int64           `json:"amount_sats"`
	Status      string          `json:"status"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
