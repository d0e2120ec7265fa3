package domain

import (
	"context"
	"time"
)

// PaymentGateway is the narrow surface of the external payment provider.
// Amounts cross this boundary in minor units (cents); everything above
// it works in major-unit decimals.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*PaymentIntent, error)
	RetrieveIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)
	CreateRefund(ctx context.Context, paymentIntentID string, amountMinor *int64) (*Refund, error)

	// VerifyWebhookSignature authenticates a raw webhook delivery and
	// parses it into a typed event. Unverifiable payloads are rejected.
	VerifyWebhookSignature(payload []byte, signatureHeader string) (*WebhookEvent, error)
}

const IntentStatusSucceeded = "succeeded"

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountMinor  int64
	Currency     string
	Metadata     map[string]string
}

type Refund struct {
	ID          string
	Status      string
	AmountMinor int64
}

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventDisputeCreated   = "charge.dispute.created"
	EventChargeRefunded   = "charge.refunded"
)

type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	BookingID       string
	AmountMinor     int64
	RefundedMinor   int64
	LastError       string
	DisputeReason   string
	DisputeStatus   string
	Created         time.Time
}
