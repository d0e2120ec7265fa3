package store

import (
	"context"
	"strings"
	"time"

	"booking_service/domain"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StripeGateway adapts the Stripe SDK to the PaymentGateway interface.
// Amounts cross it in minor units; conversion back to decimals happens
// in the payment service.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	tracer        trace.Tracer
	logger        *logrus.Logger
}

func NewStripeGateway(secretKey, webhookSecret string, tracer trace.Tracer, logger *logrus.Logger) domain.PaymentGateway {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeGateway{
		api:           api,
		webhookSecret: webhookSecret,
		tracer:        tracer,
		logger:        logger,
	}
}

func (gateway *StripeGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*domain.PaymentIntent, error) {
	ctx, span := gateway.tracer.Start(ctx, "StripeGateway.CreateIntent")
	defer span.End()

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountMinor),
		Currency:      stripe.String(strings.ToLower(currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
	}
	params.Context = ctx
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	intent, err := gateway.api.PaymentIntents.New(params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		gateway.logger.Errorf("error creating payment intent: %v", err)
		return nil, err
	}

	return intentToDomain(intent), nil
}

func (gateway *StripeGateway) RetrieveIntent(ctx context.Context, paymentIntentID string) (*domain.PaymentIntent, error) {
	ctx, span := gateway.tracer.Start(ctx, "StripeGateway.RetrieveIntent")
	defer span.End()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := gateway.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		gateway.logger.Errorf("error retrieving payment intent %s: %v", paymentIntentID, err)
		return nil, err
	}

	return intentToDomain(intent), nil
}

func (gateway *StripeGateway) CreateRefund(ctx context.Context, paymentIntentID string, amountMinor *int64) (*domain.Refund, error) {
	ctx, span := gateway.tracer.Start(ctx, "StripeGateway.CreateRefund")
	defer span.End()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx
	if amountMinor != nil {
		params.Amount = stripe.Int64(*amountMinor)
	}

	refund, err := gateway.api.Refunds.New(params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		gateway.logger.Errorf("error creating refund for intent %s: %v", paymentIntentID, err)
		return nil, err
	}

	return &domain.Refund{
		ID:          refund.ID,
		Status:      string(refund.Status),
		AmountMinor: refund.Amount,
	}, nil
}

func (gateway *StripeGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (*domain.WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, gateway.webhookSecret)
	if err != nil {
		gateway.logger.Errorf("webhook signature verification failed: %v", err)
		return nil, err
	}

	parsed := &domain.WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0),
	}

	object := event.Data.Object

	switch parsed.Type {
	case domain.EventPaymentSucceeded, domain.EventPaymentFailed:
		parsed.PaymentIntentID = objString(object, "id")
		parsed.BookingID = objString(objMap(object, "metadata"), "bookingId")
		parsed.AmountMinor = objInt64(object, "amount")
		if lastError := objMap(object, "last_payment_error"); lastError != nil {
			parsed.LastError = objString(lastError, "message")
		}
	case domain.EventChargeRefunded:
		parsed.PaymentIntentID = objString(object, "payment_intent")
		parsed.BookingID = objString(objMap(object, "metadata"), "bookingId")
		parsed.AmountMinor = objInt64(object, "amount")
		parsed.RefundedMinor = objInt64(object, "amount_refunded")
	case domain.EventDisputeCreated:
		parsed.PaymentIntentID = objString(object, "payment_intent")
		parsed.AmountMinor = objInt64(object, "amount")
		parsed.DisputeReason = objString(object, "reason")
		parsed.DisputeStatus = objString(object, "status")
		if created := objInt64(object, "created"); created > 0 {
			parsed.Created = time.Unix(created, 0)
		}
	}

	return parsed, nil
}

func intentToDomain(intent *stripe.PaymentIntent) *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
		AmountMinor:  intent.Amount,
		Currency:     string(intent.Currency),
		Metadata:     intent.Metadata,
	}
}

func objString(object map[string]interface{}, key string) string {
	if object == nil {
		return ""
	}
	value, _ := object[key].(string)
	return value
}

func objInt64(object map[string]interface{}, key string) int64 {
	if object == nil {
		return 0
	}
	value, _ := object[key].(float64)
	return int64(value)
}

func objMap(object map[string]interface{}, key string) map[string]interface{} {
	if object == nil {
		return nil
	}
	value, _ := object[key].(map[string]interface{})
	return value
}
