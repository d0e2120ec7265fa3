package application

import (
	errs "booking_service/errors"
	"context"
	"fmt"
	"math"
	"time"

	"booking_service/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PaymentService keeps a booking's payment fields consistent with the
// gateway's ground truth. The webhook path and the synchronous confirm
// path may race on the same booking; both go through a conditional
// status transition so whichever lands second is a no-op.
type PaymentService struct {
	bookings   domain.BookingStore
	gateway    domain.PaymentGateway
	events     domain.EventCache
	audit      domain.AuditStore
	dispatcher domain.NotificationDispatcher
	tracer     trace.Tracer
	logger     *logrus.Logger
	now        func() time.Time
}

func NewPaymentService(bookings domain.BookingStore, gateway domain.PaymentGateway, events domain.EventCache,
	audit domain.AuditStore, dispatcher domain.NotificationDispatcher, tracer trace.Tracer, logger *logrus.Logger) *PaymentService {
	return &PaymentService{
		bookings:   bookings,
		gateway:    gateway,
		events:     events,
		audit:      audit,
		dispatcher: dispatcher,
		tracer:     tracer,
		logger:     logger,
		now:        time.Now,
	}
}

type IntentResult struct {
	ClientSecret    string  `json:"clientSecret"`
	PaymentIntentID string  `json:"paymentIntentId"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}

type ConfirmResult struct {
	Succeeded bool            `json:"success"`
	Status    string          `json:"status"`
	Booking   *domain.Booking `json:"booking,omitempty"`
}

type RefundResult struct {
	RefundID string  `json:"refundId"`
	Status   string  `json:"status"`
	Amount   float64 `json:"amount"`
}

// CreatePaymentIntent issues a gateway intent for a pending booking owned
// by the requesting guest. An intent is created at most once per booking,
// and the amount must equal the booking's priced total.
func (service *PaymentService) CreatePaymentIntent(ctx context.Context, bookingID string, guestID string, amount float64, currency string) (*IntentResult, error) {
	ctx, span := service.tracer.Start(ctx, "PaymentService.CreatePaymentIntent")
	defer span.End()

	if amount <= 0 {
		return nil, &domain.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if len(currency) != 3 {
		return nil, &domain.ValidationError{Field: "currency", Message: "must be a 3-letter code"}
	}

	booking, err := service.getBooking(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if booking.GuestID != guestID {
		span.SetStatus(codes.Error, errs.UnauthorizedPayment)
		return nil, &domain.AuthorizationError{Message: errs.UnauthorizedPayment}
	}
	if booking.BookingDetails.Status != domain.StatusPending {
		span.SetStatus(codes.Error, errs.PaymentNotPending)
		return nil, &domain.ConflictError{Reason: fmt.Sprintf("%s: %s", errs.PaymentNotPending, booking.BookingDetails.Status)}
	}
	if booking.Payment != nil && booking.Payment.PaymentIntentID != "" {
		span.SetStatus(codes.Error, errs.PaymentIntentExists)
		return nil, &domain.ConflictError{Reason: errs.PaymentIntentExists}
	}
	if minorUnits(amount) != minorUnits(booking.Pricing.TotalAmount) {
		span.SetStatus(codes.Error, errs.AmountMismatch)
		return nil, &domain.ValidationError{Field: "amount", Message: errs.AmountMismatch}
	}

	metadata := map[string]string{
		"bookingId":  booking.ID,
		"userId":     guestID,
		"propertyId": booking.PropertyID,
		"hostId":     booking.HostID,
		"checkIn":    booking.BookingDetails.CheckIn,
		"checkOut":   booking.BookingDetails.CheckOut,
	}

	intent, err := service.gateway.CreateIntent(ctx, minorUnits(amount), currency, metadata)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.TransientError{Op: "payment intent creation", Err: err}
	}

	payment := &domain.Payment{
		PaymentIntentID: intent.ID,
		Amount:          amount,
		Currency:        currency,
		Status:          domain.PaymentPending,
		CreatedAt:       service.now(),
	}
	matched, err := service.bookings.AttachPayment(ctx, booking.ID, payment)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.TransientError{Op: "payment attach", Err: err}
	}
	if !matched {
		// A concurrent request attached an intent between the lookup and
		// the guarded write.
		return nil, &domain.ConflictError{Reason: errs.PaymentIntentExists}
	}

	return &IntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          amount,
		Currency:        currency,
	}, nil
}

// ConfirmPayment queries the gateway for the intent's ground-truth status.
// Only a succeeded intent confirms the booking; any other status is
// reported back without touching booking state so the caller can retry.
func (service *PaymentService) ConfirmPayment(ctx context.Context, bookingID string, paymentIntentID string, guestID string) (*ConfirmResult, error) {
	ctx, span := service.tracer.Start(ctx, "PaymentService.ConfirmPayment")
	defer span.End()

	booking, err := service.getBooking(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if booking.GuestID != guestID {
		span.SetStatus(codes.Error, errs.UnauthorizedPayment)
		return nil, &domain.AuthorizationError{Message: errs.UnauthorizedPayment}
	}
	if booking.Payment == nil || booking.Payment.PaymentIntentID != paymentIntentID {
		span.SetStatus(codes.Error, errs.PaymentIntentMismatch)
		return nil, &domain.ValidationError{Field: "paymentIntentId", Message: errs.PaymentIntentMismatch}
	}

	intent, err := service.gateway.RetrieveIntent(ctx, paymentIntentID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.TransientError{Op: "payment intent retrieval", Err: err}
	}

	if intent.Status != domain.IntentStatusSucceeded {
		return &ConfirmResult{Succeeded: false, Status: intent.Status}, nil
	}

	if err := service.confirmBooking(ctx, booking); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	confirmed, err := service.getBooking(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &ConfirmResult{Succeeded: true, Status: intent.Status, Booking: confirmed}, nil
}

// HandleWebhook processes an asynchronous gateway callback. The payload
// must carry a valid signature; unverifiable deliveries are rejected
// before any lookup. Redelivered events are dropped by event id, and the
// individual handlers only issue idempotent field-level writes.
func (service *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	ctx, span := service.tracer.Start(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	event, err := service.gateway.VerifyWebhookSignature(payload, signatureHeader)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return &domain.ValidationError{Field: "signature", Message: errs.InvalidWebhookSignature}
	}

	processed, err := service.events.IsProcessed(ctx, event.ID)
	if err != nil {
		service.logger.Errorf("webhook dedup lookup failed for event %s: %v", event.ID, err)
	}
	if processed {
		service.logger.Infof("webhook event %s already processed, skipping", event.ID)
		return nil
	}

	switch event.Type {
	case domain.EventPaymentSucceeded:
		err = service.handlePaymentSucceeded(ctx, event)
	case domain.EventPaymentFailed:
		err = service.handlePaymentFailed(ctx, event)
	case domain.EventDisputeCreated:
		err = service.handleDisputeCreated(ctx, event)
	case domain.EventChargeRefunded:
		err = service.handleChargeRefunded(ctx, event)
	default:
		service.logger.Infof("ignoring webhook event %s of type %s", event.ID, event.Type)
		return nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := service.events.MarkProcessed(ctx, event.ID); err != nil {
		service.logger.Errorf("failed to mark webhook event %s processed: %v", event.ID, err)
	}
	return nil
}

// ProcessRefund delegates a full or partial refund to the gateway on
// behalf of the booking's host or an administrator. The amount may not
// exceed what was paid; the original handlers forwarded the caller's
// amount unchecked.
func (service *PaymentService) ProcessRefund(ctx context.Context, bookingID string, actorID string, role string, amount *float64, reason string) (*RefundResult, error) {
	ctx, span := service.tracer.Start(ctx, "PaymentService.ProcessRefund")
	defer span.End()

	booking, err := service.getBooking(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if booking.HostID != actorID && role != "Admin" {
		span.SetStatus(codes.Error, errs.UnauthorizedRefund)
		return nil, &domain.AuthorizationError{Message: errs.UnauthorizedRefund}
	}
	if booking.Payment == nil || booking.Payment.PaymentIntentID == "" {
		span.SetStatus(codes.Error, errs.PaymentNotFound)
		return nil, &domain.ValidationError{Field: "bookingId", Message: errs.PaymentNotFound}
	}
	if booking.BookingDetails.Status == domain.StatusRefunded {
		return nil, &domain.ConflictError{Reason: "Booking is already refunded"}
	}
	if amount != nil && *amount > booking.Payment.Amount {
		span.SetStatus(codes.Error, errs.RefundExceedsPayment)
		return nil, &domain.ValidationError{Field: "amount", Message: errs.RefundExceedsPayment}
	}

	var amountMinor *int64
	if amount != nil {
		minor := minorUnits(*amount)
		amountMinor = &minor
	}

	refund, err := service.gateway.CreateRefund(ctx, booking.Payment.PaymentIntentID, amountMinor)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.TransientError{Op: "refund creation", Err: err}
	}

	isFull := amount == nil || *amount >= booking.Payment.Amount
	status := domain.StatusRefunded
	if !isFull {
		status = domain.StatusPartiallyRefunded
	}
	if reason == "" {
		reason = "Host initiated refund"
	}

	now := service.now()
	fields := map[string]interface{}{
		"bookingDetails.status":  status,
		"payment.status":         domain.PaymentRefunded,
		"payment.refunded":       true,
		"payment.refundedAmount": majorUnits(refund.AmountMinor),
		"payment.refundedAt":     now,
		"payment.refundReason":   reason,
		"payment.refundId":       refund.ID,
		"metadata.updated_at":    now,
	}
	if _, err := service.bookings.UpdateFields(ctx, booking.ID, fields); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.TransientError{Op: "refund update", Err: err}
	}

	service.recordAudit(ctx, booking, "refund_processed", fmt.Sprintf("%s refund of %.2f", status, majorUnits(refund.AmountMinor)))

	return &RefundResult{
		RefundID: refund.ID,
		Status:   refund.Status,
		Amount:   majorUnits(refund.AmountMinor),
	}, nil
}

func (service *PaymentService) handlePaymentSucceeded(ctx context.Context, event *domain.WebhookEvent) error {
	booking, err := service.bookingForEvent(ctx, event)
	if err != nil || booking == nil {
		return err
	}
	return service.confirmBooking(ctx, booking)
}

func (service *PaymentService) confirmBooking(ctx context.Context, booking *domain.Booking) error {
	applied, err := service.bookings.UpdateStatusIfPending(ctx, booking.ID, domain.StatusConfirmed, map[string]interface{}{
		"payment.status":      domain.PaymentCompleted,
		"payment.completedAt": service.now(),
		"metadata.updated_at": service.now(),
	})
	if err != nil {
		return &domain.TransientError{Op: "payment confirmation", Err: err}
	}
	if !applied {
		// The other confirmation path got here first.
		service.logger.Infof("booking %s already left pending, confirmation is a no-op", booking.ID)
		return nil
	}

	service.recordAudit(ctx, booking, "payment_confirmed", "")
	service.dispatcher.Dispatch(ctx, &domain.BookingNotification{
		ByGuestId:   booking.GuestID,
		ForHostId:   booking.HostID,
		Description: fmt.Sprintf("Payment received, booking %s is confirmed", booking.BookingDetails.BookingReference),
	})
	return nil
}

func (service *PaymentService) handlePaymentFailed(ctx context.Context, event *domain.WebhookEvent) error {
	booking, err := service.bookingForEvent(ctx, event)
	if err != nil || booking == nil {
		return err
	}

	lastError := event.LastError
	if lastError == "" {
		lastError = "Payment failed"
	}

	// Booking status stays untouched; the guest may retry the payment.
	_, err = service.bookings.UpdateFields(ctx, booking.ID, map[string]interface{}{
		"payment.status":    domain.PaymentFailed,
		"payment.lastError": lastError,
	})
	if err != nil {
		return &domain.TransientError{Op: "payment failure update", Err: err}
	}
	return nil
}

func (service *PaymentService) handleDisputeCreated(ctx context.Context, event *domain.WebhookEvent) error {
	booking, err := service.bookingForEvent(ctx, event)
	if err != nil || booking == nil {
		return err
	}

	// Disputes flag the payment without replacing the booking status.
	_, err = service.bookings.UpdateFields(ctx, booking.ID, map[string]interface{}{
		"payment.disputed": true,
		"payment.disputeDetails": &domain.DisputeDetails{
			Reason:  event.DisputeReason,
			Status:  event.DisputeStatus,
			Amount:  majorUnits(event.AmountMinor),
			Created: event.Created,
		},
	})
	if err != nil {
		return &domain.TransientError{Op: "dispute update", Err: err}
	}

	service.recordAudit(ctx, booking, "dispute_created", event.DisputeReason)
	return nil
}

func (service *PaymentService) handleChargeRefunded(ctx context.Context, event *domain.WebhookEvent) error {
	booking, err := service.bookingForEvent(ctx, event)
	if err != nil || booking == nil {
		return err
	}

	status := domain.StatusRefunded
	if event.RefundedMinor < event.AmountMinor {
		status = domain.StatusPartiallyRefunded
	}

	now := service.now()
	_, err = service.bookings.UpdateFields(ctx, booking.ID, map[string]interface{}{
		"bookingDetails.status":  status,
		"payment.status":         domain.PaymentRefunded,
		"payment.refunded":       true,
		"payment.refundedAmount": majorUnits(event.RefundedMinor),
		"payment.refundedAt":     now,
		"metadata.updated_at":    now,
	})
	if err != nil {
		return &domain.TransientError{Op: "refund webhook update", Err: err}
	}

	service.recordAudit(ctx, booking, "charge_refunded", string(status))
	return nil
}

// bookingForEvent resolves the booking an event refers to, preferring the
// bookingId the intent was created with and falling back to the payment
// intent id for charge-level events. A missing booking is logged and
// skipped rather than failing the delivery, so the gateway does not
// retry an event this service can never apply.
func (service *PaymentService) bookingForEvent(ctx context.Context, event *domain.WebhookEvent) (*domain.Booking, error) {
	if event.BookingID != "" {
		booking, err := service.bookings.GetByID(ctx, event.BookingID)
		if err != nil {
			return nil, &domain.TransientError{Op: "booking lookup", Err: err}
		}
		if booking != nil {
			return booking, nil
		}
	}

	if event.PaymentIntentID != "" {
		booking, err := service.bookings.GetByPaymentIntent(ctx, event.PaymentIntentID)
		if err != nil {
			return nil, &domain.TransientError{Op: "booking lookup", Err: err}
		}
		if booking != nil {
			return booking, nil
		}
	}

	service.logger.Errorf("no booking found for webhook event %s (%s)", event.ID, event.Type)
	return nil, nil
}

func (service *PaymentService) getBooking(ctx context.Context, id string) (*domain.Booking, error) {
	booking, err := service.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, &domain.TransientError{Op: "booking lookup", Err: err}
	}
	if booking == nil {
		return nil, &domain.NotFoundError{Entity: "booking"}
	}
	return booking, nil
}

func (service *PaymentService) recordAudit(ctx context.Context, booking *domain.Booking, event, detail string) {
	entry := &domain.AuditEntry{
		ID:         uuid.NewString(),
		BookingID:  booking.ID,
		PropertyID: booking.PropertyID,
		Event:      event,
		Detail:     detail,
		CreatedAt:  service.now(),
	}
	if err := service.audit.Record(ctx, entry); err != nil {
		service.logger.Errorf("audit record failed for booking %s (%s): %v", booking.ID, event, err)
	}
}

func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func majorUnits(minor int64) float64 {
	return float64(minor) / 100
}
