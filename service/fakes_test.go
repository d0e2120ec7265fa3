package application

import (
	"context"
	"fmt"
	"io"
	"time"

	"booking_service/domain"
	errs "booking_service/errors"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

type fakeBookingStore struct {
	bookings    map[string]*domain.Booking
	insertErr   error
	deleted     []string
	lastFields  map[string]interface{}
	fieldWrites []map[string]interface{}
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{bookings: make(map[string]*domain.Booking)}
}

func (s *fakeBookingStore) Insert(_ context.Context, booking *domain.Booking) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.bookings[booking.ID]; ok {
		return &domain.ConflictError{Reason: errs.DuplicateBookingId}
	}
	s.bookings[booking.ID] = booking
	return nil
}

func (s *fakeBookingStore) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	return s.bookings[id], nil
}

func (s *fakeBookingStore) GetByPaymentIntent(_ context.Context, paymentIntentID string) (*domain.Booking, error) {
	for _, booking := range s.bookings {
		if booking.Payment != nil && booking.Payment.PaymentIntentID == paymentIntentID {
			return booking, nil
		}
	}
	return nil, nil
}

func (s *fakeBookingStore) GetActiveByGuest(_ context.Context, guestID string) (domain.Bookings, error) {
	var result domain.Bookings
	for _, booking := range s.bookings {
		if booking.GuestID == guestID && isActive(booking) {
			result = append(result, booking)
		}
	}
	return result, nil
}

func (s *fakeBookingStore) GetActiveByHost(_ context.Context, hostID string) (domain.Bookings, error) {
	var result domain.Bookings
	for _, booking := range s.bookings {
		if booking.HostID == hostID && isActive(booking) {
			result = append(result, booking)
		}
	}
	return result, nil
}

func (s *fakeBookingStore) GetHistoryByGuest(_ context.Context, guestID string, before time.Time) (domain.Bookings, error) {
	var result domain.Bookings
	for _, booking := range s.bookings {
		if booking.GuestID == guestID && isHistory(booking, before) {
			result = append(result, booking)
		}
	}
	return result, nil
}

func (s *fakeBookingStore) GetHistoryByHost(_ context.Context, hostID string, before time.Time) (domain.Bookings, error) {
	var result domain.Bookings
	for _, booking := range s.bookings {
		if booking.HostID == hostID && isHistory(booking, before) {
			result = append(result, booking)
		}
	}
	return result, nil
}

func isActive(booking *domain.Booking) bool {
	status := booking.BookingDetails.Status
	return status == domain.StatusPending || status == domain.StatusConfirmed
}

func isHistory(booking *domain.Booking, before time.Time) bool {
	if !isActive(booking) {
		return true
	}
	return booking.BookingDetails.CheckOut < before.Format(domain.DateLayout)
}

func (s *fakeBookingStore) UpdateFields(_ context.Context, id string, fields map[string]interface{}) (bool, error) {
	booking, ok := s.bookings[id]
	if !ok {
		return false, nil
	}
	s.lastFields = fields
	s.fieldWrites = append(s.fieldWrites, fields)
	applyFields(booking, fields)
	return true, nil
}

func (s *fakeBookingStore) UpdateStatusIfPending(_ context.Context, id string, status domain.BookingStatus, fields map[string]interface{}) (bool, error) {
	booking, ok := s.bookings[id]
	if !ok || booking.BookingDetails.Status != domain.StatusPending {
		return false, nil
	}
	booking.BookingDetails.Status = status
	applyFields(booking, fields)
	return true, nil
}

func (s *fakeBookingStore) AttachPayment(_ context.Context, id string, payment *domain.Payment) (bool, error) {
	booking, ok := s.bookings[id]
	if !ok {
		return false, nil
	}
	if booking.Payment != nil && booking.Payment.PaymentIntentID != "" {
		return false, nil
	}
	booking.Payment = payment
	return true, nil
}

func (s *fakeBookingStore) Delete(_ context.Context, id string) error {
	delete(s.bookings, id)
	s.deleted = append(s.deleted, id)
	return nil
}

// applyFields mirrors the dotted $set paths the services write, for the
// subset of fields the tests observe.
func applyFields(booking *domain.Booking, fields map[string]interface{}) {
	for path, value := range fields {
		switch path {
		case "bookingDetails.status":
			booking.BookingDetails.Status = value.(domain.BookingStatus)
		case "bookingDetails.special_requests":
			booking.BookingDetails.SpecialRequests = value.(string)
		case "bookingDetails.guests.adults":
			booking.BookingDetails.Guests.Adults = value.(int)
		case "cancellation":
			booking.Cancellation = value.(*domain.Cancellation)
		case "payment.status":
			ensurePayment(booking).Status = value.(domain.PaymentStatus)
		case "payment.lastError":
			ensurePayment(booking).LastError = value.(string)
		case "payment.disputed":
			ensurePayment(booking).Disputed = value.(bool)
		case "payment.disputeDetails":
			ensurePayment(booking).DisputeDetails = value.(*domain.DisputeDetails)
		case "payment.refunded":
			ensurePayment(booking).Refunded = value.(bool)
		case "payment.refundedAmount":
			ensurePayment(booking).RefundedAmount = value.(float64)
		case "payment.refundReason":
			ensurePayment(booking).RefundReason = value.(string)
		case "payment.refundId":
			ensurePayment(booking).RefundID = value.(string)
		}
	}
}

func ensurePayment(booking *domain.Booking) *domain.Payment {
	if booking.Payment == nil {
		booking.Payment = &domain.Payment{}
	}
	return booking.Payment
}

type fakePropertyStore struct {
	properties map[string]*domain.Property
	removeErr  error
	// removeDenied simulates a concurrent booking winning the calendar
	// claim between the availability check and the conditional pull.
	removeDenied bool
	restored     map[string][]string
}

func newFakePropertyStore() *fakePropertyStore {
	return &fakePropertyStore{
		properties: make(map[string]*domain.Property),
		restored:   make(map[string][]string),
	}
}

func (s *fakePropertyStore) GetByID(_ context.Context, id string) (*domain.Property, error) {
	return s.properties[id], nil
}

func (s *fakePropertyStore) RemoveCalendarDates(_ context.Context, propertyID string, dates []string) (bool, error) {
	if s.removeErr != nil {
		return false, s.removeErr
	}
	if s.removeDenied {
		return false, nil
	}
	property, ok := s.properties[propertyID]
	if !ok {
		return false, nil
	}

	// Like the Mongo store, entries are matched by day so that legacy
	// timestamp-form calendars behave the same as plain dates.
	open := make(map[string]struct{}, len(property.Availability.AvailabilityCalendar))
	for _, entry := range property.Availability.AvailabilityCalendar {
		open[domain.NormalizeDate(entry)] = struct{}{}
	}
	for _, day := range dates {
		if _, ok := open[day]; !ok {
			return false, nil
		}
	}

	remove := make(map[string]struct{}, len(dates))
	for _, day := range dates {
		remove[day] = struct{}{}
	}
	var kept []string
	for _, entry := range property.Availability.AvailabilityCalendar {
		if _, ok := remove[domain.NormalizeDate(entry)]; !ok {
			kept = append(kept, entry)
		}
	}
	property.Availability.AvailabilityCalendar = kept
	return true, nil
}

func (s *fakePropertyStore) RestoreCalendarDates(_ context.Context, propertyID string, dates []string) error {
	s.restored[propertyID] = append(s.restored[propertyID], dates...)
	if property, ok := s.properties[propertyID]; ok {
		property.Availability.AvailabilityCalendar = append(property.Availability.AvailabilityCalendar, dates...)
	}
	return nil
}

type fakeAuditStore struct {
	entries []*domain.AuditEntry
}

func (s *fakeAuditStore) Record(_ context.Context, entry *domain.AuditEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeAuditStore) hasEvent(event string) bool {
	for _, entry := range s.entries {
		if entry.Event == event {
			return true
		}
	}
	return false
}

type fakeDispatcher struct {
	notifications []*domain.BookingNotification
}

func (d *fakeDispatcher) Dispatch(_ context.Context, notification *domain.BookingNotification) {
	d.notifications = append(d.notifications, notification)
}

type fakeEventCache struct {
	processed map[string]bool
}

func newFakeEventCache() *fakeEventCache {
	return &fakeEventCache{processed: make(map[string]bool)}
}

func (c *fakeEventCache) IsProcessed(_ context.Context, eventID string) (bool, error) {
	return c.processed[eventID], nil
}

func (c *fakeEventCache) MarkProcessed(_ context.Context, eventID string) error {
	c.processed[eventID] = true
	return nil
}

type fakeGateway struct {
	intents       map[string]*domain.PaymentIntent
	createCount   int
	refunds       []*domain.Refund
	refundAmounts []*int64
	event         *domain.WebhookEvent
	signatureErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: make(map[string]*domain.PaymentIntent)}
}

func (g *fakeGateway) CreateIntent(_ context.Context, amountMinor int64, currency string, metadata map[string]string) (*domain.PaymentIntent, error) {
	g.createCount++
	intent := &domain.PaymentIntent{
		ID:           fmt.Sprintf("pi_test_%d", g.createCount),
		ClientSecret: fmt.Sprintf("pi_test_%d_secret", g.createCount),
		Status:       "requires_payment_method",
		AmountMinor:  amountMinor,
		Currency:     currency,
		Metadata:     metadata,
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, paymentIntentID string) (*domain.PaymentIntent, error) {
	intent, ok := g.intents[paymentIntentID]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", paymentIntentID)
	}
	return intent, nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, paymentIntentID string, amountMinor *int64) (*domain.Refund, error) {
	intent, ok := g.intents[paymentIntentID]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", paymentIntentID)
	}
	amount := intent.AmountMinor
	if amountMinor != nil {
		amount = *amountMinor
	}
	refund := &domain.Refund{
		ID:          fmt.Sprintf("re_test_%d", len(g.refunds)+1),
		Status:      "succeeded",
		AmountMinor: amount,
	}
	g.refunds = append(g.refunds, refund)
	g.refundAmounts = append(g.refundAmounts, amountMinor)
	return refund, nil
}

func (g *fakeGateway) VerifyWebhookSignature(_ []byte, _ string) (*domain.WebhookEvent, error) {
	if g.signatureErr != nil {
		return nil, g.signatureErr
	}
	return g.event, nil
}
