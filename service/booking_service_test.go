package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"booking_service/domain"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestBookingService() (*BookingService, *fakeBookingStore, *fakePropertyStore, *fakeAuditStore, *fakeDispatcher) {
	bookings := newFakeBookingStore()
	properties := newFakePropertyStore()
	audit := &fakeAuditStore{}
	dispatcher := &fakeDispatcher{}

	service := NewBookingService(bookings, properties, audit, dispatcher, testTracer(), testLogger())
	service.now = func() time.Time { return testNow }

	return service, bookings, properties, audit, dispatcher
}

func openProperty(properties *fakePropertyStore, id, hostID string, dates ...string) {
	properties.properties[id] = &domain.Property{
		ID:           id,
		HostID:       hostID,
		Availability: domain.Availability{AvailabilityCalendar: dates},
	}
}

func validBooking() *domain.Booking {
	return &domain.Booking{
		PropertyID: "prop-1",
		HostID:     "host-1",
		GuestID:    "guest-1",
		BookingDetails: domain.BookingDetails{
			CheckIn:  "2024-07-01",
			CheckOut: "2024-07-03",
			Guests:   domain.Guests{Adults: 2},
		},
		Pricing: domain.Pricing{
			BasePrice:   100,
			CleaningFee: 20,
			TotalAmount: 220,
		},
	}
}

func TestCreateBooking(t *testing.T) {
	service, bookings, properties, audit, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03", "2024-07-04")

	created, err := service.CreateBooking(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created.BookingDetails.Status != domain.StatusPending {
		t.Errorf("got status %s, want pending", created.BookingDetails.Status)
	}
	if created.BookingDetails.TotalNights != 2 {
		t.Errorf("got %d nights, want 2", created.BookingDetails.TotalNights)
	}
	if !strings.HasPrefix(created.BookingDetails.BookingReference, "BK-") {
		t.Errorf("got reference %q, want BK- prefix", created.BookingDetails.BookingReference)
	}
	if created.Pricing.Currency != "USD" {
		t.Errorf("got currency %q, want default USD", created.Pricing.Currency)
	}
	if _, ok := bookings.bookings[created.ID]; !ok {
		t.Error("booking was not persisted")
	}

	// The departure day is claimed too; only the 4th stays open.
	calendar := properties.properties["prop-1"].Availability.AvailabilityCalendar
	if len(calendar) != 1 || calendar[0] != "2024-07-04" {
		t.Errorf("got calendar %v, want only 2024-07-04 open", calendar)
	}

	if !audit.hasEvent("booking_created") {
		t.Error("expected a booking_created audit entry")
	}
}

func TestCreateBookingShortClientSuppliedID(t *testing.T) {
	service, bookings, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03")

	booking := validBooking()
	booking.ID = "x7"

	created, err := service.CreateBooking(context.Background(), booking)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reference := created.BookingDetails.BookingReference
	if !strings.HasPrefix(reference, "BK-") || len(reference) != len("BK-")+8 {
		t.Errorf("got reference %q, want BK- plus eight characters", reference)
	}
	if _, ok := bookings.bookings["x7"]; !ok {
		t.Error("the client-supplied id must be kept")
	}
}

func TestCreateBookingLegacyTimestampCalendar(t *testing.T) {
	service, bookings, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1",
		"2024-07-01T00:00:00Z", "2024-07-02T00:00:00Z", "2024-07-03T00:00:00Z", "2024-07-04T00:00:00Z")

	created, err := service.CreateBooking(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := bookings.bookings[created.ID]; !ok {
		t.Error("booking was not persisted")
	}

	// The claim must remove the timestamp-form entries for the booked
	// days, not mistake them for a concurrent booking.
	calendar := properties.properties["prop-1"].Availability.AvailabilityCalendar
	if len(calendar) != 1 || calendar[0] != "2024-07-04T00:00:00Z" {
		t.Errorf("got calendar %v, want only the 4th left open", calendar)
	}
}

func TestCreateBookingInvertedDates(t *testing.T) {
	service, bookings, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03")

	booking := validBooking()
	booking.BookingDetails.CheckIn = "2024-07-03"
	booking.BookingDetails.CheckOut = "2024-07-01"

	_, err := service.CreateBooking(context.Background(), booking)

	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("got %v, want a validation error", err)
	}
	if len(bookings.bookings) != 0 {
		t.Error("no booking should be written for inverted dates")
	}
}

func TestCreateBookingPropertyNotFound(t *testing.T) {
	service, _, _, _, _ := newTestBookingService()

	_, err := service.CreateBooking(context.Background(), validBooking())

	var notFoundErr *domain.NotFoundError
	if !errors.As(err, &notFoundErr) {
		t.Fatalf("got %v, want a not-found error", err)
	}
}

func TestCreateBookingHostMismatch(t *testing.T) {
	service, _, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "someone-else", "2024-07-01", "2024-07-02", "2024-07-03")

	_, err := service.CreateBooking(context.Background(), validBooking())

	var conflictErr *domain.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("got %v, want a conflict error", err)
	}
}

func TestCreateBookingCheckInPast(t *testing.T) {
	service, _, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-06-01", "2024-06-02", "2024-06-03")

	booking := validBooking()
	booking.BookingDetails.CheckIn = "2024-06-01"
	booking.BookingDetails.CheckOut = "2024-06-03"

	_, err := service.CreateBooking(context.Background(), booking)

	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("got %v, want a validation error", err)
	}
}

func TestCreateBookingDateUnavailable(t *testing.T) {
	service, _, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-03")

	_, err := service.CreateBooking(context.Background(), validBooking())

	var conflictErr *domain.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("got %v, want a conflict error", err)
	}
	if conflictErr.Date != "2024-07-02" {
		t.Errorf("got conflicting date %q, want 2024-07-02", conflictErr.Date)
	}
}

func TestCreateBookingLostCalendarClaim(t *testing.T) {
	service, bookings, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03")
	properties.removeDenied = true

	_, err := service.CreateBooking(context.Background(), validBooking())

	var conflictErr *domain.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("got %v, want a conflict error", err)
	}
	if len(bookings.bookings) != 0 {
		t.Error("the inserted booking should be compensated away after a lost claim")
	}
	if len(bookings.deleted) != 1 {
		t.Errorf("got %d deletes, want exactly one compensation", len(bookings.deleted))
	}
}

func TestCreateBookingCalendarWriteFailureKeepsBooking(t *testing.T) {
	service, bookings, properties, audit, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03")
	properties.removeErr = errors.New("write concern timeout")

	created, err := service.CreateBooking(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := bookings.bookings[created.ID]; !ok {
		t.Error("booking should survive a calendar write failure")
	}

	var flagged bool
	for _, entry := range audit.entries {
		if entry.Event == "calendar_update_failed" && entry.Inconsistent {
			flagged = true
		}
	}
	if !flagged {
		t.Error("expected an inconsistent calendar_update_failed audit entry")
	}
}

func TestCreateBookingDoubleBookingSameRange(t *testing.T) {
	service, _, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03", "2024-07-04")

	first := validBooking()
	if _, err := service.CreateBooking(context.Background(), first); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	second := validBooking()
	second.GuestID = "guest-2"
	_, err := service.CreateBooking(context.Background(), second)

	var conflictErr *domain.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("got %v, want a conflict for the second booking", err)
	}
}

func TestUpdateBookingPartialPatch(t *testing.T) {
	service, bookings, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03")

	created, err := service.CreateBooking(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	requests := "late arrival"
	adults := 3
	updated, err := service.UpdateBooking(context.Background(), created.ID, "guest-1", "Guest", &domain.BookingPatch{
		BookingDetails: &domain.BookingDetailsPatch{
			SpecialRequests: &requests,
			Guests:          &domain.GuestsPatch{Adults: &adults},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.BookingDetails.SpecialRequests != "late arrival" {
		t.Errorf("got special requests %q", updated.BookingDetails.SpecialRequests)
	}
	if updated.BookingDetails.Guests.Adults != 3 {
		t.Errorf("got %d adults, want 3", updated.BookingDetails.Guests.Adults)
	}
	if updated.Pricing.TotalAmount != 220 {
		t.Errorf("pricing must stay untouched, got total %v", updated.Pricing.TotalAmount)
	}

	for path := range bookings.lastFields {
		if strings.HasPrefix(path, "pricing.") || strings.HasPrefix(path, "payment.") {
			t.Errorf("unexpected write to %s in a bookingDetails-only patch", path)
		}
	}
}

func TestUpdateBookingRejectsNegativePricing(t *testing.T) {
	service, _, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03")

	created, err := service.CreateBooking(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	negative := -10.0
	_, err = service.UpdateBooking(context.Background(), created.ID, "guest-1", "Guest", &domain.BookingPatch{
		Pricing: &domain.PricingPatch{CleaningFee: &negative},
	})

	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("got %v, want a validation error", err)
	}
}

func TestUpdateBookingEmptyPatch(t *testing.T) {
	service, _, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03")

	created, err := service.CreateBooking(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = service.UpdateBooking(context.Background(), created.ID, "guest-1", "Guest", &domain.BookingPatch{})

	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("got %v, want a validation error", err)
	}
}

func TestUpdateBookingUnauthorizedActor(t *testing.T) {
	service, _, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03")

	created, err := service.CreateBooking(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	requests := "early check-in"
	patch := &domain.BookingPatch{
		BookingDetails: &domain.BookingDetailsPatch{SpecialRequests: &requests},
	}

	_, err = service.UpdateBooking(context.Background(), created.ID, "stranger", "Guest", patch)

	var authErr *domain.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("got %v, want an authorization error", err)
	}

	// The host and an administrator stay allowed.
	if _, err := service.UpdateBooking(context.Background(), created.ID, "host-1", "Host", patch); err != nil {
		t.Errorf("host update failed: %v", err)
	}
	if _, err := service.UpdateBooking(context.Background(), created.ID, "someone", "Admin", patch); err != nil {
		t.Errorf("admin update failed: %v", err)
	}
}

func TestCancelBooking(t *testing.T) {
	service, _, properties, audit, dispatcher := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03")

	created, err := service.CreateBooking(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancelled, err := service.CancelBooking(context.Background(), created.ID, "guest-1", "Guest", &domain.Cancellation{
		CancellationReason: "change of plans",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cancelled.BookingDetails.Status != domain.StatusCancelled {
		t.Errorf("got status %s, want cancelled", cancelled.BookingDetails.Status)
	}
	if cancelled.Cancellation == nil || cancelled.Cancellation.CancelledBy != domain.CancelledByGuest {
		t.Errorf("got cancellation %+v, want cancelled_by guest", cancelled.Cancellation)
	}

	// All three July dates are in the future relative to the test clock,
	// so the full range goes back on the calendar.
	if len(properties.restored["prop-1"]) != 3 {
		t.Errorf("got restored dates %v, want all three", properties.restored["prop-1"])
	}
	if !audit.hasEvent("booking_cancelled") {
		t.Error("expected a booking_cancelled audit entry")
	}
	if len(dispatcher.notifications) == 0 {
		t.Error("expected a cancellation notification")
	}
}

func TestCancelBookingAlreadyCancelled(t *testing.T) {
	service, _, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03")

	created, err := service.CreateBooking(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.CancelBooking(context.Background(), created.ID, "guest-1", "Guest", &domain.Cancellation{}); err != nil {
		t.Fatalf("first cancellation failed: %v", err)
	}

	_, err = service.CancelBooking(context.Background(), created.ID, "guest-1", "Guest", &domain.Cancellation{})

	var conflictErr *domain.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("got %v, want a conflict error", err)
	}
}

func TestCancelBookingUnauthorizedActor(t *testing.T) {
	service, _, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1", "2024-07-01", "2024-07-02", "2024-07-03")

	created, err := service.CreateBooking(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = service.CancelBooking(context.Background(), created.ID, "stranger", "Guest", &domain.Cancellation{})

	var authErr *domain.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("got %v, want an authorization error", err)
	}
}

func TestGetBookingNotFound(t *testing.T) {
	service, _, _, _, _ := newTestBookingService()

	_, err := service.GetBooking(context.Background(), "missing")

	var notFoundErr *domain.NotFoundError
	if !errors.As(err, &notFoundErr) {
		t.Fatalf("got %v, want a not-found error", err)
	}
}

func TestGuestListings(t *testing.T) {
	service, _, properties, _, _ := newTestBookingService()
	openProperty(properties, "prop-1", "host-1",
		"2024-07-01", "2024-07-02", "2024-07-03", "2024-07-10", "2024-07-11", "2024-07-12")

	first, err := service.CreateBooking(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := validBooking()
	second.BookingDetails.CheckIn = "2024-07-10"
	second.BookingDetails.CheckOut = "2024-07-12"
	if _, err := service.CreateBooking(context.Background(), second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	active, err := service.GetGuestBookings(context.Background(), "guest-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d active bookings, want 2", len(active))
	}

	if _, err := service.CancelBooking(context.Background(), first.ID, "guest-1", "Guest", &domain.Cancellation{}); err != nil {
		t.Fatalf("cancellation failed: %v", err)
	}

	active, err = service.GetGuestBookings(context.Background(), "guest-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("got %d active bookings after cancellation, want 1", len(active))
	}

	history, err := service.GetGuestBookingHistory(context.Background(), "guest-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("got %d historical bookings, want the cancelled one", len(history))
	}
}
