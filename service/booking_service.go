package application

import (
	errs "booking_service/errors"
	"context"
	"fmt"
	"strings"
	"time"

	"booking_service/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type BookingService struct {
	bookings   domain.BookingStore
	properties domain.PropertyStore
	audit      domain.AuditStore
	dispatcher domain.NotificationDispatcher
	validate   *validator.Validate
	tracer     trace.Tracer
	logger     *logrus.Logger
	now        func() time.Time
}

func NewBookingService(bookings domain.BookingStore, properties domain.PropertyStore, audit domain.AuditStore,
	dispatcher domain.NotificationDispatcher, tracer trace.Tracer, logger *logrus.Logger) *BookingService {
	return &BookingService{
		bookings:   bookings,
		properties: properties,
		audit:      audit,
		dispatcher: dispatcher,
		validate:   validator.New(),
		tracer:     tracer,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateBooking validates the request, claims the requested dates on the
// property calendar and persists the booking in pending status.
//
// The calendar claim runs after the insert. When the claim reports that a
// concurrent booking already took one of the dates, the just-inserted
// booking is deleted again and the request fails with a conflict. When
// the claim fails for storage reasons the booking stays created and the
// inconsistency is recorded for reconciliation.
func (service *BookingService) CreateBooking(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	ctx, span := service.tracer.Start(ctx, "BookingService.CreateBooking")
	defer span.End()

	checkIn, checkOut, err := service.validateNewBooking(booking)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	property, err := service.properties.GetByID(ctx, booking.PropertyID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.TransientError{Op: "property lookup", Err: err}
	}
	if property == nil {
		span.SetStatus(codes.Error, errs.PropertyNotFound)
		return nil, &domain.NotFoundError{Entity: "property"}
	}

	if booking.HostID != property.HostID {
		span.SetStatus(codes.Error, errs.HostMismatch)
		return nil, &domain.ConflictError{Reason: errs.HostMismatch}
	}

	today, _ := domain.ParseDate(service.now().Format(domain.DateLayout))
	if checkIn.Before(today) {
		span.SetStatus(codes.Error, errs.CheckInPast)
		return nil, &domain.ValidationError{Field: "bookingDetails.check_in", Message: errs.CheckInPast}
	}

	if ok, day := domain.IsRangeAvailable(property.Availability.AvailabilityCalendar, checkIn, checkOut); !ok {
		span.SetStatus(codes.Error, errs.DateUnavailable)
		return nil, &domain.ConflictError{Reason: errs.DateUnavailable, Date: day}
	}

	service.fillDefaults(booking, checkIn, checkOut)

	if err := service.bookings.Insert(ctx, booking); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	days := domain.RangeDays(checkIn, checkOut)
	removed, err := service.properties.RemoveCalendarDates(ctx, booking.PropertyID, days)
	if err != nil {
		// The booking is durable; do not fail the request over a calendar
		// write that can be reconciled out of band.
		span.SetStatus(codes.Error, err.Error())
		service.logger.Errorf("calendar update failed for booking %s, property %s: %v", booking.ID, booking.PropertyID, err)
		service.recordAudit(ctx, booking.ID, booking.PropertyID, "calendar_update_failed", err.Error(), true)
		return booking, nil
	}
	if !removed {
		// A concurrent booking claimed at least one of the dates between
		// the availability check and the calendar pull. Compensate.
		span.SetStatus(codes.Error, errs.DatesClaimedConcurrently)
		if delErr := service.bookings.Delete(ctx, booking.ID); delErr != nil {
			service.logger.Errorf("failed to compensate booking %s after lost calendar claim: %v", booking.ID, delErr)
			service.recordAudit(ctx, booking.ID, booking.PropertyID, "compensation_failed", delErr.Error(), true)
		}
		return nil, &domain.ConflictError{Reason: errs.DatesClaimedConcurrently}
	}

	service.recordAudit(ctx, booking.ID, booking.PropertyID, "booking_created", "", false)

	return booking, nil
}

func (service *BookingService) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := service.tracer.Start(ctx, "BookingService.GetBooking")
	defer span.End()

	booking, err := service.bookings.GetByID(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.TransientError{Op: "booking lookup", Err: err}
	}
	if booking == nil {
		return nil, &domain.NotFoundError{Entity: "booking"}
	}
	return booking, nil
}

func (service *BookingService) GetGuestBookings(ctx context.Context, guestID string) (domain.Bookings, error) {
	ctx, span := service.tracer.Start(ctx, "BookingService.GetGuestBookings")
	defer span.End()

	return service.bookings.GetActiveByGuest(ctx, guestID)
}

func (service *BookingService) GetHostBookings(ctx context.Context, hostID string) (domain.Bookings, error) {
	ctx, span := service.tracer.Start(ctx, "BookingService.GetHostBookings")
	defer span.End()

	return service.bookings.GetActiveByHost(ctx, hostID)
}

func (service *BookingService) GetGuestBookingHistory(ctx context.Context, guestID string) (domain.Bookings, error) {
	ctx, span := service.tracer.Start(ctx, "BookingService.GetGuestBookingHistory")
	defer span.End()

	return service.bookings.GetHistoryByGuest(ctx, guestID, service.now())
}

func (service *BookingService) GetHostBookingHistory(ctx context.Context, hostID string) (domain.Bookings, error) {
	ctx, span := service.tracer.Start(ctx, "BookingService.GetHostBookingHistory")
	defer span.End()

	return service.bookings.GetHistoryByHost(ctx, hostID, service.now())
}

// UpdateBooking merges only the sections present in the patch into the
// stored booking, field by field. Sections absent from the patch are
// left untouched. Only the booking's guest, its host or an administrator
// may update it.
func (service *BookingService) UpdateBooking(ctx context.Context, id string, actorID string, role string, patch *domain.BookingPatch) (*domain.Booking, error) {
	ctx, span := service.tracer.Start(ctx, "BookingService.UpdateBooking")
	defer span.End()

	booking, err := service.GetBooking(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if role != "Admin" && actorID != booking.GuestID && actorID != booking.HostID {
		span.SetStatus(codes.Error, errs.UnauthorizedUpdate)
		return nil, &domain.AuthorizationError{Message: errs.UnauthorizedUpdate}
	}

	fields, err := service.patchFields(patch)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(fields) == 0 {
		return nil, &domain.ValidationError{Message: "no updatable fields in request"}
	}

	fields["metadata.updated_at"] = service.now()

	matched, err := service.bookings.UpdateFields(ctx, id, fields)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.TransientError{Op: "booking update", Err: err}
	}
	if !matched {
		return nil, &domain.NotFoundError{Entity: "booking"}
	}

	return service.GetBooking(ctx, id)
}

// CancelBooking transitions a pending or confirmed booking to cancelled,
// records the cancellation sub-record and returns the freed future dates
// to the property calendar. The original handlers never restored freed
// dates; hosts lost the inventory permanently, so that is fixed here.
func (service *BookingService) CancelBooking(ctx context.Context, id string, actorID string, role string, cancellation *domain.Cancellation) (*domain.Booking, error) {
	ctx, span := service.tracer.Start(ctx, "BookingService.CancelBooking")
	defer span.End()

	booking, err := service.GetBooking(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	cancelledBy, err := cancellationActor(booking, actorID, role)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	status := booking.BookingDetails.Status
	if status == domain.StatusCancelled {
		return nil, &domain.ConflictError{Reason: errs.AlreadyCancelled}
	}
	if status != domain.StatusPending && status != domain.StatusConfirmed {
		return nil, &domain.ConflictError{Reason: errs.BookingNotCancellable}
	}

	now := service.now()
	cancellation.CancellationDate = now
	cancellation.CancelledBy = cancelledBy

	fields := map[string]interface{}{
		"bookingDetails.status":       domain.StatusCancelled,
		"bookingDetails.last_updated": now,
		"cancellation":                cancellation,
		"metadata.updated_at":         now,
	}
	matched, err := service.bookings.UpdateFields(ctx, id, fields)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &domain.TransientError{Op: "booking cancellation", Err: err}
	}
	if !matched {
		return nil, &domain.NotFoundError{Entity: "booking"}
	}

	service.restoreCalendar(ctx, booking)

	service.recordAudit(ctx, booking.ID, booking.PropertyID, "booking_cancelled", string(cancelledBy), false)
	service.dispatcher.Dispatch(ctx, &domain.BookingNotification{
		ByGuestId:   booking.GuestID,
		ForHostId:   booking.HostID,
		Description: fmt.Sprintf("Booking %s was cancelled by the %s", booking.BookingDetails.BookingReference, cancelledBy),
	})

	return service.GetBooking(ctx, id)
}

func (service *BookingService) restoreCalendar(ctx context.Context, booking *domain.Booking) {
	checkIn, errIn := domain.ParseDate(booking.BookingDetails.CheckIn)
	checkOut, errOut := domain.ParseDate(booking.BookingDetails.CheckOut)
	if errIn != nil || errOut != nil {
		service.logger.Errorf("cannot restore calendar for booking %s: unparseable dates", booking.ID)
		return
	}

	days := domain.FutureDays(domain.RangeDays(checkIn, checkOut), service.now())
	if len(days) == 0 {
		return
	}

	if err := service.properties.RestoreCalendarDates(ctx, booking.PropertyID, days); err != nil {
		service.logger.Errorf("calendar restore failed for booking %s, property %s: %v", booking.ID, booking.PropertyID, err)
		service.recordAudit(ctx, booking.ID, booking.PropertyID, "calendar_restore_failed", err.Error(), true)
	}
}

func (service *BookingService) validateNewBooking(booking *domain.Booking) (time.Time, time.Time, error) {
	if err := service.validate.Struct(booking); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
			first := fieldErrors[0]
			return time.Time{}, time.Time{}, &domain.ValidationError{
				Field:   first.Namespace(),
				Message: fmt.Sprintf("failed on the '%s' constraint", first.Tag()),
			}
		}
		return time.Time{}, time.Time{}, &domain.ValidationError{Message: err.Error()}
	}

	checkIn, err := domain.ParseDate(booking.BookingDetails.CheckIn)
	if err != nil {
		return time.Time{}, time.Time{}, &domain.ValidationError{Field: "bookingDetails.check_in", Message: "not a parseable date"}
	}
	checkOut, err := domain.ParseDate(booking.BookingDetails.CheckOut)
	if err != nil {
		return time.Time{}, time.Time{}, &domain.ValidationError{Field: "bookingDetails.check_out", Message: "not a parseable date"}
	}
	if !checkOut.After(checkIn) {
		return time.Time{}, time.Time{}, &domain.ValidationError{Field: "bookingDetails.check_out", Message: errs.CheckOutBeforeCheckIn}
	}

	return checkIn, checkOut, nil
}

func (service *BookingService) fillDefaults(booking *domain.Booking, checkIn, checkOut time.Time) {
	now := service.now()

	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.BookingDetails.BookingReference == "" {
		booking.BookingDetails.BookingReference = bookingReference(booking.ID)
	}
	booking.BookingDetails.TotalNights = int(checkOut.Sub(checkIn).Hours() / 24)
	booking.BookingDetails.Status = domain.StatusPending
	booking.BookingDetails.BookingDate = now
	booking.BookingDetails.LastUpdated = now
	if booking.Pricing.Currency == "" {
		booking.Pricing.Currency = "USD"
	}
	booking.Payment = nil
	booking.Cancellation = nil
	booking.Metadata = domain.Metadata{CreatedAt: now, UpdatedAt: now}
}

func (service *BookingService) patchFields(patch *domain.BookingPatch) (map[string]interface{}, error) {
	fields := make(map[string]interface{})

	if details := patch.BookingDetails; details != nil {
		if details.CheckIn != nil {
			if _, err := domain.ParseDate(*details.CheckIn); err != nil {
				return nil, &domain.ValidationError{Field: "bookingDetails.check_in", Message: "not a parseable date"}
			}
			fields["bookingDetails.check_in"] = *details.CheckIn
		}
		if details.CheckOut != nil {
			if _, err := domain.ParseDate(*details.CheckOut); err != nil {
				return nil, &domain.ValidationError{Field: "bookingDetails.check_out", Message: "not a parseable date"}
			}
			fields["bookingDetails.check_out"] = *details.CheckOut
		}
		if details.TotalNights != nil {
			fields["bookingDetails.total_nights"] = *details.TotalNights
		}
		if details.SpecialRequests != nil {
			fields["bookingDetails.special_requests"] = *details.SpecialRequests
		}
		if guests := details.Guests; guests != nil {
			if guests.Adults != nil {
				if *guests.Adults < 1 {
					return nil, &domain.ValidationError{Field: "bookingDetails.guests.adults", Message: "at least one adult is required"}
				}
				fields["bookingDetails.guests.adults"] = *guests.Adults
			}
			if guests.Children != nil {
				fields["bookingDetails.guests.children"] = *guests.Children
			}
			if guests.Infants != nil {
				fields["bookingDetails.guests.infants"] = *guests.Infants
			}
		}
		if len(fields) > 0 {
			fields["bookingDetails.last_updated"] = service.now()
		}
	}

	if pricing := patch.Pricing; pricing != nil {
		setPositive := func(path string, value *float64) error {
			if value == nil {
				return nil
			}
			if *value < 0 {
				return &domain.ValidationError{Field: path, Message: "must not be negative"}
			}
			fields[path] = *value
			return nil
		}
		for path, value := range map[string]*float64{
			"pricing.base_price":     pricing.BasePrice,
			"pricing.cleaning_fee":   pricing.CleaningFee,
			"pricing.service_fee":    pricing.ServiceFee,
			"pricing.taxes":          pricing.Taxes,
			"pricing.deposit_amount": pricing.DepositAmount,
			"pricing.total_amount":   pricing.TotalAmount,
		} {
			if err := setPositive(path, value); err != nil {
				return nil, err
			}
		}
		if pricing.Currency != nil {
			fields["pricing.currency"] = *pricing.Currency
		}
	}

	if payment := patch.Payment; payment != nil {
		if payment.Status != nil {
			fields["payment.status"] = *payment.Status
		}
		if payment.LastError != nil {
			fields["payment.lastError"] = *payment.LastError
		}
	}

	if cancellation := patch.Cancellation; cancellation != nil {
		if cancellation.CancellationPolicy != nil {
			fields["cancellation.cancellation_policy"] = *cancellation.CancellationPolicy
		}
		if cancellation.CancellationReason != nil {
			fields["cancellation.cancellation_reason"] = *cancellation.CancellationReason
		}
		if cancellation.CancellationFee != nil {
			fields["cancellation.cancellation_fee"] = *cancellation.CancellationFee
		}
		if cancellation.RefundAmount != nil {
			fields["cancellation.refund_amount"] = *cancellation.RefundAmount
		}
	}

	return fields, nil
}

func (service *BookingService) recordAudit(ctx context.Context, bookingID, propertyID, event, detail string, inconsistent bool) {
	entry := &domain.AuditEntry{
		ID:           uuid.NewString(),
		BookingID:    bookingID,
		PropertyID:   propertyID,
		Event:        event,
		Detail:       detail,
		Inconsistent: inconsistent,
		CreatedAt:    service.now(),
	}
	if err := service.audit.Record(ctx, entry); err != nil {
		service.logger.Errorf("audit record failed for booking %s (%s): %v", bookingID, event, err)
	}
}

// bookingReference derives the human-facing reference from the booking
// id. Client-supplied ids may be arbitrarily short, so anything without
// eight usable characters falls back to a fresh uuid.
func bookingReference(id string) string {
	compact := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(compact) < 8 {
		compact = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return "BK-" + compact[:8]
}

func cancellationActor(booking *domain.Booking, actorID string, role string) (domain.CancelledBy, error) {
	switch {
	case role == "Admin":
		return domain.CancelledByAdmin, nil
	case actorID == booking.GuestID:
		return domain.CancelledByGuest, nil
	case actorID == booking.HostID:
		return domain.CancelledByHost, nil
	default:
		return "", &domain.AuthorizationError{Message: errs.UnauthorizedCancellation}
	}
}
