package errors

const (
	PropertyNotFound          = "Property not found"
	BookingNotFound           = "Booking not found"
	HostMismatch              = "Host ID does not match with property host ID"
	CheckOutBeforeCheckIn     = "check_out must be after check_in"
	CheckInPast               = "check_in cannot be in the past"
	DateUnavailable           = "Property is not available for the selected date"
	DatesClaimedConcurrently  = "Selected dates were booked by another request"
	DuplicateBookingId        = "Booking with the same id already exists"
	AlreadyCancelled          = "Booking is already cancelled"
	BookingNotCancellable     = "Booking can no longer be cancelled"
	PaymentIntentExists       = "Payment intent already exists for this booking"
	PaymentIntentMismatch     = "Payment intent does not match this booking"
	PaymentNotFound           = "No payment found for this booking"
	PaymentNotPending         = "Cannot process payment for booking in this status"
	AmountMismatch            = "Amount does not match the booking total"
	RefundExceedsPayment      = "Refund amount exceeds the paid amount"
	UnauthorizedPayment       = "Unauthorized to make payment for this booking"
	UnauthorizedRefund        = "Unauthorized to process refund for this booking"
	UnauthorizedCancellation  = "Unauthorized to cancel this booking"
	UnauthorizedUpdate        = "Unauthorized to update this booking"
	InvalidWebhookSignature   = "Webhook signature verification failed"
	InvalidRequestFormatError = "Invalid request format"
)
