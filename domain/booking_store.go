package domain

import (
	"context"
	"time"
)

type BookingStore interface {
	Insert(ctx context.Context, booking *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*Booking, error)
	GetActiveByGuest(ctx context.Context, guestID string) (Bookings, error)
	GetActiveByHost(ctx context.Context, hostID string) (Bookings, error)
	GetHistoryByGuest(ctx context.Context, guestID string, before time.Time) (Bookings, error)
	GetHistoryByHost(ctx context.Context, hostID string, before time.Time) (Bookings, error)

	// UpdateFields applies a flat set of dotted field paths to one booking
	// and reports whether the booking was matched.
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) (bool, error)

	// UpdateStatusIfPending transitions the booking to the given status
	// only while it is still pending, setting the payment fields in the
	// same write. It returns false when another path already applied the
	// transition, which callers treat as a no-op.
	UpdateStatusIfPending(ctx context.Context, id string, status BookingStatus, fields map[string]interface{}) (bool, error)

	AttachPayment(ctx context.Context, id string, payment *Payment) (bool, error)

	// Delete removes a booking outright. Reserved for compensating a
	// creation whose calendar claim was lost to a concurrent writer.
	Delete(ctx context.Context, id string) error
}

type PropertyStore interface {
	GetByID(ctx context.Context, id string) (*Property, error)

	// RemoveCalendarDates pulls the dates from the property's open
	// calendar only if every one of them is still present, and reports
	// whether that guard matched. A false return means a concurrent
	// booking claimed at least one of the dates first.
	RemoveCalendarDates(ctx context.Context, propertyID string, dates []string) (bool, error)

	RestoreCalendarDates(ctx context.Context, propertyID string, dates []string) error
}

// AuditStore records lifecycle transitions and calendar inconsistencies.
// Entries with Inconsistent set are the input to out-of-band
// reconciliation between bookings and property calendars.
type AuditStore interface {
	Record(ctx context.Context, entry *AuditEntry) error
}

type AuditEntry struct {
	ID           string    `bson:"_id" json:"_id"`
	BookingID    string    `bson:"booking_id" json:"booking_id"`
	PropertyID   string    `bson:"property_id,omitempty" json:"property_id,omitempty"`
	Event        string    `bson:"event" json:"event"`
	Detail       string    `bson:"detail,omitempty" json:"detail,omitempty"`
	Inconsistent bool      `bson:"inconsistent,omitempty" json:"inconsistent,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// EventCache remembers processed webhook event ids so redelivered events
// are dropped before any booking write.
type EventCache interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// NotificationDispatcher is fire-and-forget: delivery failure must never
// fail the booking operation that triggered it.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, notification *BookingNotification)
}

type BookingNotification struct {
	ByGuestId   string `json:"ByGuestId"`
	ForHostId   string `json:"ForHostId"`
	Description string `json:"Description"`
}
