package domain

import (
	"encoding/json"
	"io"
	"time"
)

type BookingStatus string

const (
	StatusPending           BookingStatus = "pending"
	StatusConfirmed         BookingStatus = "confirmed"
	StatusCancelled         BookingStatus = "cancelled"
	StatusCompleted         BookingStatus = "completed"
	StatusNoShow            BookingStatus = "no-show"
	StatusRefunded          BookingStatus = "refunded"
	StatusPartiallyRefunded BookingStatus = "partially_refunded"
)

// Terminal statuses allow no further transition.
func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusRefunded
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type CancelledBy string

const (
	CancelledByGuest CancelledBy = "guest"
	CancelledByHost  CancelledBy = "host"
	CancelledByAdmin CancelledBy = "admin"
)

type Guests struct {
	Adults   int `bson:"adults" json:"adults" validate:"min=1"`
	Children int `bson:"children" json:"children" validate:"min=0"`
	Infants  int `bson:"infants" json:"infants" validate:"min=0"`
}

type BookingDetails struct {
	BookingReference string        `bson:"booking_reference" json:"booking_reference"`
	CheckIn          string        `bson:"check_in" json:"check_in" validate:"required"`
	CheckOut         string        `bson:"check_out" json:"check_out" validate:"required"`
	TotalNights      int           `bson:"total_nights" json:"total_nights"`
	Guests           Guests        `bson:"guests" json:"guests"`
	SpecialRequests  string        `bson:"special_requests,omitempty" json:"special_requests,omitempty"`
	Status           BookingStatus `bson:"status" json:"status"`
	BookingDate      time.Time     `bson:"booking_date" json:"booking_date"`
	LastUpdated      time.Time     `bson:"last_updated" json:"last_updated"`
}

type Discounts struct {
	WeeklyDiscount     float64 `bson:"weekly_discount" json:"weekly_discount" validate:"min=0,max=100"`
	MonthlyDiscount    float64 `bson:"monthly_discount" json:"monthly_discount" validate:"min=0,max=100"`
	EarlyBirdDiscount  float64 `bson:"early_bird_discount" json:"early_bird_discount" validate:"min=0,max=100"`
	LastMinuteDiscount float64 `bson:"last_minute_discount" json:"last_minute_discount" validate:"min=0,max=100"`
	CustomDiscount     float64 `bson:"custom_discount" json:"custom_discount" validate:"min=0,max=100"`
}

type Pricing struct {
	BasePrice          float64   `bson:"base_price" json:"base_price" validate:"gt=0"`
	CleaningFee        float64   `bson:"cleaning_fee" json:"cleaning_fee" validate:"min=0"`
	ServiceFee         float64   `bson:"service_fee" json:"service_fee" validate:"min=0"`
	Taxes              float64   `bson:"taxes" json:"taxes" validate:"min=0"`
	DepositAmount      float64   `bson:"deposit_amount" json:"deposit_amount" validate:"min=0"`
	Discounts          Discounts `bson:"discounts" json:"discounts"`
	Currency           string    `bson:"currency" json:"currency"`
	TotalAmount        float64   `bson:"total_amount" json:"total_amount" validate:"gt=0"`
	PlatformCommission float64   `bson:"platform_commission" json:"platform_commission" validate:"min=0"`
}

type DisputeDetails struct {
	Reason  string    `bson:"reason" json:"reason"`
	Status  string    `bson:"status" json:"status"`
	Amount  float64   `bson:"amount" json:"amount"`
	Created time.Time `bson:"created" json:"created"`
}

type Payment struct {
	PaymentIntentID string          `bson:"paymentIntentId" json:"paymentIntentId"`
	Amount          float64         `bson:"amount" json:"amount"`
	Currency        string          `bson:"currency" json:"currency"`
	Status          PaymentStatus   `bson:"status" json:"status"`
	CreatedAt       time.Time       `bson:"createdAt" json:"createdAt"`
	CompletedAt     *time.Time      `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	LastError       string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	Disputed        bool            `bson:"disputed,omitempty" json:"disputed,omitempty"`
	DisputeDetails  *DisputeDetails `bson:"disputeDetails,omitempty" json:"disputeDetails,omitempty"`
	Refunded        bool            `bson:"refunded,omitempty" json:"refunded,omitempty"`
	RefundedAmount  float64         `bson:"refundedAmount,omitempty" json:"refundedAmount,omitempty"`
	RefundedAt      *time.Time      `bson:"refundedAt,omitempty" json:"refundedAt,omitempty"`
	RefundReason    string          `bson:"refundReason,omitempty" json:"refundReason,omitempty"`
	RefundID        string          `bson:"refundId,omitempty" json:"refundId,omitempty"`
}

type Cancellation struct {
	CancellationPolicy string      `bson:"cancellation_policy,omitempty" json:"cancellation_policy,omitempty"`
	CancellationReason string      `bson:"cancellation_reason,omitempty" json:"cancellation_reason,omitempty"`
	CancellationDate   time.Time   `bson:"cancellation_date" json:"cancellation_date"`
	CancellationFee    float64     `bson:"cancellation_fee" json:"cancellation_fee" validate:"min=0"`
	RefundAmount       float64     `bson:"refund_amount" json:"refund_amount" validate:"min=0"`
	CancelledBy        CancelledBy `bson:"cancelled_by" json:"cancelled_by"`
}

type Metadata struct {
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

type Booking struct {
	ID             string         `bson:"_id" json:"_id"`
	PropertyID     string         `bson:"property_id" json:"property_id" validate:"required"`
	HostID         string         `bson:"host_id" json:"host_id" validate:"required"`
	GuestID        string         `bson:"guest_id" json:"guest_id" validate:"required"`
	BookingDetails BookingDetails `bson:"bookingDetails" json:"bookingDetails"`
	Pricing        Pricing        `bson:"pricing" json:"pricing"`
	Payment        *Payment       `bson:"payment,omitempty" json:"payment,omitempty"`
	Cancellation   *Cancellation  `bson:"cancellation,omitempty" json:"cancellation,omitempty"`
	Metadata       Metadata       `bson:"metadata" json:"metadata"`
}

type Bookings []*Booking

// Availability is the slice of open calendar dates on a property document.
// Dates are stored as YYYY-MM-DD strings; older documents may carry full
// timestamps, which the availability check normalizes on read.
type Availability struct {
	AvailabilityCalendar []string `bson:"availability_calendar" json:"availability_calendar"`
}

type Property struct {
	ID           string       `bson:"_id" json:"_id"`
	HostID       string       `bson:"host_id" json:"host_id"`
	Availability Availability `bson:"availability" json:"availability"`
}

// Patch types carry the optional top-level sections of a booking update.
// Only fields present in a section are written; absent sections are left
// untouched.
type GuestsPatch struct {
	Adults   *int `json:"adults,omitempty"`
	Children *int `json:"children,omitempty"`
	Infants  *int `json:"infants,omitempty"`
}

type BookingDetailsPatch struct {
	CheckIn         *string      `json:"check_in,omitempty"`
	CheckOut        *string      `json:"check_out,omitempty"`
	TotalNights     *int         `json:"total_nights,omitempty"`
	Guests          *GuestsPatch `json:"guests,omitempty"`
	SpecialRequests *string      `json:"special_requests,omitempty"`
}

type PricingPatch struct {
	BasePrice     *float64 `json:"base_price,omitempty"`
	CleaningFee   *float64 `json:"cleaning_fee,omitempty"`
	ServiceFee    *float64 `json:"service_fee,omitempty"`
	Taxes         *float64 `json:"taxes,omitempty"`
	DepositAmount *float64 `json:"deposit_amount,omitempty"`
	Currency      *string  `json:"currency,omitempty"`
	TotalAmount   *float64 `json:"total_amount,omitempty"`
}

type PaymentPatch struct {
	Status    *PaymentStatus `json:"status,omitempty"`
	LastError *string        `json:"lastError,omitempty"`
}

type CancellationPatch struct {
	CancellationPolicy *string  `json:"cancellation_policy,omitempty"`
	CancellationReason *string  `json:"cancellation_reason,omitempty"`
	CancellationFee    *float64 `json:"cancellation_fee,omitempty"`
	RefundAmount       *float64 `json:"refund_amount,omitempty"`
}

type BookingPatch struct {
	BookingDetails *BookingDetailsPatch `json:"bookingDetails,omitempty"`
	Pricing        *PricingPatch        `json:"pricing,omitempty"`
	Payment        *PaymentPatch        `json:"payment,omitempty"`
	Cancellation   *CancellationPatch   `json:"cancellation,omitempty"`
}

func (b *Booking) FromJSON(r io.Reader) error {
	d := json.NewDecoder(r)
	return d.Decode(b)
}

func (p *BookingPatch) FromJSON(r io.Reader) error {
	d := json.NewDecoder(r)
	return d.Decode(p)
}
