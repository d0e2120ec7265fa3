package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	application "booking_service/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type PaymentHandler struct {
	payments *application.PaymentService
	tracer   trace.Tracer
	logger   *logrus.Logger
}

func NewPaymentHandler(payments *application.PaymentService, tracer trace.Tracer, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		tracer:   tracer,
		logger:   logger,
	}
}

func (handler *PaymentHandler) Init(router *mux.Router) {
	router.HandleFunc("/payments/intent", handler.CreatePaymentIntent).Methods(http.MethodPost)
	router.HandleFunc("/payments/confirm", handler.ConfirmPayment).Methods(http.MethodPost)
	router.HandleFunc("/payments/webhook", handler.HandleWebhook).Methods(http.MethodPost)
	router.HandleFunc("/payments/refund", handler.ProcessRefund).Methods(http.MethodPost)
}

type intentRequest struct {
	BookingID string  `json:"bookingId"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

func (handler *PaymentHandler) CreatePaymentIntent(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "PaymentHandler.CreatePaymentIntent")
	defer span.End()

	userID, _, err := requestUser(h)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(rw, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var request intentRequest
	if err := json.NewDecoder(h.Body).Decode(&request); err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(rw, "Unable to decode json", http.StatusBadRequest)
		return
	}

	result, err := handler.payments.CreatePaymentIntent(ctx, request.BookingID, userID, request.Amount, request.Currency)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(rw, handler.logger, err)
		return
	}
	jsonResponse(result, rw)
}

type confirmRequest struct {
	BookingID       string `json:"bookingId"`
	PaymentIntentID string `json:"paymentIntentId"`
}

func (handler *PaymentHandler) ConfirmPayment(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "PaymentHandler.ConfirmPayment")
	defer span.End()

	userID, _, err := requestUser(h)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(rw, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var request confirmRequest
	if err := json.NewDecoder(h.Body).Decode(&request); err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(rw, "Unable to decode json", http.StatusBadRequest)
		return
	}

	result, err := handler.payments.ConfirmPayment(ctx, request.BookingID, request.PaymentIntentID, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(rw, handler.logger, err)
		return
	}
	jsonResponse(result, rw)
}

// HandleWebhook receives gateway callbacks. The raw body is read before
// any decoding because signature verification runs over the exact bytes
// the gateway signed.
func (handler *PaymentHandler) HandleWebhook(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "PaymentHandler.HandleWebhook")
	defer span.End()

	payload, err := io.ReadAll(h.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(rw, "Unable to read request body", http.StatusBadRequest)
		return
	}

	if err := handler.payments.HandleWebhook(ctx, payload, h.Header.Get("Stripe-Signature")); err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(rw, handler.logger, err)
		return
	}

	jsonResponse(map[string]bool{"received": true}, rw)
}

type refundRequest struct {
	BookingID string   `json:"bookingId"`
	Amount    *float64 `json:"amount,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

func (handler *PaymentHandler) ProcessRefund(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "PaymentHandler.ProcessRefund")
	defer span.End()

	userID, role, err := requestUser(h)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(rw, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var request refundRequest
	if err := json.NewDecoder(h.Body).Decode(&request); err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(rw, "Unable to decode json", http.StatusBadRequest)
		return
	}

	result, err := handler.payments.ProcessRefund(ctx, request.BookingID, userID, role, request.Amount, request.Reason)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(rw, handler.logger, err)
		return
	}
	jsonResponse(result, rw)
}
