package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"booking_service/domain"
	application "booking_service/service"

	"github.com/cristalhq/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type KeyProduct struct{}

var (
	jwtKey      = []byte(os.Getenv("SECRET_KEY"))
	verifier, _ = jwt.NewVerifierHS(jwt.HS256, jwtKey)
)

type BookingHandler struct {
	service *application.BookingService
	tracer  trace.Tracer
	logger  *logrus.Logger
}

func NewBookingHandler(service *application.BookingService, tracer trace.Tracer, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		tracer:  tracer,
		logger:  logger,
	}
}

func (handler *BookingHandler) Init(router *mux.Router) {
	router.Use(ExtractTraceInfoMiddleware)

	create := router.Methods(http.MethodPost).Subrouter()
	create.HandleFunc("/bookings", handler.CreateBooking)
	create.Use(handler.MiddlewareBookingDeserialization)

	update := router.Methods(http.MethodPatch).Subrouter()
	update.HandleFunc("/bookings/{id}", handler.UpdateBooking)
	update.Use(handler.MiddlewareBookingPatchDeserialization)

	router.HandleFunc("/bookings/{id}", handler.GetBooking).Methods(http.MethodGet)
	router.HandleFunc("/bookings/{id}/cancel", handler.CancelBooking).Methods(http.MethodPost)
	router.HandleFunc("/bookings/user/{id}", handler.GetBookingsByGuest).Methods(http.MethodGet)
	router.HandleFunc("/bookings/user/{id}/history", handler.GetGuestBookingHistory).Methods(http.MethodGet)
	router.HandleFunc("/bookings/host/{id}", handler.GetBookingsByHost).Methods(http.MethodGet)
	router.HandleFunc("/bookings/host/{id}/history", handler.GetHostBookingHistory).Methods(http.MethodGet)
}

func (handler *BookingHandler) CreateBooking(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "BookingHandler.CreateBooking")
	defer span.End()

	booking := h.Context().Value(KeyProduct{}).(*domain.Booking)

	userID, role, err := requestUser(h)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(rw, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if booking.GuestID == "" {
		booking.GuestID = userID
	}
	if booking.GuestID != userID && role != "Admin" {
		span.SetStatus(codes.Error, "guest id does not match token")
		http.Error(rw, "Cannot create a booking for another guest", http.StatusForbidden)
		return
	}

	created, err := handler.service.CreateBooking(ctx, booking)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handler.writeError(rw, err)
		return
	}

	rw.WriteHeader(http.StatusCreated)
	jsonResponse(created, rw)
}

func (handler *BookingHandler) GetBooking(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "BookingHandler.GetBooking")
	defer span.End()

	id := mux.Vars(h)["id"]

	booking, err := handler.service.GetBooking(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handler.writeError(rw, err)
		return
	}
	jsonResponse(booking, rw)
}

func (handler *BookingHandler) GetBookingsByGuest(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "BookingHandler.GetBookingsByGuest")
	defer span.End()

	guestID := mux.Vars(h)["id"]

	bookings, err := handler.service.GetGuestBookings(ctx, guestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handler.logger.Errorf("error listing bookings for guest %s: %v", guestID, err)
		http.Error(rw, "Error getting bookings", http.StatusInternalServerError)
		return
	}
	jsonResponse(bookings, rw)
}

func (handler *BookingHandler) GetBookingsByHost(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "BookingHandler.GetBookingsByHost")
	defer span.End()

	hostID := mux.Vars(h)["id"]

	bookings, err := handler.service.GetHostBookings(ctx, hostID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handler.logger.Errorf("error listing bookings for host %s: %v", hostID, err)
		http.Error(rw, "Error getting bookings", http.StatusInternalServerError)
		return
	}
	jsonResponse(bookings, rw)
}

func (handler *BookingHandler) GetGuestBookingHistory(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "BookingHandler.GetGuestBookingHistory")
	defer span.End()

	guestID := mux.Vars(h)["id"]

	bookings, err := handler.service.GetGuestBookingHistory(ctx, guestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handler.logger.Errorf("error listing booking history for guest %s: %v", guestID, err)
		http.Error(rw, "Error getting booking history", http.StatusInternalServerError)
		return
	}
	jsonResponse(bookings, rw)
}

func (handler *BookingHandler) GetHostBookingHistory(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "BookingHandler.GetHostBookingHistory")
	defer span.End()

	hostID := mux.Vars(h)["id"]

	bookings, err := handler.service.GetHostBookingHistory(ctx, hostID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handler.logger.Errorf("error listing booking history for host %s: %v", hostID, err)
		http.Error(rw, "Error getting booking history", http.StatusInternalServerError)
		return
	}
	jsonResponse(bookings, rw)
}

func (handler *BookingHandler) UpdateBooking(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "BookingHandler.UpdateBooking")
	defer span.End()

	id := mux.Vars(h)["id"]
	patch := h.Context().Value(KeyProduct{}).(*domain.BookingPatch)

	userID, role, err := requestUser(h)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(rw, "Unauthorized", http.StatusUnauthorized)
		return
	}

	updated, err := handler.service.UpdateBooking(ctx, id, userID, role, patch)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handler.writeError(rw, err)
		return
	}
	jsonResponse(updated, rw)
}

func (handler *BookingHandler) CancelBooking(rw http.ResponseWriter, h *http.Request) {
	ctx, span := handler.tracer.Start(h.Context(), "BookingHandler.CancelBooking")
	defer span.End()

	id := mux.Vars(h)["id"]

	userID, role, err := requestUser(h)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(rw, "Unauthorized", http.StatusUnauthorized)
		return
	}

	cancellation := &domain.Cancellation{}
	if err := json.NewDecoder(h.Body).Decode(cancellation); err != nil && err.Error() != "EOF" {
		span.SetStatus(codes.Error, err.Error())
		http.Error(rw, "Unable to decode json", http.StatusBadRequest)
		return
	}

	cancelled, err := handler.service.CancelBooking(ctx, id, userID, role, cancellation)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handler.writeError(rw, err)
		return
	}
	jsonResponse(cancelled, rw)
}

func (handler *BookingHandler) MiddlewareBookingDeserialization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, h *http.Request) {
		booking := &domain.Booking{}
		if err := booking.FromJSON(h.Body); err != nil {
			handler.logger.Errorf("unable to decode booking: %v", err)
			http.Error(rw, "Unable to decode json", http.StatusBadRequest)
			return
		}
		ctx := context.WithValue(h.Context(), KeyProduct{}, booking)
		next.ServeHTTP(rw, h.WithContext(ctx))
	})
}

func (handler *BookingHandler) MiddlewareBookingPatchDeserialization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, h *http.Request) {
		patch := &domain.BookingPatch{}
		if err := patch.FromJSON(h.Body); err != nil {
			handler.logger.Errorf("unable to decode booking patch: %v", err)
			http.Error(rw, "Unable to decode json", http.StatusBadRequest)
			return
		}
		ctx := context.WithValue(h.Context(), KeyProduct{}, patch)
		next.ServeHTTP(rw, h.WithContext(ctx))
	})
}

// writeError maps the typed service errors onto HTTP statuses. Anything
// untyped is reported as an internal error without leaking details.
func (handler *BookingHandler) writeError(rw http.ResponseWriter, err error) {
	writeDomainError(rw, handler.logger, err)
}

func writeDomainError(rw http.ResponseWriter, logger *logrus.Logger, err error) {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		conflictErr   *domain.ConflictError
		authErr       *domain.AuthorizationError
		transientErr  *domain.TransientError
	)

	switch {
	case errors.As(err, &validationErr):
		http.Error(rw, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		http.Error(rw, notFoundErr.Error(), http.StatusNotFound)
	case errors.As(err, &conflictErr):
		http.Error(rw, conflictErr.Error(), http.StatusConflict)
	case errors.As(err, &authErr):
		http.Error(rw, authErr.Error(), http.StatusForbidden)
	case errors.As(err, &transientErr):
		logger.Errorf("transient failure: %v", transientErr)
		http.Error(rw, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		logger.Errorf("unexpected error: %v", err)
		http.Error(rw, "Internal server error", http.StatusInternalServerError)
	}
}

// requestUser resolves the caller's id and role from the bearer token.
// Route-level access is already enforced by the casbin middleware; this
// is for ownership checks inside the handlers.
func requestUser(h *http.Request) (string, string, error) {
	bearer := h.Header.Get("Authorization")
	if bearer == "" {
		return "", "", errors.New("Authorization header missing")
	}

	bearerToken := strings.Split(bearer, "Bearer ")
	if len(bearerToken) != 2 {
		return "", "", errors.New("malformed Authorization header")
	}

	token, err := jwt.Parse([]byte(bearerToken[1]), verifier)
	if err != nil {
		return "", "", err
	}

	var claims map[string]string
	if err := jwt.ParseClaims(token.Bytes(), verifier, &claims); err != nil {
		return "", "", err
	}

	return claims["userId"], claims["userType"], nil
}

func jsonResponse(object interface{}, w http.ResponseWriter) {
	resp, err := json.Marshal(object)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

func ExtractTraceInfoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
