package store

import (
	errs "booking_service/errors"
	"context"
	"time"

	"booking_service/domain"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const bookingsCollection = "bookings"

var activeStatuses = bson.A{domain.StatusPending, domain.StatusConfirmed}

type BookingMongoDBStore struct {
	bookings *mongo.Collection
	tracer   trace.Tracer
	logger   *logrus.Logger
}

func NewBookingMongoDBStore(client *mongo.Client, tracer trace.Tracer, logger *logrus.Logger) domain.BookingStore {
	bookings := client.Database(DATABASE).Collection(bookingsCollection)
	return &BookingMongoDBStore{
		bookings: bookings,
		tracer:   tracer,
		logger:   logger,
	}
}

func (store *BookingMongoDBStore) Insert(ctx context.Context, booking *domain.Booking) error {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.Insert")
	defer span.End()

	_, err := store.bookings.InsertOne(ctx, booking)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("error inserting booking %s: %v", booking.ID, err)
		if mongo.IsDuplicateKeyError(err) {
			return &domain.ConflictError{Reason: errs.DuplicateBookingId}
		}
		return &domain.TransientError{Op: "booking insert", Err: err}
	}
	return nil
}

func (store *BookingMongoDBStore) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.GetByID")
	defer span.End()

	return store.filterOne(ctx, bson.M{"_id": id})
}

func (store *BookingMongoDBStore) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Booking, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.GetByPaymentIntent")
	defer span.End()

	return store.filterOne(ctx, bson.M{"payment.paymentIntentId": paymentIntentID})
}

func (store *BookingMongoDBStore) GetActiveByGuest(ctx context.Context, guestID string) (domain.Bookings, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.GetActiveByGuest")
	defer span.End()

	return store.filter(ctx, bson.M{
		"guest_id":              guestID,
		"bookingDetails.status": bson.M{"$in": activeStatuses},
	})
}

func (store *BookingMongoDBStore) GetActiveByHost(ctx context.Context, hostID string) (domain.Bookings, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.GetActiveByHost")
	defer span.End()

	return store.filter(ctx, bson.M{
		"host_id":               hostID,
		"bookingDetails.status": bson.M{"$in": activeStatuses},
	})
}

func (store *BookingMongoDBStore) GetHistoryByGuest(ctx context.Context, guestID string, before time.Time) (domain.Bookings, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.GetHistoryByGuest")
	defer span.End()

	return store.filter(ctx, historyFilter(bson.M{"guest_id": guestID}, before))
}

func (store *BookingMongoDBStore) GetHistoryByHost(ctx context.Context, hostID string, before time.Time) (domain.Bookings, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.GetHistoryByHost")
	defer span.End()

	return store.filter(ctx, historyFilter(bson.M{"host_id": hostID}, before))
}

// historyFilter matches bookings that reached a terminal state or whose
// stay already ended.
func historyFilter(base bson.M, before time.Time) bson.M {
	base["$or"] = bson.A{
		bson.M{"bookingDetails.status": bson.M{"$nin": activeStatuses}},
		bson.M{"bookingDetails.check_out": bson.M{"$lt": before.Format(domain.DateLayout)}},
	}
	return base
}

func (store *BookingMongoDBStore) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) (bool, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.UpdateFields")
	defer span.End()

	set := bson.M{}
	for path, value := range fields {
		set[path] = value
	}

	result, err := store.bookings.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("error updating booking %s: %v", id, err)
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (store *BookingMongoDBStore) UpdateStatusIfPending(ctx context.Context, id string, status domain.BookingStatus, fields map[string]interface{}) (bool, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.UpdateStatusIfPending")
	defer span.End()

	set := bson.M{
		"bookingDetails.status":       status,
		"bookingDetails.last_updated": time.Now(),
	}
	for path, value := range fields {
		set[path] = value
	}

	// The status guard in the filter makes the transition conditional:
	// a booking another path already moved out of pending is not matched.
	filter := bson.M{"_id": id, "bookingDetails.status": domain.StatusPending}
	result, err := store.bookings.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("error transitioning booking %s to %s: %v", id, status, err)
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (store *BookingMongoDBStore) AttachPayment(ctx context.Context, id string, payment *domain.Payment) (bool, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.AttachPayment")
	defer span.End()

	// Guarded against an intent attached by a concurrent request.
	filter := bson.M{"_id": id, "payment.paymentIntentId": bson.M{"$exists": false}}
	result, err := store.bookings.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"payment": payment}})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("error attaching payment to booking %s: %v", id, err)
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (store *BookingMongoDBStore) Delete(ctx context.Context, id string) error {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.Delete")
	defer span.End()

	_, err := store.bookings.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("error deleting booking %s: %v", id, err)
	}
	return err
}

func (store *BookingMongoDBStore) filterOne(ctx context.Context, filter interface{}) (*domain.Booking, error) {
	result := store.bookings.FindOne(ctx, filter)

	var booking domain.Booking
	if err := result.Decode(&booking); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		store.logger.Errorf("error decoding booking: %v", err)
		return nil, err
	}
	return &booking, nil
}

func (store *BookingMongoDBStore) filter(ctx context.Context, filter interface{}) (domain.Bookings, error) {
	cursor, err := store.bookings.Find(ctx, filter)
	if err != nil {
		store.logger.Errorf("error fetching bookings: %v", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	return decodeBookings(ctx, cursor)
}

func decodeBookings(ctx context.Context, cursor *mongo.Cursor) (bookings domain.Bookings, err error) {
	for cursor.Next(ctx) {
		var booking domain.Booking
		err = cursor.Decode(&booking)
		if err != nil {
			return
		}
		bookings = append(bookings, &booking)
	}
	err = cursor.Err()
	return
}
