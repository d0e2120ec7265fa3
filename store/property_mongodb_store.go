package store

import (
	"context"

	"booking_service/domain"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const propertiesCollection = "properties"

type PropertyMongoDBStore struct {
	properties *mongo.Collection
	tracer     trace.Tracer
	logger     *logrus.Logger
}

func NewPropertyMongoDBStore(client *mongo.Client, tracer trace.Tracer, logger *logrus.Logger) domain.PropertyStore {
	properties := client.Database(DATABASE).Collection(propertiesCollection)
	return &PropertyMongoDBStore{
		properties: properties,
		tracer:     tracer,
		logger:     logger,
	}
}

func (store *PropertyMongoDBStore) GetByID(ctx context.Context, id string) (*domain.Property, error) {
	ctx, span := store.tracer.Start(ctx, "PropertyMongoDBStore.GetByID")
	defer span.End()

	result := store.properties.FindOne(ctx, bson.M{"_id": id})

	var property domain.Property
	if err := result.Decode(&property); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("error decoding property %s: %v", id, err)
		return nil, err
	}
	return &property, nil
}

// RemoveCalendarDates pulls the dates from the open calendar in a single
// conditional update. The filter only matches while every requested date
// is still open, so two overlapping bookings cannot both claim the same
// day: the second pull matches nothing and reports false. Calendar
// entries are matched by day prefix because older documents store full
// timestamps ("2024-07-01T00:00:00Z") where newer ones store plain
// dates.
func (store *PropertyMongoDBStore) RemoveCalendarDates(ctx context.Context, propertyID string, dates []string) (bool, error) {
	ctx, span := store.tracer.Start(ctx, "PropertyMongoDBStore.RemoveCalendarDates")
	defer span.End()

	guards := make(bson.A, 0, len(dates))
	patterns := make(bson.A, 0, len(dates))
	for _, day := range dates {
		pattern := primitive.Regex{Pattern: "^" + day + "(T.*)?$"}
		guards = append(guards, bson.M{"availability.availability_calendar": pattern})
		patterns = append(patterns, pattern)
	}

	filter := bson.M{
		"_id":  propertyID,
		"$and": guards,
	}
	update := bson.M{
		"$pull": bson.M{
			"availability.availability_calendar": bson.M{"$in": patterns},
		},
	}

	result, err := store.properties.UpdateOne(ctx, filter, update)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("error removing calendar dates on property %s: %v", propertyID, err)
		return false, err
	}
	return result.MatchedCount > 0, nil
}

// RestoreCalendarDates returns freed dates to the calendar. $addToSet
// keeps the operation idempotent: a date already present is not
// duplicated.
func (store *PropertyMongoDBStore) RestoreCalendarDates(ctx context.Context, propertyID string, dates []string) error {
	ctx, span := store.tracer.Start(ctx, "PropertyMongoDBStore.RestoreCalendarDates")
	defer span.End()

	update := bson.M{
		"$addToSet": bson.M{
			"availability.availability_calendar": bson.M{"$each": dates},
		},
	}

	_, err := store.properties.UpdateOne(ctx, bson.M{"_id": propertyID}, update)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("error restoring calendar dates on property %s: %v", propertyID, err)
	}
	return err
}
