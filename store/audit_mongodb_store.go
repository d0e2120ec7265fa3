package store

import (
	"context"

	"booking_service/domain"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const auditCollection = "booking_audit"

// AuditMongoDBStore is an append-only trail of booking lifecycle events.
// Entries flagged inconsistent are picked up by out-of-band
// reconciliation between bookings and property calendars.
type AuditMongoDBStore struct {
	entries *mongo.Collection
	tracer  trace.Tracer
	logger  *logrus.Logger
}

func NewAuditMongoDBStore(client *mongo.Client, tracer trace.Tracer, logger *logrus.Logger) domain.AuditStore {
	entries := client.Database(DATABASE).Collection(auditCollection)
	return &AuditMongoDBStore{
		entries: entries,
		tracer:  tracer,
		logger:  logger,
	}
}

func (store *AuditMongoDBStore) Record(ctx context.Context, entry *domain.AuditEntry) error {
	ctx, span := store.tracer.Start(ctx, "AuditMongoDBStore.Record")
	defer span.End()

	_, err := store.entries.InsertOne(ctx, entry)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		store.logger.Errorf("error recording audit entry for booking %s: %v", entry.BookingID, err)
	}
	return err
}
