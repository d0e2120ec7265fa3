package store

import (
	"context"
	"time"

	"booking_service/domain"

	"github.com/go-redis/redis"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	eventKeyPrefix = "payment_event:"
	eventKeyTTL    = 24 * time.Hour
)

// PaymentEventRedisCache remembers webhook event ids so a redelivered
// event is dropped before any booking write.
type PaymentEventRedisCache struct {
	client *redis.Client
	tracer trace.Tracer
	logger *logrus.Logger
}

func NewPaymentEventRedisCache(client *redis.Client, tracer trace.Tracer, logger *logrus.Logger) domain.EventCache {
	return &PaymentEventRedisCache{
		client: client,
		tracer: tracer,
		logger: logger,
	}
}

func (cache *PaymentEventRedisCache) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	_, span := cache.tracer.Start(ctx, "PaymentEventRedisCache.IsProcessed")
	defer span.End()

	_, err := cache.client.Get(eventKeyPrefix + eventID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		cache.logger.Errorf("redis get error for event %s: %v", eventID, err)
		return false, err
	}
	return true, nil
}

func (cache *PaymentEventRedisCache) MarkProcessed(ctx context.Context, eventID string) error {
	_, span := cache.tracer.Start(ctx, "PaymentEventRedisCache.MarkProcessed")
	defer span.End()

	result := cache.client.Set(eventKeyPrefix+eventID, "1", eventKeyTTL)
	if result.Err() != nil {
		span.SetStatus(codes.Error, result.Err().Error())
		cache.logger.Errorf("redis set error for event %s: %v", eventID, result.Err())
		return result.Err()
	}
	return nil
}
