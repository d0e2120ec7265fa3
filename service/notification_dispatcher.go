package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"booking_service/domain"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// HTTPNotificationDispatcher posts booking notifications to the
// notification service. Delivery is best effort behind a circuit
// breaker; a failed or rejected dispatch is logged and dropped.
type HTTPNotificationDispatcher struct {
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	logger   *logrus.Logger
}

func NewHTTPNotificationDispatcher(host, port string, logger *logrus.Logger) *HTTPNotificationDispatcher {
	return &HTTPNotificationDispatcher{
		endpoint: fmt.Sprintf("http://%s:%s/", host, port),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		cb:     CircuitBreaker("notificationService"),
		logger: logger,
	}
}

func (dispatcher *HTTPNotificationDispatcher) Dispatch(ctx context.Context, notification *domain.BookingNotification) {
	_, err := dispatcher.cb.Execute(func() (interface{}, error) {
		body, err := json.Marshal(notification)
		if err != nil {
			return nil, err
		}

		request, err := http.NewRequestWithContext(ctx, http.MethodPost, dispatcher.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(request.Header))

		response, err := dispatcher.client.Do(request)
		if err != nil {
			return nil, err
		}
		defer response.Body.Close()

		if response.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("notification service returned %s", response.Status)
		}
		return nil, nil
	})
	if err != nil {
		dispatcher.logger.Errorf("notification dispatch failed for host %s: %v", notification.ForHostId, err)
	}
}

func CircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(
		gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     10 * time.Second,
			Interval:    0,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 2
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logrus.Infof("Circuit Breaker '%s' changed from '%s' to '%s'", name, from, to)
			},
		},
	)
}
