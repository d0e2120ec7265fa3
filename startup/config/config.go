package config

import "os"

type Config struct {
	Port                    string
	BookingDBHost           string
	BookingDBPort           string
	BookingCacheHost        string
	BookingCachePort        string
	JaegerAddress           string
	StripeSecretKey         string
	StripeWebhookSecret     string
	NotificationServiceHost string
	NotificationServicePort string
}

func NewConfig() *Config {
	return &Config{
		Port:                    os.Getenv("BOOKING_SERVICE_PORT"),
		BookingDBHost:           os.Getenv("BOOKING_DB_HOST"),
		BookingDBPort:           os.Getenv("BOOKING_DB_PORT"),
		BookingCacheHost:        os.Getenv("BOOKING_CACHE_HOST"),
		BookingCachePort:        os.Getenv("BOOKING_CACHE_PORT"),
		JaegerAddress:           os.Getenv("JAEGER_ADDRESS"),
		StripeSecretKey:         os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:     os.Getenv("STRIPE_WEBHOOK_SECRET"),
		NotificationServiceHost: os.Getenv("NOTIFICATION_SERVICE_HOST"),
		NotificationServicePort: os.Getenv("NOTIFICATION_SERVICE_PORT"),
	}
}
