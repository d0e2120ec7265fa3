package startup

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booking_service/casbinAuthorization"
	"booking_service/domain"
	"booking_service/handlers"
	application "booking_service/service"
	"booking_service/startup/config"
	"booking_service/store"

	"github.com/casbin/casbin"
	"github.com/go-redis/redis"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	config *config.Config
}

var Logger = logrus.New()

const (
	LogFilePath = "/app/logs/booking.log"
)

type CustomFormatter struct{}

func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	entry.Data["id"] = generateUniqueID()

	msg := fmt.Sprintf("[%s] [%s] [%s] %s\n",
		entry.Time.Format("2006-01-02T15:04:05Z07:00"),
		entry.Level,
		entry.Data["id"],
		entry.Message,
	)

	return []byte(msg), nil
}

func generateUniqueID() string {
	return fmt.Sprintf("ID-%d", time.Now().UnixNano())
}

func initLogger() {
	writer, err := rotatelogs.New(
		LogFilePath+"_%Y%m%d%H%M",
		rotatelogs.WithRotationTime(15*time.Minute),
	)
	if err != nil {
		Logger.Fatalf("Failed to create rotatelogs hook: %v", err)
	}
	Logger.SetOutput(writer)

	Logger.SetFormatter(&CustomFormatter{})
}

func NewServer(config *config.Config) *Server {
	return &Server{
		config: config,
	}
}

func (server *Server) Start() {

	initLogger()

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     10,
		},
	}

	mongoClient := server.initMongoClient(httpClient)
	defer func(mongoClient *mongo.Client, ctx context.Context) {
		err := mongoClient.Disconnect(ctx)
		if err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}(mongoClient, context.Background())

	redisClient := server.initRedisClient()

	ctx := context.Background()
	exp, err := newExporter(server.config.JaegerAddress)
	if err != nil {
		log.Fatalf("Failed to Initialize Exporter: %v", err)
	}

	tp := newTraceProvider(exp)
	defer func() { _ = tp.Shutdown(ctx) }()
	otel.SetTracerProvider(tp)
	tracer := tp.Tracer("booking_service")
	otel.SetTextMapPropagator(propagation.TraceContext{})

	bookingStore := server.initBookingStore(mongoClient, tracer, Logger)
	propertyStore := server.initPropertyStore(mongoClient, tracer, Logger)
	auditStore := server.initAuditStore(mongoClient, tracer, Logger)
	eventCache := server.initEventCache(redisClient, tracer, Logger)
	gateway := server.initPaymentGateway(tracer, Logger)
	dispatcher := application.NewHTTPNotificationDispatcher(
		server.config.NotificationServiceHost, server.config.NotificationServicePort, Logger)

	bookingService := application.NewBookingService(bookingStore, propertyStore, auditStore, dispatcher, tracer, Logger)
	paymentService := application.NewPaymentService(bookingStore, gateway, eventCache, auditStore, dispatcher, tracer, Logger)

	bookingHandler := handlers.NewBookingHandler(bookingService, tracer, Logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, tracer, Logger)

	server.start(bookingHandler, paymentHandler)
}

func (server *Server) initMongoClient(httpClient *http.Client) *mongo.Client {
	client, err := store.GetClientWithHTTPConfig(server.config.BookingDBHost, server.config.BookingDBPort, httpClient)
	if err != nil {
		log.Fatal(err)
	}
	return client
}

func (server *Server) initRedisClient() *redis.Client {
	client, err := store.GetRedisClient(server.config.BookingCacheHost, server.config.BookingCachePort)
	if err != nil {
		log.Fatal(err)
	}
	return client
}

func (server *Server) initBookingStore(client *mongo.Client, tracer trace.Tracer, logger *logrus.Logger) domain.BookingStore {
	return store.NewBookingMongoDBStore(client, tracer, logger)
}

func (server *Server) initPropertyStore(client *mongo.Client, tracer trace.Tracer, logger *logrus.Logger) domain.PropertyStore {
	return store.NewPropertyMongoDBStore(client, tracer, logger)
}

func (server *Server) initAuditStore(client *mongo.Client, tracer trace.Tracer, logger *logrus.Logger) domain.AuditStore {
	return store.NewAuditMongoDBStore(client, tracer, logger)
}

func (server *Server) initEventCache(client *redis.Client, tracer trace.Tracer, logger *logrus.Logger) domain.EventCache {
	return store.NewPaymentEventRedisCache(client, tracer, logger)
}

func (server *Server) initPaymentGateway(tracer trace.Tracer, logger *logrus.Logger) domain.PaymentGateway {
	return store.NewStripeGateway(server.config.StripeSecretKey, server.config.StripeWebhookSecret, tracer, logger)
}

func (server *Server) start(bookingHandler *handlers.BookingHandler, paymentHandler *handlers.PaymentHandler) {
	enforcer, err := casbin.NewEnforcerSafe("./rbac_model.conf", "./policy.csv")
	if err != nil {
		log.Fatal(err)
	}

	router := mux.NewRouter()
	router.Use(MiddlewareContentTypeSet)
	bookingHandler.Init(router)
	paymentHandler.Init(router)

	cors := gorillaHandlers.CORS(gorillaHandlers.AllowedOrigins([]string{"*"}))

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", server.config.Port),
		Handler:     cors(casbinAuthorization.CasbinMiddleware(enforcer, Logger)(router)),
		IdleTimeout: 120 * time.Second,
	}

	wait := time.Second * 15
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Println(err)
		}
	}()

	c := make(chan os.Signal, 1)

	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	<-c

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Error Shutting Down Server %s", err)
	}
	log.Println("Server Gracefully Stopped")
}

func newExporter(address string) (*jaeger.Exporter, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(address)))
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func newTraceProvider(exp sdktrace.SpanExporter) *sdktrace.TracerProvider {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("booking_service"),
		),
	)

	if err != nil {
		panic(err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(r),
	)
}

func MiddlewareContentTypeSet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, h *http.Request) {
		rw.Header().Add("Content-Type", "application/json")
		rw.Header().Set("X-Content-Type-Options", "nosniff")
		rw.Header().Set("X-Frame-Options", "DENY")

		next.ServeHTTP(rw, h)
	})
}
