package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/camp-registrations-and-payments/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/camp-registrations-and-payments/internal/adapters/mongo"
	"github.com/robertarktes/camp-registrations-and-payments/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/camp-registrations-and-payments/internal/adapters/redis"
	"github.com/robertarktes/camp-registrations-and-payments/internal/config"
	"github.com/robertarktes/camp-registrations-and-payments/internal/gateway"
	httphandler "github.com/robertarktes/camp-registrations-and-payments/internal/http"
	"github.com/robertarktes/camp-registrations-and-payments/internal/idempotency"
	"github.com/robertarktes/camp-registrations-and-payments/internal/identity"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
	"github.com/robertarktes/camp-registrations-and-payments/internal/payment"
	"github.com/robertarktes/camp-registrations-and-payments/internal/rateLimit"
	"github.com/robertarktes/camp-registrations-and-payments/internal/registry"
	"github.com/robertarktes/camp-registrations-and-payments/internal/reservation"
	"github.com/robertarktes/camp-registrations-and-payments/internal/stats"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("camps")
	users := mongoadapter.NewUserRepository(mongoDB, logger)
	reviews := mongoadapter.NewReviewRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	if _, err := rabbit.NewPublisher(rabbitConn); err != nil {
		log.Fatalf("failed to declare rabbitmq topology: %v", err)
	}

	verifier := identity.NewVerifier(cfg.JWTSecret)
	gw := gateway.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey)

	campRegistry := registry.NewRegistry(repo, redisCache, logger)
	reservations := reservation.NewManager(repo, redisCache, cfg.ReservationTTL, logger)
	payments := payment.NewCoordinator(repo, gw, audit, redisCache, cfg.Currency, logger)
	aggregator := stats.NewAggregator(repo, users)

	handlers := httphandler.NewHandlers(cfg, campRegistry, reservations, payments, aggregator, users, reviews, idemp, verifier, logger)
	r := httphandler.NewRouter(handlers, verifier, users, rl, logger)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
