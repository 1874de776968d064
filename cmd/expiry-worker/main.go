package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/camp-registrations-and-payments/internal/adapters/crdb"
	redisadapter "github.com/robertarktes/camp-registrations-and-payments/internal/adapters/redis"
	"github.com/robertarktes/camp-registrations-and-payments/internal/config"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
	"github.com/robertarktes/camp-registrations-and-payments/internal/reservation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)

	manager := reservation.NewManager(repo, redisCache, cfg.ReservationTTL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go run(ctx, manager, cfg.SweepInterval, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

func run(ctx context.Context, manager *reservation.Manager, interval time.Duration, logger observability.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			released, err := manager.SweepExpired(ctx, now)
			if err != nil {
				logger.WithError(err).Error("sweep failed")
				continue
			}
			if released > 0 {
				logger.WithField("released", released).Info("released expired reservations")
			}
		}
	}
}
