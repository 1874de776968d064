package config

import (
	"time"

	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN        string
	MongoURI       string
	RedisAddr      string
	RabbitURL      string
	JWTSecret      string
	GatewayURL     string
	GatewayAPIKey  string
	Currency       string
	ReservationTTL time.Duration
	SweepInterval  time.Duration
	OTLPEndpoint   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	reservationTTL, _ := time.ParseDuration(os.Getenv("RESERVATION_TTL"))
	if reservationTTL == 0 {
		reservationTTL = 15 * time.Minute
	}
	sweepInterval, _ := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if sweepInterval == 0 {
		sweepInterval = time.Minute
	}
	currency := os.Getenv("CURRENCY")
	if currency == "" {
		currency = "usd"
	}

	return &Config{
		CRDBDSN:        os.Getenv("CRDB_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		GatewayURL:     os.Getenv("GATEWAY_URL"),
		GatewayAPIKey:  os.Getenv("GATEWAY_API_KEY"),
		Currency:       currency,
		ReservationTTL: reservationTTL,
		SweepInterval:  sweepInterval,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
