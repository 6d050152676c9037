package config

import (
	"os"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr         string
	PublicOrigin string
	TicketSecret string

	PostgresURL string
	RedisURL    string

	KafkaBrokers string
	KafkaTopic   string

	TransportAPIURL string
	TransportToken  string

	SweepInitialDelay time.Duration
	SweepInterval     time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:              getenv("GATEPASS_ADDR", ":8080"),
		PublicOrigin:      getenv("GATEPASS_PUBLIC_ORIGIN", "http://localhost:8080"),
		PostgresURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		KafkaBrokers:      os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:        getenv("KAFKA_TOPIC", "gatepass.ticket.lifecycle"),
		TransportAPIURL:   os.Getenv("TRANSPORT_API_URL"),
		TransportToken:    os.Getenv("TRANSPORT_API_TOKEN"),
		SweepInitialDelay: getduration("SWEEP_INITIAL_DELAY", 2*time.Second),
		SweepInterval:     getduration("SWEEP_INTERVAL", 2*time.Hour),
	}

	cfg.TicketSecret = os.Getenv("TICKET_SECRET")
	if cfg.TicketSecret == "" {
		// Use a default for development - should be overridden in production
		cfg.TicketSecret = "dev-ticket-secret-change-in-production"
	}
	return cfg
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
