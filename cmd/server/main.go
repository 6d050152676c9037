package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"gatepass/internal/platform/config"
	"gatepass/internal/platform/httpserver"
	"gatepass/internal/platform/logger"
	"gatepass/internal/platform/postgres"
	platformredis "gatepass/internal/platform/redis"
	"gatepass/internal/ticket/codec"
	"gatepass/internal/ticket/dispatch"
	"gatepass/internal/ticket/events"
	tickethandler "gatepass/internal/ticket/handler"
	"gatepass/internal/ticket/issue"
	"gatepass/internal/ticket/metrics"
	"gatepass/internal/ticket/models"
	"gatepass/internal/ticket/service"
	"gatepass/internal/ticket/store"
	"gatepass/internal/ticket/sweep"
)

// main wires high-level dependencies and keeps the server lifecycle
// small. Business logic lives in the internal/ticket packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ticketCodec, err := codec.New(cfg.TicketSecret)
	if err != nil {
		log.Error("invalid ticket secret", "error", err)
		os.Exit(1)
	}

	// Remote tier: Postgres when configured, otherwise in-process memory
	// so development environments still work end to end.
	var remote store.Backend
	db, err := postgres.Open(cfg.PostgresURL)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if db != nil {
		remote = store.NewPostgresBackend(db)
		defer db.Close()
	} else {
		log.Warn("DATABASE_URL not set, remote tier runs in memory")
		remote = store.NewInMemoryBackend(models.TierRemote)
	}

	// Local fallback tier: Redis when configured, memory otherwise.
	var local store.Backend
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		local = store.NewRedisBackend(redisClient.Client)
		defer redisClient.Close()
	} else {
		log.Warn("REDIS_URL not set, local tier runs in memory")
		local = store.NewInMemoryBackend(models.TierLocal)
	}

	tiered, err := store.New(remote, local,
		store.WithLogger(log), store.WithMetrics(m))
	if err != nil {
		log.Error("build ticket store", "error", err)
		os.Exit(1)
	}

	var publisher *events.Publisher
	if cfg.KafkaBrokers != "" {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(strings.Split(cfg.KafkaBrokers, ",")...),
			kgo.DefaultProduceTopic(cfg.KafkaTopic),
		)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		publisher = events.New(kafkaClient, cfg.KafkaTopic, log)
	}

	issuer, err := issue.New(ticketCodec, tiered, cfg.PublicOrigin,
		issue.WithLogger(log), issue.WithMetrics(m), issue.WithEvents(publisher))
	if err != nil {
		log.Error("build issuer", "error", err)
		os.Exit(1)
	}

	transport := dispatch.NewHTTPTransport(cfg.TransportAPIURL, cfg.TransportToken, nil)
	batcher, err := dispatch.New(issuer, transport,
		dispatch.WithLogger(log), dispatch.WithMetrics(m))
	if err != nil {
		log.Error("build dispatcher", "error", err)
		os.Exit(1)
	}

	svc, err := service.New(tiered, batcher,
		service.WithLogger(log), service.WithEvents(publisher))
	if err != nil {
		log.Error("build ticket service", "error", err)
		os.Exit(1)
	}

	sweeper, err := sweep.New(tiered,
		sweep.WithLogger(log),
		sweep.WithInitialDelay(cfg.SweepInitialDelay),
		sweep.WithInterval(cfg.SweepInterval))
	if err != nil {
		log.Error("build sweeper", "error", err)
		os.Exit(1)
	}
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	router := chi.NewRouter()
	tickethandler.New(svc, log).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting gatepass", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	publisher.Close(ctx)
}
