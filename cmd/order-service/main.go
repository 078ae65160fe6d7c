package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/order/application"
	orderhttp "github.com/orderflow/orderflow/internal/order/infrastructure/http"
	orderkafka "github.com/orderflow/orderflow/internal/order/infrastructure/kafka"
	orderpg "github.com/orderflow/orderflow/internal/order/infrastructure/postgres"
	"github.com/orderflow/orderflow/pkg/config"
	"github.com/orderflow/orderflow/pkg/consumer"
	"github.com/orderflow/orderflow/pkg/db"
	"github.com/orderflow/orderflow/pkg/idempotency"
	"github.com/orderflow/orderflow/pkg/logging"
	"github.com/orderflow/orderflow/pkg/outbox"
	"github.com/orderflow/orderflow/pkg/shutdown"
	"github.com/orderflow/orderflow/pkg/tracing"
)

func main() {
	log := logging.New("order-service")

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg, err := config.Load[config.Order]()
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	tp, err := tracing.Init(ctx, "order-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	if err := db.Migrate(cfg.PGURL, cfg.MigrationsPath); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	pool, err := db.NewPool(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaAddr),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer writer.Close()

	repo := orderpg.NewRepository(log, pool)
	store := outbox.NewPGStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer)
	relay := outbox.NewRelay(log, store, dispatch, "order-service-relay")
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped", "err", err)
		}
	}()

	svc := application.NewService(log, repo)

	brokers := []string{cfg.KafkaAddr}
	consumers := []*consumer.Consumer{
		consumer.New(consumer.Config{
			Log:         log,
			Reader:      consumer.NewReader(brokers, events.TopicCreditReserved, "order-service"),
			Handle:      orderkafka.NewCreditReservedHandler(log, svc),
			Idempotency: idem,
			DeadLetter:  writer,
			DLQTopic:    events.TopicCreditReserved + ".dlq",
			Name:        "order.credit-reserved",
		}),
		consumer.New(consumer.Config{
			Log:         log,
			Reader:      consumer.NewReader(brokers, events.TopicCreditReservationFailed, "order-service"),
			Handle:      orderkafka.NewCreditReservationFailedHandler(log, svc),
			Idempotency: idem,
			DeadLetter:  writer,
			DLQTopic:    events.TopicCreditReservationFailed + ".dlq",
			Name:        "order.credit-reservation-failed",
		}),
	}
	for _, c := range consumers {
		go func() {
			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("consumer stopped", "err", err)
				cancel()
			}
		}()
	}

	handler := orderhttp.NewHandler(log, svc)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("order-service shutdown complete")
}
