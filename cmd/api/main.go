package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/safar/cart-billing/internal/cache"
	"github.com/safar/cart-billing/internal/checkout"
	"github.com/safar/cart-billing/internal/config"
	"github.com/safar/cart-billing/internal/database"
	"github.com/safar/cart-billing/internal/events"
	"github.com/safar/cart-billing/internal/httpapi"
	"github.com/safar/cart-billing/internal/logging"
	"github.com/safar/cart-billing/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(config.LogConfig{}).Fatalf("Load config: %v", err)
	}

	logger := logging.New(cfg.Log)
	log := logging.Service(logger)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Connected to database successfully")

	ctx := context.Background()

	redisClient, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("Connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.WithField("addr", cfg.Redis.Addr).Info("Connected to redis")
	}

	publisher, err := events.New(cfg.Events, log)
	if err != nil {
		log.Fatalf("Create event publisher: %v", err)
	}
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := checkout.NewService(db, metrics.NewCheckoutMetrics(reg), log,
		checkout.WithPublisher(publisher),
		checkout.WithIdempotencyStore(cache.NewIdempotencyStore(redisClient, cfg.Redis.IdempotencyTTL)),
		checkout.WithBillCache(cache.NewBillCache(redisClient, cfg.Redis.BillCacheTTL, log)),
	)

	app := httpapi.NewApp(httpapi.Options{
		APIVersion:    cfg.Server.APIVersion,
		PublicURL:     cfg.Server.PublicURL,
		SigningSecret: cfg.Auth.SigningSecret,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		Logger:        logger,
		Metrics:       metrics.NewServerMetrics(reg),
		Gatherer:      reg,
		Health: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
	}, svc, svc, svc)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("Server starting on port %s", cfg.Server.Port)
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.WithError(err).Error("Server error")
			quit <- syscall.SIGTERM
		}
	}()

	<-quit

	log.Info("Shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
}
