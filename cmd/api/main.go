package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/catalog"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/infrastructure/kafka"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/metrics"
	"github.com/example/ec-storefront/internal/outbox"
	"github.com/example/ec-storefront/internal/query"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger().With("service", "api")
	slog.SetDefault(logger)

	if err := cfg.RequireSecret(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := store.Open(ctx, store.OpenOptions{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		Isolation:   cfg.TxIsolation,
		Migrate:     cfg.MigrateOnBoot,
	}, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()

	// Initialize domain services
	opts := order.Options{
		EnforceStockFloor: cfg.EnforceStockFloor,
		StrictTransitions: cfg.StrictTransitions,
		RestockOnCancel:   cfg.RestockOnCancel,
	}
	catalogSvc := catalog.NewService(st, logger)
	cartSvc := cart.NewService(st, logger)
	orderSvc := order.NewService(st, opts, logger)
	adminSvc := order.NewAdminService(st, opts, logger)

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiry)

	// Initialize handlers
	queryHandler := query.NewHandler(st, catalogSvc, cartSvc, orderSvc, adminSvc, logger)
	cmdHandler := command.NewHandler(catalogSvc, cartSvc, orderSvc, adminSvc, queryHandler, m, logger)

	limiter := middleware.NewRateLimiter(cfg.CheckoutRPS, cfg.CheckoutBurst, m)
	router := api.NewRouter(api.RouterConfig{
		Handlers:    api.NewHandlers(cmdHandler, queryHandler, logger),
		JWTService:  jwtService,
		Metrics:     m,
		RateLimiter: limiter,
		Logger:      logger,
	})

	var wg sync.WaitGroup

	// The outbox relay publishes committed order events.
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		relay := outbox.NewRelay(st, producer, m, logger, cfg.OutboxInterval, cfg.OutboxBatchSize)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = relay.Run(ctx)
		}()
	} else {
		logger.Warn("KAFKA_BROKERS empty, order events stay in the outbox")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Prune(); n > 0 {
					logger.Debug("pruned idle rate limiters", "count", n)
				}
			}
		}
	}()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	wg.Wait()
	return nil
}
