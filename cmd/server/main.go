package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	cartcache "github.com/fjod/print_shop/internal/cart/cache"
	cartrepo "github.com/fjod/print_shop/internal/cart/repository"
	cartservice "github.com/fjod/print_shop/internal/cart/service"
	"github.com/fjod/print_shop/internal/cart/sweeper"
	catalogrepo "github.com/fjod/print_shop/internal/catalog/repository"
	catalogservice "github.com/fjod/print_shop/internal/catalog/service"
	"github.com/fjod/print_shop/internal/checkout/inventory"
	checkoutrepo "github.com/fjod/print_shop/internal/checkout/repository"
	checkoutservice "github.com/fjod/print_shop/internal/checkout/service"
	"github.com/fjod/print_shop/internal/httpapi"
	orderrepo "github.com/fjod/print_shop/internal/order/repository"
	orderservice "github.com/fjod/print_shop/internal/order/service"
	"github.com/fjod/print_shop/internal/outbox"
	"github.com/fjod/print_shop/internal/platform/postgres"
	"github.com/fjod/print_shop/pkg/config"
	"github.com/fjod/print_shop/pkg/logger"
	"github.com/fjod/print_shop/pkg/shutdown"
)

const (
	outboxTopic   = "order-events"
	sweepInterval = time.Hour
)

func main() {
	if err := godotenv.Load(); err != nil {
		// .env is optional, real deployments set the environment directly
		slog.Debug("no .env file loaded", "error", err)
	}
	cfg := config.Load()
	logger.New(logger.Options{
		Service: "print-shop",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	if err := run(cfg); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cred := &postgres.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	db, err := postgres.Open(cred)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.RunMigrations(db, cred); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Warn("redis not reachable, cart cache degraded", "addr", cfg.RedisAddr, "error", err)
	}

	catalogRepo := catalogrepo.NewPostgresRepository(db)
	cartRepo := cartrepo.NewPostgresRepository(db)
	orderRepo := orderrepo.NewPostgresRepository(db)
	conversionRepo := checkoutrepo.NewPostgresRepository(db)
	outboxRepo := outbox.NewPostgresRepository(db)
	cartCache := cartcache.NewRedisCache(redisClient)

	catalogSvc := catalogservice.NewService(catalogRepo)
	cartSvc := cartservice.NewService(cartRepo, cartCache, catalogSvc,
		time.Duration(cfg.CartExpiryDays)*24*time.Hour)
	orderSvc := orderservice.NewService(orderRepo)
	checkoutSvc := checkoutservice.NewService(
		cartRepo,
		orderRepo,
		conversionRepo,
		catalogSvc,
		inventory.AlwaysAvailable{},
		cartCache,
		checkoutservice.FlatRate{TaxRate: cfg.TaxRate, ShippingCents: cfg.ShippingFlatCents},
	)

	poller := outbox.NewPoller(outboxRepo, cfg.KafkaBrokers, outboxTopic)
	defer poller.Close()
	go poller.Run(ctx)
	go sweeper.New(cartRepo, sweepInterval).Run(ctx)

	router := httpapi.NewRouter(httpapi.Config{
		JWTSecret:      []byte(cfg.JWTSecret),
		RequestTimeout: cfg.RequestTimeout,
		CheckoutRate:   rate.Limit(1),
		CheckoutBurst:  5,
	}, httpapi.Services{
		Cart:     cartSvc,
		Checkout: checkoutSvc,
		Orders:   orderSvc,
		Catalog:  catalogSvc,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server exited")
	return nil
}
