package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cinerent/cinerent-backend/api/routes"
	"github.com/cinerent/cinerent-backend/internal/inventory"
	"github.com/cinerent/cinerent-backend/internal/movies"
	"github.com/cinerent/cinerent-backend/internal/payments"
	"github.com/cinerent/cinerent-backend/internal/rentals"
	"github.com/cinerent/cinerent-backend/internal/transactions"
	"github.com/cinerent/cinerent-backend/internal/users"
	midtranswebhook "github.com/cinerent/cinerent-backend/internal/webhooks/midtrans"
	"github.com/cinerent/cinerent-backend/pkg/config"
	"github.com/cinerent/cinerent-backend/pkg/db"
	"github.com/cinerent/cinerent-backend/pkg/instance"
	"github.com/cinerent/cinerent-backend/pkg/logger"
	"github.com/cinerent/cinerent-backend/pkg/metrics"
	"github.com/cinerent/cinerent-backend/pkg/midtrans"
	"github.com/cinerent/cinerent-backend/pkg/migrate"
	"github.com/cinerent/cinerent-backend/pkg/outbox"
	"github.com/cinerent/cinerent-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gateway, err := midtrans.NewClient(context.Background(), cfg.Midtrans, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create midtrans client", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	rentalMetrics := metrics.NewRentalMetrics(prometheus.DefaultRegisterer)
	rentalRepo := rentals.NewRepository(conn)
	transactionRepo := transactions.NewRepository(conn)
	userRepo := users.NewRepository(conn)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)

	ledger, err := inventory.NewLedger(inventory.NewRepository(conn), rentalMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory ledger", err)
		os.Exit(1)
	}

	rentalService, err := rentals.NewService(rentals.ServiceParams{
		Repo:          rentalRepo,
		Transactions:  transactionRepo,
		Users:         userRepo,
		Inventory:     ledger,
		Tx:            dbClient,
		Outbox:        outboxService,
		Logger:        logg,
		LateFeePerDay: cfg.Rental.LateFeePerDay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create rental service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Rentals:      rentalRepo,
		Transactions: transactionRepo,
		Users:        userRepo,
		Movies:       movies.NewRepository(conn),
		Gateway:      gateway,
		Tx:           dbClient,
		Outbox:       outboxService,
		Metrics:      rentalMetrics,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	transactionService, err := transactions.NewService(transactionRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create transaction service", err)
		os.Exit(1)
	}

	webhookService, err := midtranswebhook.NewService(midtranswebhook.ServiceParams{
		ServerKey:         gateway.ServerKey(),
		Transactions:      transactionRepo,
		Rentals:           rentalRepo,
		Inventory:         ledger,
		TransactionRunner: dbClient,
		Outbox:            outboxService,
		Metrics:           rentalMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create midtrans webhook service", err)
		os.Exit(1)
	}

	replayGuard, err := midtranswebhook.NewReplayGuard(redisClient, cfg.Webhooks.ReplayTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook replay guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":              cfg.App.Env,
		"instance":         instance.GetID(),
		"addr":             addr,
		"midtrans_sandbox": gateway.Sandbox(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			rentalService,
			paymentService,
			transactionService,
			webhookService,
			replayGuard,
			promhttp.Handler(),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
