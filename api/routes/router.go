package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cinerent/cinerent-backend/api/controllers"
	paymentcontrollers "github.com/cinerent/cinerent-backend/api/controllers/payments"
	rentalcontrollers "github.com/cinerent/cinerent-backend/api/controllers/rentals"
	transactioncontrollers "github.com/cinerent/cinerent-backend/api/controllers/transactions"
	webhookcontrollers "github.com/cinerent/cinerent-backend/api/controllers/webhooks"
	"github.com/cinerent/cinerent-backend/api/middleware"
	"github.com/cinerent/cinerent-backend/internal/payments"
	"github.com/cinerent/cinerent-backend/internal/rentals"
	"github.com/cinerent/cinerent-backend/internal/transactions"
	"github.com/cinerent/cinerent-backend/pkg/config"
	"github.com/cinerent/cinerent-backend/pkg/db"
	"github.com/cinerent/cinerent-backend/pkg/enums"
	"github.com/cinerent/cinerent-backend/pkg/logger"
	"github.com/cinerent/cinerent-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	rentalService rentals.Service,
	paymentService payments.Service,
	transactionService transactions.Service,
	midtransWebhookService webhookcontrollers.MidtransWebhookService,
	midtransWebhookGuard webhookcontrollers.MidtransReplayGuard,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["database"] = dbP
	}
	var idempotencyStore redis.IdempotencyStore
	if redisClient != nil {
		readiness["redis"] = redisClient
		idempotencyStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Post("/api/v1/webhooks/midtrans", webhookcontrollers.MidtransWebhook(midtransWebhookService, midtransWebhookGuard, logg))

	admin := middleware.RequireRole(logg, enums.RoleAdmin)
	renter := middleware.RequireRole(logg, enums.RoleRenter)
	anyone := middleware.RequireRole(logg, enums.RoleAdmin, enums.RoleRenter)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.With(anyone).Post("/api/v1/rentals", rentalcontrollers.Create(rentalService, logg))
		r.With(admin).Get("/api/v1/rentals", rentalcontrollers.List(rentalService, logg))
		r.With(admin).Get("/api/v1/rentals/overdue", rentalcontrollers.Overdue(rentalService, logg))
		r.With(renter).Get("/api/v1/rentals/history", rentalcontrollers.History(rentalService, logg))
		r.With(anyone).Get("/api/v1/rentals/{rentalId}", rentalcontrollers.Get(rentalService, logg))
		r.With(admin).Patch("/api/v1/rentals/{rentalId}", rentalcontrollers.Return(rentalService, logg))

		r.With(anyone).Post("/api/v1/rentals/pay", paymentcontrollers.Pay(paymentService, logg))
		r.With(admin).Post("/api/v1/rentals/pay/cash", paymentcontrollers.PayCash(paymentService, logg))
		r.With(admin).Post("/api/v1/rentals/late-fee/payment", paymentcontrollers.PayLateFee(paymentService, logg))

		r.With(admin).Get("/api/v1/transactions", transactioncontrollers.List(transactionService, logg))
		r.With(renter).Get("/api/v1/transactions/history", transactioncontrollers.History(transactionService, logg))
		r.With(anyone).Get("/api/v1/transactions/{transactionId}", transactioncontrollers.Get(transactionService, logg))
	})

	return r
}
