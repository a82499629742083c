package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/carrental-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/carrental-backend/api/controllers/webhooks"
	"github.com/angelmondragon/carrental-backend/api/middleware"
	"github.com/angelmondragon/carrental-backend/internal/cars"
	"github.com/angelmondragon/carrental-backend/internal/checkout"
	"github.com/angelmondragon/carrental-backend/internal/reservations"
	"github.com/angelmondragon/carrental-backend/internal/stats"
	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/carrental-backend/pkg/redis"
)

// KeyStore backs request idempotency and rate limiting; *redis.Client satisfies it.
type KeyStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signingSecretSource interface {
	SigningSecret() string
}

type Dependencies struct {
	DB    controllers.Pinger
	Redis controllers.Pinger
	Keys  KeyStore

	Cars         cars.Service
	Reservations reservations.Service
	Checkout     checkout.Service
	Stats        stats.Service

	StripeSecrets signingSecretSource
	StripeWebhook webhookcontrollers.StripeWebhookService
	WebhookGuard  webhookGuard

	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.CORS),
	)

	idempotent := middleware.Idempotency(deps.Keys, middleware.ReplayTTL, logg)
	paymentIdempotent := middleware.Idempotency(deps.Keys, middleware.PaymentReplayTTL, logg)
	paymentPolicy := middleware.NewRateLimitPolicy(
		"payments",
		cfg.RateLimit.Window,
		cfg.RateLimit.PaymentUserLimit,
		cfg.RateLimit.PaymentIPLimit,
	)
	paymentLimit := middleware.RateLimit(paymentPolicy, deps.Keys, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeSecrets, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1/cars", func(r chi.Router) {
		r.Get("/", controllers.ListCars(deps.Cars, logg))
		r.Get("/{carId}", controllers.GetCar(deps.Cars, logg))
		r.Get("/{carId}/availability", controllers.CarAvailability(deps.Reservations, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/api/v1/reservations", func(r chi.Router) {
			r.Get("/", controllers.ListReservations(deps.Reservations, logg))
			r.With(idempotent).Post("/", controllers.CreateReservation(deps.Reservations, logg))
			r.Get("/{reservationId}", controllers.GetReservation(deps.Reservations, logg))
			r.Patch("/{reservationId}", controllers.UpdateReservation(deps.Reservations, logg))
			r.Delete("/{reservationId}", controllers.DeleteReservation(deps.Reservations, logg))
			r.With(paymentLimit, paymentIdempotent).Post("/{reservationId}/payments", controllers.RecordPayment(deps.Checkout, logg))
			r.Get("/{reservationId}/payments", controllers.ListReservationPayments(deps.Checkout, logg))
			r.Get("/{reservationId}/document", controllers.DocumentEligibility(deps.Checkout, logg))
		})

		r.With(paymentLimit, paymentIdempotent).Post("/api/v1/payments/confirm", controllers.ConfirmCardAction(deps.Checkout, logg))

		r.Route("/api/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
			r.With(idempotent).Post("/cars", controllers.AdminCreateCar(deps.Cars, logg))
			r.Put("/cars/{carId}", controllers.AdminUpdateCar(deps.Cars, logg))
			r.Patch("/cars/{carId}", controllers.AdminUpdateCar(deps.Cars, logg))
			r.Delete("/cars/{carId}", controllers.AdminDeleteCar(deps.Cars, logg))
			r.With(idempotent).Post("/payments/{paymentId}/confirm-cash", controllers.AdminConfirmCash(deps.Checkout, logg))
			r.Post("/payments/{paymentId}/reconcile", controllers.AdminReconcile(deps.Checkout, logg))
			r.Get("/stats", controllers.AdminStats(deps.Stats, logg))
			r.Get("/stats/monthly", controllers.AdminMonthlyStats(deps.Stats, logg))
		})
	})

	return r
}
