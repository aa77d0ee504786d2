package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wildroots/wildroots-backend/api/controllers"
	webhookcontrollers "github.com/wildroots/wildroots-backend/api/controllers/webhooks"
	"github.com/wildroots/wildroots-backend/api/middleware"
	"github.com/wildroots/wildroots-backend/pkg/config"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	pkgredis "github.com/wildroots/wildroots-backend/pkg/redis"
)

const (
	checkoutReplayTTL = 7 * 24 * time.Hour
	ownerReplayTTL    = 24 * time.Hour
)

// RedisStore is the Redis surface the HTTP layer needs: response replay,
// fixed-window counters and the readiness probe.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type stripeSigner interface {
	SigningSecret() string
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisStore RedisStore,
	gatherer prometheus.Gatherer,
	requests middleware.RequestObserver,
	donationService controllers.DonationService,
	projectService controllers.ProjectService,
	stripeClient stripeSigner,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeWebhookGuard stripeWebhookGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, requests),
		middleware.CORS(cfg.App.PublicURL),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.CheckoutWindow,
		cfg.RateLimit.CheckoutIPLimit,
		0,
	)
	checkoutReplay := middleware.Idempotency(redisStore, middleware.IdempotencyPolicy{
		Scope: "checkout",
		TTL:   checkoutReplayTTL,
	}, logg)
	ownerReplay := middleware.Idempotency(redisStore, middleware.IdempotencyPolicy{
		Scope: "project-owner",
		TTL:   ownerReplayTTL,
	}, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisStore))
	})

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1/donations", func(r chi.Router) {
		r.With(
			middleware.RateLimit(checkoutPolicy, redisStore, logg),
			checkoutReplay,
		).Post("/checkout", controllers.DonationCheckout(donationService, logg))
		r.Get("/{donationId}/status", controllers.DonationStatus(donationService, logg))
	})

	r.Route("/api/v1/projects/{projectId}", func(r chi.Router) {
		r.Get("/funding", controllers.ProjectFunding(projectService, logg))
		r.Get("/donations", controllers.ProjectDonations(donationService, logg))

		if cfg.Operator.Token != "" {
			r.Group(func(r chi.Router) {
				r.Use(middleware.OperatorAuth(cfg.Operator.Token, logg))
				r.With(ownerReplay).Post("/complete", controllers.ProjectComplete(projectService, logg))
				r.With(ownerReplay).Post("/pause", controllers.ProjectPause(projectService, logg))
				r.With(ownerReplay).Post("/resume", controllers.ProjectResume(projectService, logg))
			})
		}
	})

	return r
}
