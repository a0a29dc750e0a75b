package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haleycommerce/storefront-backend/api/controllers"
	webhookcontrollers "github.com/haleycommerce/storefront-backend/api/controllers/webhooks"
	"github.com/haleycommerce/storefront-backend/api/middleware"
	checkoutsvc "github.com/haleycommerce/storefront-backend/internal/checkout"
	connectsvc "github.com/haleycommerce/storefront-backend/internal/connect"
	"github.com/haleycommerce/storefront-backend/internal/notifications"
	stripewebhook "github.com/haleycommerce/storefront-backend/internal/webhooks/stripe"
	"github.com/haleycommerce/storefront-backend/pkg/config"
	"github.com/haleycommerce/storefront-backend/pkg/db"
	"github.com/haleycommerce/storefront-backend/pkg/logger"
	"github.com/haleycommerce/storefront-backend/pkg/redis"
	pkgstripe "github.com/haleycommerce/storefront-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	connectService *connectsvc.Service,
	notificationsService notifications.Service,
	stripeClient *pkgstripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbClient, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", controllers.Checkout(checkoutService, logg))

		r.Route("/shops/{shopID}", func(r chi.Router) {
			r.Route("/connect", func(r chi.Router) {
				r.Post("/account", controllers.ConnectCreateAccount(connectService, logg))
				r.Post("/onboarding-link", controllers.ConnectOnboardingLink(connectService, logg))
				r.Get("/status", controllers.ConnectAccountStatus(connectService, logg))
				r.Post("/login-link", controllers.ConnectLoginLink(connectService, logg))
				r.Delete("/account", controllers.ConnectDeleteAccount(connectService, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(notificationsService, logg))
				r.Post("/{notificationID}/read", controllers.MarkNotificationRead(notificationsService, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			})
		})
	})

	return r
}
