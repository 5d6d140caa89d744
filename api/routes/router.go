package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ovenly/backend/api/controllers"
	ordercontrollers "github.com/ovenly/backend/api/controllers/orders"
	webhookcontrollers "github.com/ovenly/backend/api/controllers/webhooks"
	"github.com/ovenly/backend/api/middleware"
	"github.com/ovenly/backend/internal/orders"
	"github.com/ovenly/backend/internal/payments"
	"github.com/ovenly/backend/internal/ratelimit"
	"github.com/ovenly/backend/internal/reconciliation"
	"github.com/ovenly/backend/pkg/config"
	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
	"github.com/ovenly/backend/pkg/logger"
	"github.com/ovenly/backend/pkg/metrics"
)

type ordersService interface {
	Create(ctx context.Context, input orders.CreateOrderInput, idempotencyKey string) (orders.CreateOrderResult, error)
	Balance(ctx context.Context, input orders.BalanceInput) (*orders.BalanceView, error)
	Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error)
	List(ctx context.Context, input orders.ListInput) (*orders.ListResult, error)
}

type stkService interface {
	Push(ctx context.Context, input payments.STKPushInput, idempotencyKey string) (payments.STKPushResult, error)
}

type webhookIngestor interface {
	Ingest(ctx context.Context, ev payments.Event) (payments.Recorded, error)
}

type webhookVerifier interface {
	Verify(r *http.Request, body []byte) error
}

type busySwitch interface {
	Busy(ctx context.Context) bool
	SetBusy(ctx context.Context, busy bool) error
}

type reconciler interface {
	Run(ctx context.Context) (reconciliation.Summary, error)
}

// Deps carries everything the HTTP surface needs. Nil services make their
// routes answer INTERNAL_ERROR rather than panic.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          controllers.Pinger
	Orders         ordersService
	Busy           busySwitch
	STK            stkService
	Ingestor       webhookIngestor
	Verifier       webhookVerifier
	Reconciler     reconciler
	ReconcileLocks controllers.LockFactory
	Limiter        ratelimit.Limiter
	PaymentMetrics *metrics.PaymentMetrics
	Gatherer       prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/api/public/ping", controllers.PublicPing())

	webhookPolicy := middleware.WebhookRateLimitPolicy{
		Name:        "webhooks",
		Limit:       cfg.Webhook.RateLimit,
		Window:      cfg.Webhook.RateWindow,
		TrustedHops: cfg.Webhook.TrustedProxyHops,
	}
	hooks := webhookcontrollers.Deps{
		Ingestor: deps.Ingestor,
		Verifier: deps.Verifier,
		Metrics:  deps.PaymentMetrics,
		Logger:   logg,
	}
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.WebhookRateLimit(webhookPolicy, deps.Limiter, logg))
		r.Post("/mpesa/stk-callback", webhookcontrollers.STKCallback(hooks))
		r.Post("/mpesa/c2b-confirmation", webhookcontrollers.C2BConfirmation(hooks))
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(hooks))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.With(middleware.IdempotencyKey(false, logg)).Post("/", ordercontrollers.Create(deps.Orders, logg))
		r.With(middleware.IdempotencyKey(true, logg)).Post("/{orderId}/stk-push", ordercontrollers.STKPush(deps.STK, logg))
		r.With(middleware.OptionalStaffAuth(cfg.JWT, logg)).Get("/{orderId}/balance", ordercontrollers.Balance(deps.Orders, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.StaffAuth(cfg.JWT, logg))
		r.Get("/ping", controllers.StaffPing())
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.StaffRoleAdmin, enums.StaffRoleKitchen, enums.StaffRoleDelivery))
			r.Get("/orders", controllers.AdminListOrders(deps.Orders, logg))
			r.Post("/orders/{orderId}/status", controllers.AdminOrderStatus(deps.Orders, logg))
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.StaffRoleAdmin))
			r.Post("/payments/reconcile", controllers.AdminReconcile(deps.Reconciler, deps.ReconcileLocks, logg))
			r.Get("/settings/busy-mode", controllers.AdminGetBusyMode(deps.Busy, logg))
			r.Post("/settings/busy-mode", controllers.AdminSetBusyMode(deps.Busy, logg))
		})
	})

	return r
}
