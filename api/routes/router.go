package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grainhub/warehouse-backend/api/controllers"
	"github.com/grainhub/warehouse-backend/api/middleware"
	"github.com/grainhub/warehouse-backend/internal/identity"
	"github.com/grainhub/warehouse-backend/internal/ledger"
	"github.com/grainhub/warehouse-backend/internal/transactions"
	"github.com/grainhub/warehouse-backend/internal/visibility"
	"github.com/grainhub/warehouse-backend/pkg/auth/session"
	"github.com/grainhub/warehouse-backend/pkg/config"
	"github.com/grainhub/warehouse-backend/pkg/db"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	"github.com/grainhub/warehouse-backend/pkg/logger"
	"github.com/grainhub/warehouse-backend/pkg/redis"
)

// Services groups the domain collaborators served over HTTP.
type Services struct {
	Transactions transactions.Service
	Approvals    controllers.ApprovalActor
	Visibility   visibility.Service
	Ledger       ledger.Service
	Identity     identity.Service
}

// NewRouter wires middleware and routes. redisClient and sessions may be nil;
// idempotency, rate limiting, and session checks are then skipped.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessions session.AccessSessionChecker,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	var (
		redisPinger      redis.Pinger
		idempotencyStore redis.IdempotencyStore
		limiterStore     middleware.RateLimiterStore
	)
	if redisClient != nil {
		redisPinger = redisClient
		idempotencyStore = redisClient
		limiterStore = redisClient
	}
	actionPolicy := middleware.NewRateLimitPolicy(
		"transactions",
		cfg.RateLimit.ActionWindow,
		cfg.RateLimit.ActionUserLimit,
		cfg.RateLimit.ActionIPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))
		r.Use(middleware.RateLimit(actionPolicy, limiterStore, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/transactions/{type}", func(r chi.Router) {
			r.Get("/", controllers.TransactionList(svc.Visibility, logg))
			r.Post("/", controllers.TransactionRequest(svc.Transactions, logg))
			r.Get("/{transactionId}", controllers.TransactionDetail(svc.Transactions, logg))
			r.With(middleware.RequireAnyRole(logg, enums.ApprovalRoles...)).
				Post("/{transactionId}/action", controllers.TransactionAction(svc.Approvals, logg))
		})
		r.Get("/ledgers/{ownerId}", controllers.LedgerBalances(svc.Ledger, svc.Identity, logg))
		r.Get("/ledgers/{ownerId}/movements", controllers.LedgerMovements(svc.Ledger, svc.Identity, logg))
	})

	return r
}
