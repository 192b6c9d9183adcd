package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"topupgate/internal/config"
	"topupgate/internal/http/handlers"
	middlewarex "topupgate/internal/http/middleware"
	"topupgate/internal/ledger"
	"topupgate/internal/metrics"
	"topupgate/internal/services/topup"
	"topupgate/internal/x402"
)

// RouterDependencies holds everything the HTTP surface needs. The
// acceptance set and verifier are built once at startup and injected
// here; nothing reads them from globals.
type RouterDependencies struct {
	Config       config.Cfg
	Accepts      []x402.PaymentRequirements
	Verifier     x402.Verifier
	LedgerClient *ledger.Client
	TopupService *topup.Service
	Metrics      metrics.Recorder
	Redis        *redis.Client
}

// NewRouter wires the two public routes: an unprotected balance read and
// a payment-gated top-up.
func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Balance reads bypass the payment gate entirely.
	r.Get("/balance/{workspace}", handlers.GetBalance(deps.LedgerClient))

	r.Route("/topup", func(r chi.Router) {
		if deps.Redis != nil {
			r.Use(middlewarex.RateLimit(deps.Redis, deps.Config.Redis.RateLimitPerMin))
		}
		r.Use(middlewarex.RequirePayment(deps.Accepts, deps.Verifier, deps.Metrics))
		r.Post("/{workspace}", handlers.Topup(deps.TopupService))
	})

	return r
}
