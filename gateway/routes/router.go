package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arbitrationd/core/events"
	"arbitrationd/gateway/middleware"
	"arbitrationd/native/treasury"
)

// Config configures the gateway's HTTP surface.
type Config struct {
	Engine        *treasury.Engine
	Events        *events.Stream
	Authenticator *middleware.Authenticator
	// ServiceAuthenticator, when set, mounts the same command surface a
	// second time under /v1/service secured by HMAC request signing
	// instead of a JWT bearer token, for machine callers (a governance
	// relayer, a resolver's own automation) that hold a shared secret
	// rather than a user session.
	ServiceAuthenticator *middleware.APIKeyAuthenticator
	RateLimiter          *middleware.RateLimiter
	Observability        *middleware.Observability
	CORS                 middleware.CORSConfig
	// WriteScopes are the JWT scopes the Authenticator requires on every
	// route under /v1, including release_native_payout,
	// release_fungible_payout, finalize_ruling and the events stream; no
	// /v1 route is exempted.
	WriteScopes  []string
	RateLimitKey string
}

// New builds the chi router mounting the treasury command surface.
func New(cfg Config) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	treasuryRoutes := newTreasuryRoutes(cfg.Engine)
	r.Route("/v1", func(sr chi.Router) {
		if cfg.RateLimiter != nil && cfg.RateLimitKey != "" {
			sr.Use(cfg.RateLimiter.Middleware(cfg.RateLimitKey))
		}
		if cfg.Authenticator != nil {
			sr.Use(cfg.Authenticator.Middleware(cfg.WriteScopes...))
		}
		if obs != nil {
			sr.Use(obs.Middleware("treasury"))
		}
		treasuryRoutes.mount(sr)
		sr.Get("/events/stream", mountEvents(cfg.Events))
	})

	if cfg.ServiceAuthenticator != nil {
		r.Route("/v1/service", func(sr chi.Router) {
			if cfg.RateLimiter != nil && cfg.RateLimitKey != "" {
				sr.Use(cfg.RateLimiter.Middleware(cfg.RateLimitKey))
			}
			sr.Use(cfg.ServiceAuthenticator.Middleware())
			if obs != nil {
				sr.Use(obs.Middleware("treasury_service"))
			}
			treasuryRoutes.mount(sr)
		})
	}

	// Domain counters (observability/metrics.Treasury()) register against
	// the default Prometheus registerer, not Observability's own request
	// metrics registry, so /metrics is served from promhttp's default
	// handler to expose both families on one exposition endpoint.
	r.Handle("/metrics", promhttp.Handler())

	return r, nil
}
