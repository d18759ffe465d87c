package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"arbitrationd/config"
	"arbitrationd/core/events"
	gatewayauth "arbitrationd/gateway/auth"
	gatewayconfig "arbitrationd/gateway/config"
	"arbitrationd/gateway/middleware"
	"arbitrationd/gateway/routes"
	"arbitrationd/native/treasury"
	"arbitrationd/observability/logging"
	"arbitrationd/observability/metrics"
	"arbitrationd/services/executor"
)

func main() {
	var cfgPath, gatewayCfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to domain configuration (TOML: policy floors, governance, database, clock)")
	flag.StringVar(&gatewayCfgPath, "gateway-config", "", "path to gateway HTTP surface configuration (YAML: auth, rate limits, observability, TLS)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ARBITRATIOND_ENV"))
	logging.Setup("arbitrationd", env)
	logger := log.New(os.Stdout, "arbitrationd ", log.LstdFlags|log.Lmsgprefix)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	gwCfg, err := gatewayconfig.Load(gatewayCfgPath)
	if err != nil {
		logger.Fatalf("load gateway config: %v", err)
	}

	store, err := executor.OpenStore(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}

	eventsPath := strings.TrimSpace(os.Getenv("ARBITRATIOND_EVENTS_PATH"))
	if eventsPath == "" {
		eventsPath = "arbitrationd-events.db"
	}
	stream, err := events.NewStream(eventsPath)
	if err != nil {
		logger.Fatalf("open event stream: %v", err)
	}
	defer stream.Close()

	tokens := executor.NewMemoryTokenLedger()
	proposals := executor.NewMemoryProposalReader()

	engine := &treasury.Engine{
		Store:        store,
		Emitter:      stream,
		Proposals:    proposals,
		Governance:   cfg.KnownGovernancePrograms(),
		Eligibility:  tokens,
		Tokens:       tokens,
		NativeLedger: tokens,
		Metrics:      metrics.Treasury(),
	}

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        gwCfg.Auth.Enabled,
		HMACSecret:     gwCfg.Auth.HMACSecret,
		Issuer:         gwCfg.Auth.Issuer,
		Audience:       gwCfg.Auth.Audience,
		ScopeClaim:     gwCfg.Auth.ScopeClaim,
		OptionalPaths:  gwCfg.Auth.OptionalPaths,
		AllowAnonymous: gwCfg.Auth.AllowAnonymous,
		ClockSkew:      gwCfg.Auth.ClockSkew,
	}, logger)

	rateLimits := make(map[string]middleware.RateLimit, len(gwCfg.RateLimits))
	for _, entry := range gwCfg.RateLimits {
		if entry.ID == "" {
			continue
		}
		rate := entry.RatePerSecond
		if rate <= 0 && entry.RequestsPerMinute > 0 {
			rate = entry.RequestsPerMinute / 60.0
		}
		rateLimits[entry.ID] = middleware.RateLimit{RatePerSecond: rate, Burst: entry.Burst}
	}
	if len(rateLimits) == 0 {
		rateLimits["treasury"] = middleware.RateLimit{RatePerSecond: 20, Burst: 100}
	}
	rateLimiter := middleware.NewRateLimiter(rateLimits, logger)

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   gwCfg.Observability.ServiceName,
		MetricsPrefix: gwCfg.Observability.MetricsPrefix,
		LogRequests:   gwCfg.Observability.LogRequests,
		Enabled:       gwCfg.Observability.Metrics || gwCfg.Observability.Tracing,
	}, logger)

	var serviceAuth *middleware.APIKeyAuthenticator
	if secrets := parseServiceAPIKeys(os.Getenv("ARBITRATIOND_SERVICE_API_KEYS")); len(secrets) > 0 {
		serviceAuth = middleware.NewAPIKeyAuthenticator(
			gatewayauth.NewAuthenticator(secrets, gwCfg.Auth.ClockSkew, 0, 0, nil, nil),
			logger,
		)
	}

	router, err := routes.New(routes.Config{
		Engine:               engine,
		Events:               stream,
		Authenticator:        auth,
		ServiceAuthenticator: serviceAuth,
		RateLimiter:          rateLimiter,
		Observability:        obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: false,
		},
		WriteScopes:  []string{"treasury:write"},
		RateLimitKey: "treasury",
	})
	if err != nil {
		logger.Fatalf("configure routes: %v", err)
	}

	listenAddr := cfg.ListenAddress
	if strings.TrimSpace(gwCfg.ListenAddress) != "" {
		listenAddr = gwCfg.ListenAddress
	}
	server := &http.Server{
		Addr:         listenAddr,
		Handler:      router,
		ReadTimeout:  gwCfg.ReadTimeout,
		WriteTimeout: gwCfg.WriteTimeout,
		IdleTimeout:  gwCfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("listening on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen and serve: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

// parseServiceAPIKeys parses "keyID=secret,keyID=secret" pairs for the
// HMAC-signed service-to-service route group. An empty input disables
// that route group entirely.
func parseServiceAPIKeys(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	secrets := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		secrets[parts[0]] = parts[1]
	}
	return secrets
}
