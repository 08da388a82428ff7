package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/solar-symphony/internal/app"
	"github.com/noah-isme/solar-symphony/internal/auth"
	"github.com/noah-isme/solar-symphony/internal/cart"
	"github.com/noah-isme/solar-symphony/internal/checkout"
	"github.com/noah-isme/solar-symphony/internal/common"
	"github.com/noah-isme/solar-symphony/internal/config"
	"github.com/noah-isme/solar-symphony/internal/health"
	"github.com/noah-isme/solar-symphony/internal/invoice"
	"github.com/noah-isme/solar-symphony/internal/lock"
	"github.com/noah-isme/solar-symphony/internal/notify"
	"github.com/noah-isme/solar-symphony/internal/obs"
	"github.com/noah-isme/solar-symphony/internal/pricing"
	"github.com/noah-isme/solar-symphony/internal/ratelimit"
	"github.com/noah-isme/solar-symphony/internal/resilience"
	"github.com/noah-isme/solar-symphony/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(obs.LogConfig{
		Format:  envOrDefault("OBS_LOG_FORMAT", "json"),
		Level:   envOrDefault("OBS_LOG_LEVEL", "info"),
		Service: "solar-symphony-api",
	}).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "solar")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	if err := resilience.RegisterMetrics(nil); err != nil {
		logger.Fatal().Err(err).Msg("register breaker metrics")
	}

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "solar-symphony-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	deps, err := app.New(startCtx, cfg, logger, app.Options{
		ApplicationName: "solar-symphony-api",
		RedisMetrics:    metricsEnabled,
		Migrate:         true,
	})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	taskClient := deps.NewTaskClient()
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	engine := pricing.Default()

	authService, err := auth.NewService(auth.Config{
		Redis:          deps.Redis,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
		Issuer:         cfg.JWTIssuer,
		Audience:       cfg.JWTAudience,
		ClockSkew:      30 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	csrf := security.CSRF{SessionCookie: cfg.CookieName, Secure: cfg.CookieSecure, SameSite: cfg.CookieSameSite}
	authHandler := &auth.Handler{
		Service:          authService,
		AccessCookieName: cfg.CookieName,
		CookieDomain:     cfg.CookieDomain,
		CookieSecure:     cfg.CookieSecure,
		CookieSameSite:   cfg.CookieSameSite,
		IssueCSRF:        csrf.Issue,
	}
	authMiddleware := auth.Middleware{Service: authService, AccessCookie: cfg.CookieName}

	limiterStore, err := ratelimit.NewRedisStore(deps.Redis, "ratelimit:")
	if err != nil {
		logger.Error().Err(err).Msg("redis rate limit store unavailable, using memory store")
		limiterStore = ratelimit.NewMemoryStore()
	}
	authLimiter, err := ratelimit.New(limiterStore, cfg.AuthRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth rate limiter")
	}
	authRateLimit := ratelimit.Handler{
		Limiter: authLimiter,
		Config:  ratelimit.Config{Key: ratelimit.ByClientIP("auth")},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	cartSvc := &cart.Service{
		Store:  &cart.Store{R: deps.Redis, TTL: cfg.CartTTL},
		Locker: lock.Locker{R: deps.Redis, TTL: cfg.LockTTL, RetryBackoff: cfg.LockRetryBackoff},
		Engine: engine,
	}
	cartHandler := &cart.Handler{Svc: cartSvc}

	receipts := notify.Enqueuer{
		Client:   taskClient,
		Queue:    cfg.ReceiptQueue,
		MaxRetry: cfg.ReceiptMaxRetry,
		Breaker:  resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("receipt_queue").WithLogger(logger),
	}
	checkoutSvc := &checkout.Service{
		Carts:    cartSvc,
		Invoices: deps.Invoices,
		Receipts: receipts,
		Engine:   engine,
		Validate: checkout.NewValidator(time.Now),
		Logger:   &logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}
	invoiceHandler := &invoice.Handler{Store: deps.Invoices}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.CookieSecure, NoStore: true}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug", protectPprof(middleware.Profiler(), user, pass))
	}

	probes := []health.Probe{health.RedisProbe(deps.Redis, envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300))}
	if deps.DB != nil {
		probes = append(probes, health.DBProbe(deps.DB, envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500)))
	}
	healthHandler := health.Handler{Probes: probes}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/auth", func(a chi.Router) {
			a.With(authRateLimit.Middleware).Post("/register", authHandler.Register)
			a.With(authRateLimit.Middleware).Post("/login", authHandler.Login)
			a.With(csrf.Middleware).Post("/logout", authHandler.Logout)
			a.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Group(func(p chi.Router) {
			p.Use(csrf.Middleware)

			p.Route("/carts", func(c chi.Router) {
				c.Use(authMiddleware.Authenticate)
				c.Get("/{owner}", cartHandler.Get)
				c.Get("/{owner}/summary", cartHandler.Summary)
				c.Get("/{owner}/count", cartHandler.Count)
				c.Group(func(g chi.Router) {
					g.Use(idem.Middleware)
					g.Post("/", cartHandler.Create)
					g.Post("/{owner}/items", cartHandler.AddItem)
					g.Patch("/{owner}/items/{itemId}", cartHandler.UpdateItem)
					g.Post("/{owner}/items/{itemId}/increase", cartHandler.IncreaseItem)
					g.Post("/{owner}/items/{itemId}/decrease", cartHandler.DecreaseItem)
					g.Delete("/{owner}/items/{itemId}", cartHandler.RemoveItem)
					g.Delete("/{owner}", cartHandler.Clear)
					g.Post("/{owner}/promo", cartHandler.ApplyPromo)
					g.Delete("/{owner}/promo", cartHandler.RemovePromo)
					g.With(authMiddleware.RequireAuth).Post("/merge", cartHandler.Merge)
				})
			})

			p.With(idem.Middleware, authMiddleware.RequireAuth).Post("/checkout", checkoutHandler.Checkout)

			p.Route("/invoices", func(i chi.Router) {
				i.Use(authMiddleware.RequireAuth)
				i.Get("/", invoiceHandler.List)
				i.Get("/latest", invoiceHandler.Latest)
				i.Get("/{id}", invoiceHandler.Get)
				i.Get("/{id}/receipt", invoiceHandler.Receipt)
				i.Delete("/", invoiceHandler.Clear)
			})
		})
	})

	var handler http.Handler = r
	if tracingEnabled {
		handler = otelhttp.NewHandler(r, "solar-symphony-api")
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := serve(ctx, srv, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

// serve runs srv until ctx is cancelled, then marks the instance unready and
// drains in-flight requests within grace.
func serve(ctx context.Context, srv *http.Server, grace time.Duration, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	ms := fallback
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && parsed > 0 {
			ms = parsed
		}
	}
	return time.Duration(ms) * time.Millisecond
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
