package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-dispenser/internal/catalog"
	"github.com/fairyhunter13/coupon-dispenser/internal/config"
	"github.com/fairyhunter13/coupon-dispenser/internal/handler"
	"github.com/fairyhunter13/coupon-dispenser/internal/ledger"
	"github.com/fairyhunter13/coupon-dispenser/internal/middleware"
	"github.com/fairyhunter13/coupon-dispenser/internal/repository"
	"github.com/fairyhunter13/coupon-dispenser/internal/service"
	"github.com/fairyhunter13/coupon-dispenser/internal/stats"
	"github.com/fairyhunter13/coupon-dispenser/internal/validator"
	"github.com/fairyhunter13/coupon-dispenser/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	initLogger(cfg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cat, err := loadCatalog(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.Catalog.File).Msg("failed to load coupon catalog")
	}
	log.Info().Int("coupons", cat.Len()).Msg("coupon catalog loaded")

	claims := ledger.New(service.DefaultCooldown)
	claims.StartJanitor(ctx, cfg.Catalog.SweepInterval, time.Now)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promStats, err := stats.NewPrometheusStore(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register metrics")
	}
	if err := stats.RegisterLedgerSize(reg, claims.Len); err != nil {
		log.Fatal().Err(err).Msg("failed to register ledger metrics")
	}

	recorders := stats.Multi{promStats}
	var healthChecks []handler.HealthCheck
	opts := []service.Option{}

	// Optional Redis statistics
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisStats := stats.NewRedisStore(rdb, stats.WithPrefix(cfg.Redis.StatsPrefix))
		if err := redisStats.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable at startup, stats will be retried per event")
		}
		recorders = append(recorders, redisStats)
		healthChecks = append(healthChecks, handler.HealthCheck{Name: "redis", Pinger: redisStats})
	}
	opts = append(opts, service.WithStats(recorders))

	// Optional claim journal
	var pool *pgxpool.Pool
	if cfg.Journal.Enabled {
		pool, err = database.NewPool(ctx, cfg.DB.DSN(), 5)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare claim journal schema")
		}
		opts = append(opts, service.WithJournal(repository.NewJournalRepository(pool)))
		healthChecks = append(healthChecks, handler.HealthCheck{Name: "database", Pinger: pool})
	}

	dispenser := service.NewDispenser(cat, claims, opts...)

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Coupon Dispenser",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    64 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())
	app.Use(middleware.CORS(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedSuffixes))
	if cfg.Throttle.Enabled {
		throttleStore := middleware.NewLimiterStore(cfg.Throttle.RPS, cfg.Throttle.Burst)
		throttleStore.StartJanitor(ctx, 2*time.Minute)
		app.Use(middleware.Throttle(middleware.ThrottleConfig{
			Store:   throttleStore,
			KeyFunc: handler.ClientIP,
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == "/health" || c.Path() == "/metrics"
			},
		}))
	}

	couponHandler := handler.NewCouponHandler(dispenser)
	claimHandler := handler.NewClaimHandler(dispenser, handler.CookieOptions{
		MaxAge:   claims.Cooldown(),
		Secure:   cfg.Cookie.Secure,
		SameSite: cfg.Cookie.SameSite,
	})
	healthHandler := handler.NewHealthHandler(healthChecks...)

	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Coupon routes
	app.Get("/coupons", couponHandler.ListCoupons)
	app.Get("/eligibility", claimHandler.CheckEligibility)
	app.Post("/claim", claimHandler.ClaimCoupon)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Stop janitors, then release backends AFTER server shutdown
	stop()
	if pool != nil {
		log.Info().Msg("closing database connections...")
		pool.Close()
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis client")
		}
	}
	log.Info().Msg("server stopped")
}

// loadCatalog reads CATALOG_FILE when set, otherwise builds the default catalog.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	now := time.Now()
	if cfg.Catalog.File == "" {
		return catalog.Default(now), nil
	}
	return catalog.Load(cfg.Catalog.File, validator.New(), now)
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
