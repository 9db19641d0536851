package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zatekoja/servicemarket/internal/adapters/cache"
	"github.com/zatekoja/servicemarket/internal/adapters/database"
	"github.com/zatekoja/servicemarket/internal/adapters/events"
	"github.com/zatekoja/servicemarket/internal/adapters/identity"
	"github.com/zatekoja/servicemarket/internal/api/handlers"
	"github.com/zatekoja/servicemarket/internal/api/middleware"
	"github.com/zatekoja/servicemarket/internal/api/routes"
	"github.com/zatekoja/servicemarket/internal/application/services"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	"github.com/zatekoja/servicemarket/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/servicemarket/internal/infrastructure/clients/redis"
	"github.com/zatekoja/servicemarket/internal/infrastructure/observability"
	"github.com/zatekoja/servicemarket/pkg/clock"
	"github.com/zatekoja/servicemarket/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env, cfg.LogLevel)
	logger := observability.GetLogger()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("AUTH_JWT_SECRET must be set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	// Redis is optional: without it catalog reads go straight to Postgres
	var cacheProvider providers.CacheProvider
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, running without cache")
		redisClient = nil
	} else {
		defer redisClient.Close()
		cacheProvider = cache.NewRedisAdapter(redisClient)
	}

	eventBus := newEventBus(cfg, redisClient)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing event bus")
		}
	}()

	bookingRepo := database.NewBookingAdapter(pgClient)
	reviewRepo := database.NewReviewAdapter(pgClient)
	var serviceRepo repositories.ServiceListingRepository = database.NewServiceListingAdapter(pgClient)
	var providerRepo repositories.ProviderRepository = database.NewProviderAdapter(pgClient)
	if cacheProvider != nil {
		serviceRepo = database.NewCachedServiceListingAdapter(serviceRepo, cacheProvider, metrics)
		providerRepo = database.NewCachedProviderAdapter(providerRepo, cacheProvider, metrics)
	}

	clk := clock.System{}
	policy := services.NewWindowPolicy(clk, cfg.Booking.Location(), cfg.Booking.CancelWindow, cfg.Booking.ModifyWindow)
	ratingService := services.NewRatingService(reviewRepo, serviceRepo, providerRepo, eventBus, metrics, cfg.Booking.RecalcWorkers)
	bookingService := services.NewBookingService(bookingRepo, serviceRepo, policy, eventBus, metrics)
	reviewService := services.NewReviewService(reviewRepo, bookingRepo, ratingService, clk, cfg.Booking.ReviewEditWindow, eventBus)

	// Drops cached catalog entries in other instances when an aggregate changes
	var invalidation *services.CacheInvalidationService
	if cacheProvider != nil {
		invalidation = services.NewCacheInvalidationService(cacheProvider, eventBus)
		if err := invalidation.Start(); err != nil {
			logger.Warn().Err(err).Msg("failed to start cache invalidation service")
			invalidation = nil
		}
	}

	router := routes.NewRouter(
		handlers.NewBookingHandler(bookingService),
		handlers.NewReviewHandler(reviewService),
		handlers.NewRatingHandler(ratingService),
		identity.NewJWTResolver(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		middleware.NewResponseCache(cacheProvider, metrics),
		cfg.CORS,
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", serverAddr).Str("events", cfg.Events.Driver).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
	}

	if invalidation != nil {
		invalidation.Stop()
	}
	logger.Info().Msg("server stopped")
}

// newEventBus selects the event bus for EVENTS_DRIVER
func newEventBus(cfg *config.Config, redisClient *redis.Client) providers.EventBus {
	logger := observability.GetLogger()
	switch cfg.Events.Driver {
	case "kafka":
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("using Kafka event bus")
		return events.NewKafkaEventBus(&cfg.Kafka)
	case "redis":
		if redisClient != nil {
			logger.Info().Msg("using Redis event bus")
			return events.NewRedisEventBus(redisClient)
		}
		logger.Warn().Msg("Redis unavailable, falling back to in-process event bus")
	}
	return events.NewLocalEventBus()
}
