package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zatekoja/servicemarket/internal/adapters/database"
	"github.com/zatekoja/servicemarket/internal/adapters/events"
	"github.com/zatekoja/servicemarket/internal/application/services"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	"github.com/zatekoja/servicemarket/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/servicemarket/internal/infrastructure/clients/redis"
	"github.com/zatekoja/servicemarket/internal/infrastructure/observability"
	"github.com/zatekoja/servicemarket/pkg/config"
)

func main() {
	var serviceID, providerID string
	var workers int

	flag.StringVar(&serviceID, "service", "", "Single service ID to recompute")
	flag.StringVar(&providerID, "provider", "", "Single provider ID to recompute")
	flag.IntVar(&workers, "workers", 0, "Concurrent workers (defaults to RATING_RECALC_WORKERS)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("servicemarket-backfill", cfg.Env, cfg.LogLevel)
	logger := observability.GetLogger()

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pgClient.Close()

	if workers <= 0 {
		workers = cfg.Booking.RecalcWorkers
	}

	// rating.recomputed events reach the API's cache invalidation service over the configured bus
	var eventBus providers.EventBus
	switch cfg.Events.Driver {
	case "kafka":
		eventBus = events.NewKafkaEventBus(&cfg.Kafka)
	case "redis":
		if redisClient, err := redis.NewClient(&cfg.Redis); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, API caches will expire on their TTL")
		} else {
			defer redisClient.Close()
			eventBus = events.NewRedisEventBus(redisClient)
		}
	}
	if eventBus == nil {
		eventBus = events.NewLocalEventBus()
	}
	defer eventBus.Close()

	svc := services.NewRatingService(
		database.NewReviewAdapter(pgClient),
		database.NewServiceListingAdapter(pgClient),
		database.NewProviderAdapter(pgClient),
		eventBus,
		nil,
		workers,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	switch {
	case serviceID != "":
		summary, err := svc.RecomputeService(ctx, serviceID)
		if err != nil {
			logger.Fatal().Err(err).Str("service_id", serviceID).Msg("recompute failed")
		}
		fmt.Printf("service %s: average=%.1f count=%d\n", serviceID, summary.Average, summary.Count)
	case providerID != "":
		summary, err := svc.RecomputeProvider(ctx, providerID)
		if err != nil {
			logger.Fatal().Err(err).Str("provider_id", providerID).Msg("recompute failed")
		}
		fmt.Printf("provider %s: average=%.1f count=%d\n", providerID, summary.Average, summary.Count)
	default:
		logger.Info().Int("workers", workers).Msg("recalculating all ratings")
		summary, err := svc.RecalculateAll(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("recalculation aborted")
		}
		if summary != nil {
			fmt.Printf("services updated:  %d\n", summary.ServicesUpdated)
			fmt.Printf("providers updated: %d\n", summary.ProvidersUpdated)
			fmt.Printf("failures:          %d\n", summary.Failures)
		}
		if err != nil {
			os.Exit(1)
		}
	}
	logger.Info().Dur("elapsed", time.Since(start)).Msg("backfill complete")
}
