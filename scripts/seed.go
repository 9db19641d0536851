package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/zatekoja/servicemarket/internal/adapters/database"
	"github.com/zatekoja/servicemarket/internal/adapters/identity"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/servicemarket/internal/infrastructure/observability"
	"github.com/zatekoja/servicemarket/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger("servicemarket-seed", cfg.Env, cfg.LogLevel)
	logger := observability.GetLogger()

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	defer pgClient.Close()

	providerRepo := database.NewProviderAdapter(pgClient)
	serviceRepo := database.NewServiceListingAdapter(pgClient)

	ctx := context.Background()

	if os.Getenv("RESET_DB") == "true" {
		logger.Warn().Msg("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				reviews,
				booking_status_history,
				bookings,
				services,
				providers
			RESTART IDENTITY CASCADE
		`)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to reset tables")
		}
	}

	now := time.Now().UTC()

	// 1. Seed providers
	providers := []entities.Provider{
		{ID: uuid.New().String(), DisplayName: "Sparkle Home Cleaning", CreatedAt: now, UpdatedAt: now},
		{ID: uuid.New().String(), DisplayName: "Mama Tunde Plumbing", CreatedAt: now, UpdatedAt: now},
		{ID: uuid.New().String(), DisplayName: "Lekki Hair Studio", CreatedAt: now, UpdatedAt: now},
	}

	for i := range providers {
		if err := providerRepo.Create(ctx, &providers[i]); err != nil {
			logger.Error().Err(err).Str("provider", providers[i].DisplayName).Msg("Failed to create provider")
		}
	}

	// 2. Seed services, one unapproved to exercise the bookable check
	listings := []entities.ServiceListing{
		{ProviderID: providers[0].ID, Title: "Standard Apartment Clean", DurationMinutes: 120, Price: 15000, IsApproved: true},
		{ProviderID: providers[0].ID, Title: "Deep Clean (3 bedroom)", DurationMinutes: 240, Price: 40000, IsApproved: true},
		{ProviderID: providers[1].ID, Title: "Leak Repair Call-out", DurationMinutes: 60, Price: 8000, IsApproved: true},
		{ProviderID: providers[1].ID, Title: "Water Heater Installation", DurationMinutes: 180, Price: 35000},
		{ProviderID: providers[2].ID, Title: "Braids (medium)", DurationMinutes: 300, Price: 25000, IsApproved: true},
		{ProviderID: providers[2].ID, Title: "Wash and Set", DurationMinutes: 60, Price: 6000, IsApproved: true},
	}

	for i := range listings {
		s := &listings[i]
		s.ID = uuid.New().String()
		s.Currency = "NGN"
		s.IsActive = true
		s.CreatedAt = now
		s.UpdatedAt = now
		if err := serviceRepo.Create(ctx, s); err != nil {
			logger.Error().Err(err).Str("service", s.Title).Msg("Failed to create service")
		}
	}

	logger.Info().
		Int("providers", len(providers)).
		Int("services", len(listings)).
		Msg("Seeding complete")

	// 3. Development tokens
	if cfg.Auth.JWTSecret == "" || cfg.Env == "production" {
		return
	}
	expires := *jwt.NewNumericDate(now.Add(7 * 24 * time.Hour))
	actors := []entities.Actor{
		{ID: "cust-" + uuid.New().String()[:8], Role: entities.RoleCustomer},
		{ID: providers[0].ID, Role: entities.RoleProvider},
		{ID: "admin", Role: entities.RoleAdministrator},
	}
	for _, actor := range actors {
		token, err := identity.Sign(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, actor, expires)
		if err != nil {
			logger.Error().Err(err).Str("actor", actor.ID).Msg("Failed to sign token")
			continue
		}
		fmt.Printf("%-9s %s\n%s\n\n", actor.Role, actor.ID, token)
	}
}
