package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	"github.com/zatekoja/servicemarket/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

const providersTable = "providers"

// ProviderAdapter implements the ProviderRepository interface
type ProviderAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewProviderAdapter creates a new provider adapter
func NewProviderAdapter(client *postgres.Client) repositories.ProviderRepository {
	return &ProviderAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create creates a new provider
func (a *ProviderAdapter) Create(ctx context.Context, provider *entities.Provider) error {
	query, args, err := a.db.Insert(providersTable).Rows(goqu.Record{
		"id":                 provider.ID,
		"display_name":       provider.DisplayName,
		"completed_services": provider.CompletedServices,
		"rating_average":     provider.Rating.Average,
		"rating_count":       provider.Rating.Count,
		"created_at":         provider.CreatedAt,
		"updated_at":         provider.UpdatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create provider", err)
	}
	return nil
}

// GetByID retrieves a provider by ID
func (a *ProviderAdapter) GetByID(ctx context.Context, id string) (*entities.Provider, error) {
	query, args, err := a.db.Select(
		"id", "display_name", "completed_services", "rating_average", "rating_count", "created_at", "updated_at",
	).From(providersTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	provider := &entities.Provider{}
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&provider.ID,
		&provider.DisplayName,
		&provider.CompletedServices,
		&provider.Rating.Average,
		&provider.Rating.Count,
		&provider.CreatedAt,
		&provider.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("provider with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get provider", err)
	}
	return provider, nil
}

// ListIDs pages through provider ids ordered by id
func (a *ProviderAdapter) ListIDs(ctx context.Context, limit, offset int) ([]string, error) {
	return listIDs(ctx, a.client, a.db, providersTable, limit, offset)
}

// UpdateRating overwrites the cached aggregate
func (a *ProviderAdapter) UpdateRating(ctx context.Context, id string, summary entities.RatingSummary) error {
	return updateRating(ctx, a.client, a.db, providersTable, id, summary)
}
