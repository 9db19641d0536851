package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	"github.com/zatekoja/servicemarket/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

const servicesTable = "services"

// ServiceListingAdapter implements the ServiceListingRepository interface
type ServiceListingAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewServiceListingAdapter creates a new service listing adapter
func NewServiceListingAdapter(client *postgres.Client) repositories.ServiceListingRepository {
	return &ServiceListingAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create creates a new service listing
func (a *ServiceListingAdapter) Create(ctx context.Context, service *entities.ServiceListing) error {
	query, args, err := a.db.Insert(servicesTable).Rows(goqu.Record{
		"id":               service.ID,
		"provider_id":      service.ProviderID,
		"title":            service.Title,
		"duration_minutes": service.DurationMinutes,
		"price":            service.Price,
		"currency":         service.Currency,
		"is_active":        service.IsActive,
		"is_approved":      service.IsApproved,
		"rating_average":   service.Rating.Average,
		"rating_count":     service.Rating.Count,
		"created_at":       service.CreatedAt,
		"updated_at":       service.UpdatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create service", err)
	}
	return nil
}

// GetByID retrieves a service listing by ID
func (a *ServiceListingAdapter) GetByID(ctx context.Context, id string) (*entities.ServiceListing, error) {
	query, args, err := a.db.Select(
		"id", "provider_id", "title", "duration_minutes", "price", "currency",
		"is_active", "is_approved", "rating_average", "rating_count", "created_at", "updated_at",
	).From(servicesTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	service := &entities.ServiceListing{}
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&service.ID,
		&service.ProviderID,
		&service.Title,
		&service.DurationMinutes,
		&service.Price,
		&service.Currency,
		&service.IsActive,
		&service.IsApproved,
		&service.Rating.Average,
		&service.Rating.Count,
		&service.CreatedAt,
		&service.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("service with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get service", err)
	}
	return service, nil
}

// ListIDs pages through service ids ordered by id
func (a *ServiceListingAdapter) ListIDs(ctx context.Context, limit, offset int) ([]string, error) {
	return listIDs(ctx, a.client, a.db, servicesTable, limit, offset)
}

// UpdateRating overwrites the cached aggregate
func (a *ServiceListingAdapter) UpdateRating(ctx context.Context, id string, summary entities.RatingSummary) error {
	return updateRating(ctx, a.client, a.db, servicesTable, id, summary)
}

func listIDs(ctx context.Context, client *postgres.Client, db *goqu.Database, table string, limit, offset int) ([]string, error) {
	ds := db.Select("id").From(table).Order(goqu.C("id").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	if offset > 0 {
		ds = ds.Offset(uint(offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	ids := make([]string, 0)
	if err := client.DBX().SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, apperrors.NewInternalError(fmt.Sprintf("failed to list %s ids", table), err)
	}
	return ids, nil
}

func updateRating(ctx context.Context, client *postgres.Client, db *goqu.Database, table, id string, summary entities.RatingSummary) error {
	query, args, err := db.Update(table).
		Set(goqu.Record{
			"rating_average": summary.Average,
			"rating_count":   summary.Count,
			"updated_at":     time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update rating", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rows == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("%s row with id %s not found", table, id))
	}
	return nil
}
