package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	"github.com/zatekoja/servicemarket/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

const reviewsTable = "reviews"

var reviewColumns = []interface{}{
	"id", "booking_id", "customer_id", "provider_id", "service_id",
	"overall", "quality", "punctuality", "communication", "value",
	"comment", "pros", "cons", "would_recommend", "is_visible", "is_editable", "editable_until",
	"provider_response", "responded_at", "created_at", "updated_at",
}

// reviewRow mirrors the reviews table for sqlx scanning
type reviewRow struct {
	ID               string         `db:"id"`
	BookingID        string         `db:"booking_id"`
	CustomerID       string         `db:"customer_id"`
	ProviderID       string         `db:"provider_id"`
	ServiceID        string         `db:"service_id"`
	Overall          int            `db:"overall"`
	Quality          sql.NullInt64  `db:"quality"`
	Punctuality      sql.NullInt64  `db:"punctuality"`
	Communication    sql.NullInt64  `db:"communication"`
	Value            sql.NullInt64  `db:"value"`
	Comment          sql.NullString `db:"comment"`
	Pros             pq.StringArray `db:"pros"`
	Cons             pq.StringArray `db:"cons"`
	WouldRecommend   bool           `db:"would_recommend"`
	IsVisible        bool           `db:"is_visible"`
	IsEditable       bool           `db:"is_editable"`
	EditableUntil    time.Time      `db:"editable_until"`
	ProviderResponse sql.NullString `db:"provider_response"`
	RespondedAt      sql.NullTime   `db:"responded_at"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func nullableScore(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	score := int(v.Int64)
	return &score
}

func (r *reviewRow) toEntity() *entities.Review {
	review := &entities.Review{
		ID:         r.ID,
		BookingID:  r.BookingID,
		CustomerID: r.CustomerID,
		ProviderID: r.ProviderID,
		ServiceID:  r.ServiceID,
		Rating: entities.ReviewRatings{
			Overall:       r.Overall,
			Quality:       nullableScore(r.Quality),
			Punctuality:   nullableScore(r.Punctuality),
			Communication: nullableScore(r.Communication),
			Value:         nullableScore(r.Value),
		},
		Comment:        r.Comment.String,
		Pros:           []string(r.Pros),
		Cons:           []string(r.Cons),
		WouldRecommend: r.WouldRecommend,
		IsVisible:      r.IsVisible,
		IsEditable:     r.IsEditable,
		EditableUntil:  r.EditableUntil,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.ProviderResponse.Valid {
		review.ProviderResponse = &entities.ProviderResponse{
			Text:        r.ProviderResponse.String,
			RespondedAt: r.RespondedAt.Time,
		}
	}
	return review
}

// ReviewAdapter implements the ReviewRepository interface
type ReviewAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewReviewAdapter creates a new review adapter
func NewReviewAdapter(client *postgres.Client) repositories.ReviewRepository {
	return &ReviewAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

func ratingRecord(r entities.ReviewRatings) goqu.Record {
	return goqu.Record{
		"overall":       r.Overall,
		"quality":       r.Quality,
		"punctuality":   r.Punctuality,
		"communication": r.Communication,
		"value":         r.Value,
	}
}

// Create inserts the review and flags its booking as reviewed in one transaction
func (a *ReviewAdapter) Create(ctx context.Context, review *entities.Review) error {
	record := ratingRecord(review.Rating)
	record["id"] = review.ID
	record["booking_id"] = review.BookingID
	record["customer_id"] = review.CustomerID
	record["provider_id"] = review.ProviderID
	record["service_id"] = review.ServiceID
	record["comment"] = review.Comment
	record["pros"] = pq.StringArray(review.Pros)
	record["cons"] = pq.StringArray(review.Cons)
	record["would_recommend"] = review.WouldRecommend
	record["is_visible"] = review.IsVisible
	record["is_editable"] = review.IsEditable
	record["editable_until"] = review.EditableUntil
	record["created_at"] = review.CreatedAt
	record["updated_at"] = review.UpdatedAt

	insert, args, err := a.db.Insert(reviewsTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}
	mark, markArgs, err := a.db.Update(bookingsTable).
		Set(goqu.Record{"is_reviewed": true}).
		Where(goqu.Ex{"id": review.BookingID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		if constraint, ok := violatedUniqueConstraint(err); ok && constraint == constraintReviewBooking {
			return apperrors.NewAlreadyReviewedError(review.BookingID)
		}
		return apperrors.NewInternalError("failed to create review", err)
	}
	if _, err := tx.ExecContext(ctx, mark, markArgs...); err != nil {
		return apperrors.NewInternalError("failed to mark booking reviewed", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit review", err)
	}
	return nil
}

func (a *ReviewAdapter) getOne(ctx context.Context, where goqu.Ex, notFound string) (*entities.Review, error) {
	query, args, err := a.db.Select(reviewColumns...).From(reviewsTable).Where(where).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var row reviewRow
	err = a.client.DBX().GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get review", err)
	}
	return row.toEntity(), nil
}

// GetByID retrieves a review by ID
func (a *ReviewAdapter) GetByID(ctx context.Context, id string) (*entities.Review, error) {
	return a.getOne(ctx, goqu.Ex{"id": id}, fmt.Sprintf("review with id %s not found", id))
}

// GetByBookingID retrieves the review of a booking
func (a *ReviewAdapter) GetByBookingID(ctx context.Context, bookingID string) (*entities.Review, error) {
	return a.getOne(ctx, goqu.Ex{"booking_id": bookingID}, fmt.Sprintf("review for booking %s not found", bookingID))
}

func (a *ReviewAdapter) exec(ctx context.Context, id string, record goqu.Record) error {
	query, args, err := a.db.Update(reviewsTable).Set(record).Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update review", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rows == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("review with id %s not found", id))
	}
	return nil
}

// Update persists ratings, comment, pros, cons and recommendation
func (a *ReviewAdapter) Update(ctx context.Context, review *entities.Review) error {
	record := ratingRecord(review.Rating)
	record["comment"] = review.Comment
	record["pros"] = pq.StringArray(review.Pros)
	record["cons"] = pq.StringArray(review.Cons)
	record["would_recommend"] = review.WouldRecommend
	record["updated_at"] = review.UpdatedAt
	return a.exec(ctx, review.ID, record)
}

// SetVisibility hides or restores a review
func (a *ReviewAdapter) SetVisibility(ctx context.Context, id string, visible bool) error {
	return a.exec(ctx, id, goqu.Record{"is_visible": visible, "updated_at": time.Now().UTC()})
}

// SetProviderResponse stores the provider's reply
func (a *ReviewAdapter) SetProviderResponse(ctx context.Context, id string, response *entities.ProviderResponse) error {
	return a.exec(ctx, id, goqu.Record{
		"provider_response": response.Text,
		"responded_at":      response.RespondedAt,
		"updated_at":        response.RespondedAt,
	})
}

func targetColumn(target entities.RatingTarget) (string, error) {
	switch target {
	case entities.RatingTargetService:
		return "service_id", nil
	case entities.RatingTargetProvider:
		return "provider_id", nil
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("unknown rating target %q", target))
}

// ListVisible retrieves visible reviews for a service or provider, newest first
func (a *ReviewAdapter) ListVisible(ctx context.Context, target entities.RatingTarget, targetID string, filter repositories.ReviewFilter) ([]*entities.Review, error) {
	column, err := targetColumn(target)
	if err != nil {
		return nil, err
	}

	ds := a.db.Select(reviewColumns...).
		From(reviewsTable).
		Where(goqu.Ex{column: targetID, "is_visible": true}).
		Order(goqu.C("created_at").Desc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var rows []reviewRow
	if err := a.client.DBX().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list reviews", err)
	}

	reviews := make([]*entities.Review, 0, len(rows))
	for i := range rows {
		reviews = append(reviews, rows[i].toEntity())
	}
	return reviews, nil
}

// VisibleTotals returns the sum and count of overall ratings over visible reviews
func (a *ReviewAdapter) VisibleTotals(ctx context.Context, target entities.RatingTarget, targetID string) (int64, int64, error) {
	column, err := targetColumn(target)
	if err != nil {
		return 0, 0, err
	}

	query, args, err := a.db.Select(
		goqu.COALESCE(goqu.SUM("overall"), 0).As("total"),
		goqu.COUNT("*").As("count"),
	).From(reviewsTable).
		Where(goqu.Ex{column: targetID, "is_visible": true}).
		ToSQL()
	if err != nil {
		return 0, 0, apperrors.NewInternalError("failed to build query", err)
	}

	var sum, count int64
	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&sum, &count); err != nil {
		return 0, 0, apperrors.NewInternalError("failed to total ratings", err)
	}
	return sum, count, nil
}
