package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	"github.com/zatekoja/servicemarket/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

const (
	bookingsTable       = "bookings"
	bookingHistoryTable = "booking_status_history"
	defaultListLimit    = 50
)

var bookingColumns = []interface{}{
	"id", "booking_code", "customer_id", "provider_id", "service_id",
	"scheduled_date", "start_time", "end_time", "estimated_minutes", "actual_minutes",
	"agreed_amount", "currency", "payment_method", "status",
	"location", "customer_notes", "provider_notes",
	"cancelled_by", "cancelled_by_role", "cancellation_reason", "cancelled_at",
	"completed_at", "completed_by", "is_reviewed", "created_at", "updated_at",
}

func occupyingStatuses() []string {
	out := make([]string, 0, len(entities.OccupyingStatuses))
	for _, s := range entities.OccupyingStatuses {
		out = append(out, string(s))
	}
	return out
}

// BookingAdapter implements the BookingRepository interface
type BookingAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewBookingAdapter creates a new booking adapter
func NewBookingAdapter(client *postgres.Client) repositories.BookingRepository {
	return &BookingAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts a booking; the partial unique slot index turns a double booking into a SLOT_CONFLICT
func (a *BookingAdapter) Create(ctx context.Context, booking *entities.Booking) error {
	record := goqu.Record{
		"id":                booking.ID,
		"booking_code":      booking.BookingCode,
		"customer_id":       booking.CustomerID,
		"provider_id":       booking.ProviderID,
		"service_id":        booking.ServiceID,
		"scheduled_date":    booking.ScheduledDate,
		"start_time":        booking.ScheduledTime.Start,
		"end_time":          booking.ScheduledTime.End,
		"estimated_minutes": booking.Duration.EstimatedMinutes,
		"agreed_amount":     booking.Pricing.AgreedAmount,
		"currency":          booking.Pricing.Currency,
		"payment_method":    booking.Pricing.PaymentMethod,
		"status":            booking.Status,
		"location":          booking.Location,
		"customer_notes":    booking.CustomerNotes,
		"provider_notes":    booking.ProviderNotes,
		"is_reviewed":       booking.IsReviewed,
		"created_at":        booking.CreatedAt,
		"updated_at":        booking.UpdatedAt,
	}

	query, args, err := a.db.Insert(bookingsTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return a.translateWriteError(err, booking)
	}
	return nil
}

func (a *BookingAdapter) translateWriteError(err error, booking *entities.Booking) error {
	if constraint, ok := violatedUniqueConstraint(err); ok {
		switch constraint {
		case constraintActiveSlot:
			return apperrors.NewSlotConflictError(booking.ProviderID, booking.ScheduledDate, booking.ScheduledTime.Start)
		case constraintBookingCode:
			return repositories.ErrBookingCodeTaken
		}
	}
	return apperrors.NewInternalError("failed to write booking", err)
}

// GetByID retrieves a booking by ID
func (a *BookingAdapter) GetByID(ctx context.Context, id string) (*entities.Booking, error) {
	query, args, err := a.db.Select(bookingColumns...).
		From(bookingsTable).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	booking, err := scanBooking(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("booking with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get booking", err)
	}
	return booking, nil
}

// ExistsAtSlot checks for an occupying booking at the provider's exact start time
func (a *BookingAdapter) ExistsAtSlot(ctx context.Context, providerID, date, startTime, excludeID string) (bool, error) {
	ds := a.db.Select(goqu.COUNT("*")).
		From(bookingsTable).
		Where(
			goqu.C("provider_id").Eq(providerID),
			goqu.C("scheduled_date").Eq(date),
			goqu.C("start_time").Eq(startTime),
			goqu.C("status").In(occupyingStatuses()),
		)
	if excludeID != "" {
		ds = ds.Where(goqu.C("id").Neq(excludeID))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build query", err)
	}

	var count int
	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, apperrors.NewInternalError("failed to check slot", err)
	}
	return count > 0, nil
}

// UpdateStatus writes the new status only if the stored one still equals expected,
// and appends the history row in the same transaction. With incrementCompleted the
// provider's completed counter is bumped in that transaction too.
func (a *BookingAdapter) UpdateStatus(ctx context.Context, booking *entities.Booking, expected entities.BookingStatus, event *entities.BookingStatusEvent, incrementCompleted bool) error {
	record := goqu.Record{
		"status":              booking.Status,
		"provider_notes":      booking.ProviderNotes,
		"actual_minutes":      booking.Duration.ActualMinutes,
		"cancelled_by":        nil,
		"cancelled_by_role":   nil,
		"cancellation_reason": nil,
		"cancelled_at":        nil,
		"completed_at":        nil,
		"completed_by":        nil,
		"updated_at":          booking.UpdatedAt,
	}
	if c := booking.Cancellation; c != nil {
		record["cancelled_by"] = c.CancelledBy
		record["cancelled_by_role"] = c.CancelledByRole
		record["cancellation_reason"] = c.Reason
		record["cancelled_at"] = c.CancelledAt
	}
	if c := booking.Completion; c != nil {
		record["completed_at"] = c.CompletedAt
		record["completed_by"] = c.CompletedBy
	}

	update, args, err := a.db.Update(bookingsTable).
		Set(record).
		Where(goqu.Ex{"id": booking.ID, "status": expected}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	insert, insertArgs, err := a.db.Insert(bookingHistoryTable).Rows(goqu.Record{
		"id":          event.ID,
		"booking_id":  event.BookingID,
		"from_status": event.FromStatus,
		"to_status":   event.ToStatus,
		"actor_id":    event.ActorID,
		"actor_role":  event.ActorRole,
		"notes":       event.Notes,
		"created_at":  event.CreatedAt,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build history insert", err)
	}

	var counter string
	var counterArgs []interface{}
	if incrementCompleted {
		counter, counterArgs, err = a.db.Update(providersTable).
			Set(goqu.Record{
				"completed_services": goqu.L("completed_services + 1"),
				"updated_at":         booking.UpdatedAt,
			}).
			Where(goqu.Ex{"id": booking.ProviderID}).
			ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build provider counter update", err)
		}
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, update, args...)
	if err != nil {
		return a.translateWriteError(err, booking)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rows == 0 {
		return repositories.ErrStatusChanged
	}

	if _, err := tx.ExecContext(ctx, insert, insertArgs...); err != nil {
		return apperrors.NewInternalError("failed to record status history", err)
	}
	if incrementCompleted {
		result, err := tx.ExecContext(ctx, counter, counterArgs...)
		if err != nil {
			return apperrors.NewInternalError("failed to increment completed services", err)
		}
		if rows, err := result.RowsAffected(); err != nil {
			return apperrors.NewInternalError("failed to get rows affected", err)
		} else if rows == 0 {
			return apperrors.NewNotFoundError(fmt.Sprintf("provider with id %s not found", booking.ProviderID))
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit status change", err)
	}
	return nil
}

// UpdateSchedule rewrites the schedule and customer-editable fields of a pending booking
func (a *BookingAdapter) UpdateSchedule(ctx context.Context, booking *entities.Booking) error {
	query, args, err := a.db.Update(bookingsTable).
		Set(goqu.Record{
			"scheduled_date": booking.ScheduledDate,
			"start_time":     booking.ScheduledTime.Start,
			"end_time":       booking.ScheduledTime.End,
			"location":       booking.Location,
			"customer_notes": booking.CustomerNotes,
			"updated_at":     booking.UpdatedAt,
		}).
		Where(goqu.Ex{"id": booking.ID, "status": entities.BookingStatusPending}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return a.translateWriteError(err, booking)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rows == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("pending booking with id %s not found", booking.ID))
	}
	return nil
}

// ListByCustomer retrieves bookings made by a customer
func (a *BookingAdapter) ListByCustomer(ctx context.Context, customerID string, filter repositories.BookingFilter) ([]*entities.Booking, error) {
	return a.list(ctx, goqu.Ex{"customer_id": customerID}, filter)
}

// ListByProvider retrieves bookings held by a provider
func (a *BookingAdapter) ListByProvider(ctx context.Context, providerID string, filter repositories.BookingFilter) ([]*entities.Booking, error) {
	return a.list(ctx, goqu.Ex{"provider_id": providerID}, filter)
}

func (a *BookingAdapter) list(ctx context.Context, owner goqu.Ex, filter repositories.BookingFilter) ([]*entities.Booking, error) {
	ds := a.db.Select(bookingColumns...).From(bookingsTable).Where(owner)

	if filter.Status != "" {
		ds = ds.Where(goqu.Ex{"status": filter.Status})
	}
	if filter.From != "" {
		ds = ds.Where(goqu.C("scheduled_date").Gte(filter.From))
	}
	if filter.To != "" {
		ds = ds.Where(goqu.C("scheduled_date").Lte(filter.To))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	ds = ds.Order(goqu.C("scheduled_date").Desc(), goqu.C("start_time").Desc()).Limit(uint(limit))
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}
	return a.query(ctx, query, args...)
}

// ListPendingReview resolves the customer's completed bookings that have no review yet
func (a *BookingAdapter) ListPendingReview(ctx context.Context, customerID string) ([]*entities.Booking, error) {
	query, args, err := a.db.Select(bookingColumns...).
		From(bookingsTable).
		Where(
			goqu.C("customer_id").Eq(customerID),
			goqu.C("status").Eq(entities.BookingStatusCompleted),
			goqu.C("is_reviewed").IsFalse(),
		).
		Order(goqu.C("updated_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}
	return a.query(ctx, query, args...)
}

func (a *BookingAdapter) query(ctx context.Context, query string, args ...interface{}) ([]*entities.Booking, error) {
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list bookings", err)
	}
	defer rows.Close()

	bookings := make([]*entities.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan booking", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate bookings", err)
	}
	return bookings, nil
}

// ListHistory retrieves the status history of a booking, oldest first
func (a *BookingAdapter) ListHistory(ctx context.Context, bookingID string) ([]*entities.BookingStatusEvent, error) {
	query, args, err := a.db.Select(
		"id", "booking_id", "from_status", "to_status", "actor_id", "actor_role", "notes", "created_at",
	).From(bookingHistoryTable).
		Where(goqu.Ex{"booking_id": bookingID}).
		Order(goqu.C("created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	history := make([]*entities.BookingStatusEvent, 0)
	if err := a.client.DBX().SelectContext(ctx, &history, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to load booking history", err)
	}
	return history, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*entities.Booking, error) {
	b := &entities.Booking{}
	var (
		scheduledDate                                    time.Time
		actualMinutes                                    sql.NullInt64
		location, customerNotes, providerNotes           sql.NullString
		cancelledBy, cancelledByRole, cancellationReason sql.NullString
		completedBy                                      sql.NullString
		cancelledAt, completedAt                         sql.NullTime
	)

	err := row.Scan(
		&b.ID,
		&b.BookingCode,
		&b.CustomerID,
		&b.ProviderID,
		&b.ServiceID,
		&scheduledDate,
		&b.ScheduledTime.Start,
		&b.ScheduledTime.End,
		&b.Duration.EstimatedMinutes,
		&actualMinutes,
		&b.Pricing.AgreedAmount,
		&b.Pricing.Currency,
		&b.Pricing.PaymentMethod,
		&b.Status,
		&location,
		&customerNotes,
		&providerNotes,
		&cancelledBy,
		&cancelledByRole,
		&cancellationReason,
		&cancelledAt,
		&completedAt,
		&completedBy,
		&b.IsReviewed,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.ScheduledDate = scheduledDate.Format(entities.DateLayout)
	if actualMinutes.Valid {
		minutes := int(actualMinutes.Int64)
		b.Duration.ActualMinutes = &minutes
	}
	b.Location = location.String
	b.CustomerNotes = customerNotes.String
	b.ProviderNotes = providerNotes.String

	if cancelledAt.Valid {
		b.Cancellation = &entities.Cancellation{
			CancelledBy:     cancelledBy.String,
			CancelledByRole: entities.ActorRole(cancelledByRole.String),
			Reason:          cancellationReason.String,
			CancelledAt:     cancelledAt.Time,
		}
	}
	if completedAt.Valid {
		b.Completion = &entities.Completion{
			CompletedAt: completedAt.Time,
			CompletedBy: completedBy.String,
		}
	}
	return b, nil
}
