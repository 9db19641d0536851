package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/servicemarket/internal/adapters/database"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	"github.com/zatekoja/servicemarket/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

func setupMockDB(t *testing.T) (*postgres.Client, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return postgres.NewFromDB(mockDB), mock
}

var (
	fixedNow     = time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	bookingCols  = []string{"id", "booking_code", "customer_id", "provider_id", "service_id", "scheduled_date", "start_time", "end_time", "estimated_minutes", "actual_minutes", "agreed_amount", "currency", "payment_method", "status", "location", "customer_notes", "provider_notes", "cancelled_by", "cancelled_by_role", "cancellation_reason", "cancelled_at", "completed_at", "completed_by", "is_reviewed", "created_at", "updated_at"}
	scheduledDay = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
)

func sampleBooking() *entities.Booking {
	return &entities.Booking{
		ID:            "b-1",
		BookingCode:   "BK-250520-ABC123",
		CustomerID:    "cust-1",
		ProviderID:    "prov-1",
		ServiceID:     "svc-1",
		ScheduledDate: "2025-06-01",
		ScheduledTime: entities.TimeRange{Start: "10:00", End: "11:00"},
		Duration:      entities.BookingDuration{EstimatedMinutes: 60},
		Pricing:       entities.BookingPricing{AgreedAmount: 50, Currency: "USD", PaymentMethod: entities.PaymentMethodCash},
		Status:        entities.BookingStatusPending,
		CreatedAt:     fixedNow,
		UpdatedAt:     fixedNow,
	}
}

func pendingRow(rows *sqlmock.Rows, id string) *sqlmock.Rows {
	return rows.AddRow(id, "BK-250520-ABC123", "cust-1", "prov-1", "svc-1", scheduledDay, "10:00", "11:00", 60, nil,
		50.0, "USD", "cash", "pending", nil, "Ring twice", nil, nil, nil, nil, nil, nil, nil, false, fixedNow, fixedNow)
}

func TestBookingAdapter_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		dbErr   error
		assertE func(t *testing.T, err error)
	}{
		{
			name:    "inserts the booking",
			assertE: func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:  "occupied slot",
			dbErr: &pq.Error{Code: "23505", Constraint: "bookings_active_slot_uniq"},
			assertE: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeSlotConflict))
			},
		},
		{
			name:  "booking code collision",
			dbErr: &pq.Error{Code: "23505", Constraint: "bookings_booking_code_key"},
			assertE: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, repositories.ErrBookingCodeTaken)
			},
		},
		{
			name:  "other failure",
			dbErr: &pq.Error{Code: "08006"},
			assertE: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := setupMockDB(t)
			adapter := database.NewBookingAdapter(client)

			exp := mock.ExpectExec(`INSERT INTO "bookings" .*'BK-250520-ABC123'.*'2025-06-01'.*'10:00'`)
			if tt.dbErr != nil {
				exp.WillReturnError(tt.dbErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			tt.assertE(t, adapter.Create(ctx, sampleBooking()))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBookingAdapter_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("maps nullable columns", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewBookingAdapter(client)

		cancelledAt := fixedNow.Add(time.Hour)
		mock.ExpectQuery(`SELECT .* FROM "bookings" WHERE \("id" = 'b-1'\)`).
			WillReturnRows(sqlmock.NewRows(bookingCols).AddRow(
				"b-1", "BK-250520-ABC123", "cust-1", "prov-1", "svc-1", scheduledDay, "10:00", "11:00", 60, 75,
				50.0, "USD", "online", "cancelled", "12 High St", nil, nil,
				"cust-1", "customer", "Plans changed", cancelledAt, nil, nil, false, fixedNow, cancelledAt,
			))

		b, err := adapter.GetByID(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, "2025-06-01", b.ScheduledDate)
		assert.Equal(t, entities.BookingStatusCancelled, b.Status)
		assert.Equal(t, entities.PaymentMethodOnline, b.Pricing.PaymentMethod)
		require.NotNil(t, b.Duration.ActualMinutes)
		assert.Equal(t, 75, *b.Duration.ActualMinutes)
		require.NotNil(t, b.Cancellation)
		assert.Equal(t, entities.RoleCustomer, b.Cancellation.CancelledByRole)
		assert.Equal(t, "Plans changed", b.Cancellation.Reason)
		assert.Nil(t, b.Completion)
		assert.Empty(t, b.CustomerNotes)
	})

	t.Run("not found", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewBookingAdapter(client)

		mock.ExpectQuery(`SELECT .* FROM "bookings"`).WillReturnRows(sqlmock.NewRows(bookingCols))

		_, err := adapter.GetByID(ctx, "missing")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})
}

func TestBookingAdapter_ExistsAtSlot(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := database.NewBookingAdapter(client)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "bookings" WHERE .*"provider_id" = 'prov-1'.*"start_time" = '10:00'.*"status" IN \('pending', 'confirmed'\).*"id" != 'b-1'`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	taken, err := adapter.ExistsAtSlot(context.Background(), "prov-1", "2025-06-01", "10:00", "b-1")
	require.NoError(t, err)
	assert.True(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingAdapter_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	event := &entities.BookingStatusEvent{
		ID: "h-1", BookingID: "b-1", FromStatus: entities.BookingStatusPending, ToStatus: entities.BookingStatusCancelled,
		ActorID: "cust-1", ActorRole: entities.RoleCustomer, CreatedAt: fixedNow,
	}
	cancelled := sampleBooking()
	cancelled.Status = entities.BookingStatusCancelled
	cancelled.Cancellation = &entities.Cancellation{CancelledBy: "cust-1", CancelledByRole: entities.RoleCustomer, Reason: "Cancelled by customer", CancelledAt: fixedNow}

	t.Run("compare-and-set with history", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewBookingAdapter(client)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "bookings" SET .*"status"='cancelled'.* WHERE \(\("id" = 'b-1'\) AND \("status" = 'pending'\)\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "booking_status_history"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, adapter.UpdateStatus(ctx, cancelled, entities.BookingStatusPending, event, false))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status moved underneath", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewBookingAdapter(client)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "bookings"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := adapter.UpdateStatus(ctx, cancelled, entities.BookingStatusPending, event, false)
		assert.ErrorIs(t, err, repositories.ErrStatusChanged)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reactivation onto a taken slot", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewBookingAdapter(client)

		reopened := sampleBooking()
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "bookings"`).WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_active_slot_uniq"})
		mock.ExpectRollback()

		err := adapter.UpdateStatus(ctx, reopened, entities.BookingStatusCancelled, event, false)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeSlotConflict))
	})

	completed := sampleBooking()
	completed.Status = entities.BookingStatusCompleted
	completed.Completion = &entities.Completion{CompletedAt: fixedNow, CompletedBy: "prov-1"}
	completion := &entities.BookingStatusEvent{
		ID: "h-2", BookingID: "b-1", FromStatus: entities.BookingStatusInProgress, ToStatus: entities.BookingStatusCompleted,
		ActorID: "prov-1", ActorRole: entities.RoleProvider, CreatedAt: fixedNow,
	}

	t.Run("completion bumps the provider counter in the same transaction", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewBookingAdapter(client)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "bookings" SET .*"status"='completed'.* WHERE \(\("id" = 'b-1'\) AND \("status" = 'in_progress'\)\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "booking_status_history"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "providers" SET "completed_services"=completed_services \+ 1,"updated_at"=.* WHERE \("id" = 'prov-1'\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, adapter.UpdateStatus(ctx, completed, entities.BookingStatusInProgress, completion, true))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("counter failure rolls the status back", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewBookingAdapter(client)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "bookings"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "booking_status_history"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "providers"`).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := adapter.UpdateStatus(ctx, completed, entities.BookingStatusInProgress, completion, true)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing provider rolls the status back", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewBookingAdapter(client)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "bookings"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "booking_status_history"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "providers"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := adapter.UpdateStatus(ctx, completed, entities.BookingStatusInProgress, completion, true)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingAdapter_ListPendingReview(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := database.NewBookingAdapter(client)

	mock.ExpectQuery(`SELECT .* FROM "bookings" WHERE .*"customer_id" = 'cust-1'.*"status" = 'completed'.*"is_reviewed" IS FALSE.* ORDER BY "updated_at" DESC`).
		WillReturnRows(pendingRow(pendingRow(sqlmock.NewRows(bookingCols), "b-1"), "b-2"))

	bookings, err := adapter.ListPendingReview(context.Background(), "cust-1")
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, "b-2", bookings[1].ID)
	assert.Equal(t, "Ring twice", bookings[0].CustomerNotes)
}

func TestBookingAdapter_ListByProvider(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := database.NewBookingAdapter(client)

	mock.ExpectQuery(`SELECT .* FROM "bookings" WHERE .*"provider_id" = 'prov-1'.*"status" = 'pending'.* LIMIT 10 OFFSET 20`).
		WillReturnRows(pendingRow(sqlmock.NewRows(bookingCols), "b-1"))

	bookings, err := adapter.ListByProvider(context.Background(), "prov-1", repositories.BookingFilter{
		Status: entities.BookingStatusPending, Limit: 10, Offset: 20,
	})
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingAdapter_ListHistory(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := database.NewBookingAdapter(client)

	mock.ExpectQuery(`SELECT .* FROM "booking_status_history" WHERE \("booking_id" = 'b-1'\) ORDER BY "created_at" ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "from_status", "to_status", "actor_id", "actor_role", "notes", "created_at"}).
			AddRow("h-1", "b-1", "pending", "confirmed", "prov-1", "provider", "", fixedNow).
			AddRow("h-2", "b-1", "confirmed", "in_progress", "prov-1", "provider", "On my way", fixedNow.Add(time.Hour)))

	history, err := adapter.ListHistory(context.Background(), "b-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entities.BookingStatusInProgress, history[1].ToStatus)
	assert.Equal(t, entities.RoleProvider, history[1].ActorRole)
	assert.Equal(t, "On my way", history[1].Notes)
}
