package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/servicemarket/internal/adapters/database"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

var reviewCols = []string{
	"id", "booking_id", "customer_id", "provider_id", "service_id",
	"overall", "quality", "punctuality", "communication", "value",
	"comment", "pros", "cons", "would_recommend", "is_visible", "is_editable", "editable_until",
	"provider_response", "responded_at", "created_at", "updated_at",
}

func sampleReview() *entities.Review {
	quality := 5
	return &entities.Review{
		ID:             "r-1",
		BookingID:      "b-1",
		CustomerID:     "cust-1",
		ProviderID:     "prov-1",
		ServiceID:      "svc-1",
		Rating:         entities.ReviewRatings{Overall: 4, Quality: &quality},
		Comment:        "Spotless",
		Pros:           []string{"On time"},
		WouldRecommend: true,
		IsVisible:      true,
		IsEditable:     true,
		EditableUntil:  fixedNow.Add(24 * time.Hour),
		CreatedAt:      fixedNow,
		UpdatedAt:      fixedNow,
	}
}

func TestReviewAdapter_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts and marks the booking reviewed", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewReviewAdapter(client)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "reviews" .*'Spotless'`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "bookings" SET "is_reviewed"=TRUE WHERE \("id" = 'b-1'\)`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, adapter.Create(ctx, sampleReview()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second review for the booking", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewReviewAdapter(client)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "reviews"`).WillReturnError(&pq.Error{Code: "23505", Constraint: "reviews_booking_id_key"})
		mock.ExpectRollback()

		err := adapter.Create(ctx, sampleReview())
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAlreadyReviewed))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReviewAdapter_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("scans arrays and optional scores", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewReviewAdapter(client)

		mock.ExpectQuery(`SELECT .* FROM "reviews" WHERE \("id" = 'r-1'\)`).
			WillReturnRows(sqlmock.NewRows(reviewCols).AddRow(
				"r-1", "b-1", "cust-1", "prov-1", "svc-1",
				4, 5, nil, nil, 3,
				"Spotless", "{\"On time\",Friendly}", nil, true, true, true, fixedNow.Add(24*time.Hour),
				"Thanks!", fixedNow.Add(time.Hour), fixedNow, fixedNow,
			))

		r, err := adapter.GetByID(ctx, "r-1")
		require.NoError(t, err)
		assert.Equal(t, 4, r.Rating.Overall)
		require.NotNil(t, r.Rating.Quality)
		assert.Equal(t, 5, *r.Rating.Quality)
		assert.Nil(t, r.Rating.Punctuality)
		assert.Equal(t, []string{"On time", "Friendly"}, r.Pros)
		assert.Empty(t, r.Cons)
		require.NotNil(t, r.ProviderResponse)
		assert.Equal(t, "Thanks!", r.ProviderResponse.Text)
	})

	t.Run("not found", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewReviewAdapter(client)

		mock.ExpectQuery(`SELECT .* FROM "reviews"`).WillReturnRows(sqlmock.NewRows(reviewCols))

		_, err := adapter.GetByID(ctx, "nope")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})
}

func TestReviewAdapter_SetVisibility(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := database.NewReviewAdapter(client)

	mock.ExpectExec(`UPDATE "reviews" SET "is_visible"=FALSE,"updated_at"=.* WHERE \("id" = 'r-1'\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "reviews"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, adapter.SetVisibility(context.Background(), "r-1", false))
	err := adapter.SetVisibility(context.Background(), "missing", true)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestReviewAdapter_ListVisible(t *testing.T) {
	client, mock := setupMockDB(t)
	adapter := database.NewReviewAdapter(client)

	mock.ExpectQuery(`SELECT .* FROM "reviews" WHERE \(\("is_visible" IS TRUE\) AND \("provider_id" = 'prov-1'\)\) ORDER BY "created_at" DESC LIMIT 20`).
		WillReturnRows(sqlmock.NewRows(reviewCols).
			AddRow("r-2", "b-2", "cust-2", "prov-1", "svc-1", 5, nil, nil, nil, nil, nil, nil, nil, true, true, true, fixedNow, nil, nil, fixedNow, fixedNow).
			AddRow("r-1", "b-1", "cust-1", "prov-1", "svc-1", 3, nil, nil, nil, nil, "ok", nil, nil, false, true, true, fixedNow, nil, nil, fixedNow, fixedNow))

	reviews, err := adapter.ListVisible(context.Background(), entities.RatingTargetProvider, "prov-1", repositories.ReviewFilter{Limit: 20})
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "r-2", reviews[0].ID)
	assert.Nil(t, reviews[0].ProviderResponse)
	assert.False(t, reviews[1].WouldRecommend)
}

func TestReviewAdapter_VisibleTotals(t *testing.T) {
	ctx := context.Background()

	t.Run("sums visible overall scores", func(t *testing.T) {
		client, mock := setupMockDB(t)
		adapter := database.NewReviewAdapter(client)

		mock.ExpectQuery(`SELECT COALESCE\(SUM\("overall"\), 0\) AS "total", COUNT\(\*\) AS "count" FROM "reviews" WHERE \(\("is_visible" IS TRUE\) AND \("service_id" = 'svc-1'\)\)`).
			WillReturnRows(sqlmock.NewRows([]string{"total", "count"}).AddRow(17, 4))

		sum, count, err := adapter.VisibleTotals(ctx, entities.RatingTargetService, "svc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(17), sum)
		assert.Equal(t, int64(4), count)
	})

	t.Run("unknown target", func(t *testing.T) {
		client, _ := setupMockDB(t)
		adapter := database.NewReviewAdapter(client)

		_, _, err := adapter.VisibleTotals(ctx, entities.RatingTarget("region"), "x")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}
