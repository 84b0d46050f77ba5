package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clientpulse/backend/internal/domain/outcome"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestPeriodBounds(t *testing.T) {
	t.Run("parses a calendar month", func(t *testing.T) {
		start, end, err := periodBounds("2026-08")

		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), end)
	})

	t.Run("rolls December into the next year", func(t *testing.T) {
		start, end, err := periodBounds("2025-12")

		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
	})

	t.Run("rejects malformed periods", func(t *testing.T) {
		for _, period := range []string{"aug-2026", "2026/08", "2026-8", ""} {
			_, _, err := periodBounds(period)

			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr, "period %q", period)
			assert.Equal(t, "INVALID_PERIOD", domainErr.Code)
		}
	})
}

// newMockOutcomeRepository creates a GormOutcomeRepository with a mocked SQL connection
func newMockOutcomeRepository(t *testing.T) (*GormOutcomeRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormOutcomeRepository(gormDB), mock, mockDB
}

var outcomeColumns = []string{
	"id", "created_at", "updated_at", "version", "tenant_id",
	"recommendation_type", "client_id", "insight_id",
	"predicted_impact", "actual_impact", "variance_score",
	"variance_direction", "status", "accepted_at", "rejected_at",
	"completed_at", "measured_at",
}

func TestGormOutcomeRepository_ListForPeriod(t *testing.T) {
	t.Run("selects tenant-wide rows for a nil client", func(t *testing.T) {
		repo, mock, mockDB := newMockOutcomeRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		captured := time.Date(2026, 8, 5, 10, 0, 0, 0, time.UTC)
		later := captured.AddDate(0, 0, 9)

		rows := sqlmock.NewRows(outcomeColumns).
			AddRow(uuid.New(), captured, captured, 1, tenantID,
				"budget_shift", nil, uuid.New(),
				`{"sessions":120}`, "", nil,
				"", "success", captured, nil,
				later, nil).
			AddRow(uuid.New(), later, later, 2, tenantID,
				"budget_shift", nil, uuid.New(),
				`{"spend":-300}`, "", nil,
				"", "pending", nil, nil,
				nil, nil)

		mock.ExpectQuery(`SELECT \* FROM "outcomes" WHERE recommendation_type = \$1 AND \(created_at >= \$2 AND created_at < \$3\) AND client_id IS NULL AND tenant_id = \$4 ORDER BY created_at ASC`).
			WithArgs("budget_shift", sqlmock.AnyArg(), sqlmock.AnyArg(), tenantID).
			WillReturnRows(rows)

		outcomes, err := repo.ListForPeriod(context.Background(), tenantID, "budget_shift", nil, "2026-08")

		require.NoError(t, err)
		require.Len(t, outcomes, 2)
		assert.Equal(t, outcome.StatusSuccess, outcomes[0].Status)
		assert.Nil(t, outcomes[0].ClientID)
		assert.True(t, outcomes[0].PredictedImpact["sessions"].Equal(decimal.NewFromInt(120)))
		assert.Equal(t, outcome.StatusPending, outcomes[1].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("narrows to one client", func(t *testing.T) {
		repo, mock, mockDB := newMockOutcomeRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		clientID := uuid.New()
		captured := time.Date(2026, 7, 12, 9, 30, 0, 0, time.UTC)

		rows := sqlmock.NewRows(outcomeColumns).
			AddRow(uuid.New(), captured, captured, 1, tenantID,
				"content_refresh", clientID, uuid.New(),
				`{"organic_clicks":45}`, "", nil,
				"", "pending", captured, nil,
				nil, nil)

		mock.ExpectQuery(`SELECT \* FROM "outcomes" WHERE recommendation_type = \$1 AND \(created_at >= \$2 AND created_at < \$3\) AND client_id = \$4 AND tenant_id = \$5 ORDER BY created_at ASC`).
			WithArgs("content_refresh", sqlmock.AnyArg(), sqlmock.AnyArg(), clientID, tenantID).
			WillReturnRows(rows)

		outcomes, err := repo.ListForPeriod(context.Background(), tenantID, "content_refresh", &clientID, "2026-07")

		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		require.NotNil(t, outcomes[0].ClientID)
		assert.Equal(t, clientID, *outcomes[0].ClientID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a malformed period before querying", func(t *testing.T) {
		repo, mock, mockDB := newMockOutcomeRepository(t)
		defer mockDB.Close()

		outcomes, err := repo.ListForPeriod(context.Background(), uuid.New(), "budget_shift", nil, "August 2026")

		assert.Nil(t, outcomes)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_PERIOD", domainErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormOutcomeRepository_DistinctGroups(t *testing.T) {
	t.Run("returns every type and client pair in the period", func(t *testing.T) {
		repo, mock, mockDB := newMockOutcomeRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		clientID := uuid.New()

		rows := sqlmock.NewRows([]string{"recommendation_type", "client_id"}).
			AddRow("budget_shift", clientID).
			AddRow("budget_shift", nil).
			AddRow("content_refresh", clientID)

		mock.ExpectQuery(`SELECT DISTINCT "recommendation_type","client_id" FROM "outcomes" WHERE \(created_at >= \$1 AND created_at < \$2\) AND tenant_id = \$3`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), tenantID).
			WillReturnRows(rows)

		groups, err := repo.DistinctGroups(context.Background(), tenantID, "2026-08")

		require.NoError(t, err)
		assert.ElementsMatch(t, []outcome.OutcomeGroup{
			{RecommendationType: "budget_shift", ClientID: &clientID},
			{RecommendationType: "budget_shift", ClientID: nil},
			{RecommendationType: "content_refresh", ClientID: &clientID},
		}, groups)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns empty set for a quiet period", func(t *testing.T) {
		repo, mock, mockDB := newMockOutcomeRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()

		mock.ExpectQuery(`SELECT DISTINCT "recommendation_type","client_id" FROM "outcomes"`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), tenantID).
			WillReturnRows(sqlmock.NewRows([]string{"recommendation_type", "client_id"}))

		groups, err := repo.DistinctGroups(context.Background(), tenantID, "2026-01")

		require.NoError(t, err)
		assert.Empty(t, groups)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormOutcomeRepository_Update(t *testing.T) {
	t.Run("fails when another transaction moved the version ahead", func(t *testing.T) {
		repo, mock, mockDB := newMockOutcomeRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		o, err := outcome.NewOutcome(tenantID, "budget_shift", nil, nil, outcome.ImpactMap{
			"spend": decimal.NewFromInt(-500),
		})
		require.NoError(t, err)
		require.NoError(t, o.Accept())

		mock.ExpectExec(`UPDATE "outcomes" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
		mock.ExpectQuery(`SELECT count\(\*\) FROM "outcomes" WHERE id = \$1 AND tenant_id = \$2`).
			WithArgs(o.ID, tenantID).
			WillReturnRows(countRows)

		err = repo.Update(context.Background(), o)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "modified by another transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// ====== QualityMetricRepository Tests ======

// newMockQualityMetricRepository creates a GormQualityMetricRepository with a mocked SQL connection
func newMockQualityMetricRepository(t *testing.T) (*GormQualityMetricRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormQualityMetricRepository(gormDB), mock, mockDB
}

var qualityMetricColumns = []string{
	"id", "created_at", "updated_at", "version", "tenant_id",
	"recommendation_type", "client_id", "period", "sample_size",
	"accepted_count", "rejected_count", "measured_count",
	"acceptance_rate", "success_rate", "completion_rate",
	"measured_success_rate", "avg_variance", "quality_score",
	"confidence_level",
}

func TestGormQualityMetricRepository_Find(t *testing.T) {
	t.Run("finds the tenant-wide row for a period", func(t *testing.T) {
		repo, mock, mockDB := newMockQualityMetricRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		now := time.Now()

		rows := sqlmock.NewRows(qualityMetricColumns).
			AddRow(uuid.New(), now, now, 1, tenantID,
				"budget_shift", nil, "2026-07", 20,
				12, 8, 9,
				0.6, 0.75, 0.5,
				0.78, "0.125", 0.66,
				"medium")

		mock.ExpectQuery(`SELECT \* FROM "quality_metrics" WHERE \(recommendation_type = \$1 AND period = \$2\) AND client_id IS NULL AND tenant_id = \$3`).
			WithArgs("budget_shift", "2026-07", tenantID, 1).
			WillReturnRows(rows)

		metric, err := repo.Find(context.Background(), tenantID, "budget_shift", nil, "2026-07")

		require.NoError(t, err)
		assert.Equal(t, "budget_shift", metric.RecommendationType)
		assert.Nil(t, metric.ClientID)
		assert.Equal(t, "2026-07", metric.Period)
		assert.Equal(t, 20, metric.SampleSize)
		assert.Equal(t, 0.6, metric.AcceptanceRate)
		assert.True(t, metric.AvgVariance.Equal(decimal.NewFromFloat(0.125)))
		assert.Equal(t, outcome.ConfidenceMedium, metric.ConfidenceLevel)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found when the period has no row", func(t *testing.T) {
		repo, mock, mockDB := newMockQualityMetricRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		clientID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "quality_metrics" WHERE \(recommendation_type = \$1 AND period = \$2\) AND client_id = \$3 AND tenant_id = \$4`).
			WithArgs("content_refresh", "2026-06", clientID, tenantID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		metric, err := repo.Find(context.Background(), tenantID, "content_refresh", &clientID, "2026-06")

		assert.Nil(t, metric)
		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormQualityMetricRepository_Upsert(t *testing.T) {
	t.Run("replaces the existing row for the same key", func(t *testing.T) {
		repo, mock, mockDB := newMockQualityMetricRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		existingID := uuid.New()
		now := time.Now()

		metric := &outcome.QualityMetric{
			TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
			RecommendationType:  "budget_shift",
			Period:              "2026-07",
			SampleSize:          24,
			AcceptedCount:       15,
			RejectedCount:       9,
			MeasuredCount:       11,
			AcceptanceRate:      0.625,
			SuccessRate:         0.73,
			CompletionRate:      0.58,
			MeasuredSuccessRate: 0.81,
			AvgVariance:         decimal.NewFromFloat(0.2),
			QualityScore:        0.68,
			ConfidenceLevel:     outcome.ConfidenceMedium,
		}

		existing := sqlmock.NewRows(qualityMetricColumns).
			AddRow(existingID, now, now, 1, tenantID,
				"budget_shift", nil, "2026-07", 20,
				12, 8, 9,
				0.6, 0.75, 0.5,
				0.78, "0.125", 0.66,
				"medium")

		mock.ExpectQuery(`SELECT \* FROM "quality_metrics" WHERE \(recommendation_type = \$1 AND period = \$2\) AND client_id IS NULL AND tenant_id = \$3`).
			WithArgs("budget_shift", "2026-07", tenantID, 1).
			WillReturnRows(existing)

		mock.ExpectExec(`UPDATE "quality_metrics" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Upsert(context.Background(), metric)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
