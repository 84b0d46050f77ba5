package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clientpulse/backend/internal/domain/anomaly"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockMetricSeriesRepository creates a GormMetricSeriesRepository with a mocked SQL connection
func newMockMetricSeriesRepository(t *testing.T) (*GormMetricSeriesRepository, sqlmock.Sqlmock, *sql.DB) {
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

	return NewGormMetricSeriesRepository(gormDB), mock, mockDB
}

func TestGormMetricSeriesRepository_HistoryWindow(t *testing.T) {
	t.Run("returns the window oldest first", func(t *testing.T) {
		repo, mock, mockDB := newMockMetricSeriesRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		clientID := uuid.New()
		day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		day2 := day1.AddDate(0, 0, 1)
		day3 := day1.AddDate(0, 0, 2)

		// The query reads newest first so the limit keeps the most recent
		// days; the repository flips the order back for the detectors.
		rows := sqlmock.NewRows([]string{
			"id", "created_at", "updated_at", "tenant_id", "client_id",
			"metric", "value", "observed_at",
		}).
			AddRow(uuid.New(), day3, day3, tenantID, clientID, "sessions", 180.0, day3).
			AddRow(uuid.New(), day2, day2, tenantID, clientID, "sessions", 150.0, day2).
			AddRow(uuid.New(), day1, day1, tenantID, clientID, "sessions", 120.0, day1)

		mock.ExpectQuery(`SELECT \* FROM "metric_points" WHERE \(client_id = \$1 AND metric = \$2\) AND tenant_id = \$3 ORDER BY observed_at DESC LIMIT \$4`).
			WithArgs(clientID, anomaly.MetricSessions, tenantID, 14).
			WillReturnRows(rows)

		points, err := repo.HistoryWindow(context.Background(), tenantID, clientID, anomaly.MetricSessions, 14)

		require.NoError(t, err)
		require.Len(t, points, 3)
		assert.True(t, points[0].ObservedAt.Equal(day1))
		assert.Equal(t, 120.0, points[0].Value)
		assert.True(t, points[2].ObservedAt.Equal(day3))
		assert.Equal(t, 180.0, points[2].Value)
		assert.Equal(t, anomaly.MetricSessions, points[1].Metric)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns the full series when days is zero", func(t *testing.T) {
		repo, mock, mockDB := newMockMetricSeriesRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		clientID := uuid.New()
		day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

		rows := sqlmock.NewRows([]string{
			"id", "created_at", "updated_at", "tenant_id", "client_id",
			"metric", "value", "observed_at",
		}).
			AddRow(uuid.New(), day, day, tenantID, clientID, "spend", 950.0, day)

		mock.ExpectQuery(`SELECT \* FROM "metric_points" WHERE \(client_id = \$1 AND metric = \$2\) AND tenant_id = \$3 ORDER BY observed_at DESC`).
			WithArgs(clientID, anomaly.MetricSpend, tenantID).
			WillReturnRows(rows)

		points, err := repo.HistoryWindow(context.Background(), tenantID, clientID, anomaly.MetricSpend, 0)

		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, 950.0, points[0].Value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns empty window for unknown client", func(t *testing.T) {
		repo, mock, mockDB := newMockMetricSeriesRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		clientID := uuid.New()

		rows := sqlmock.NewRows([]string{
			"id", "created_at", "updated_at", "tenant_id", "client_id",
			"metric", "value", "observed_at",
		})

		mock.ExpectQuery(`SELECT \* FROM "metric_points"`).
			WithArgs(clientID, anomaly.MetricClicks, tenantID, 30).
			WillReturnRows(rows)

		points, err := repo.HistoryWindow(context.Background(), tenantID, clientID, anomaly.MetricClicks, 30)

		require.NoError(t, err)
		assert.Empty(t, points)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormMetricSeriesRepository_DistinctClients(t *testing.T) {
	t.Run("lists clients with observations", func(t *testing.T) {
		repo, mock, mockDB := newMockMetricSeriesRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		clientA := uuid.New()
		clientB := uuid.New()

		rows := sqlmock.NewRows([]string{"client_id"}).
			AddRow(clientA).
			AddRow(clientB)

		mock.ExpectQuery(`SELECT DISTINCT "client_id" FROM "metric_points" WHERE tenant_id = \$1`).
			WithArgs(tenantID).
			WillReturnRows(rows)

		clients, err := repo.DistinctClients(context.Background(), tenantID)

		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{clientA, clientB}, clients)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns empty list for tenant without data", func(t *testing.T) {
		repo, mock, mockDB := newMockMetricSeriesRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()

		mock.ExpectQuery(`SELECT DISTINCT "client_id" FROM "metric_points" WHERE tenant_id = \$1`).
			WithArgs(tenantID).
			WillReturnRows(sqlmock.NewRows([]string{"client_id"}))

		clients, err := repo.DistinctClients(context.Background(), tenantID)

		require.NoError(t, err)
		assert.Empty(t, clients)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// ====== AnomalyRepository Tests ======

// newMockAnomalyRepository creates a GormAnomalyRepository with a mocked SQL connection
func newMockAnomalyRepository(t *testing.T) (*GormAnomalyRepository, sqlmock.Sqlmock, *sql.DB) {
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

	return NewGormAnomalyRepository(gormDB), mock, mockDB
}

func TestGormAnomalyRepository_FindRecent(t *testing.T) {
	anomalyColumns := []string{
		"id", "created_at", "updated_at", "tenant_id", "client_id",
		"metric", "type", "observed_value", "expected_value", "std_dev",
		"z_score", "percent_change", "confidence", "severity",
		"sample_size", "observed_at", "emitted",
	}

	t.Run("narrows to one client", func(t *testing.T) {
		repo, mock, mockDB := newMockAnomalyRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		clientID := uuid.New()
		newest := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
		older := newest.AddDate(0, 0, -1)

		rows := sqlmock.NewRows(anomalyColumns).
			AddRow(uuid.New(), newest, newest, tenantID, clientID,
				"sessions", "drop", 80.0, 150.0, 20.0,
				-3.5, -46.7, 0.92, "critical",
				28, newest, true).
			AddRow(uuid.New(), older, older, tenantID, clientID,
				"spend", "spike", 1400.0, 900.0, 120.0,
				4.2, 55.6, 0.88, "high",
				28, older, false)

		mock.ExpectQuery(`SELECT \* FROM "anomalies" WHERE client_id = \$1 AND tenant_id = \$2 ORDER BY observed_at DESC, created_at DESC LIMIT \$3`).
			WithArgs(clientID, tenantID, 20).
			WillReturnRows(rows)

		detections, err := repo.FindRecent(context.Background(), tenantID, &clientID, 20)

		require.NoError(t, err)
		require.Len(t, detections, 2)
		assert.Equal(t, anomaly.SeverityCritical, detections[0].Severity)
		assert.Equal(t, anomaly.MetricSessions, detections[0].Metric)
		assert.Equal(t, -3.5, detections[0].ZScore)
		assert.True(t, detections[0].Emitted)
		assert.Equal(t, anomaly.SeverityHigh, detections[1].Severity)
		assert.False(t, detections[1].Emitted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("spans all clients when none given", func(t *testing.T) {
		repo, mock, mockDB := newMockAnomalyRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		day := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)

		rows := sqlmock.NewRows(anomalyColumns).
			AddRow(uuid.New(), day, day, tenantID, uuid.New(),
				"conversions", "drop", 4.0, 11.0, 2.0,
				-3.1, -63.6, 0.85, "high",
				21, day, false)

		mock.ExpectQuery(`SELECT \* FROM "anomalies" WHERE tenant_id = \$1 ORDER BY observed_at DESC, created_at DESC`).
			WithArgs(tenantID).
			WillReturnRows(rows)

		detections, err := repo.FindRecent(context.Background(), tenantID, nil, 0)

		require.NoError(t, err)
		require.Len(t, detections, 1)
		assert.Equal(t, anomaly.MetricConversions, detections[0].Metric)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// ====== ThresholdOverrideRepository Tests ======

// newMockThresholdOverrideRepository creates a GormThresholdOverrideRepository with a mocked SQL connection
func newMockThresholdOverrideRepository(t *testing.T) (*GormThresholdOverrideRepository, sqlmock.Sqlmock, *sql.DB) {
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

	return NewGormThresholdOverrideRepository(gormDB), mock, mockDB
}

func TestGormThresholdOverrideRepository_Save(t *testing.T) {
	t.Run("updates the existing row in place", func(t *testing.T) {
		repo, mock, mockDB := newMockThresholdOverrideRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		existingID := uuid.New()
		now := time.Now()

		override, err := anomaly.NewThresholdOverride(tenantID, nil, anomaly.MetricSessions)
		require.NoError(t, err)
		zScore := 3.0
		override.ZScore = &zScore

		existing := sqlmock.NewRows([]string{
			"id", "created_at", "updated_at", "version", "tenant_id",
			"client_id", "metric", "z_score", "percent_change", "min_data_points", "enabled",
		}).
			AddRow(existingID, now, now, 1, tenantID, nil, "sessions", 2.5, nil, nil, nil)

		mock.ExpectQuery(`SELECT \* FROM "threshold_overrides" WHERE metric = \$1 AND client_id IS NULL AND tenant_id = \$2`).
			WithArgs(anomaly.MetricSessions, tenantID, 1).
			WillReturnRows(existing)

		mock.ExpectExec(`UPDATE "threshold_overrides" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.Save(context.Background(), override)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("resolves client rows by their client column", func(t *testing.T) {
		repo, mock, mockDB := newMockThresholdOverrideRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		clientID := uuid.New()
		existingID := uuid.New()
		now := time.Now()

		override, err := anomaly.NewThresholdOverride(tenantID, &clientID, anomaly.MetricSpend)
		require.NoError(t, err)
		percent := 40.0
		override.PercentChange = &percent

		existing := sqlmock.NewRows([]string{
			"id", "created_at", "updated_at", "version", "tenant_id",
			"client_id", "metric", "z_score", "percent_change", "min_data_points", "enabled",
		}).
			AddRow(existingID, now, now, 1, tenantID, clientID, "spend", nil, 25.0, nil, nil)

		mock.ExpectQuery(`SELECT \* FROM "threshold_overrides" WHERE metric = \$1 AND client_id = \$2 AND tenant_id = \$3`).
			WithArgs(anomaly.MetricSpend, clientID, tenantID, 1).
			WillReturnRows(existing)

		mock.ExpectExec(`UPDATE "threshold_overrides" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.Save(context.Background(), override)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormThresholdOverrideRepository_FindForTenant(t *testing.T) {
	t.Run("returns tenant-wide and client rows", func(t *testing.T) {
		repo, mock, mockDB := newMockThresholdOverrideRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		clientID := uuid.New()
		now := time.Now()

		rows := sqlmock.NewRows([]string{
			"id", "created_at", "updated_at", "version", "tenant_id",
			"client_id", "metric", "z_score", "percent_change", "min_data_points", "enabled",
		}).
			AddRow(uuid.New(), now, now, 1, tenantID, nil, "sessions", 3.0, nil, nil, nil).
			AddRow(uuid.New(), now, now, 1, tenantID, clientID, "spend", nil, 40.0, nil, nil)

		mock.ExpectQuery(`SELECT \* FROM "threshold_overrides" WHERE tenant_id = \$1 ORDER BY metric ASC, created_at ASC`).
			WithArgs(tenantID).
			WillReturnRows(rows)

		overrides, err := repo.FindForTenant(context.Background(), tenantID)

		require.NoError(t, err)
		require.Len(t, overrides, 2)

		assert.Nil(t, overrides[0].ClientID)
		require.NotNil(t, overrides[0].ZScore)
		assert.Equal(t, 3.0, *overrides[0].ZScore)
		assert.Nil(t, overrides[0].PercentChange)

		require.NotNil(t, overrides[1].ClientID)
		assert.Equal(t, clientID, *overrides[1].ClientID)
		require.NotNil(t, overrides[1].PercentChange)
		assert.Equal(t, 40.0, *overrides[1].PercentChange)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormThresholdOverrideRepository_Delete(t *testing.T) {
	t.Run("deletes existing override", func(t *testing.T) {
		repo, mock, mockDB := newMockThresholdOverrideRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		overrideID := uuid.New()

		mock.ExpectExec(`DELETE FROM "threshold_overrides" WHERE tenant_id = \$1 AND id = \$2`).
			WithArgs(tenantID, overrideID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Delete(context.Background(), tenantID, overrideID)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for missing override", func(t *testing.T) {
		repo, mock, mockDB := newMockThresholdOverrideRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		overrideID := uuid.New()

		mock.ExpectExec(`DELETE FROM "threshold_overrides" WHERE tenant_id = \$1 AND id = \$2`).
			WithArgs(tenantID, overrideID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Delete(context.Background(), tenantID, overrideID)

		assert.Equal(t, shared.ErrNotFound, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
