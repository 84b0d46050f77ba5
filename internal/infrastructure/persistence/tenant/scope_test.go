package tenant

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
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

	return gormDB, mock, mockDB
}

func TestScope_AppliesTenantFilter(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()

	tenantID := uuid.New()

	type Record struct {
		ID       uint
		TenantID uuid.UUID
	}

	mock.ExpectQuery(`SELECT \* FROM "records" WHERE tenant_id = \$1`).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id"}).
			AddRow(1, tenantID))

	var results []Record
	err := db.Scopes(Scope(tenantID)).Find(&results).Error
	require.NoError(t, err)
	assert.Len(t, results, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScope_NilTenantPoisonsQuery(t *testing.T) {
	db, _, mockDB := newMockDB(t)
	defer mockDB.Close()

	type Record struct {
		ID uint
	}

	// No query expectation: the scope must fail the statement before
	// anything reaches the database.
	var results []Record
	err := db.Scopes(Scope(uuid.Nil)).Find(&results).Error
	assert.ErrorIs(t, err, ErrTenantRequired)
}

func TestScope_ChainsWithOtherClauses(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()

	tenantID := uuid.New()

	type Record struct {
		ID       uint
		TenantID uuid.UUID
		Status   string
	}

	// Scopes evaluate when the query runs, so the tenant condition lands
	// after the chained one.
	mock.ExpectQuery(`SELECT \* FROM "records" WHERE status = \$1 AND tenant_id = \$2`).
		WithArgs("pending", tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "status"}).
			AddRow(1, tenantID, "pending").
			AddRow(2, tenantID, "pending"))

	var results []Record
	err := db.Scopes(Scope(tenantID)).Where("status = ?", "pending").Find(&results).Error
	require.NoError(t, err)
	assert.Len(t, results, 2)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScope_DifferentTenantsGetDistinctFilters(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()

	tenantA := uuid.New()
	tenantB := uuid.New()

	type Record struct {
		ID       uint
		TenantID uuid.UUID
	}

	mock.ExpectQuery(`SELECT \* FROM "records" WHERE tenant_id = \$1`).
		WithArgs(tenantA).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id"}).AddRow(1, tenantA))
	mock.ExpectQuery(`SELECT \* FROM "records" WHERE tenant_id = \$1`).
		WithArgs(tenantB).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id"}))

	var forA, forB []Record
	require.NoError(t, db.Scopes(Scope(tenantA)).Find(&forA).Error)
	require.NoError(t, db.Scopes(Scope(tenantB)).Find(&forB).Error)

	assert.Len(t, forA, 1)
	assert.Empty(t, forB)

	assert.NoError(t, mock.ExpectationsWereMet())
}
