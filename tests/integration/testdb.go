// Package integration exercises the pipeline stack against real PostgreSQL
// instances. Containers come from testcontainers, and every database is
// migrated to the current schema before a test sees it.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// shared holds the package wide container handed out by NewSharedTestDB.
// It is started on first use and lives until CleanupSharedContainer.
var shared struct {
	sync.Mutex
	container testcontainers.Container
	dsn       string
}

// TestDB hands a test a migrated database. Repositories are built on DB;
// everything else is plumbing for teardown.
type TestDB struct {
	DB *gorm.DB

	t         *testing.T
	sqlDB     *sql.DB
	container testcontainers.Container
}

// NewTestDB starts a fresh PostgreSQL container, migrates it and returns a
// connected TestDB. Each call gets a fully isolated database; teardown is
// registered with t.Cleanup.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	container, dsn := startContainer(t, "clientpulse_test")
	db, sqlDB := openGorm(t, dsn)
	migrateUp(t, sqlDB)

	tdb := &TestDB{DB: db, t: t, sqlDB: sqlDB, container: container}
	t.Cleanup(tdb.Close)
	return tdb
}

// NewSharedTestDB returns a connection to a container shared by the whole
// test package. Much cheaper than NewTestDB, but state carries over between
// tests; call CleanTables first or scope every row to a unique tenant.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	shared.Lock()
	defer shared.Unlock()

	if shared.container == nil {
		container, dsn := startContainer(t, "clientpulse_shared_test")

		// Migrate once for the lifetime of the container.
		_, sqlDB := openGorm(t, dsn)
		migrateUp(t, sqlDB)
		sqlDB.Close()

		shared.container = container
		shared.dsn = dsn
	}

	db, sqlDB := openGorm(t, shared.dsn)

	tdb := &TestDB{DB: db, t: t, sqlDB: sqlDB, container: shared.container}
	t.Cleanup(tdb.Close)
	return tdb
}

// Close closes the connection and, for containers owned by a single test,
// terminates the container. The shared container stays up for the next
// test.
func (tdb *TestDB) Close() {
	if tdb.sqlDB != nil {
		tdb.sqlDB.Close()
	}

	shared.Lock()
	owned := tdb.container != nil && tdb.container != shared.container
	shared.Unlock()

	if owned {
		if err := tdb.container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("terminate container: %v", err)
		}
	}
}

// CleanTables truncates every table except schema_migrations, returning the
// database to its post-migration state.
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.
		Raw(`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename <> 'schema_migrations'`).
		Scan(&tables).Error
	require.NoError(tdb.t, err, "list tables")

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			tdb.t.Logf("truncate %s: %v", table, err)
		}
	}
}

// CleanupSharedContainer terminates the shared container. Call it from
// TestMain after m.Run when the package uses NewSharedTestDB.
func CleanupSharedContainer() {
	shared.Lock()
	defer shared.Unlock()

	if shared.container == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	shared.container.Terminate(ctx)
	shared.container = nil
	shared.dsn = ""
}

func startContainer(t *testing.T, dbName string) (testcontainers.Container, string) {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("pulse_test_pw"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "read container connection string")

	return container, dsn
}

// openGorm connects gorm to dsn with a small pool. Set TEST_DB_DEBUG to see
// the SQL a failing test actually ran.
func openGorm(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	logMode := logger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		logMode = logger.Info
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	require.NoError(t, err, "connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "unwrap sql.DB")

	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

// migrateUp applies the repository migrations to a fresh database.
func migrateUp(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	path := findMigrationsPath()
	require.NotEmpty(t, path, "migrations directory not found")

	driver, err := mpg.WithInstance(sqlDB, &mpg.Config{})
	require.NoError(t, err, "create migration driver")

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	require.NoError(t, err, "create migrate instance")

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "apply migrations")
	}
}

// findMigrationsPath walks up from this source file, then from the working
// directory, until it finds the migrations directory at the repository
// root.
func findMigrationsPath() string {
	var roots []string
	if _, file, _, ok := runtime.Caller(0); ok {
		roots = append(roots, filepath.Dir(file))
	}
	if wd, err := os.Getwd(); err == nil {
		roots = append(roots, wd)
	}

	for _, dir := range roots {
		for i := 0; i < 5; i++ {
			p := filepath.Join(dir, "migrations")
			if _, err := os.Stat(p); err == nil {
				return p
			}
			dir = filepath.Dir(dir)
		}
	}
	return ""
}
