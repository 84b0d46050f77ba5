package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// signalRow is a minimal table for exercising the GORM callbacks.
type signalRow struct {
	ID        uint   `gorm:"primaryKey"`
	DedupHash string `gorm:"size:64"`
	CreatedAt time.Time
}

func openSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&signalRow{}))
	return db
}

func recordingTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, recorder
}

func spanAttr(s sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL, "bind variables must stay out of spans unless opted in")
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestNewDBTracingPlugin(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true

	plugin := NewDBTracingPlugin(cfg, zap.NewNop())
	require.NotNil(t, plugin)
	assert.Equal(t, cfg, plugin.config)
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	db := openSQLiteDB(t)
	core, logs := observer.New(zapcore.DebugLevel)

	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.New(core))
	require.NoError(t, plugin.RegisterOtelGorm(db))

	entries := logs.FilterMessage("Database tracing disabled, skipping otelgorm registration")
	assert.Equal(t, 1, entries.Len())
}

func TestDBTracingPlugin_Register(t *testing.T) {
	for _, tc := range []struct {
		name       string
		logFullSQL bool
	}{
		{"variables stripped", false},
		{"full SQL", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db := openSQLiteDB(t)

			plugin := NewDBTracingPlugin(DBTracingConfig{
				Enabled:         true,
				LogFullSQL:      tc.logFullSQL,
				SlowQueryThresh: 200 * time.Millisecond,
				DBSystem:        "sqlite",
			}, zap.NewNop())

			assert.NoError(t, plugin.RegisterOtelGorm(db))
		})
	}
}

func TestDBTracingPlugin_Register_Twice(t *testing.T) {
	db := openSQLiteDB(t)

	plugin := NewDBTracingPlugin(DBTracingConfig{
		Enabled:         true,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "sqlite",
	}, zap.NewNop())

	require.NoError(t, plugin.RegisterOtelGorm(db))

	// GORM rejects a second plugin under the same name.
	assert.Error(t, plugin.RegisterOtelGorm(db))
}

func TestDBTracingPlugin_Register_LogsConfiguration(t *testing.T) {
	db := openSQLiteDB(t)
	core, logs := observer.New(zapcore.InfoLevel)

	plugin := NewDBTracingPlugin(DBTracingConfig{
		Enabled:         true,
		LogFullSQL:      true,
		SlowQueryThresh: 500 * time.Millisecond,
		DBSystem:        "sqlite",
	}, zap.New(core))
	require.NoError(t, plugin.RegisterOtelGorm(db))

	entries := logs.FilterMessage("Database tracing enabled").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, true, fields["log_full_sql"])
	assert.Equal(t, "sqlite", fields["db_system"])
}

func TestMarkStart(t *testing.T) {
	db := openSQLiteDB(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	tx := db.WithContext(context.Background())
	plugin.markStart(tx)

	_, ok := tx.Statement.Context.Value(queryStartKey).(time.Time)
	assert.True(t, ok, "markStart should stamp the statement context")
}

func TestAnnotateSpan_RowCountAndTable(t *testing.T) {
	db := openSQLiteDB(t)
	tp, recorder := recordingTracer(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	ctx, span := tp.Tracer("test").Start(context.Background(), "ingest.store_batch")

	rows := []signalRow{{DedupHash: "a1"}, {DedupHash: "b2"}, {DedupHash: "c3"}}
	tx := db.WithContext(ctx).Create(&rows)
	require.NoError(t, tx.Error)

	plugin.annotateSpan(tx)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)

	count, ok := spanAttr(ended[0], "db.rows_affected")
	require.True(t, ok)
	assert.Equal(t, int64(3), count.AsInt64())

	table, ok := spanAttr(ended[0], "db.sql.table")
	require.True(t, ok)
	assert.Equal(t, "signal_rows", table.AsString())
}

func TestAnnotateSpan_NotFoundIsNotAnError(t *testing.T) {
	db := openSQLiteDB(t)
	tp, recorder := recordingTracer(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	ctx, span := tp.Tracer("test").Start(context.Background(), "detection.load_signal")

	var row signalRow
	tx := db.WithContext(ctx).First(&row, 99999)
	require.ErrorIs(t, tx.Error, gorm.ErrRecordNotFound)

	plugin.annotateSpan(tx)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.NotEqual(t, codes.Error, ended[0].Status().Code)
	assert.Empty(t, ended[0].Events(), "a lookup miss must not record an error event")
}

func TestAnnotateSpan_ErrorMarksSpan(t *testing.T) {
	db := openSQLiteDB(t)
	tp, recorder := recordingTracer(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	ctx, span := tp.Tracer("test").Start(context.Background(), "ingest.store_batch")

	tx := db.WithContext(ctx).Exec("UPDATE missing_table SET dedup_hash = 'x'")
	require.Error(t, tx.Error)

	plugin.annotateSpan(tx)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.NotEmpty(t, ended[0].Events(), "RecordError should leave an exception event")
}

func TestAnnotateSpan_SlowQuery(t *testing.T) {
	db := openSQLiteDB(t)
	tp, recorder := recordingTracer(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	ctx, span := tp.Tracer("test").Start(context.Background(), "aggregation.flush")
	// Back-date the start stamp so the statement is slow regardless of how
	// fast the test machine is.
	ctx = context.WithValue(ctx, queryStartKey, time.Now().Add(-time.Second))

	tx := db.WithContext(ctx).Create(&signalRow{DedupHash: "d4"})
	require.NoError(t, tx.Error)

	plugin.annotateSpan(tx)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)

	slow, ok := spanAttr(ended[0], "db.slow_query")
	require.True(t, ok)
	assert.True(t, slow.AsBool())

	duration, ok := spanAttr(ended[0], "db.query_duration_ms")
	require.True(t, ok)
	assert.GreaterOrEqual(t, duration.AsInt64(), int64(1000))

	var warned bool
	for _, event := range ended[0].Events() {
		if event.Name == "slow_query_warning" {
			warned = true
			for _, kv := range event.Attributes {
				if kv.Key == "threshold_ms" {
					assert.Equal(t, int64(200), kv.Value.AsInt64())
				}
			}
		}
	}
	assert.True(t, warned, "slow statement should leave a slow_query_warning event")
}

func TestAnnotateSpan_NoRecordingSpan(t *testing.T) {
	db := openSQLiteDB(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	tx := db.WithContext(context.Background())
	plugin.annotateSpan(tx)
}

func TestAnnotateSpan_NilStatementContext(t *testing.T) {
	db := openSQLiteDB(t)
	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())

	tx := db.Session(&gorm.Session{})
	tx.Statement.Context = nil
	plugin.annotateSpan(tx)
}

func TestDBTracingPlugin_EndToEnd(t *testing.T) {
	db := openSQLiteDB(t)
	tp, recorder := recordingTracer(t)

	plugin := NewDBTracingPlugin(DBTracingConfig{
		Enabled:         true,
		LogFullSQL:      true,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "sqlite",
	}, zap.NewNop())
	require.NoError(t, plugin.RegisterOtelGorm(db))

	ctx, span := tp.Tracer("test").Start(context.Background(), "ingest.store_batch")

	tx := db.WithContext(ctx).Create(&signalRow{DedupHash: "e5"})
	require.NoError(t, tx.Error)

	var found signalRow
	tx = db.WithContext(ctx).First(&found, "dedup_hash = ?", "e5")
	require.NoError(t, tx.Error)
	assert.Equal(t, "e5", found.DedupHash)

	span.End()
	assert.NotEmpty(t, recorder.Ended())
}

func BenchmarkAnnotateSpan(b *testing.B) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		b.Fatal(err)
	}

	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())
	tx := db.WithContext(context.Background())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		plugin.annotateSpan(tx)
	}
}
