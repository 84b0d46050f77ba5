// Package telemetry provides OpenTelemetry integration for distributed tracing.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig controls span instrumentation for GORM database calls.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include bind variables in span SQL; keep off outside dev
	SlowQueryThresh time.Duration // statements above this get a slow_query marker on their span
	DBSystem        string
}

// DefaultDBTracingConfig returns the instrumentation defaults: disabled,
// bind variables stripped, 200ms slow threshold.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:         false,
		LogFullSQL:      false,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin attaches otelgorm spans to a GORM instance and layers
// row-count, error and slow-query annotations on top of them.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin builds a plugin for the given configuration.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	return &DBTracingPlugin{
		config: cfg,
		logger: logger,
	}
}

// RegisterOtelGorm installs the otelgorm plugin and the timing callbacks on
// db. With tracing disabled it registers nothing and returns nil.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(p.config.DBSystem),
	}
	if !p.config.LogFullSQL {
		// Bind variables can carry tenant data; keep them out of exported
		// spans by default.
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}

	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := p.registerTimingCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)

	return nil
}

// registerTimingCallbacks hooks markStart before and annotateSpan after
// every GORM operation class. GORM keeps a separate callback processor per
// class, so each pair is registered individually.
func (p *DBTracingPlugin) registerTimingCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("pulse_tracing:before_create", p.markStart),
		cb.Query().Before("gorm:query").Register("pulse_tracing:before_query", p.markStart),
		cb.Update().Before("gorm:update").Register("pulse_tracing:before_update", p.markStart),
		cb.Delete().Before("gorm:delete").Register("pulse_tracing:before_delete", p.markStart),
		cb.Row().Before("gorm:row").Register("pulse_tracing:before_row", p.markStart),
		cb.Raw().Before("gorm:raw").Register("pulse_tracing:before_raw", p.markStart),

		cb.Create().After("gorm:create").Register("pulse_tracing:after_create", p.annotateSpan),
		cb.Query().After("gorm:query").Register("pulse_tracing:after_query", p.annotateSpan),
		cb.Update().After("gorm:update").Register("pulse_tracing:after_update", p.annotateSpan),
		cb.Delete().After("gorm:delete").Register("pulse_tracing:after_delete", p.annotateSpan),
		cb.Row().After("gorm:row").Register("pulse_tracing:after_row", p.annotateSpan),
		cb.Raw().After("gorm:raw").Register("pulse_tracing:after_raw", p.annotateSpan),
	)
}

type tracingCtxKey string

// queryStartKey carries the wall-clock start of the current statement from
// the before callback to the after callback.
const queryStartKey tracingCtxKey = "db_query_start"

func (p *DBTracingPlugin) markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey, time.Now())
	}
}

// annotateSpan enriches the span otelgorm opened for this statement with
// the row count, table name, error status and a slow-query event.
func (p *DBTracingPlugin) annotateSpan(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}

	// A missed lookup is an answer, not a failure.
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(queryStartKey).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}
