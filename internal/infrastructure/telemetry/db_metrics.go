// Package telemetry wires the worker into OpenTelemetry. This file owns the
// database instruments and the GORM plugin that feeds them.
package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig sizes the database instruments and the pool sampler.
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration // statements above this count into db_slow_query_total
	PoolStatsInterval  time.Duration // how often the pool gauges are sampled
}

// DefaultDBMetricsConfig returns the defaults: enabled, 200ms slow
// threshold, pool stats every 15 seconds.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics owns the database instruments: per-statement counters and the
// latency histogram, plus the periodically sampled connection pool gauges.
type DBMetrics struct {
	poolConnections    *Gauge      // db_pool_connections by state
	poolConnectionsMax *Gauge      // db_pool_connections_max
	poolUtilization    *FloatGauge // db_pool_utilization, in_use over max

	queryTotal     *Counter   // db_query_total
	queryErrors    *Counter   // db_query_error_total
	queryDuration  *Histogram // db_query_duration_seconds
	slowQueryTotal *Counter   // db_slow_query_total

	config   DBMetricsConfig
	logger   *zap.Logger
	sqlDB    *sql.DB
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopOnce sync.Once
}

// NewDBMetrics creates the database instruments on the given meter. Zero
// config values fall back to the defaults.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold == 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval == 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	m := &DBMetrics{
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	var err error
	if m.poolConnections, err = NewGauge(meter,
		"db_pool_connections", "Connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.poolConnectionsMax, err = NewGauge(meter,
		"db_pool_connections_max", "Configured connection pool ceiling", "{connection}"); err != nil {
		return nil, err
	}
	if m.poolUtilization, err = NewFloatGauge(meter,
		"db_pool_utilization", "Fraction of the connection pool in use", "1"); err != nil {
		return nil, err
	}
	if m.queryTotal, err = NewCounter(meter,
		"db_query_total", "Completed statements by operation", "{query}"); err != nil {
		return nil, err
	}
	if m.queryErrors, err = NewCounter(meter,
		"db_query_error_total", "Failed statements by operation, lookup misses excluded", "{query}"); err != nil {
		return nil, err
	}
	if m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Statement latency distribution",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter,
		"db_slow_query_total", "Statements slower than the configured threshold, by table", "{query}"); err != nil {
		return nil, err
	}

	return m, nil
}

// SetSQLDB hands over the sql.DB whose pool the gauges sample. Must happen
// before StartPoolStatsCollection.
func (m *DBMetrics) SetSQLDB(sqlDB *sql.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sqlDB = sqlDB
}

// StartPoolStatsCollection samples the pool gauges on the configured
// interval until Stop is called or ctx is cancelled.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	m.mu.RLock()
	sqlDB := m.sqlDB
	m.mu.RUnlock()

	if sqlDB == nil {
		m.logger.Warn("Pool sampler has no sql.DB, not starting")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		// Sample once up front; the ticker only fires after a full interval.
		m.collectPoolStats(ctx)

		for {
			select {
			case <-ticker.C:
				m.collectPoolStats(ctx)
			case <-m.stopCh:
				m.logger.Debug("Pool sampler stopping")
				return
			case <-ctx.Done():
				m.logger.Debug("Pool sampler context cancelled")
				return
			}
		}
	}()

	m.logger.Info("Pool sampler running",
		zap.Duration("interval", m.config.PoolStatsInterval),
	)
}

func (m *DBMetrics) collectPoolStats(ctx context.Context) {
	m.mu.RLock()
	sqlDB := m.sqlDB
	m.mu.RUnlock()

	if sqlDB == nil {
		return
	}

	stats := sqlDB.Stats()

	// WaitCount and friends are cumulative, not states; the gauges carry
	// only the current pool picture.
	m.poolConnectionsMax.Record(ctx, int64(stats.MaxOpenConnections))
	m.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))

	if stats.MaxOpenConnections > 0 {
		m.poolUtilization.Record(ctx, float64(stats.InUse)/float64(stats.MaxOpenConnections))
	}
}

// Stop ends the pool stats goroutine and waits for it. Safe to call more
// than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		m.logger.Debug("Database instruments stopped")
	})
}

// RecordQuery records one completed statement. A gorm.ErrRecordNotFound
// counts as success; every other non-nil error increments the error counter.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation string, table string, duration time.Duration, err error) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}

	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, duration, AttrDBOperation.String(operation))

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		m.queryErrors.Inc(ctx, AttrDBOperation.String(operation))
	}

	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// =============================================================================
// Query timing plugin
// =============================================================================

// DBMetricsPlugin feeds DBMetrics from GORM callbacks.
type DBMetricsPlugin struct {
	metrics *DBMetrics
	logger  *zap.Logger
}

// NewDBMetricsPlugin creates the GORM plugin around an existing DBMetrics.
func NewDBMetricsPlugin(metrics *DBMetrics, logger *zap.Logger) *DBMetricsPlugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBMetricsPlugin{
		metrics: metrics,
		logger:  logger,
	}
}

// Name identifies the plugin to GORM.
func (p *DBMetricsPlugin) Name() string {
	return "pulse_db_metrics"
}

// Initialize registers the timing callbacks. GORM keeps one callback
// processor per operation class, so each registration is spelled out.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	err := errors.Join(
		cb.Create().Before("gorm:create").Register("pulse_metrics:before_create", p.markStart),
		cb.Query().Before("gorm:query").Register("pulse_metrics:before_query", p.markStart),
		cb.Update().Before("gorm:update").Register("pulse_metrics:before_update", p.markStart),
		cb.Delete().Before("gorm:delete").Register("pulse_metrics:before_delete", p.markStart),
		cb.Row().Before("gorm:row").Register("pulse_metrics:before_row", p.markStart),
		cb.Raw().Before("gorm:raw").Register("pulse_metrics:before_raw", p.markStart),

		cb.Create().After("gorm:create").Register("pulse_metrics:after_create", p.afterOp("INSERT")),
		cb.Query().After("gorm:query").Register("pulse_metrics:after_query", p.afterOp("SELECT")),
		cb.Update().After("gorm:update").Register("pulse_metrics:after_update", p.afterOp("UPDATE")),
		cb.Delete().After("gorm:delete").Register("pulse_metrics:after_delete", p.afterOp("DELETE")),
		cb.Row().After("gorm:row").Register("pulse_metrics:after_row", p.afterRaw),
		cb.Raw().After("gorm:raw").Register("pulse_metrics:after_raw", p.afterRaw),
	)
	if err != nil {
		return err
	}

	p.logger.Info("Database metrics callbacks registered")
	return nil
}

func (p *DBMetricsPlugin) markStart(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, metricsStartKey, time.Now())
}

// afterOp returns a callback recording the statement under a fixed
// operation label.
func (p *DBMetricsPlugin) afterOp(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		p.record(db, operation)
	}
}

// afterRaw handles Row and Raw statements, whose operation has to be read
// off the SQL text.
func (p *DBMetricsPlugin) afterRaw(db *gorm.DB) {
	p.record(db, sqlOperation(db.Statement.SQL.String()))
}

func (p *DBMetricsPlugin) record(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var duration time.Duration
	if start, ok := ctx.Value(metricsStartKey).(time.Time); ok {
		duration = time.Since(start)
	}

	p.metrics.RecordQuery(ctx, operation, db.Statement.Table, duration, db.Error)
}

// sqlOperation reads the leading keyword off a raw SQL statement.
func sqlOperation(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))

	switch {
	case strings.HasPrefix(sql, "SELECT"):
		return "SELECT"
	case strings.HasPrefix(sql, "INSERT"):
		return "INSERT"
	case strings.HasPrefix(sql, "UPDATE"):
		return "UPDATE"
	case strings.HasPrefix(sql, "DELETE"):
		return "DELETE"
	default:
		return "OTHER"
	}
}

type metricsCtxKey string

// metricsStartKey carries the statement start time between the before and
// after callbacks.
const metricsStartKey metricsCtxKey = "db_metrics_start"

// =============================================================================
// Registration
// =============================================================================

// RegisterDBMetrics wires query metrics and pool stats sampling into db.
// The returned DBMetrics must be stopped on shutdown. A nil DBMetrics with
// a nil error means metrics are off.
func RegisterDBMetrics(ctx context.Context, db *gorm.DB, meterProvider *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled {
		logger.Debug("Database metrics are off")
		return nil, nil
	}
	if meterProvider == nil || !meterProvider.IsEnabled() {
		logger.Debug("No meter provider, database metrics stay off")
		return nil, nil
	}

	metrics, err := NewDBMetrics(meterProvider.Meter("db.client"), cfg, logger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	metrics.SetSQLDB(sqlDB)

	if err := db.Use(NewDBMetricsPlugin(metrics, logger)); err != nil {
		return nil, err
	}
	metrics.StartPoolStatsCollection(ctx)

	logger.Info("Database metrics wired",
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
		zap.Duration("pool_stats_interval", cfg.PoolStatsInterval),
	)

	return metrics, nil
}
