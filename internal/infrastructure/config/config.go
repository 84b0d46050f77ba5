package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full worker configuration tree. Load assembles it from
// config.toml and CLIENTPULSE_* environment variables, fills in defaults
// and validates the result, so everything downstream receives it already
// checked.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Pipeline  PipelineConfig
	Telemetry TelemetryConfig
	Profiling ProfilingConfig
}

// AppConfig identifies the process and the environment it runs in.
type AppConfig struct {
	Name string
	Env  string // development, testing or production
}

// DatabaseConfig carries postgres connection and pool settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // minutes
	ConnMaxIdleTime int // minutes
}

// RedisConfig carries the claim store connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig controls how the zap logger is built.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // stdout, stderr or a file path
}

// SchedulerConfig sizes the worker pool and paces the pipeline stages.
type SchedulerConfig struct {
	Enabled                bool
	Workers                int
	QueueSize              int
	DetectionInterval      time.Duration
	AggregationInterval    time.Duration
	PrioritizationInterval time.Duration
	ExpiryInterval         time.Duration
	QualityInterval        time.Duration
	JobTimeout             time.Duration
	MaxRetries             int
	RetryDelay             time.Duration
}

// PipelineConfig tunes how stage batches coordinate across workers.
type PipelineConfig struct {
	ClaimEnabled bool          // guard batch stages with distributed claims
	ClaimTTL     time.Duration // how long a claim is held before it lapses
}

// TelemetryConfig configures the OTel providers and the database
// instrumentation hanging off them.
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTLP gRPC endpoint, host:port
	SamplingRatio     float64 // fraction of traces kept, 0.0 to 1.0
	ServiceName       string
	Insecure          bool          // plaintext exporter connection, development only
	DBTraceEnabled    bool          // register the otelgorm plugin
	DBLogFullSQL      bool          // attach full SQL text to query spans
	DBSlowQueryThresh time.Duration // queries slower than this log at warn
}

// ProfilingConfig configures continuous profiling.
type ProfilingConfig struct {
	Enabled         bool
	ServerAddress   string // pyroscope server, e.g. http://pyroscope:4040
	ApplicationName string // profile series name, falls back to app.name
}

// Load reads configuration in ascending precedence: built-in defaults,
// then config.toml, then CLIENTPULSE_ environment variables
// (CLIENTPULSE_DATABASE_PASSWORD overrides database.password and so on).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/clientpulse")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CLIENTPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App:       loadApp(v),
		Database:  loadDatabase(v),
		Redis:     loadRedis(v),
		Log:       loadLog(v),
		Scheduler: loadScheduler(v),
		Pipeline:  loadPipeline(v),
		Telemetry: loadTelemetry(v),
		Profiling: loadProfiling(v),
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadApp(v *viper.Viper) AppConfig {
	return AppConfig{
		Name: v.GetString("app.name"),
		Env:  v.GetString("app.env"),
	}
}

func loadDatabase(v *viper.Viper) DatabaseConfig {
	return DatabaseConfig{
		Host:            v.GetString("database.host"),
		Port:            v.GetInt("database.port"),
		User:            v.GetString("database.user"),
		Password:        v.GetString("database.password"),
		DBName:          v.GetString("database.dbname"),
		SSLMode:         v.GetString("database.sslmode"),
		MaxOpenConns:    v.GetInt("database.max_open_conns"),
		MaxIdleConns:    v.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
		ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
	}
}

func loadRedis(v *viper.Viper) RedisConfig {
	return RedisConfig{
		Host:     v.GetString("redis.host"),
		Port:     v.GetInt("redis.port"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}
}

func loadLog(v *viper.Viper) LogConfig {
	return LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
		Output: v.GetString("log.output"),
	}
}

func loadScheduler(v *viper.Viper) SchedulerConfig {
	return SchedulerConfig{
		Enabled:                v.GetBool("scheduler.enabled"),
		Workers:                v.GetInt("scheduler.workers"),
		QueueSize:              v.GetInt("scheduler.queue_size"),
		DetectionInterval:      v.GetDuration("scheduler.detection_interval"),
		AggregationInterval:    v.GetDuration("scheduler.aggregation_interval"),
		PrioritizationInterval: v.GetDuration("scheduler.prioritization_interval"),
		ExpiryInterval:         v.GetDuration("scheduler.expiry_interval"),
		QualityInterval:        v.GetDuration("scheduler.quality_interval"),
		JobTimeout:             v.GetDuration("scheduler.job_timeout"),
		MaxRetries:             v.GetInt("scheduler.max_retries"),
		RetryDelay:             v.GetDuration("scheduler.retry_delay"),
	}
}

func loadPipeline(v *viper.Viper) PipelineConfig {
	return PipelineConfig{
		ClaimEnabled: v.GetBool("pipeline.claim_enabled"),
		ClaimTTL:     v.GetDuration("pipeline.claim_ttl"),
	}
}

func loadTelemetry(v *viper.Viper) TelemetryConfig {
	return TelemetryConfig{
		Enabled:           v.GetBool("telemetry.enabled"),
		CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
		SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
		ServiceName:       v.GetString("telemetry.service_name"),
		Insecure:          v.GetBool("telemetry.insecure"),
		DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
		DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
	}
}

func loadProfiling(v *viper.Viper) ProfilingConfig {
	return ProfilingConfig{
		Enabled:         v.GetBool("profiling.enabled"),
		ServerAddress:   v.GetString("profiling.server_address"),
		ApplicationName: v.GetString("profiling.application_name"),
	}
}

// applyDefaults fills every zero field with its default. A zero value in
// an integer field means "not set", so 0 can never be configured where a
// default exists.
func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Database.applyDefaults()
	c.Redis.applyDefaults()
	c.Log.applyDefaults()
	c.Scheduler.applyDefaults()
	c.Pipeline.applyDefaults()
	c.Telemetry.applyDefaults()
	c.Profiling.applyDefaults(c.App.Name)
}

func (a *AppConfig) applyDefaults() {
	if a.Name == "" {
		a.Name = "clientpulse-worker"
	}
	if a.Env == "" {
		a.Env = "development"
	}
}

func (d *DatabaseConfig) applyDefaults() {
	if d.Host == "" {
		d.Host = "localhost"
	}
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.User == "" {
		d.User = "postgres"
	}
	if d.DBName == "" {
		d.DBName = "clientpulse"
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = 25
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = 5
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = 60
	}
	if d.ConnMaxIdleTime == 0 {
		d.ConnMaxIdleTime = 30
	}
}

func (r *RedisConfig) applyDefaults() {
	if r.Host == "" {
		r.Host = "localhost"
	}
	if r.Port == 0 {
		r.Port = 6379
	}
}

func (l *LogConfig) applyDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "console"
	}
	if l.Output == "" {
		l.Output = "stdout"
	}
}

func (s *SchedulerConfig) applyDefaults() {
	if s.Workers == 0 {
		s.Workers = 4
	}
	if s.QueueSize == 0 {
		s.QueueSize = 100
	}
	if s.DetectionInterval == 0 {
		s.DetectionInterval = 15 * time.Minute
	}
	if s.AggregationInterval == 0 {
		s.AggregationInterval = 5 * time.Minute
	}
	if s.PrioritizationInterval == 0 {
		s.PrioritizationInterval = 5 * time.Minute
	}
	if s.ExpiryInterval == 0 {
		s.ExpiryInterval = time.Hour
	}
	if s.QualityInterval == 0 {
		s.QualityInterval = 6 * time.Hour
	}
	if s.JobTimeout == 0 {
		s.JobTimeout = 10 * time.Minute
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = 3
	}
	if s.RetryDelay == 0 {
		s.RetryDelay = time.Minute
	}
}

func (p *PipelineConfig) applyDefaults() {
	if p.ClaimTTL == 0 {
		p.ClaimTTL = 5 * time.Minute
	}
}

func (t *TelemetryConfig) applyDefaults() {
	if t.CollectorEndpoint == "" {
		t.CollectorEndpoint = "localhost:4317"
	}
	if t.SamplingRatio == 0 {
		t.SamplingRatio = 1.0
	}
	if t.ServiceName == "" {
		t.ServiceName = "clientpulse-worker"
	}
	// Insecure, DBTraceEnabled and DBLogFullSQL stay false unless set
	// explicitly.
	if t.DBSlowQueryThresh == 0 {
		t.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

func (p *ProfilingConfig) applyDefaults(appName string) {
	if p.ServerAddress == "" {
		p.ServerAddress = "http://localhost:4040"
	}
	if p.ApplicationName == "" {
		p.ApplicationName = appName
	}
}

func (c *Config) validate() error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be at least 1")
	}
	if c.Pipeline.ClaimTTL <= 0 {
		return fmt.Errorf("pipeline.claim_ttl must be positive")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.App.Env == "production" {
		return c.validateProduction()
	}
	return nil
}

// validateProduction refuses settings that are convenient in development
// but unsafe once real tenant data flows through the worker.
func (c *Config) validateProduction() error {
	if c.Database.Password == "" {
		return fmt.Errorf("database.password is required in production")
	}
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("database.sslmode cannot be 'disable' in production")
	}
	if !c.Pipeline.ClaimEnabled {
		return fmt.Errorf("pipeline.claim_enabled must be true in production (multiple workers would double-process batches)")
	}
	if c.Telemetry.DBLogFullSQL {
		return fmt.Errorf("telemetry.db_log_full_sql must be false in production, query text can carry tenant data into traces")
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	if d.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be greater than zero")
	}
	if d.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			d.MaxIdleConns, d.MaxOpenConns)
	}
	return nil
}

// DSN renders the postgres connection URL. User and password are URL
// escaped, so credentials with reserved characters survive intact.
func (d *DatabaseConfig) DSN() string {
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}
