package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TenantProvider lists the tenants that have pipeline work. The signal
// store satisfies this: a tenant with no stored signals has nothing to
// detect, aggregate, or score.
type TenantProvider interface {
	DistinctTenants(ctx context.Context) ([]uuid.UUID, error)
}

// TriggerConfig holds the per-stage scheduling intervals
type TriggerConfig struct {
	DetectionInterval      time.Duration
	AggregationInterval    time.Duration
	PrioritizationInterval time.Duration
	ExpiryInterval         time.Duration
	QualityInterval        time.Duration
}

// DefaultTriggerConfig returns default trigger configuration.
// Aggregation and prioritization run often to keep insight latency low;
// detection follows the metric ingestion cadence; expiry and quality are
// housekeeping passes.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		DetectionInterval:      15 * time.Minute,
		AggregationInterval:    5 * time.Minute,
		PrioritizationInterval: 5 * time.Minute,
		ExpiryInterval:         time.Hour,
		QualityInterval:        6 * time.Hour,
	}
}

// Validate checks the configuration for invalid values
func (c TriggerConfig) Validate() error {
	for _, stage := range AllStages() {
		if c.IntervalFor(stage) <= 0 {
			return fmt.Errorf("%w: %s interval must be positive", ErrInvalidConfig, stage)
		}
	}
	return nil
}

// IntervalFor returns the configured interval for a stage
func (c TriggerConfig) IntervalFor(stage Stage) time.Duration {
	switch stage {
	case StageDetection:
		return c.DetectionInterval
	case StageAggregation:
		return c.AggregationInterval
	case StagePrioritization:
		return c.PrioritizationInterval
	case StageExpiry:
		return c.ExpiryInterval
	case StageQuality:
		return c.QualityInterval
	default:
		return 0
	}
}

// IntervalTrigger fans pipeline stages out across tenants on fixed
// intervals. Each stage gets its own loop; every tick lists the tenants
// with stored signals and submits one job per tenant to the scheduler.
type IntervalTrigger struct {
	config    TriggerConfig
	scheduler *Scheduler
	tenants   TenantProvider
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRun   map[Stage]time.Time
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(
	config TriggerConfig,
	scheduler *Scheduler,
	tenants TenantProvider,
	logger *zap.Logger,
) (*IntervalTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &IntervalTrigger{
		config:    config,
		scheduler: scheduler,
		tenants:   tenants,
		logger:    logger,
		lastRun:   make(map[Stage]time.Time),
	}, nil
}

// Start starts one scheduling loop per stage
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	for _, stage := range AllStages() {
		t.wg.Add(1)
		go t.stageLoop(ctx, stage, t.config.IntervalFor(stage))
	}

	t.logger.Info("Interval trigger started",
		zap.Duration("detection_interval", t.config.DetectionInterval),
		zap.Duration("aggregation_interval", t.config.AggregationInterval),
		zap.Duration("prioritization_interval", t.config.PrioritizationInterval),
		zap.Duration("expiry_interval", t.config.ExpiryInterval),
		zap.Duration("quality_interval", t.config.QualityInterval),
	)

	return nil
}

// Stop stops all stage loops
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stageLoop submits one round of stage jobs per tick
func (t *IntervalTrigger) stageLoop(ctx context.Context, stage Stage, interval time.Duration) {
	defer t.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.triggerStage(ctx, stage)
		}
	}
}

// triggerStage submits one stage job per tenant. A full queue stops the
// round early; the next tick picks the remaining tenants up again.
func (t *IntervalTrigger) triggerStage(ctx context.Context, stage Stage) {
	tenantIDs, err := t.tenants.DistinctTenants(ctx)
	if err != nil {
		t.logger.Error("Failed to list tenants for stage run",
			zap.String("stage", string(stage)),
			zap.Error(err))
		return
	}

	submitted := 0
	for _, tenantID := range tenantIDs {
		if err := t.scheduler.ScheduleStage(tenantID, stage); err != nil {
			if err == ErrJobQueueFull {
				t.logger.Warn("Job queue full, deferring remaining tenants",
					zap.String("stage", string(stage)),
					zap.Int("submitted", submitted),
					zap.Int("remaining", len(tenantIDs)-submitted))
				break
			}
			t.logger.Error("Failed to schedule stage for tenant",
				zap.String("stage", string(stage)),
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
			continue
		}
		submitted++
	}

	t.mu.Lock()
	t.lastRun[stage] = time.Now()
	t.mu.Unlock()

	t.logger.Debug("Stage round submitted",
		zap.String("stage", string(stage)),
		zap.Int("tenants", len(tenantIDs)),
		zap.Int("submitted", submitted))
}

// TriggerNow runs one round of a stage immediately, outside its interval.
// Used by operators after backfills or config changes.
func (t *IntervalTrigger) TriggerNow(ctx context.Context, stage Stage) error {
	t.mu.Lock()
	running := t.isRunning
	t.mu.Unlock()

	if !running {
		return ErrSchedulerNotRunning
	}
	if !stage.IsValid() {
		return ErrInvalidStage
	}

	t.logger.Info("Manual stage trigger", zap.String("stage", string(stage)))
	t.triggerStage(ctx, stage)
	return nil
}

// Status returns the trigger state for health and admin endpoints
func (t *IntervalTrigger) Status() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	stages := make(map[string]interface{}, len(AllStages()))
	for _, stage := range AllStages() {
		info := map[string]interface{}{
			"interval": t.config.IntervalFor(stage).String(),
		}
		if last, ok := t.lastRun[stage]; ok {
			info["last_run"] = last.Format(time.RFC3339)
		}
		stages[string(stage)] = info
	}

	return map[string]interface{}{
		"is_running": t.isRunning,
		"stages":     stages,
	}
}
