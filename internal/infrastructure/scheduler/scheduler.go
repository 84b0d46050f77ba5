package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clientpulse/backend/internal/infrastructure/logger"
)

// JobStatus tracks a job through its lifecycle.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Stage identifies one pipeline pass over a tenant's data
type Stage string

const (
	StageDetection      Stage = "detection"
	StageAggregation    Stage = "aggregation"
	StagePrioritization Stage = "prioritization"
	StageExpiry         Stage = "expiry"
	StageQuality        Stage = "quality"
)

// AllStages returns every schedulable pipeline stage
func AllStages() []Stage {
	return []Stage{
		StageDetection,
		StageAggregation,
		StagePrioritization,
		StageExpiry,
		StageQuality,
	}
}

// IsValid reports whether the stage is a known pipeline stage
func (s Stage) IsValid() bool {
	switch s {
	case StageDetection, StageAggregation, StagePrioritization, StageExpiry, StageQuality:
		return true
	}
	return false
}

// maxRetryBackoff caps the exponential retry delay
const maxRetryBackoff = 30 * time.Minute

// Job represents one stage pass scheduled for a tenant
type Job struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Stage       Stage
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob builds a pending job for one stage pass over a tenant.
func NewJob(tenantID uuid.UUID, stage Stage, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Stage:      stage,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start stamps the job running and clears any error from a previous
// attempt.
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete stamps the job successful.
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail records the error text and stamps the completion time.
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry reports whether a failed job still has retry budget.
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry puts the job back in pending with exponential backoff.
// The delay doubles with each attempt and is capped at maxRetryBackoff.
func (j *Job) ScheduleRetry(baseDelay time.Duration) {
	delay := baseDelay
	for i := 0; i < j.RetryCount; i++ {
		delay *= 2
		if delay >= maxRetryBackoff {
			delay = maxRetryBackoff
			break
		}
	}

	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// JobExecutor runs one stage pass. The worker binary plugs the stage
// services in behind this.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// Config holds scheduler configuration
type Config struct {
	Enabled    bool
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Workers:    4,
		QueueSize:  100,
		JobTimeout: 10 * time.Minute,
		MaxRetries: 3,
		RetryDelay: time.Minute,
	}
}

// Validate checks the configuration for invalid values
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue size must be at least 1", ErrInvalidConfig)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	if c.MaxRetries > 0 && c.RetryDelay <= 0 {
		return fmt.Errorf("%w: retry delay must be positive when retries are enabled", ErrInvalidConfig)
	}
	return nil
}

// Scheduler fans stage jobs out to a fixed worker pool through a bounded
// queue. Submissions never block; callers handle a full queue.
type Scheduler struct {
	config   Config
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler validates the config and returns a stopped scheduler.
func NewScheduler(config Config, executor JobExecutor, logger *zap.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, config.QueueSize),
	}, nil
}

// Start spins up the worker pool. A second Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Pipeline scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)

	return nil
}

// Stop rejects further submissions, cancels in-flight work and waits for
// the workers, giving up when ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	if s.cancel != nil {
		s.cancel()
	}
	// Sends only happen under mu while isRunning, so closing here cannot
	// race a submission.
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Pipeline scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Pipeline scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob queues a job without blocking. A stopped scheduler or a full
// queue comes back as an error for the caller to act on.
func (s *Scheduler) SubmitJob(job *Job) error {
	if !job.Stage.IsValid() {
		return ErrInvalidStage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Queued stage job",
			zap.String("job_id", job.ID.String()),
			zap.String("stage", string(job.Stage)),
			zap.String("tenant_id", job.TenantID.String()),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// ScheduleStage submits one stage pass for a tenant using the configured
// retry policy
func (s *Scheduler) ScheduleStage(tenantID uuid.UUID, stage Stage) error {
	job := NewJob(tenantID, stage, s.config.MaxRetries)
	return s.SubmitJob(job)
}

// worker drains the queue until the queue closes or the context ends.
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Stage worker up", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Stage worker stopping", zap.Int("worker_id", workerID))
			return
		case job, ok := <-s.jobs:
			if !ok {
				s.logger.Debug("Queue closed, worker exiting", zap.Int("worker_id", workerID))
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob runs one job under the stage timeout. Job and tenant ids ride
// the context so stage code and its logs stay correlated with this run.
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	if job.NextRetryAt != nil && time.Now().Before(*job.NextRetryAt) {
		s.requeueWhenDue(job)
		return
	}

	job.Start()

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	jobCtx, jobLog := logger.WithJobID(jobCtx, s.logger, job.ID.String())
	jobCtx, jobLog = logger.WithTenantID(jobCtx, jobLog, job.TenantID.String())
	jobLog = jobLog.With(
		zap.Int("worker_id", workerID),
		zap.String("stage", string(job.Stage)),
	)

	jobLog.Info("Processing job")

	if err := s.executor.Execute(jobCtx, job); err != nil {
		job.Fail(err.Error())
		jobLog.Error("Job failed", zap.Error(err))

		if job.ShouldRetry() {
			job.ScheduleRetry(s.config.RetryDelay)
			jobLog.Info("Job scheduled for retry",
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
			)
			s.requeueWhenDue(job)
		}
		return
	}

	job.Complete()
	jobLog.Info("Job completed successfully")
}

// requeueWhenDue hands a retry back to the queue once its delay elapses,
// instead of letting workers spin on a job that is not ready yet.
func (s *Scheduler) requeueWhenDue(job *Job) {
	var wait time.Duration
	if job.NextRetryAt != nil {
		wait = time.Until(*job.NextRetryAt)
	}
	if wait <= 0 {
		s.resubmit(job)
		return
	}
	time.AfterFunc(wait, func() { s.resubmit(job) })
}

func (s *Scheduler) resubmit(job *Job) {
	if err := s.SubmitJob(job); err != nil {
		s.logger.Warn("Dropping retry, queue rejected it",
			zap.String("job_id", job.ID.String()),
			zap.String("stage", string(job.Stage)),
			zap.Error(err),
		)
	}
}
