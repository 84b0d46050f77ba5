package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// mockExecutor implements JobExecutor for testing
type mockExecutor struct {
	executeFunc func(ctx context.Context, job *Job) error
	execCount   int32
}

func (m *mockExecutor) Execute(ctx context.Context, job *Job) error {
	atomic.AddInt32(&m.execCount, 1)
	if m.executeFunc != nil {
		return m.executeFunc(ctx, job)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Job Tests
// ---------------------------------------------------------------------------

func TestNewJob(t *testing.T) {
	tenantID := uuid.New()

	job := NewJob(tenantID, StageDetection, 3)

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, tenantID, job.TenantID)
	assert.Equal(t, StageDetection, job.Stage)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Zero(t, job.RetryCount)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
}

func TestJob_Start(t *testing.T) {
	job := NewJob(uuid.New(), StageAggregation, 3)
	job.Error = "previous error"

	job.Start()

	assert.Equal(t, JobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.Empty(t, job.Error)
}

func TestJob_Complete(t *testing.T) {
	job := NewJob(uuid.New(), StageAggregation, 3)
	job.Start()

	job.Complete()

	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.NotNil(t, job.CompletedAt)
}

func TestJob_Fail(t *testing.T) {
	job := NewJob(uuid.New(), StagePrioritization, 3)
	job.Start()

	job.Fail("claim store unavailable")

	assert.Equal(t, JobStatusFailed, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, "claim store unavailable", job.Error)
}

func TestJob_ShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		status     JobStatus
		retryCount int
		maxRetries int
		expected   bool
	}{
		{"Failed with retries available", JobStatusFailed, 0, 3, true},
		{"Failed max retries reached", JobStatusFailed, 3, 3, false},
		{"Failed retries disabled", JobStatusFailed, 0, 0, false},
		{"Success should not retry", JobStatusSuccess, 0, 3, false},
		{"Running should not retry", JobStatusRunning, 0, 3, false},
		{"Pending should not retry", JobStatusPending, 0, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{
				Status:     tt.status,
				RetryCount: tt.retryCount,
				MaxRetries: tt.maxRetries,
			}
			assert.Equal(t, tt.expected, job.ShouldRetry())
		})
	}
}

func TestJob_ScheduleRetry_ExponentialBackoff(t *testing.T) {
	job := NewJob(uuid.New(), StageDetection, 5)
	job.Status = JobStatusFailed
	baseDelay := time.Minute

	// First retry: 1 minute
	job.ScheduleRetry(baseDelay)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, JobStatusPending, job.Status)
	require.NotNil(t, job.NextRetryAt)
	firstDelay := time.Until(*job.NextRetryAt)
	assert.True(t, firstDelay > 50*time.Second && firstDelay <= time.Minute+time.Second)

	// Second retry: 2 minutes
	job.Status = JobStatusFailed
	job.ScheduleRetry(baseDelay)
	assert.Equal(t, 2, job.RetryCount)
	secondDelay := time.Until(*job.NextRetryAt)
	assert.True(t, secondDelay > 110*time.Second && secondDelay <= 2*time.Minute+time.Second)

	// Third retry: 4 minutes
	job.Status = JobStatusFailed
	job.ScheduleRetry(baseDelay)
	assert.Equal(t, 3, job.RetryCount)
	thirdDelay := time.Until(*job.NextRetryAt)
	assert.True(t, thirdDelay > 230*time.Second && thirdDelay <= 4*time.Minute+time.Second)
}

func TestJob_ScheduleRetry_CappedBackoff(t *testing.T) {
	job := NewJob(uuid.New(), StageQuality, 20)
	job.RetryCount = 15
	job.Status = JobStatusFailed

	job.ScheduleRetry(time.Minute)

	require.NotNil(t, job.NextRetryAt)
	delay := time.Until(*job.NextRetryAt)
	assert.True(t, delay <= maxRetryBackoff+time.Second, "delay %v exceeds cap", delay)
}

// ---------------------------------------------------------------------------
// Stage Tests
// ---------------------------------------------------------------------------

func TestAllStages(t *testing.T) {
	stages := AllStages()

	require.Len(t, stages, 5)
	assert.Contains(t, stages, StageDetection)
	assert.Contains(t, stages, StageAggregation)
	assert.Contains(t, stages, StagePrioritization)
	assert.Contains(t, stages, StageExpiry)
	assert.Contains(t, stages, StageQuality)
}

func TestStage_IsValid(t *testing.T) {
	for _, stage := range AllStages() {
		assert.True(t, stage.IsValid(), "stage %s should be valid", stage)
	}
	assert.False(t, Stage("reporting").IsValid())
	assert.False(t, Stage("").IsValid())
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 100, cfg.QueueSize)
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Minute, cfg.RetryDelay)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "Valid default config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "Zero workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "Zero queue size",
			mutate:  func(c *Config) { c.QueueSize = 0 },
			wantErr: true,
		},
		{
			name:    "Zero job timeout",
			mutate:  func(c *Config) { c.JobTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "Negative max retries",
			mutate:  func(c *Config) { c.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "Retries without delay",
			mutate:  func(c *Config) { c.RetryDelay = 0 },
			wantErr: true,
		},
		{
			name: "No retries no delay is fine",
			mutate: func(c *Config) {
				c.MaxRetries = 0
				c.RetryDelay = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Scheduler Tests
// ---------------------------------------------------------------------------

func TestNewScheduler(t *testing.T) {
	scheduler, err := NewScheduler(DefaultConfig(), &mockExecutor{}, newTestLogger())

	require.NoError(t, err)
	assert.NotNil(t, scheduler)
}

func TestNewScheduler_InvalidConfig(t *testing.T) {
	scheduler, err := NewScheduler(Config{Workers: 0}, &mockExecutor{}, newTestLogger())

	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Nil(t, scheduler)
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler, err := NewScheduler(DefaultConfig(), &mockExecutor{}, newTestLogger())
	require.NoError(t, err)

	ctx := context.Background()

	// Start scheduler
	err = scheduler.Start(ctx)
	require.NoError(t, err)

	// Start again should be idempotent
	err = scheduler.Start(ctx)
	require.NoError(t, err)

	// Stop scheduler
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = scheduler.Stop(stopCtx)
	require.NoError(t, err)

	// Stop again should be idempotent
	err = scheduler.Stop(stopCtx)
	require.NoError(t, err)
}

func TestScheduler_SubmitJob_NotRunning(t *testing.T) {
	scheduler, err := NewScheduler(DefaultConfig(), &mockExecutor{}, newTestLogger())
	require.NoError(t, err)

	job := NewJob(uuid.New(), StageDetection, 3)
	err = scheduler.SubmitJob(job)

	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestScheduler_SubmitJob_InvalidStage(t *testing.T) {
	scheduler, err := NewScheduler(DefaultConfig(), &mockExecutor{}, newTestLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, scheduler.Start(ctx))
	defer func() { _ = scheduler.Stop(ctx) }()

	job := NewJob(uuid.New(), Stage("reporting"), 3)
	err = scheduler.SubmitJob(job)

	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestScheduler_SubmitJob_Success(t *testing.T) {
	executor := &mockExecutor{}
	scheduler, err := NewScheduler(DefaultConfig(), executor, newTestLogger())
	require.NoError(t, err)

	ctx := context.Background()
	err = scheduler.Start(ctx)
	require.NoError(t, err)

	job := NewJob(uuid.New(), StageAggregation, 3)
	err = scheduler.SubmitJob(job)
	require.NoError(t, err)

	// Wait for job to be processed
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&executor.execCount) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = scheduler.Stop(stopCtx)
	require.NoError(t, err)

	assert.Equal(t, JobStatusSuccess, job.Status)
}

func TestScheduler_ScheduleStage(t *testing.T) {
	var seen atomic.Value
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, job *Job) error {
			seen.Store(job)
			return nil
		},
	}
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	scheduler, err := NewScheduler(cfg, executor, newTestLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, scheduler.Start(ctx))

	tenantID := uuid.New()
	err = scheduler.ScheduleStage(tenantID, StageExpiry)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return seen.Load() != nil
	}, 2*time.Second, 10*time.Millisecond)

	job := seen.Load().(*Job)
	assert.Equal(t, tenantID, job.TenantID)
	assert.Equal(t, StageExpiry, job.Stage)
	assert.Equal(t, 2, job.MaxRetries)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Stop(stopCtx))
}

func TestScheduler_JobRetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryDelay = 10 * time.Millisecond

	callCount := int32(0)
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, job *Job) error {
			count := atomic.AddInt32(&callCount, 1)
			if count < 3 {
				return errors.New("temporary failure")
			}
			return nil
		},
	}

	scheduler, err := NewScheduler(cfg, executor, newTestLogger())
	require.NoError(t, err)

	ctx := context.Background()
	err = scheduler.Start(ctx)
	require.NoError(t, err)

	job := NewJob(uuid.New(), StageQuality, 5)
	err = scheduler.SubmitJob(job)
	require.NoError(t, err)

	// Wait for retries: 2 failures then a success
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&callCount) >= 3
	}, 5*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = scheduler.Stop(stopCtx)
	require.NoError(t, err)
}

func TestScheduler_QueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1

	release := make(chan struct{})
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, job *Job) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	}

	scheduler, err := NewScheduler(cfg, executor, newTestLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, scheduler.Start(ctx))

	// One job occupies the worker, one sits in the queue; the queue must
	// reject a submission before the fifth attempt.
	var lastErr error
	for i := 0; i < 5; i++ {
		if err := scheduler.ScheduleStage(uuid.New(), StageDetection); err != nil {
			lastErr = err
			break
		}
	}
	assert.ErrorIs(t, lastErr, ErrJobQueueFull)

	close(release)
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Stop(stopCtx))
}
