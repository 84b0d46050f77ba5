package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clientpulse/backend/internal/domain/outcome"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockOutcomeRepository is a mock implementation of outcome.OutcomeRepository
type MockOutcomeRepository struct {
	mock.Mock
}

func (m *MockOutcomeRepository) Create(ctx context.Context, o *outcome.Outcome) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOutcomeRepository) Update(ctx context.Context, o *outcome.Outcome) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOutcomeRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*outcome.Outcome, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outcome.Outcome), args.Error(1)
}

func (m *MockOutcomeRepository) ListForPeriod(ctx context.Context, tenantID uuid.UUID, recommendationType string, clientID *uuid.UUID, period string) ([]*outcome.Outcome, error) {
	args := m.Called(ctx, tenantID, recommendationType, clientID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outcome.Outcome), args.Error(1)
}

func (m *MockOutcomeRepository) DistinctGroups(ctx context.Context, tenantID uuid.UUID, period string) ([]outcome.OutcomeGroup, error) {
	args := m.Called(ctx, tenantID, period)
	return args.Get(0).([]outcome.OutcomeGroup), args.Error(1)
}

func (m *MockOutcomeRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[outcome.Outcome], error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[outcome.Outcome]), args.Error(1)
}

// MockQualityMetricRepository is a mock implementation of outcome.QualityMetricRepository
type MockQualityMetricRepository struct {
	mock.Mock
}

func (m *MockQualityMetricRepository) Upsert(ctx context.Context, metric *outcome.QualityMetric) error {
	args := m.Called(ctx, metric)
	return args.Error(0)
}

func (m *MockQualityMetricRepository) Find(ctx context.Context, tenantID uuid.UUID, recommendationType string, clientID *uuid.UUID, period string) (*outcome.QualityMetric, error) {
	args := m.Called(ctx, tenantID, recommendationType, clientID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outcome.QualityMetric), args.Error(1)
}

func (m *MockQualityMetricRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (*shared.Paginated[outcome.QualityMetric], error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[outcome.QualityMetric]), args.Error(1)
}

// MockSignalEmitter is a mock implementation of SignalEmitter
type MockSignalEmitter struct {
	mock.Mock
}

func (m *MockSignalEmitter) EmitSignal(ctx context.Context, tenantID uuid.UUID, source signal.Source, payload signal.Payload) (*signal.Signal, bool, error) {
	args := m.Called(ctx, tenantID, source, payload)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*signal.Signal), args.Bool(1), args.Error(2)
}

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// MockBatchClaimer is a mock implementation of shared.BatchClaimer
type MockBatchClaimer struct {
	mock.Mock
}

func (m *MockBatchClaimer) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockBatchClaimer) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockBatchClaimer) Close() error {
	args := m.Called()
	return args.Error(0)
}

type feedbackMocks struct {
	outcomes  *MockOutcomeRepository
	quality   *MockQualityMetricRepository
	emitter   *MockSignalEmitter
	publisher *MockEventPublisher
	claimer   *MockBatchClaimer
}

func newFeedbackService(claims bool) (*FeedbackService, *feedbackMocks) {
	m := &feedbackMocks{
		outcomes:  new(MockOutcomeRepository),
		quality:   new(MockQualityMetricRepository),
		emitter:   new(MockSignalEmitter),
		publisher: new(MockEventPublisher),
		claimer:   new(MockBatchClaimer),
	}
	cfg := shared.DefaultClaimConfig()
	cfg.Enabled = claims
	service := NewFeedbackService(m.outcomes, m.quality, m.emitter, m.publisher, m.claimer, cfg, zap.NewNop())
	return service, m
}

func pendingOutcome(t *testing.T, tenantID uuid.UUID, recommendationType string) *outcome.Outcome {
	t.Helper()
	o, err := outcome.NewOutcome(tenantID, recommendationType, nil, nil, outcome.ImpactMap{
		"sessions": decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	o.ClearDomainEvents()
	return o
}

func rejectedOutcome(t *testing.T, tenantID uuid.UUID, recommendationType string) *outcome.Outcome {
	t.Helper()
	o := pendingOutcome(t, tenantID, recommendationType)
	require.NoError(t, o.Reject())
	o.ClearDomainEvents()
	return o
}

func acceptedOutcome(t *testing.T, tenantID uuid.UUID, recommendationType string) *outcome.Outcome {
	t.Helper()
	o := pendingOutcome(t, tenantID, recommendationType)
	require.NoError(t, o.Accept())
	o.ClearDomainEvents()
	return o
}

func calibrationSignal(t *testing.T, tenantID uuid.UUID) *signal.Signal {
	t.Helper()
	sig, err := signal.NewNormalizer().Normalize(tenantID, signal.SourceInternal, signal.Payload{
		"type":     "calibration:high_rejection",
		"severity": "high",
	})
	require.NoError(t, err)
	sig.ClearDomainEvents()
	return sig
}

func TestFeedbackService_CaptureOutcome(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("captures outcome and refreshes metrics", func(t *testing.T) {
		service, m := newFeedbackService(false)

		var created *outcome.Outcome
		m.outcomes.On("Create", ctx, mock.AnythingOfType("*outcome.Outcome")).
			Run(func(args mock.Arguments) {
				created = args.Get(1).(*outcome.Outcome)
			}).Return(nil)
		m.publisher.On("Publish", ctx, mock.Anything).Return(nil)
		m.outcomes.On("ListForPeriod", ctx, tenantID, "seo_fix", (*uuid.UUID)(nil), mock.AnythingOfType("string")).
			Return([]*outcome.Outcome{pendingOutcome(t, tenantID, "seo_fix")}, nil)
		var metric *outcome.QualityMetric
		m.quality.On("Upsert", ctx, mock.AnythingOfType("*outcome.QualityMetric")).
			Run(func(args mock.Arguments) {
				metric = args.Get(1).(*outcome.QualityMetric)
			}).Return(nil)

		result, err := service.CaptureOutcome(ctx, tenantID, CaptureOutcomeRequest{
			RecommendationType: "seo_fix",
			PredictedImpact: map[string]decimal.Decimal{
				"sessions": decimal.NewFromInt(1200),
			},
		})

		require.NoError(t, err)
		assert.Equal(t, string(outcome.StatusPending), result.Status)
		assert.Equal(t, "seo_fix", result.RecommendationType)
		assert.True(t, result.PredictedImpact["sessions"].Equal(decimal.NewFromInt(1200)))

		require.NotNil(t, created)
		assert.Equal(t, tenantID, created.TenantID)
		require.NotNil(t, metric)
		assert.Equal(t, 1, metric.SampleSize)
		assert.Equal(t, outcome.ConfidenceLow, metric.ConfidenceLevel)
		m.emitter.AssertNotCalled(t, "EmitSignal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("requires recommendation type", func(t *testing.T) {
		service, m := newFeedbackService(false)

		_, err := service.CaptureOutcome(ctx, tenantID, CaptureOutcomeRequest{})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "RECOMMENDATION_TYPE_REQUIRED", domainErr.Code)
		m.outcomes.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestFeedbackService_RejectOutcome_RaisesHighRejectionBreach(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	service, m := newFeedbackService(false)

	target := pendingOutcome(t, tenantID, "seo_fix")
	period := outcome.PeriodOf(target.CreatedAt)

	group := []*outcome.Outcome{target, acceptedOutcome(t, tenantID, "seo_fix")}
	for i := 0; i < 4; i++ {
		group = append(group, rejectedOutcome(t, tenantID, "seo_fix"))
	}

	m.outcomes.On("FindByID", ctx, tenantID, target.ID).Return(target, nil)
	m.outcomes.On("Update", ctx, target).Return(nil)
	m.publisher.On("Publish", ctx, mock.Anything).Return(nil)
	m.outcomes.On("ListForPeriod", ctx, tenantID, "seo_fix", (*uuid.UUID)(nil), period).Return(group, nil)

	var metric *outcome.QualityMetric
	m.quality.On("Upsert", ctx, mock.AnythingOfType("*outcome.QualityMetric")).
		Run(func(args mock.Arguments) {
			metric = args.Get(1).(*outcome.QualityMetric)
		}).Return(nil)

	m.emitter.On("EmitSignal", ctx, tenantID, signal.SourceInternal, mock.MatchedBy(func(p signal.Payload) bool {
		return p["type"] == "calibration:high_rejection" &&
			p["correlation_key"] == "calibration:high_rejection:global" &&
			p["period"] == period
	})).Return(calibrationSignal(t, tenantID), false, nil).Once()

	result, err := service.RejectOutcome(ctx, tenantID, target.ID)

	require.NoError(t, err)
	assert.Equal(t, string(outcome.StatusCancelled), result.Status)
	require.NotNil(t, result.RejectedAt)

	require.NotNil(t, metric)
	assert.Equal(t, 6, metric.SampleSize)
	assert.Equal(t, 5, metric.RejectedCount)
	assert.Equal(t, 1, metric.AcceptedCount)
	assert.InDelta(t, 1.0/6, metric.AcceptanceRate, 1e-9)
	assert.Equal(t, outcome.ConfidenceLow, metric.ConfidenceLevel)

	m.emitter.AssertNumberOfCalls(t, "EmitSignal", 1)
	m.emitter.AssertExpectations(t)
}

func TestFeedbackService_AcceptOutcome(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("accepts pending outcome", func(t *testing.T) {
		service, m := newFeedbackService(false)
		target := pendingOutcome(t, tenantID, "content_plan")

		m.outcomes.On("FindByID", ctx, tenantID, target.ID).Return(target, nil)
		m.outcomes.On("Update", ctx, target).Return(nil)
		m.publisher.On("Publish", ctx, mock.Anything).Return(nil)
		m.outcomes.On("ListForPeriod", ctx, tenantID, "content_plan", (*uuid.UUID)(nil), mock.Anything).
			Return([]*outcome.Outcome{target}, nil)
		m.quality.On("Upsert", ctx, mock.Anything).Return(nil)

		result, err := service.AcceptOutcome(ctx, tenantID, target.ID)

		require.NoError(t, err)
		require.NotNil(t, result.AcceptedAt)
		assert.Equal(t, string(outcome.StatusPending), result.Status)
	})

	t.Run("rejects double decision", func(t *testing.T) {
		service, m := newFeedbackService(false)
		target := rejectedOutcome(t, tenantID, "content_plan")

		m.outcomes.On("FindByID", ctx, tenantID, target.ID).Return(target, nil)

		_, err := service.AcceptOutcome(ctx, tenantID, target.ID)

		assert.ErrorIs(t, err, shared.ErrInvalidState)
		m.outcomes.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("returns not found for unknown outcome", func(t *testing.T) {
		service, m := newFeedbackService(false)
		unknownID := uuid.New()

		m.outcomes.On("FindByID", ctx, tenantID, unknownID).Return(nil, shared.ErrNotFound)

		_, err := service.AcceptOutcome(ctx, tenantID, unknownID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "OUTCOME_NOT_FOUND", domainErr.Code)
	})
}

func TestFeedbackService_RecordActual(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	service, m := newFeedbackService(false)

	target := acceptedOutcome(t, tenantID, "seo_fix")

	m.outcomes.On("FindByID", ctx, tenantID, target.ID).Return(target, nil)
	m.outcomes.On("Update", ctx, target).Return(nil)
	m.publisher.On("Publish", ctx, mock.Anything).Return(nil)
	m.outcomes.On("ListForPeriod", ctx, tenantID, "seo_fix", (*uuid.UUID)(nil), mock.Anything).
		Return([]*outcome.Outcome{target}, nil)
	m.quality.On("Upsert", ctx, mock.Anything).Return(nil)

	result, err := service.RecordActual(ctx, tenantID, target.ID, RecordActualRequest{
		ActualImpact: map[string]decimal.Decimal{
			"sessions": decimal.NewFromInt(1200),
		},
	})

	require.NoError(t, err)
	require.NotNil(t, result.MeasuredAt)
	require.NotNil(t, result.VarianceScore)
	assert.InDelta(t, 0.2, result.VarianceScore.InexactFloat64(), 1e-9)
	assert.Equal(t, string(outcome.DirectionOverperformed), result.VarianceDirection)
}

func TestFeedbackService_UpdateOutcomeStatus(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("marks outcome successful", func(t *testing.T) {
		service, m := newFeedbackService(false)
		target := acceptedOutcome(t, tenantID, "seo_fix")

		m.outcomes.On("FindByID", ctx, tenantID, target.ID).Return(target, nil)
		m.outcomes.On("Update", ctx, target).Return(nil)
		m.outcomes.On("ListForPeriod", ctx, tenantID, "seo_fix", (*uuid.UUID)(nil), mock.Anything).
			Return([]*outcome.Outcome{target}, nil)
		m.quality.On("Upsert", ctx, mock.Anything).Return(nil)

		result, err := service.UpdateOutcomeStatus(ctx, tenantID, target.ID, UpdateOutcomeStatusRequest{
			Status: "success",
		})

		require.NoError(t, err)
		assert.Equal(t, string(outcome.StatusSuccess), result.Status)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		service, m := newFeedbackService(false)
		target := acceptedOutcome(t, tenantID, "seo_fix")

		m.outcomes.On("FindByID", ctx, tenantID, target.ID).Return(target, nil)

		_, err := service.UpdateOutcomeStatus(ctx, tenantID, target.ID, UpdateOutcomeStatusRequest{
			Status: "sideways",
		})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_STATUS", domainErr.Code)
		m.outcomes.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

func TestFeedbackService_RecalculateQuality(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	period := "2026-07"

	rejectionWave := func(t *testing.T) []*outcome.Outcome {
		t.Helper()
		group := []*outcome.Outcome{acceptedOutcome(t, tenantID, "seo_fix")}
		for i := 0; i < 5; i++ {
			group = append(group, rejectedOutcome(t, tenantID, "seo_fix"))
		}
		return group
	}

	t.Run("recomputes all groups and emits breaches", func(t *testing.T) {
		service, m := newFeedbackService(false)
		clientID := uuid.New()

		m.outcomes.On("DistinctGroups", ctx, tenantID, period).Return([]outcome.OutcomeGroup{
			{RecommendationType: "seo_fix"},
			{RecommendationType: "content_plan", ClientID: &clientID},
		}, nil)
		m.outcomes.On("ListForPeriod", ctx, tenantID, "seo_fix", (*uuid.UUID)(nil), period).
			Return(rejectionWave(t), nil)
		m.outcomes.On("ListForPeriod", ctx, tenantID, "content_plan", &clientID, period).
			Return([]*outcome.Outcome{pendingOutcome(t, tenantID, "content_plan")}, nil)
		m.quality.On("Upsert", ctx, mock.Anything).Return(nil)
		m.emitter.On("EmitSignal", ctx, tenantID, signal.SourceInternal, mock.MatchedBy(func(p signal.Payload) bool {
			return p["type"] == "calibration:high_rejection"
		})).Return(calibrationSignal(t, tenantID), false, nil).Once()

		report, err := service.RecalculateQuality(ctx, tenantID, period)

		require.NoError(t, err)
		assert.Equal(t, period, report.Period)
		assert.Equal(t, 2, report.GroupsRecalculated)
		assert.Equal(t, 1, report.BreachesDetected)
		assert.Equal(t, 1, report.SignalsEmitted)
		assert.Zero(t, report.DuplicatesSuppressed)
		assert.Empty(t, report.Failures)
		m.emitter.AssertExpectations(t)
	})

	t.Run("suppresses duplicate emissions on re-run", func(t *testing.T) {
		service, m := newFeedbackService(false)

		m.outcomes.On("DistinctGroups", ctx, tenantID, period).Return([]outcome.OutcomeGroup{
			{RecommendationType: "seo_fix"},
		}, nil)
		m.outcomes.On("ListForPeriod", ctx, tenantID, "seo_fix", (*uuid.UUID)(nil), period).
			Return(rejectionWave(t), nil)
		m.quality.On("Upsert", ctx, mock.Anything).Return(nil)
		m.emitter.On("EmitSignal", ctx, tenantID, signal.SourceInternal, mock.Anything).
			Return(calibrationSignal(t, tenantID), true, nil).Once()

		report, err := service.RecalculateQuality(ctx, tenantID, period)

		require.NoError(t, err)
		assert.Equal(t, 1, report.BreachesDetected)
		assert.Zero(t, report.SignalsEmitted)
		assert.Equal(t, 1, report.DuplicatesSuppressed)
	})

	t.Run("continues past group failures", func(t *testing.T) {
		service, m := newFeedbackService(false)
		clientID := uuid.New()

		m.outcomes.On("DistinctGroups", ctx, tenantID, period).Return([]outcome.OutcomeGroup{
			{RecommendationType: "seo_fix"},
			{RecommendationType: "content_plan", ClientID: &clientID},
		}, nil)
		m.outcomes.On("ListForPeriod", ctx, tenantID, "seo_fix", (*uuid.UUID)(nil), period).
			Return(nil, errors.New("connection reset"))
		m.outcomes.On("ListForPeriod", ctx, tenantID, "content_plan", &clientID, period).
			Return([]*outcome.Outcome{pendingOutcome(t, tenantID, "content_plan")}, nil)
		m.quality.On("Upsert", ctx, mock.Anything).Return(nil)

		report, err := service.RecalculateQuality(ctx, tenantID, period)

		require.NoError(t, err)
		assert.Equal(t, 1, report.GroupsRecalculated)
		require.Len(t, report.Failures, 1)
		assert.Equal(t, "seo_fix", report.Failures[0].RecommendationType)
		assert.Contains(t, report.Failures[0].Error, "Failed to load outcomes")
	})

	t.Run("skips when claim held", func(t *testing.T) {
		service, m := newFeedbackService(true)

		key := shared.StageClaimKey(StageName, tenantID)
		m.claimer.On("Acquire", ctx, key, shared.DefaultClaimConfig().TTL).Return(false, nil)

		report, err := service.RecalculateQuality(ctx, tenantID, period)

		require.NoError(t, err)
		assert.True(t, report.Skipped)
		m.outcomes.AssertNotCalled(t, "DistinctGroups", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestFeedbackService_GetQualityMetric(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("returns metric row", func(t *testing.T) {
		service, m := newFeedbackService(false)

		outcomes := []*outcome.Outcome{
			acceptedOutcome(t, tenantID, "seo_fix"),
			rejectedOutcome(t, tenantID, "seo_fix"),
		}
		metric, err := outcome.ComputeQualityMetric(tenantID, "seo_fix", nil, "2026-07", outcomes)
		require.NoError(t, err)

		m.quality.On("Find", ctx, tenantID, "seo_fix", (*uuid.UUID)(nil), "2026-07").Return(metric, nil)

		result, err := service.GetQualityMetric(ctx, tenantID, "seo_fix", nil, "2026-07")

		require.NoError(t, err)
		assert.Equal(t, "2026-07", result.Period)
		assert.Equal(t, 2, result.SampleSize)
		assert.InDelta(t, 0.5, result.AcceptanceRate, 1e-9)
	})

	t.Run("returns not found for missing row", func(t *testing.T) {
		service, m := newFeedbackService(false)

		m.quality.On("Find", ctx, tenantID, "seo_fix", (*uuid.UUID)(nil), "2026-07").
			Return(nil, shared.ErrNotFound)

		_, err := service.GetQualityMetric(ctx, tenantID, "seo_fix", nil, "2026-07")

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "METRIC_NOT_FOUND", domainErr.Code)
	})
}
