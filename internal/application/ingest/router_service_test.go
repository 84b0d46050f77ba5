package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSignalRepository is a mock implementation of signal.SignalRepository
type MockSignalRepository struct {
	mock.Mock
}

func (m *MockSignalRepository) Create(ctx context.Context, s *signal.Signal) (bool, error) {
	args := m.Called(ctx, s)
	return args.Bool(0), args.Error(1)
}

func (m *MockSignalRepository) Update(ctx context.Context, s *signal.Signal) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSignalRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*signal.Signal, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*signal.Signal), args.Error(1)
}

func (m *MockSignalRepository) FindByDedupHash(ctx context.Context, tenantID uuid.UUID, hash string) (*signal.Signal, error) {
	args := m.Called(ctx, tenantID, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*signal.Signal), args.Error(1)
}

func (m *MockSignalRepository) FindPending(ctx context.Context, tenantID uuid.UUID, limit int) ([]signal.Signal, error) {
	args := m.Called(ctx, tenantID, limit)
	return args.Get(0).([]signal.Signal), args.Error(1)
}

func (m *MockSignalRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]signal.Signal, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]signal.Signal), args.Error(1)
}

func (m *MockSignalRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[signal.Status]int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(map[signal.Status]int64), args.Error(1)
}

func (m *MockSignalRepository) DistinctTenants(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockRoutingRuleRepository is a mock implementation of signal.RoutingRuleRepository
type MockRoutingRuleRepository struct {
	mock.Mock
}

func (m *MockRoutingRuleRepository) Create(ctx context.Context, rule *signal.RoutingRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRoutingRuleRepository) Update(ctx context.Context, rule *signal.RoutingRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRoutingRuleRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*signal.RoutingRule, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*signal.RoutingRule), args.Error(1)
}

func (m *MockRoutingRuleRepository) FindMatching(ctx context.Context, tenantID uuid.UUID, source signal.Source, signalType string) ([]signal.RoutingRule, error) {
	args := m.Called(ctx, tenantID, source, signalType)
	return args.Get(0).([]signal.RoutingRule), args.Error(1)
}

func (m *MockRoutingRuleRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]signal.RoutingRule, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]signal.RoutingRule), args.Error(1)
}

func (m *MockRoutingRuleRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func newTestLogger() *zap.Logger {
	return zap.NewNop()
}

func newRouterService(signalRepo *MockSignalRepository, ruleRepo *MockRoutingRuleRepository, publisher *MockEventPublisher) *RouterService {
	return NewRouterService(signalRepo, ruleRepo, signal.NewNormalizer(), publisher, newTestLogger())
}

func TestRouterService_IngestSignal_Success(t *testing.T) {
	signalRepo := new(MockSignalRepository)
	ruleRepo := new(MockRoutingRuleRepository)
	publisher := new(MockEventPublisher)
	service := newRouterService(signalRepo, ruleRepo, publisher)

	ctx := context.Background()
	tenantID := uuid.New()

	signalRepo.On("Create", ctx, mock.AnythingOfType("*signal.Signal")).Return(true, nil)
	ruleRepo.On("FindMatching", ctx, tenantID, signal.SourceCRM, "deal_stage_changed").
		Return([]signal.RoutingRule{}, nil)
	publisher.On("Publish", ctx, mock.Anything).Return(nil)

	result, err := service.IngestSignal(ctx, tenantID, signal.SourceCRM, signal.Payload{
		"event":   "deal_stage_changed",
		"deal_id": "D-42",
	})

	require.NoError(t, err)
	require.NotNil(t, result.Signal)
	assert.False(t, result.IsDuplicate)
	assert.Equal(t, "deal_stage_changed", result.Signal.Type)
	assert.Equal(t, string(signal.UrgencyHigh), result.Signal.Urgency)
	assert.Equal(t, string(signal.StatusPending), result.Signal.Status)
	assert.Empty(t, result.MatchingRouteIDs)
	signalRepo.AssertExpectations(t)
	ruleRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestRouterService_IngestSignal_Duplicate(t *testing.T) {
	signalRepo := new(MockSignalRepository)
	ruleRepo := new(MockRoutingRuleRepository)
	publisher := new(MockEventPublisher)
	service := newRouterService(signalRepo, ruleRepo, publisher)

	ctx := context.Background()
	tenantID := uuid.New()
	raw := signal.Payload{"event": "deal_stage_changed", "deal_id": "D-42"}

	winner, err := signal.NewNormalizer().Normalize(tenantID, signal.SourceCRM, raw)
	require.NoError(t, err)

	signalRepo.On("Create", ctx, mock.AnythingOfType("*signal.Signal")).Return(false, nil)
	signalRepo.On("FindByDedupHash", ctx, tenantID, winner.DedupHash).Return(winner, nil)

	result, err := service.IngestSignal(ctx, tenantID, signal.SourceCRM, raw)

	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, winner.ID, result.Signal.ID)
	assert.Empty(t, result.MatchingRouteIDs)
	ruleRepo.AssertNotCalled(t, "FindMatching", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	signalRepo.AssertExpectations(t)
}

func TestRouterService_IngestSignal_UnsupportedSource(t *testing.T) {
	signalRepo := new(MockSignalRepository)
	ruleRepo := new(MockRoutingRuleRepository)
	publisher := new(MockEventPublisher)
	service := newRouterService(signalRepo, ruleRepo, publisher)

	_, err := service.IngestSignal(context.Background(), uuid.New(), signal.Source("fax"), signal.Payload{})

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "UNSUPPORTED_SOURCE", domainErr.Code)
	signalRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRouterService_IngestSignal_MatchesRoutes(t *testing.T) {
	signalRepo := new(MockSignalRepository)
	ruleRepo := new(MockRoutingRuleRepository)
	publisher := new(MockEventPublisher)
	service := newRouterService(signalRepo, ruleRepo, publisher)

	ctx := context.Background()
	tenantID := uuid.New()

	matching, err := signal.NewRoutingRule(tenantID, "escalate deals", uuid.New())
	require.NoError(t, err)

	// Urgency allow-list excludes the high-urgency deal signal
	excluded, err := signal.NewRoutingRule(tenantID, "critical only", uuid.New())
	require.NoError(t, err)
	require.NoError(t, excluded.SetUrgencies(signal.UrgencyCritical))

	signalRepo.On("Create", ctx, mock.AnythingOfType("*signal.Signal")).Return(true, nil)
	ruleRepo.On("FindMatching", ctx, tenantID, signal.SourceCRM, "deal_stage_changed").
		Return([]signal.RoutingRule{*matching, *excluded}, nil)
	publisher.On("Publish", ctx, mock.Anything).Return(nil)

	result, err := service.IngestSignal(ctx, tenantID, signal.SourceCRM, signal.Payload{
		"event":   "deal_stage_changed",
		"deal_id": "D-7",
	})

	require.NoError(t, err)
	require.Len(t, result.MatchingRouteIDs, 1)
	assert.Equal(t, matching.ID, result.MatchingRouteIDs[0])
	require.Len(t, result.TriggeredWorkflows, 1)
	assert.Equal(t, matching.WorkflowID, result.TriggeredWorkflows[0])
	ruleRepo.AssertExpectations(t)
}

func TestRouterService_IngestSignal_RoutingFailureDoesNotFailIngest(t *testing.T) {
	signalRepo := new(MockSignalRepository)
	ruleRepo := new(MockRoutingRuleRepository)
	publisher := new(MockEventPublisher)
	service := newRouterService(signalRepo, ruleRepo, publisher)

	ctx := context.Background()
	tenantID := uuid.New()

	signalRepo.On("Create", ctx, mock.AnythingOfType("*signal.Signal")).Return(true, nil)
	ruleRepo.On("FindMatching", ctx, tenantID, signal.SourceWebhook, "sync_completed").
		Return([]signal.RoutingRule{}, errors.New("db down"))
	publisher.On("Publish", ctx, mock.Anything).Return(nil)

	result, err := service.IngestSignal(ctx, tenantID, signal.SourceWebhook, signal.Payload{
		"event": "sync_completed",
	})

	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Empty(t, result.MatchingRouteIDs)
}

func TestRouterService_EmitSignal(t *testing.T) {
	t.Run("stores new signal", func(t *testing.T) {
		signalRepo := new(MockSignalRepository)
		ruleRepo := new(MockRoutingRuleRepository)
		publisher := new(MockEventPublisher)
		service := newRouterService(signalRepo, ruleRepo, publisher)

		ctx := context.Background()
		tenantID := uuid.New()

		signalRepo.On("Create", ctx, mock.AnythingOfType("*signal.Signal")).Return(true, nil)
		publisher.On("Publish", ctx, mock.Anything).Return(nil)

		sig, duplicate, err := service.EmitSignal(ctx, tenantID, signal.SourceInternal, signal.Payload{
			"type":     "calibration:high_rejection",
			"severity": "high",
		})

		require.NoError(t, err)
		assert.False(t, duplicate)
		assert.Equal(t, "calibration:high_rejection", sig.Type)
		assert.Equal(t, signal.UrgencyHigh, sig.Urgency)
	})

	t.Run("re-emission lands on stored winner", func(t *testing.T) {
		signalRepo := new(MockSignalRepository)
		ruleRepo := new(MockRoutingRuleRepository)
		publisher := new(MockEventPublisher)
		service := newRouterService(signalRepo, ruleRepo, publisher)

		ctx := context.Background()
		tenantID := uuid.New()
		payload := signal.Payload{"type": "calibration:high_rejection"}

		winner, err := signal.NewNormalizer().Normalize(tenantID, signal.SourceInternal, payload)
		require.NoError(t, err)

		signalRepo.On("Create", ctx, mock.AnythingOfType("*signal.Signal")).Return(false, nil)
		signalRepo.On("FindByDedupHash", ctx, tenantID, winner.DedupHash).Return(winner, nil)

		sig, duplicate, err := service.EmitSignal(ctx, tenantID, signal.SourceInternal, payload)

		require.NoError(t, err)
		assert.True(t, duplicate)
		assert.Equal(t, winner.ID, sig.ID)
		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})
}

func TestRouterService_RetrySignal(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	failedSignal := func(t *testing.T) *signal.Signal {
		t.Helper()
		sig, err := signal.NewNormalizer().Normalize(tenantID, signal.SourceWebhook, signal.Payload{
			"event": "sync_completed",
		})
		require.NoError(t, err)
		require.NoError(t, sig.MarkFailed("downstream timeout"))
		return sig
	}

	t.Run("requeues failed signal", func(t *testing.T) {
		signalRepo := new(MockSignalRepository)
		ruleRepo := new(MockRoutingRuleRepository)
		publisher := new(MockEventPublisher)
		service := newRouterService(signalRepo, ruleRepo, publisher)

		sig := failedSignal(t)
		signalRepo.On("FindByID", ctx, tenantID, sig.ID).Return(sig, nil)
		signalRepo.On("Update", ctx, sig).Return(nil)
		publisher.On("Publish", ctx, mock.Anything).Return(nil)

		result, err := service.RetrySignal(ctx, tenantID, sig.ID)

		require.NoError(t, err)
		assert.Equal(t, string(signal.StatusPending), result.Status)
		assert.Equal(t, 1, result.RetryCount)
		signalRepo.AssertExpectations(t)
	})

	t.Run("rejects pending signal", func(t *testing.T) {
		signalRepo := new(MockSignalRepository)
		ruleRepo := new(MockRoutingRuleRepository)
		publisher := new(MockEventPublisher)
		service := newRouterService(signalRepo, ruleRepo, publisher)

		sig, err := signal.NewNormalizer().Normalize(tenantID, signal.SourceWebhook, signal.Payload{
			"event": "sync_completed",
		})
		require.NoError(t, err)
		signalRepo.On("FindByID", ctx, tenantID, sig.ID).Return(sig, nil)

		_, err = service.RetrySignal(ctx, tenantID, sig.ID)

		assert.ErrorIs(t, err, signal.ErrNotRetryable)
		signalRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("unknown signal", func(t *testing.T) {
		signalRepo := new(MockSignalRepository)
		ruleRepo := new(MockRoutingRuleRepository)
		publisher := new(MockEventPublisher)
		service := newRouterService(signalRepo, ruleRepo, publisher)

		id := uuid.New()
		signalRepo.On("FindByID", ctx, tenantID, id).Return(nil, shared.ErrNotFound)

		_, err := service.RetrySignal(ctx, tenantID, id)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "SIGNAL_NOT_FOUND", domainErr.Code)
	})
}

func TestRouterService_ListSignals(t *testing.T) {
	t.Run("applies status filter", func(t *testing.T) {
		signalRepo := new(MockSignalRepository)
		ruleRepo := new(MockRoutingRuleRepository)
		publisher := new(MockEventPublisher)
		service := newRouterService(signalRepo, ruleRepo, publisher)

		ctx := context.Background()
		tenantID := uuid.New()
		status := string(signal.StatusPending)

		signalRepo.On("FindAllForTenant", ctx, tenantID, mock.MatchedBy(func(f shared.Filter) bool {
			return f.Filters["status"] == status && f.Page == 2 && f.PageSize == 10
		})).Return([]signal.Signal{}, nil)

		result, err := service.ListSignals(ctx, tenantID, SignalListFilter{Page: 2, PageSize: 10, Status: &status})

		require.NoError(t, err)
		assert.Equal(t, 2, result.Page)
		assert.Empty(t, result.Signals)
		signalRepo.AssertExpectations(t)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		signalRepo := new(MockSignalRepository)
		ruleRepo := new(MockRoutingRuleRepository)
		publisher := new(MockEventPublisher)
		service := newRouterService(signalRepo, ruleRepo, publisher)

		bogus := "sideways"
		_, err := service.ListSignals(context.Background(), uuid.New(), SignalListFilter{Status: &bogus})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_STATUS", domainErr.Code)
	})
}
