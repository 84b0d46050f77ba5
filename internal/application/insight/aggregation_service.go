// Package insight runs the aggregation stage: pending signals are grouped
// by correlation shape, low-confidence groups are discarded and the rest
// become insights the priority engine can score.
package insight

import (
	"context"
	"errors"

	"github.com/clientpulse/backend/internal/domain/insight"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StageName keys aggregation claims in the batch claim store
const StageName = "aggregation"

// AggregationService folds pending signals into insights
type AggregationService struct {
	signalRepo   signal.SignalRepository
	insightRepo  insight.InsightRepository
	settingsRepo insight.SettingsRepository
	publisher    shared.EventPublisher
	claimer      shared.BatchClaimer
	claimCfg     shared.ClaimConfig
	logger       *zap.Logger
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(
	signalRepo signal.SignalRepository,
	insightRepo insight.InsightRepository,
	settingsRepo insight.SettingsRepository,
	publisher shared.EventPublisher,
	claimer shared.BatchClaimer,
	claimCfg shared.ClaimConfig,
	logger *zap.Logger,
) *AggregationService {
	return &AggregationService{
		signalRepo:   signalRepo,
		insightRepo:  insightRepo,
		settingsRepo: settingsRepo,
		publisher:    publisher,
		claimer:      claimer,
		claimCfg:     claimCfg,
		logger:       logger,
	}
}

// ProcessSignals runs one aggregation batch for a tenant. Groups whose
// confidence clears the tenant's floor become insights and their signals are
// attached; the rest are discarded with a reason. A batch already claimed by
// another worker returns a skipped report. The run is idempotent: a group
// that fails mid-batch leaves its signals pending for the next pass.
func (s *AggregationService) ProcessSignals(ctx context.Context, tenantID uuid.UUID) (*AggregationReport, error) {
	report := &AggregationReport{TenantID: tenantID}

	if s.claimCfg.Enabled {
		key := shared.StageClaimKey(StageName, tenantID)
		acquired, err := s.claimer.Acquire(ctx, key, s.claimCfg.TTL)
		if err != nil {
			s.logger.Error("Failed to acquire aggregation claim",
				zap.String("claim_key", key),
				zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to acquire aggregation claim")
		}
		if !acquired {
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if err := s.claimer.Release(ctx, key); err != nil {
				s.logger.Warn("Failed to release aggregation claim",
					zap.String("claim_key", key),
					zap.Error(err))
			}
		}()
	}

	settings, err := s.settingsRepo.Get(ctx, tenantID)
	if err != nil {
		s.logger.Error("Failed to load aggregation settings",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load aggregation settings")
	}
	settings = settings.Normalized()

	batch, err := s.signalRepo.FindPending(ctx, tenantID, settings.BatchSize)
	if err != nil {
		s.logger.Error("Failed to load pending signals",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load pending signals")
	}
	report.SignalsScanned = len(batch)
	if len(batch) == 0 {
		return report, nil
	}

	signals := make([]*signal.Signal, len(batch))
	for i := range batch {
		signals[i] = &batch[i]
	}

	groups := insight.GroupSignals(signals)
	report.GroupsFormed = len(groups)

	for _, group := range groups {
		if group.Confidence() < settings.MinConfidence {
			report.SignalsDiscarded += s.discardGroup(ctx, group)
			continue
		}

		created, attached := s.createInsight(ctx, group)
		if created != nil {
			report.InsightsCreated++
			report.SignalsAttached += attached
		}
	}

	s.logger.Info("Aggregation batch completed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("signals_scanned", report.SignalsScanned),
		zap.Int("groups_formed", report.GroupsFormed),
		zap.Int("insights_created", report.InsightsCreated),
		zap.Int("signals_discarded", report.SignalsDiscarded))

	return report, nil
}

// discardGroup drops every signal in a below-floor group. Returns how many
// discards stuck.
func (s *AggregationService) discardGroup(ctx context.Context, group *insight.SignalGroup) int {
	discarded := 0
	for _, sig := range group.Signals {
		if err := sig.Discard(insight.DiscardReasonLowConfidence); err != nil {
			s.logger.Warn("Failed to discard signal",
				zap.String("signal_id", sig.ID.String()),
				zap.Error(err))
			continue
		}
		if err := s.signalRepo.Update(ctx, sig); err != nil {
			s.logger.Error("Failed to persist signal discard",
				zap.String("signal_id", sig.ID.String()),
				zap.Error(err))
			continue
		}
		s.publishEvents(ctx, sig)
		discarded++
	}

	s.logger.Debug("Signal group discarded",
		zap.String("group_key", group.Key),
		zap.Float64("confidence", group.Confidence()),
		zap.Int("signals", discarded))

	return discarded
}

// createInsight persists the group's insight and attaches its signals.
// Returns the insight (nil when creation failed) and how many signals were
// attached.
func (s *AggregationService) createInsight(ctx context.Context, group *insight.SignalGroup) (*insight.Insight, int) {
	ins, err := insight.NewInsightFromGroup(group)
	if err != nil {
		s.logger.Error("Failed to build insight from group",
			zap.String("group_key", group.Key),
			zap.Error(err))
		return nil, 0
	}

	if err := s.insightRepo.Create(ctx, ins); err != nil {
		s.logger.Error("Failed to persist insight",
			zap.String("group_key", group.Key),
			zap.Error(err))
		return nil, 0
	}

	attached := 0
	for _, sig := range group.Signals {
		if err := sig.MarkProcessedToInsight(ins.ID); err != nil {
			s.logger.Warn("Failed to attach signal to insight",
				zap.String("signal_id", sig.ID.String()),
				zap.String("insight_id", ins.ID.String()),
				zap.Error(err))
			continue
		}
		if err := s.signalRepo.Update(ctx, sig); err != nil {
			s.logger.Error("Failed to persist signal attachment",
				zap.String("signal_id", sig.ID.String()),
				zap.Error(err))
			continue
		}
		s.publishEvents(ctx, sig)
		attached++
	}

	s.publishEvents(ctx, ins)

	s.logger.Info("Insight created",
		zap.String("insight_id", ins.ID.String()),
		zap.String("category", ins.Category),
		zap.String("type", ins.Type),
		zap.String("severity", string(ins.Severity)),
		zap.Float64("confidence", ins.Confidence),
		zap.Int("signals", attached))

	return ins, attached
}

// GetInsight retrieves one insight by ID
func (s *AggregationService) GetInsight(ctx context.Context, tenantID, insightID uuid.UUID) (*InsightResponse, error) {
	ins, err := s.findInsight(ctx, tenantID, insightID)
	if err != nil {
		return nil, err
	}
	return ToInsightResponse(ins), nil
}

// ListInsights retrieves a paginated list of a tenant's insights
func (s *AggregationService) ListInsights(ctx context.Context, tenantID uuid.UUID, filter InsightListFilter) (*InsightListResponse, error) {
	domainFilter := shared.DefaultFilter()
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}
	if filter.Status != nil {
		status := insight.Status(*filter.Status)
		if !status.IsValid() {
			return nil, shared.NewDomainError("INVALID_STATUS", "Invalid status filter")
		}
		domainFilter.Filters["status"] = string(status)
	}
	if filter.Category != nil {
		domainFilter.Filters["category"] = *filter.Category
	}

	page, err := s.insightRepo.FindAllForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		s.logger.Error("Failed to list insights",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to list insights")
	}

	return ToInsightListResponse(page), nil
}

// DismissInsight closes an open insight without prioritizing it
func (s *AggregationService) DismissInsight(ctx context.Context, tenantID, insightID uuid.UUID, reason string) (*InsightResponse, error) {
	ins, err := s.findInsight(ctx, tenantID, insightID)
	if err != nil {
		return nil, err
	}

	if err := ins.Dismiss(reason); err != nil {
		return nil, err
	}

	if err := s.insightRepo.Update(ctx, ins); err != nil {
		s.logger.Error("Failed to update insight",
			zap.String("insight_id", insightID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update insight")
	}

	s.publishEvents(ctx, ins)

	s.logger.Info("Insight dismissed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("insight_id", insightID.String()),
		zap.String("reason", reason))

	return ToInsightResponse(ins), nil
}

// GetSettings returns the tenant's aggregation tuning
func (s *AggregationService) GetSettings(ctx context.Context, tenantID uuid.UUID) (*SettingsResponse, error) {
	settings, err := s.settingsRepo.Get(ctx, tenantID)
	if err != nil {
		s.logger.Error("Failed to load aggregation settings",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load aggregation settings")
	}
	settings = settings.Normalized()
	return &SettingsResponse{MinConfidence: settings.MinConfidence, BatchSize: settings.BatchSize}, nil
}

// UpdateSettings stores new aggregation tuning for the tenant
func (s *AggregationService) UpdateSettings(ctx context.Context, tenantID uuid.UUID, req UpdateSettingsRequest) (*SettingsResponse, error) {
	settings, err := s.settingsRepo.Get(ctx, tenantID)
	if err != nil {
		s.logger.Error("Failed to load aggregation settings",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load aggregation settings")
	}

	if req.MinConfidence != nil {
		settings.MinConfidence = *req.MinConfidence
	}
	if req.BatchSize != nil {
		settings.BatchSize = *req.BatchSize
	}
	settings = settings.Normalized()

	if err := s.settingsRepo.Save(ctx, tenantID, settings); err != nil {
		s.logger.Error("Failed to save aggregation settings",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to save aggregation settings")
	}

	s.logger.Info("Aggregation settings updated",
		zap.String("tenant_id", tenantID.String()),
		zap.Float64("min_confidence", settings.MinConfidence),
		zap.Int("batch_size", settings.BatchSize))

	return &SettingsResponse{MinConfidence: settings.MinConfidence, BatchSize: settings.BatchSize}, nil
}

func (s *AggregationService) findInsight(ctx context.Context, tenantID, insightID uuid.UUID) (*insight.Insight, error) {
	ins, err := s.insightRepo.FindByID(ctx, tenantID, insightID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("INSIGHT_NOT_FOUND", "Insight not found")
		}
		s.logger.Error("Failed to find insight",
			zap.String("insight_id", insightID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to find insight")
	}
	return ins, nil
}

// publishEvents hands the aggregate's pending events to the bus.
// Non-blocking: a publish failure is logged and the operation proceeds.
func (s *AggregationService) publishEvents(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish domain events", zap.Error(err))
	}
	agg.ClearDomainEvents()
}
