// Package feedback closes the loop: it captures what happened to
// recommendations, keeps the per-period quality metrics current and feeds
// calibration breaches back into the pipeline as internal signals.
package feedback

import (
	"context"
	"errors"
	"time"

	"github.com/clientpulse/backend/internal/domain/outcome"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StageName keys quality recalculation claims in the batch claim store
const StageName = "quality"

// SignalEmitter feeds calibration breaches back into the ingest stage.
type SignalEmitter interface {
	// EmitSignal ingests an internally produced event. Returns the stored
	// signal and whether it deduplicated onto an existing one.
	EmitSignal(ctx context.Context, tenantID uuid.UUID, source signal.Source, payload signal.Payload) (*signal.Signal, bool, error)
}

// FeedbackService tracks recommendation outcomes and maintains the
// quality metrics derived from them
type FeedbackService struct {
	outcomeRepo outcome.OutcomeRepository
	qualityRepo outcome.QualityMetricRepository
	emitter     SignalEmitter
	publisher   shared.EventPublisher
	claimer     shared.BatchClaimer
	claimCfg    shared.ClaimConfig
	logger      *zap.Logger
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(
	outcomeRepo outcome.OutcomeRepository,
	qualityRepo outcome.QualityMetricRepository,
	emitter SignalEmitter,
	publisher shared.EventPublisher,
	claimer shared.BatchClaimer,
	claimCfg shared.ClaimConfig,
	logger *zap.Logger,
) *FeedbackService {
	return &FeedbackService{
		outcomeRepo: outcomeRepo,
		qualityRepo: qualityRepo,
		emitter:     emitter,
		publisher:   publisher,
		claimer:     claimer,
		claimCfg:    claimCfg,
		logger:      logger,
	}
}

// CaptureOutcome starts tracking a recommendation with its predicted
// impact and refreshes the quality metrics of its group
func (s *FeedbackService) CaptureOutcome(ctx context.Context, tenantID uuid.UUID, req CaptureOutcomeRequest) (*OutcomeResponse, error) {
	s.logger.Info("Capturing outcome",
		zap.String("tenant_id", tenantID.String()),
		zap.String("recommendation_type", req.RecommendationType))

	o, err := outcome.NewOutcome(tenantID, req.RecommendationType, req.ClientID, req.InsightID, outcome.ImpactMap(req.PredictedImpact))
	if err != nil {
		return nil, err
	}

	if err := s.outcomeRepo.Create(ctx, o); err != nil {
		s.logger.Error("Failed to create outcome",
			zap.String("recommendation_type", req.RecommendationType),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to create outcome")
	}

	s.publishEvents(ctx, o)
	s.refreshGroupOf(ctx, o)

	return ToOutcomeResponse(o), nil
}

// AcceptOutcome records that the recommendation was taken up
func (s *FeedbackService) AcceptOutcome(ctx context.Context, tenantID, outcomeID uuid.UUID) (*OutcomeResponse, error) {
	return s.transition(ctx, tenantID, outcomeID, func(o *outcome.Outcome) error {
		return o.Accept()
	})
}

// RejectOutcome records that the recommendation was declined
func (s *FeedbackService) RejectOutcome(ctx context.Context, tenantID, outcomeID uuid.UUID) (*OutcomeResponse, error) {
	return s.transition(ctx, tenantID, outcomeID, func(o *outcome.Outcome) error {
		return o.Reject()
	})
}

// CompleteOutcome records that the accepted work was finished
func (s *FeedbackService) CompleteOutcome(ctx context.Context, tenantID, outcomeID uuid.UUID) (*OutcomeResponse, error) {
	return s.transition(ctx, tenantID, outcomeID, func(o *outcome.Outcome) error {
		return o.MarkCompleted()
	})
}

// RecordActual stores the measured impact for an outcome
func (s *FeedbackService) RecordActual(ctx context.Context, tenantID, outcomeID uuid.UUID, req RecordActualRequest) (*OutcomeResponse, error) {
	return s.transition(ctx, tenantID, outcomeID, func(o *outcome.Outcome) error {
		return o.RecordActual(outcome.ImpactMap(req.ActualImpact))
	})
}

// UpdateOutcomeStatus moves an outcome to a judged result
func (s *FeedbackService) UpdateOutcomeStatus(ctx context.Context, tenantID, outcomeID uuid.UUID, req UpdateOutcomeStatusRequest) (*OutcomeResponse, error) {
	return s.transition(ctx, tenantID, outcomeID, func(o *outcome.Outcome) error {
		return o.UpdateStatus(outcome.Status(req.Status))
	})
}

// transition applies one lifecycle change, persists it and refreshes the
// quality metrics of the outcome's group
func (s *FeedbackService) transition(ctx context.Context, tenantID, outcomeID uuid.UUID, apply func(*outcome.Outcome) error) (*OutcomeResponse, error) {
	o, err := s.findOutcome(ctx, tenantID, outcomeID)
	if err != nil {
		return nil, err
	}

	if err := apply(o); err != nil {
		return nil, err
	}

	if err := s.outcomeRepo.Update(ctx, o); err != nil {
		s.logger.Error("Failed to update outcome",
			zap.String("outcome_id", outcomeID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update outcome")
	}

	s.publishEvents(ctx, o)
	s.refreshGroupOf(ctx, o)

	return ToOutcomeResponse(o), nil
}

// GetOutcome retrieves one outcome by ID
func (s *FeedbackService) GetOutcome(ctx context.Context, tenantID, outcomeID uuid.UUID) (*OutcomeResponse, error) {
	o, err := s.findOutcome(ctx, tenantID, outcomeID)
	if err != nil {
		return nil, err
	}
	return ToOutcomeResponse(o), nil
}

// ListOutcomes retrieves a paginated list of a tenant's outcomes
func (s *FeedbackService) ListOutcomes(ctx context.Context, tenantID uuid.UUID, filter OutcomeListFilter) (*OutcomeListResponse, error) {
	domainFilter := shared.DefaultFilter()
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}
	if filter.Status != nil {
		status := outcome.Status(*filter.Status)
		if !status.IsValid() {
			return nil, shared.NewDomainError("INVALID_STATUS", "Invalid status filter")
		}
		domainFilter.Filters["status"] = string(status)
	}
	if filter.RecommendationType != nil {
		domainFilter.Filters["recommendation_type"] = *filter.RecommendationType
	}

	page, err := s.outcomeRepo.FindAllForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		s.logger.Error("Failed to list outcomes",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to list outcomes")
	}

	return ToOutcomeListResponse(page), nil
}

// GetQualityMetric returns the metric row for one (type, client, period)
// scope. An empty period means the current month.
func (s *FeedbackService) GetQualityMetric(ctx context.Context, tenantID uuid.UUID, recommendationType string, clientID *uuid.UUID, period string) (*QualityMetricResponse, error) {
	if period == "" {
		period = outcome.PeriodOf(time.Now())
	}

	m, err := s.qualityRepo.Find(ctx, tenantID, recommendationType, clientID, period)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("METRIC_NOT_FOUND", "Quality metric not found")
		}
		s.logger.Error("Failed to find quality metric",
			zap.String("recommendation_type", recommendationType),
			zap.String("period", period),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to find quality metric")
	}

	return ToQualityMetricResponse(m), nil
}

// ListQualityMetrics retrieves a paginated list of a tenant's quality
// metric rows, optionally narrowed to one period
func (s *FeedbackService) ListQualityMetrics(ctx context.Context, tenantID uuid.UUID, period *string, page, pageSize int) (*QualityMetricListResponse, error) {
	domainFilter := shared.DefaultFilter()
	if page > 0 {
		domainFilter.Page = page
	}
	if pageSize > 0 {
		domainFilter.PageSize = pageSize
	}
	if period != nil {
		domainFilter.Filters["period"] = *period
	}

	result, err := s.qualityRepo.FindAllForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		s.logger.Error("Failed to list quality metrics",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to list quality metrics")
	}

	return ToQualityMetricListResponse(result), nil
}

// RecalculateQuality recomputes every quality metric group with outcomes
// in the period. An empty period means the current month. A run already
// claimed by another worker returns a skipped report.
func (s *FeedbackService) RecalculateQuality(ctx context.Context, tenantID uuid.UUID, period string) (*RecalculationReport, error) {
	if period == "" {
		period = outcome.PeriodOf(time.Now())
	}
	report := &RecalculationReport{TenantID: tenantID, Period: period}

	if s.claimCfg.Enabled {
		key := shared.StageClaimKey(StageName, tenantID)
		acquired, err := s.claimer.Acquire(ctx, key, s.claimCfg.TTL)
		if err != nil {
			s.logger.Error("Failed to acquire quality claim",
				zap.String("claim_key", key),
				zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to acquire quality claim")
		}
		if !acquired {
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if err := s.claimer.Release(ctx, key); err != nil {
				s.logger.Warn("Failed to release quality claim",
					zap.String("claim_key", key),
					zap.Error(err))
			}
		}()
	}

	groups, err := s.outcomeRepo.DistinctGroups(ctx, tenantID, period)
	if err != nil {
		s.logger.Error("Failed to list outcome groups",
			zap.String("tenant_id", tenantID.String()),
			zap.String("period", period),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to list outcome groups")
	}

	for _, group := range groups {
		result, err := s.recalcGroup(ctx, tenantID, group.RecommendationType, group.ClientID, period)
		if err != nil {
			s.logger.Warn("Quality recalculation failed for group",
				zap.String("tenant_id", tenantID.String()),
				zap.String("recommendation_type", group.RecommendationType),
				zap.Error(err))
			report.Failures = append(report.Failures, RecalculationFailure{
				RecommendationType: group.RecommendationType,
				ClientID:           group.ClientID,
				Error:              err.Error(),
			})
			continue
		}
		report.GroupsRecalculated++
		report.BreachesDetected += result.breaches
		report.SignalsEmitted += result.emitted
		report.DuplicatesSuppressed += result.duplicates
	}

	s.logger.Info("Quality recalculation completed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("period", period),
		zap.Int("groups", report.GroupsRecalculated),
		zap.Int("breaches", report.BreachesDetected),
		zap.Int("signals_emitted", report.SignalsEmitted))

	return report, nil
}

type groupRecalcResult struct {
	breaches   int
	emitted    int
	duplicates int
}

// recalcGroup recomputes one (type, client, period) metric row, upserts it
// and emits an internal signal per tripped calibration rule. Re-emitted
// breaches over unchanged data dedup away at ingest.
func (s *FeedbackService) recalcGroup(ctx context.Context, tenantID uuid.UUID, recommendationType string, clientID *uuid.UUID, period string) (groupRecalcResult, error) {
	var result groupRecalcResult

	outcomes, err := s.outcomeRepo.ListForPeriod(ctx, tenantID, recommendationType, clientID, period)
	if err != nil {
		return result, shared.NewDomainError("INTERNAL_ERROR", "Failed to load outcomes for period")
	}

	m, err := outcome.ComputeQualityMetric(tenantID, recommendationType, clientID, period, outcomes)
	if err != nil {
		return result, err
	}

	if err := s.qualityRepo.Upsert(ctx, m); err != nil {
		return result, shared.NewDomainError("INTERNAL_ERROR", "Failed to store quality metric")
	}

	for _, breach := range outcome.EvaluateCalibration(m) {
		result.breaches++

		sig, duplicate, err := s.emitter.EmitSignal(ctx, tenantID, signal.SourceInternal, signal.Payload(breach.SignalPayload(m)))
		if err != nil {
			s.logger.Error("Failed to emit calibration signal",
				zap.String("rule", breach.Rule),
				zap.String("recommendation_type", recommendationType),
				zap.Error(err))
			continue
		}
		if duplicate {
			result.duplicates++
		} else {
			result.emitted++
		}

		s.logger.Info("Calibration breach raised",
			zap.String("tenant_id", tenantID.String()),
			zap.String("rule", breach.Rule),
			zap.String("signal_id", sig.ID.String()),
			zap.Float64("value", breach.Value),
			zap.Bool("deduplicated", duplicate))
	}

	return result, nil
}

// refreshGroupOf recomputes the metric row holding the outcome, keyed by
// its capture month so late lifecycle updates land on the right period.
// Failures are logged, not propagated: the outcome change already stuck
// and the next recalculation pass catches the row up.
func (s *FeedbackService) refreshGroupOf(ctx context.Context, o *outcome.Outcome) {
	period := outcome.PeriodOf(o.CreatedAt)
	if _, err := s.recalcGroup(ctx, o.TenantID, o.RecommendationType, o.ClientID, period); err != nil {
		s.logger.Error("Failed to refresh quality metrics",
			zap.String("outcome_id", o.ID.String()),
			zap.String("recommendation_type", o.RecommendationType),
			zap.String("period", period),
			zap.Error(err))
	}
}

func (s *FeedbackService) findOutcome(ctx context.Context, tenantID, outcomeID uuid.UUID) (*outcome.Outcome, error) {
	o, err := s.outcomeRepo.FindByID(ctx, tenantID, outcomeID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("OUTCOME_NOT_FOUND", "Outcome not found")
		}
		s.logger.Error("Failed to find outcome",
			zap.String("outcome_id", outcomeID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to find outcome")
	}
	return o, nil
}

// publishEvents hands the aggregate's pending events to the bus.
// Non-blocking: a publish failure is logged and the operation proceeds.
func (s *FeedbackService) publishEvents(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish domain events", zap.Error(err))
	}
	agg.ClearDomainEvents()
}
