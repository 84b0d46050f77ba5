// Package priority runs the scoring stage: open insights are graded on
// impact, urgency, confidence and resource fit, combined through the
// tenant's weights and bucketed into the action queue.
package priority

import (
	"context"
	"errors"
	"time"

	"github.com/clientpulse/backend/internal/domain/insight"
	"github.com/clientpulse/backend/internal/domain/priority"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StageName keys prioritization claims in the batch claim store
const StageName = "prioritization"

// DefaultBatchSize bounds how many open insights one run scores
const DefaultBatchSize = 100

// PrioritizationService scores open insights into the priority queue
type PrioritizationService struct {
	insightRepo  insight.InsightRepository
	priorityRepo priority.PriorityRepository
	weightsRepo  priority.WeightConfigRepository
	publisher    shared.EventPublisher
	claimer      shared.BatchClaimer
	claimCfg     shared.ClaimConfig
	logger       *zap.Logger
}

// NewPrioritizationService creates a new prioritization service
func NewPrioritizationService(
	insightRepo insight.InsightRepository,
	priorityRepo priority.PriorityRepository,
	weightsRepo priority.WeightConfigRepository,
	publisher shared.EventPublisher,
	claimer shared.BatchClaimer,
	claimCfg shared.ClaimConfig,
	logger *zap.Logger,
) *PrioritizationService {
	return &PrioritizationService{
		insightRepo:  insightRepo,
		priorityRepo: priorityRepo,
		weightsRepo:  weightsRepo,
		publisher:    publisher,
		claimer:      claimer,
		claimCfg:     claimCfg,
		logger:       logger,
	}
}

// ProcessInsights scores one batch of open insights for a tenant. Each
// scored insight gets a Priority row and moves to prioritised. A failed
// insight stays open for the next pass. A batch already claimed by another
// worker returns a skipped report.
func (s *PrioritizationService) ProcessInsights(ctx context.Context, tenantID uuid.UUID) (*PrioritizationReport, error) {
	report := &PrioritizationReport{TenantID: tenantID, ByBucket: make(map[string]int)}

	if s.claimCfg.Enabled {
		key := shared.StageClaimKey(StageName, tenantID)
		acquired, err := s.claimer.Acquire(ctx, key, s.claimCfg.TTL)
		if err != nil {
			s.logger.Error("Failed to acquire prioritization claim",
				zap.String("claim_key", key),
				zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to acquire prioritization claim")
		}
		if !acquired {
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if err := s.claimer.Release(ctx, key); err != nil {
				s.logger.Warn("Failed to release prioritization claim",
					zap.String("claim_key", key),
					zap.Error(err))
			}
		}()
	}

	weights, err := s.weightsRepo.Get(ctx, tenantID)
	if err != nil {
		s.logger.Error("Failed to load scoring weights",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load scoring weights")
	}
	scorer := priority.NewScorer(weights)

	open, err := s.insightRepo.FindOpen(ctx, tenantID, DefaultBatchSize)
	if err != nil {
		s.logger.Error("Failed to load open insights",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load open insights")
	}

	for _, ins := range open {
		if err := s.scoreOne(ctx, scorer, ins, report); err != nil {
			report.Failed++
			s.logger.Warn("Failed to prioritize insight",
				zap.String("insight_id", ins.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("Prioritization batch completed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("insights_scored", report.InsightsScored),
		zap.Int("failed", report.Failed))

	return report, nil
}

func (s *PrioritizationService) scoreOne(ctx context.Context, scorer *priority.Scorer, ins *insight.Insight, report *PrioritizationReport) error {
	breakdown := scorer.Score(ins)

	p, err := priority.NewPriority(ins.TenantID, ins.ID, breakdown)
	if err != nil {
		return err
	}

	if err := s.priorityRepo.Create(ctx, p); err != nil {
		return err
	}

	if err := ins.MarkPrioritised(); err != nil {
		return err
	}
	if err := s.insightRepo.Update(ctx, ins); err != nil {
		return err
	}

	s.publishEvents(ctx, p)
	s.publishEvents(ctx, ins)

	report.InsightsScored++
	report.ByBucket[string(p.Bucket)]++

	s.logger.Debug("Insight prioritized",
		zap.String("insight_id", ins.ID.String()),
		zap.String("priority_id", p.ID.String()),
		zap.Float64("composite", p.CompositeScore),
		zap.String("bucket", string(p.Bucket)))

	return nil
}

// PriorityQueue returns the tenant's pending priorities, highest composite
// score first
func (s *PrioritizationService) PriorityQueue(ctx context.Context, tenantID uuid.UUID, limit int) ([]PriorityResponse, error) {
	if limit <= 0 {
		limit = 50
	}

	queue, err := s.priorityRepo.Queue(ctx, tenantID, limit)
	if err != nil {
		s.logger.Error("Failed to load priority queue",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load priority queue")
	}

	responses := make([]PriorityResponse, len(queue))
	for i, p := range queue {
		responses[i] = *ToPriorityResponse(p)
	}
	return responses, nil
}

// MarkActed records that the team acted on a priority
func (s *PrioritizationService) MarkActed(ctx context.Context, tenantID, priorityID uuid.UUID) (*PriorityResponse, error) {
	p, err := s.findPriority(ctx, tenantID, priorityID)
	if err != nil {
		return nil, err
	}

	if err := p.MarkActed(); err != nil {
		return nil, err
	}

	if err := s.priorityRepo.Update(ctx, p); err != nil {
		s.logger.Error("Failed to update priority",
			zap.String("priority_id", priorityID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update priority")
	}

	s.publishEvents(ctx, p)

	s.logger.Info("Priority acted on",
		zap.String("tenant_id", tenantID.String()),
		zap.String("priority_id", priorityID.String()))

	return ToPriorityResponse(p), nil
}

// ExpireOverdue expires pending priorities whose recommended due date has
// passed. Returns how many were expired.
func (s *PrioritizationService) ExpireOverdue(ctx context.Context, tenantID uuid.UUID) (int, error) {
	overdue, err := s.priorityRepo.FindOverdue(ctx, tenantID, DefaultBatchSize)
	if err != nil {
		s.logger.Error("Failed to load overdue priorities",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return 0, shared.NewDomainError("INTERNAL_ERROR", "Failed to load overdue priorities")
	}

	expired := 0
	now := time.Now()
	for _, p := range overdue {
		if !p.IsOverdue(now) {
			continue
		}
		if err := p.MarkExpired(); err != nil {
			s.logger.Warn("Failed to expire priority",
				zap.String("priority_id", p.ID.String()),
				zap.Error(err))
			continue
		}
		if err := s.priorityRepo.Update(ctx, p); err != nil {
			s.logger.Error("Failed to persist priority expiry",
				zap.String("priority_id", p.ID.String()),
				zap.Error(err))
			continue
		}
		s.publishEvents(ctx, p)
		expired++
	}

	if expired > 0 {
		s.logger.Info("Overdue priorities expired",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("count", expired))
	}

	return expired, nil
}

// GetWeights returns the tenant's scoring weights
func (s *PrioritizationService) GetWeights(ctx context.Context, tenantID uuid.UUID) (*WeightsResponse, error) {
	weights, err := s.weightsRepo.Get(ctx, tenantID)
	if err != nil {
		s.logger.Error("Failed to load scoring weights",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load scoring weights")
	}
	normalized := weights.Normalized()
	return &WeightsResponse{
		Impact:     normalized.Impact,
		Urgency:    normalized.Urgency,
		Confidence: normalized.Confidence,
		Resource:   normalized.Resource,
	}, nil
}

// UpdateWeights replaces the tenant's scoring weights
func (s *PrioritizationService) UpdateWeights(ctx context.Context, tenantID uuid.UUID, req UpdateWeightsRequest) (*WeightsResponse, error) {
	weights := priority.WeightConfig{
		Impact:     req.Impact,
		Urgency:    req.Urgency,
		Confidence: req.Confidence,
		Resource:   req.Resource,
	}.Normalized()

	if err := s.weightsRepo.Save(ctx, tenantID, weights); err != nil {
		s.logger.Error("Failed to save scoring weights",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to save scoring weights")
	}

	s.logger.Info("Scoring weights updated",
		zap.String("tenant_id", tenantID.String()),
		zap.Float64("impact", weights.Impact),
		zap.Float64("urgency", weights.Urgency),
		zap.Float64("confidence", weights.Confidence),
		zap.Float64("resource", weights.Resource))

	return &WeightsResponse{
		Impact:     weights.Impact,
		Urgency:    weights.Urgency,
		Confidence: weights.Confidence,
		Resource:   weights.Resource,
	}, nil
}

func (s *PrioritizationService) findPriority(ctx context.Context, tenantID, priorityID uuid.UUID) (*priority.Priority, error) {
	p, err := s.priorityRepo.FindByID(ctx, tenantID, priorityID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("PRIORITY_NOT_FOUND", "Priority not found")
		}
		s.logger.Error("Failed to find priority",
			zap.String("priority_id", priorityID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to find priority")
	}
	return p, nil
}

// publishEvents hands the aggregate's pending events to the bus.
// Non-blocking: a publish failure is logged and the operation proceeds.
func (s *PrioritizationService) publishEvents(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish domain events", zap.Error(err))
	}
	agg.ClearDomainEvents()
}
