// Package ingest is the pipeline's front door. The router service turns raw
// source events into stored, deduplicated signals and matches them against
// the tenant's routing rules. Downstream stages (detection, feedback) feed
// their own emissions back through the same service so every signal enters
// the pipeline by one path.
package ingest

import (
	"context"
	"errors"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/clientpulse/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RouterService handles signal ingestion, deduplication and routing
type RouterService struct {
	signalRepo signal.SignalRepository
	ruleRepo   signal.RoutingRuleRepository
	normalizer *signal.Normalizer
	publisher  shared.EventPublisher
	logger     *zap.Logger
}

// NewRouterService creates a new router service
func NewRouterService(
	signalRepo signal.SignalRepository,
	ruleRepo signal.RoutingRuleRepository,
	normalizer *signal.Normalizer,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *RouterService {
	return &RouterService{
		signalRepo: signalRepo,
		ruleRepo:   ruleRepo,
		normalizer: normalizer,
		publisher:  publisher,
		logger:     logger,
	}
}

// IngestSignal normalizes a raw source event, stores it and matches routing
// rules. Duplicates short-circuit: the stored winner is returned with
// IsDuplicate set and no routing happens.
func (s *RouterService) IngestSignal(ctx context.Context, tenantID uuid.UUID, source signal.Source, raw signal.Payload) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.signal",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrSignalSource, string(source)),
	)
	defer span.End()

	sig, err := s.normalizer.Normalize(tenantID, source, raw)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrSignalType, sig.Type)

	created, err := s.signalRepo.Create(ctx, sig)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("Failed to store signal",
			zap.String("tenant_id", tenantID.String()),
			zap.String("source", string(source)),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to store signal")
	}

	if !created {
		winner, err := s.signalRepo.FindByDedupHash(ctx, tenantID, sig.DedupHash)
		if err != nil {
			telemetry.RecordError(span, err)
			s.logger.Error("Failed to load deduplicated signal",
				zap.String("tenant_id", tenantID.String()),
				zap.String("dedup_hash", sig.DedupHash),
				zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load deduplicated signal")
		}

		telemetry.AddEvent(span, "duplicate_suppressed",
			telemetry.SpanAttrSignalID, winner.ID.String())
		s.logger.Debug("Duplicate signal suppressed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("signal_id", winner.ID.String()),
			zap.String("type", winner.Type))

		return &IngestResult{Signal: ToSignalResponse(winner), IsDuplicate: true}, nil
	}

	ruleIDs, workflowIDs := s.matchRoutes(ctx, sig)
	if len(ruleIDs) > 0 {
		sig.AddDomainEvent(signal.NewSignalRoutedEvent(sig, ruleIDs, workflowIDs))
	}

	s.publishEvents(ctx, sig)

	telemetry.SetAttributes(span,
		telemetry.SpanAttrSignalID, sig.ID.String(),
		"matching_routes", len(ruleIDs),
	)

	s.logger.Info("Signal ingested",
		zap.String("tenant_id", tenantID.String()),
		zap.String("signal_id", sig.ID.String()),
		zap.String("source", string(source)),
		zap.String("type", sig.Type),
		zap.String("urgency", string(sig.Urgency)),
		zap.Int("matching_routes", len(ruleIDs)))

	return &IngestResult{
		Signal:             ToSignalResponse(sig),
		IsDuplicate:        false,
		MatchingRouteIDs:   ruleIDs,
		TriggeredWorkflows: workflowIDs,
	}, nil
}

// EmitSignal ingests an internally produced event and reports the stored
// signal. Detection and calibration use this to feed their findings back
// into the pipeline; idempotent re-emissions land on the stored winner.
func (s *RouterService) EmitSignal(ctx context.Context, tenantID uuid.UUID, source signal.Source, payload signal.Payload) (*signal.Signal, bool, error) {
	sig, err := s.normalizer.Normalize(tenantID, source, payload)
	if err != nil {
		return nil, false, err
	}

	created, err := s.signalRepo.Create(ctx, sig)
	if err != nil {
		s.logger.Error("Failed to store emitted signal",
			zap.String("tenant_id", tenantID.String()),
			zap.String("source", string(source)),
			zap.Error(err))
		return nil, false, shared.NewDomainError("INTERNAL_ERROR", "Failed to store signal")
	}

	if !created {
		winner, err := s.signalRepo.FindByDedupHash(ctx, tenantID, sig.DedupHash)
		if err != nil {
			return nil, false, shared.NewDomainError("INTERNAL_ERROR", "Failed to load deduplicated signal")
		}
		return winner, true, nil
	}

	s.publishEvents(ctx, sig)

	return sig, false, nil
}

// RetrySignal requeues a failed signal for another pipeline pass
func (s *RouterService) RetrySignal(ctx context.Context, tenantID, signalID uuid.UUID) (*SignalResponse, error) {
	sig, err := s.findSignal(ctx, tenantID, signalID)
	if err != nil {
		return nil, err
	}

	if err := sig.ScheduleRetry(); err != nil {
		return nil, err
	}

	if err := s.signalRepo.Update(ctx, sig); err != nil {
		s.logger.Error("Failed to update signal",
			zap.String("signal_id", signalID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to update signal")
	}

	s.publishEvents(ctx, sig)

	s.logger.Info("Signal retry scheduled",
		zap.String("tenant_id", tenantID.String()),
		zap.String("signal_id", signalID.String()),
		zap.Int("retry_count", sig.RetryCount))

	return ToSignalResponse(sig), nil
}

// GetSignal retrieves one signal by ID
func (s *RouterService) GetSignal(ctx context.Context, tenantID, signalID uuid.UUID) (*SignalResponse, error) {
	sig, err := s.findSignal(ctx, tenantID, signalID)
	if err != nil {
		return nil, err
	}
	return ToSignalResponse(sig), nil
}

// ListSignals retrieves a paginated list of a tenant's signals
func (s *RouterService) ListSignals(ctx context.Context, tenantID uuid.UUID, filter SignalListFilter) (*SignalListResponse, error) {
	domainFilter := shared.DefaultFilter()
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}
	if filter.Status != nil {
		status := signal.Status(*filter.Status)
		if !status.IsValid() {
			return nil, shared.NewDomainError("INVALID_STATUS", "Invalid status filter")
		}
		domainFilter.Filters["status"] = string(status)
	}
	if filter.Source != nil {
		source := signal.Source(*filter.Source)
		if !source.IsValid() {
			return nil, signal.NewUnsupportedSourceError(source)
		}
		domainFilter.Filters["source"] = string(source)
	}

	signals, err := s.signalRepo.FindAllForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		s.logger.Error("Failed to list signals",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to list signals")
	}

	return ToSignalListResponse(signals, domainFilter.Page, domainFilter.PageSize), nil
}

// matchRoutes evaluates the tenant's routing rules against the signal. Rule
// failures are logged, not propagated: a stored signal stays stored even
// when routing cannot run.
func (s *RouterService) matchRoutes(ctx context.Context, sig *signal.Signal) ([]uuid.UUID, []uuid.UUID) {
	rules, err := s.ruleRepo.FindMatching(ctx, sig.TenantID, sig.Source, sig.Type)
	if err != nil {
		s.logger.Error("Failed to load routing rules",
			zap.String("tenant_id", sig.TenantID.String()),
			zap.String("signal_id", sig.ID.String()),
			zap.Error(err))
		return nil, nil
	}

	var ruleIDs, workflowIDs []uuid.UUID
	for i := range rules {
		rule := &rules[i]
		if !rule.MatchesSignal(sig) {
			continue
		}
		ruleIDs = append(ruleIDs, rule.ID)
		workflowIDs = append(workflowIDs, rule.WorkflowID)
	}

	return ruleIDs, workflowIDs
}

func (s *RouterService) findSignal(ctx context.Context, tenantID, signalID uuid.UUID) (*signal.Signal, error) {
	sig, err := s.signalRepo.FindByID(ctx, tenantID, signalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("SIGNAL_NOT_FOUND", "Signal not found")
		}
		s.logger.Error("Failed to find signal",
			zap.String("signal_id", signalID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to find signal")
	}
	return sig, nil
}

// publishEvents hands the aggregate's pending events to the bus.
// Non-blocking: a publish failure is logged and the operation proceeds.
func (s *RouterService) publishEvents(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish domain events", zap.Error(err))
	}
	agg.ClearDomainEvents()
}
