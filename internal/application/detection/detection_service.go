// Package detection runs the statistical anomaly scans over recorded client
// metric series and feeds flagged detections back into the pipeline as
// analytics signals.
package detection

import (
	"context"

	"github.com/clientpulse/backend/internal/domain/anomaly"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/clientpulse/backend/internal/infrastructure/logger"
	"github.com/clientpulse/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StageName keys detection claims in the batch claim store
const StageName = "detection"

// SignalEmitter feeds detected anomalies into the ingest pipeline. The
// router service implements it; detection never touches signal storage
// directly.
type SignalEmitter interface {
	// EmitSignal ingests an internally produced event. Returns the stored
	// signal and whether it deduplicated onto an existing one.
	EmitSignal(ctx context.Context, tenantID uuid.UUID, source signal.Source, payload signal.Payload) (*signal.Signal, bool, error)
}

// DetectionService coordinates metric recording and anomaly scan runs
type DetectionService struct {
	seriesRepo   anomaly.MetricSeriesRepository
	anomalyRepo  anomaly.AnomalyRepository
	overrideRepo anomaly.ThresholdOverrideRepository
	emitter      SignalEmitter
	publisher    shared.EventPublisher
	claimer      shared.BatchClaimer
	claimCfg     shared.ClaimConfig
	detector     *anomaly.Detector
	logger       *zap.Logger
}

// NewDetectionService creates a new detection service
func NewDetectionService(
	seriesRepo anomaly.MetricSeriesRepository,
	anomalyRepo anomaly.AnomalyRepository,
	overrideRepo anomaly.ThresholdOverrideRepository,
	emitter SignalEmitter,
	publisher shared.EventPublisher,
	claimer shared.BatchClaimer,
	claimCfg shared.ClaimConfig,
	logger *zap.Logger,
) *DetectionService {
	return &DetectionService{
		seriesRepo:   seriesRepo,
		anomalyRepo:  anomalyRepo,
		overrideRepo: overrideRepo,
		emitter:      emitter,
		publisher:    publisher,
		claimer:      claimer,
		claimCfg:     claimCfg,
		detector:     anomaly.NewDetector(nil),
		logger:       logger,
	}
}

// RecordObservations stores a batch of daily metric readings for one client.
// Re-submitted days overwrite in place, they do not duplicate.
func (s *DetectionService) RecordObservations(ctx context.Context, tenantID, clientID uuid.UUID, observations []Observation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	points := make([]*anomaly.MetricPoint, 0, len(observations))
	for _, obs := range observations {
		point, err := anomaly.NewMetricPoint(tenantID, clientID, anomaly.MetricType(obs.Metric), obs.Value, obs.ObservedAt)
		if err != nil {
			return 0, err
		}
		points = append(points, point)
	}

	if err := s.seriesRepo.RecordBatch(ctx, points); err != nil {
		s.logger.Error("Failed to record metric observations",
			zap.String("tenant_id", tenantID.String()),
			zap.String("client_id", clientID.String()),
			zap.Int("count", len(points)),
			zap.Error(err))
		return 0, shared.NewDomainError("INTERNAL_ERROR", "Failed to record observations")
	}

	s.logger.Debug("Metric observations recorded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("client_id", clientID.String()),
		zap.Int("count", len(points)))

	return len(points), nil
}

// ScanClient runs anomaly detection over one client's metric history.
// Emittable detections become analytics signals; every graded detection is
// persisted for inspection. A scan already claimed by another worker returns
// a skipped report, not an error.
func (s *DetectionService) ScanClient(ctx context.Context, tenantID, clientID uuid.UUID) (*ClientScanReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "detection", "scan_client",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrClientID, clientID.String()),
	)
	defer span.End()

	report := &ClientScanReport{ClientID: clientID}

	if s.claimCfg.Enabled {
		key := shared.ClientClaimKey(StageName, tenantID, clientID)
		acquired, err := s.claimer.Acquire(ctx, key, s.claimCfg.TTL)
		if err != nil {
			telemetry.RecordError(span, err)
			s.logger.Error("Failed to acquire detection claim",
				zap.String("claim_key", key),
				zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to acquire scan claim")
		}
		if !acquired {
			telemetry.AddEvent(span, "scan_already_claimed", "claim_key", key)
			s.logger.Debug("Detection scan already claimed",
				zap.String("claim_key", key))
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if err := s.claimer.Release(ctx, key); err != nil {
				s.logger.Warn("Failed to release detection claim",
					zap.String("claim_key", key),
					zap.Error(err))
			}
		}()
	}

	overrides, err := s.overrideRepo.FindForTenant(ctx, tenantID)
	if err != nil {
		s.logger.Error("Failed to load threshold overrides",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load threshold overrides")
	}

	series := make(map[anomaly.MetricType][]anomaly.MetricPoint)
	for _, metric := range anomaly.AllMetricTypes() {
		points, err := s.seriesRepo.HistoryWindow(ctx, tenantID, clientID, metric, anomaly.HistoryWindowDays)
		if err != nil {
			s.logger.Error("Failed to load metric history",
				zap.String("tenant_id", tenantID.String()),
				zap.String("client_id", clientID.String()),
				zap.String("metric", string(metric)),
				zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to load metric history")
		}
		if len(points) == 0 {
			continue
		}
		series[metric] = points
		report.MetricsScanned++
	}

	// The rule pass dominates the scan's CPU time, so it gets its own
	// profiling region.
	var detections []*anomaly.Anomaly
	telemetry.NewProfilingScope(nil).
		WithRegion("detection_rules").
		WithTenantID(tenantID.String()).
		Run(ctx, func(context.Context) {
			detections = s.detector.DetectClient(tenantID, clientID, series, overrides)
		})
	report.AnomaliesFound = len(detections)

	for _, detection := range detections {
		if !detection.ShouldEmit() {
			continue
		}

		sig, duplicate, err := s.emitter.EmitSignal(ctx, tenantID, signal.SourceAnalytics, signal.Payload(detection.SignalPayload()))
		if err != nil {
			s.logger.Error("Failed to emit anomaly signal",
				zap.String("tenant_id", tenantID.String()),
				zap.String("client_id", clientID.String()),
				zap.String("anomaly_type", detection.Type),
				zap.Error(err))
			continue
		}

		detection.MarkEmitted(sig.ID)
		if duplicate {
			report.DuplicatesSuppressed++
		} else {
			report.SignalsEmitted++
		}
	}

	if len(detections) > 0 {
		if err := s.anomalyRepo.CreateBatch(ctx, detections); err != nil {
			s.logger.Error("Failed to persist detections",
				zap.String("tenant_id", tenantID.String()),
				zap.String("client_id", clientID.String()),
				zap.Int("count", len(detections)),
				zap.Error(err))
			return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to persist detections")
		}
		s.publishDetectionEvents(ctx, detections)
	}

	telemetry.SetAttributes(span,
		"metrics_scanned", report.MetricsScanned,
		"anomalies_found", report.AnomaliesFound,
		"signals_emitted", report.SignalsEmitted,
	)
	s.logger.Info("Client scan completed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("client_id", clientID.String()),
		zap.Int("metrics_scanned", report.MetricsScanned),
		zap.Int("anomalies_found", report.AnomaliesFound),
		zap.Int("signals_emitted", report.SignalsEmitted),
		zap.Int("duplicates_suppressed", report.DuplicatesSuppressed))

	return report, nil
}

// ScanTenant scans every client with recorded metrics. One client's failure
// does not stop the run; failures are collected in the report.
func (s *DetectionService) ScanTenant(ctx context.Context, tenantID uuid.UUID) (*TenantScanReport, error) {
	clients, err := s.seriesRepo.DistinctClients(ctx, tenantID)
	if err != nil {
		s.logger.Error("Failed to list clients for scan",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to list clients")
	}

	report := &TenantScanReport{TenantID: tenantID}
	for _, clientID := range clients {
		// The client id rides the context so query logs issued during this
		// scan attribute to the client.
		clientCtx, clientLog := logger.WithClientID(ctx, s.logger, clientID.String())
		clientReport, err := s.ScanClient(clientCtx, tenantID, clientID)
		if err != nil {
			clientLog.Warn("Client scan failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
			report.Failures = append(report.Failures, ClientScanFailure{
				ClientID: clientID,
				Error:    err.Error(),
			})
			continue
		}
		if clientReport.Skipped {
			report.ClientsSkipped++
			continue
		}
		report.ClientsScanned++
		report.AnomaliesFound += clientReport.AnomaliesFound
		report.SignalsEmitted += clientReport.SignalsEmitted
		report.DuplicatesSuppressed += clientReport.DuplicatesSuppressed
	}

	s.logger.Info("Tenant scan completed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("clients_scanned", report.ClientsScanned),
		zap.Int("clients_skipped", report.ClientsSkipped),
		zap.Int("anomalies_found", report.AnomaliesFound),
		zap.Int("failures", len(report.Failures)))

	return report, nil
}

// ListRecentAnomalies returns the newest graded detections for inspection
func (s *DetectionService) ListRecentAnomalies(ctx context.Context, tenantID uuid.UUID, clientID *uuid.UUID, limit int) ([]AnomalyResponse, error) {
	if limit <= 0 {
		limit = 50
	}

	detections, err := s.anomalyRepo.FindRecent(ctx, tenantID, clientID, limit)
	if err != nil {
		s.logger.Error("Failed to list detections",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to list detections")
	}

	responses := make([]AnomalyResponse, len(detections))
	for i, detection := range detections {
		responses[i] = *ToAnomalyResponse(detection)
	}
	return responses, nil
}

// publishDetectionEvents announces persisted detections on the bus.
// Non-blocking: a publish failure is logged and the scan proceeds.
func (s *DetectionService) publishDetectionEvents(ctx context.Context, detections []*anomaly.Anomaly) {
	events := make([]shared.DomainEvent, 0, len(detections))
	for _, detection := range detections {
		events = append(events, anomaly.NewAnomalyDetectedEvent(detection))
		if detection.Emitted && detection.SignalID != nil {
			events = append(events, anomaly.NewAnomalyEmittedEvent(detection, *detection.SignalID))
		}
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish detection events", zap.Error(err))
	}
}

// SaveThresholdOverride stores tenant or client level detection tuning
func (s *DetectionService) SaveThresholdOverride(ctx context.Context, tenantID uuid.UUID, req ThresholdOverrideRequest) error {
	override, err := anomaly.NewThresholdOverride(tenantID, req.ClientID, anomaly.MetricType(req.Metric))
	if err != nil {
		return err
	}
	override.ZScore = req.ZScore
	override.PercentChange = req.PercentChange
	override.MinDataPoints = req.MinDataPoints
	override.Enabled = req.Enabled

	if err := s.overrideRepo.Save(ctx, override); err != nil {
		s.logger.Error("Failed to save threshold override",
			zap.String("tenant_id", tenantID.String()),
			zap.String("metric", req.Metric),
			zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to save threshold override")
	}

	s.logger.Info("Threshold override saved",
		zap.String("tenant_id", tenantID.String()),
		zap.String("metric", req.Metric),
		zap.Bool("client_scoped", req.ClientID != nil))

	return nil
}

// DeleteThresholdOverride removes one stored override
func (s *DetectionService) DeleteThresholdOverride(ctx context.Context, tenantID, overrideID uuid.UUID) error {
	if err := s.overrideRepo.Delete(ctx, tenantID, overrideID); err != nil {
		s.logger.Error("Failed to delete threshold override",
			zap.String("tenant_id", tenantID.String()),
			zap.String("override_id", overrideID.String()),
			zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to delete threshold override")
	}
	return nil
}
