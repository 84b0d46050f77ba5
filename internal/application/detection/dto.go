package detection

import (
	"time"

	"github.com/clientpulse/backend/internal/domain/anomaly"
	"github.com/google/uuid"
)

// Observation is one daily metric reading submitted for a client
type Observation struct {
	Metric     string    `json:"metric" binding:"required"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at" binding:"required"`
}

// ClientScanReport summarizes one client detection run
type ClientScanReport struct {
	ClientID             uuid.UUID `json:"client_id"`
	Skipped              bool      `json:"skipped"`
	MetricsScanned       int       `json:"metrics_scanned"`
	AnomaliesFound       int       `json:"anomalies_found"`
	SignalsEmitted       int       `json:"signals_emitted"`
	DuplicatesSuppressed int       `json:"duplicates_suppressed"`
}

// ClientScanFailure records one client whose scan failed during a tenant run
type ClientScanFailure struct {
	ClientID uuid.UUID `json:"client_id"`
	Error    string    `json:"error"`
}

// TenantScanReport summarizes a tenant-wide detection run. Failures are
// partial: the run continues past a broken client and reports it here.
type TenantScanReport struct {
	TenantID             uuid.UUID           `json:"tenant_id"`
	ClientsScanned       int                 `json:"clients_scanned"`
	ClientsSkipped       int                 `json:"clients_skipped"`
	AnomaliesFound       int                 `json:"anomalies_found"`
	SignalsEmitted       int                 `json:"signals_emitted"`
	DuplicatesSuppressed int                 `json:"duplicates_suppressed"`
	Failures             []ClientScanFailure `json:"failures,omitempty"`
}

// AnomalyResponse represents a graded detection in API responses
type AnomalyResponse struct {
	ID            uuid.UUID  `json:"id"`
	ClientID      uuid.UUID  `json:"client_id"`
	Metric        string     `json:"metric"`
	Type          string     `json:"type"`
	ObservedValue float64    `json:"observed_value"`
	ExpectedValue float64    `json:"expected_value"`
	ZScore        float64    `json:"z_score"`
	PercentChange float64    `json:"percent_change"`
	Confidence    float64    `json:"confidence"`
	Severity      string     `json:"severity"`
	IQROutlier    bool       `json:"iqr_outlier"`
	FalsePositive bool       `json:"false_positive"`
	Reason        string     `json:"reason,omitempty"`
	SampleSize    int        `json:"sample_size"`
	ObservedAt    time.Time  `json:"observed_at"`
	SignalID      *uuid.UUID `json:"signal_id,omitempty"`
	Emitted       bool       `json:"emitted"`
}

// ToAnomalyResponse converts a domain Anomaly to an AnomalyResponse
func ToAnomalyResponse(a *anomaly.Anomaly) *AnomalyResponse {
	if a == nil {
		return nil
	}
	return &AnomalyResponse{
		ID:            a.ID,
		ClientID:      a.ClientID,
		Metric:        string(a.Metric),
		Type:          a.Type,
		ObservedValue: a.ObservedValue,
		ExpectedValue: a.ExpectedValue,
		ZScore:        a.ZScore,
		PercentChange: a.PercentChange,
		Confidence:    a.Confidence,
		Severity:      string(a.Severity),
		IQROutlier:    a.IQROutlier,
		FalsePositive: a.IsFalsePositive,
		Reason:        a.FalsePositiveReason,
		SampleSize:    a.SampleSize,
		ObservedAt:    a.ObservedAt,
		SignalID:      a.SignalID,
		Emitted:       a.Emitted,
	}
}

// ThresholdOverrideRequest tunes detection for a tenant or a single client.
// Nil fields keep the per-metric default.
type ThresholdOverrideRequest struct {
	ClientID      *uuid.UUID `json:"client_id,omitempty"`
	Metric        string     `json:"metric" binding:"required"`
	ZScore        *float64   `json:"z_score,omitempty"`
	PercentChange *float64   `json:"percent_change,omitempty"`
	MinDataPoints *int       `json:"min_data_points,omitempty"`
	Enabled       *bool      `json:"enabled,omitempty"`
}
