package signal

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// Built-in adapters for the five supported sources. Each adapter extracts
// the normalized type, infers urgency from source-specific heuristics and
// links the signal to a client when the raw event identifies one.

// AnalyticsAdapter normalizes metric events from analytics providers
// (web analytics, search console, ad spend trackers).
type AnalyticsAdapter struct{}

// Source implements Adapter
func (a *AnalyticsAdapter) Source() Source { return SourceAnalytics }

// Normalize implements Adapter. Detector-graded events carry an explicit
// severity which maps straight to urgency; otherwise urgency scales with
// the magnitude of the reported change: swings above 50% are critical,
// above 30% high. Metric observations (payloads naming a metric and a
// date) dedup on their identity fields so that re-measuring the same
// client, metric and day never produces a second signal.
func (a *AnalyticsAdapter) Normalize(raw Payload) (NormalizedSignal, error) {
	sigType := firstString(raw, "type", "event")
	if sigType == "" {
		sigType = "analytics_event"
	}

	urgency := UrgencyNormal
	switch raw.StringAt("severity") {
	case "critical":
		urgency = UrgencyCritical
	case "high":
		urgency = UrgencyHigh
	case "low":
		urgency = UrgencyLow
	case "medium":
		urgency = UrgencyNormal
	default:
		if pct, ok := raw.Float64At("percent_change"); ok {
			switch {
			case math.Abs(pct) > 50:
				urgency = UrgencyCritical
			case math.Abs(pct) > 30:
				urgency = UrgencyHigh
			}
		}
	}

	var basis Payload
	if metric := raw.StringAt("metric"); metric != "" {
		if date := raw.StringAt("date"); date != "" {
			basis = Payload{"metric": metric, "date": date}
			if clientID := firstString(raw, "client_id", "clientId"); clientID != "" {
				basis["client_id"] = clientID
			}
		}
	}

	return NormalizedSignal{
		Type:           sigType,
		Urgency:        urgency,
		Payload:        raw.Clone(),
		ClientID:       clientIDField(raw),
		CorrelationKey: correlationField(raw),
		DedupBasis:     basis,
	}, nil
}

// CRMAdapter normalizes deal and contact events from the CRM integration.
type CRMAdapter struct{}

// Source implements Adapter
func (a *CRMAdapter) Source() Source { return SourceCRM }

// Normalize implements Adapter. Deal-stage movement is the highest-value
// CRM event and maps to high urgency; everything else stays normal.
func (a *CRMAdapter) Normalize(raw Payload) (NormalizedSignal, error) {
	sigType := firstString(raw, "event", "type")
	if sigType == "" {
		sigType = "crm_event"
	}

	urgency := UrgencyNormal
	if strings.Contains(sigType, "deal_stage") || propertyChanged(raw, "dealstage", "deal_stage") {
		urgency = UrgencyHigh
	}

	correlation := correlationField(raw)
	if correlation == "" {
		if dealID := raw.StringAt("deal_id"); dealID != "" {
			correlation = "deal:" + dealID
		}
	}

	return NormalizedSignal{
		Type:           sigType,
		Urgency:        urgency,
		Payload:        raw.Clone(),
		ClientID:       clientIDField(raw),
		CorrelationKey: correlation,
	}, nil
}

// SocialAdapter normalizes mention and engagement events from social
// listening feeds.
type SocialAdapter struct{}

// Source implements Adapter
func (a *SocialAdapter) Source() Source { return SourceSocial }

// Normalize implements Adapter. Wide-reach negative mentions escalate to
// high urgency.
func (a *SocialAdapter) Normalize(raw Payload) (NormalizedSignal, error) {
	sigType := firstString(raw, "type", "event")
	if sigType == "" {
		sigType = "social_mention"
	}

	urgency := UrgencyNormal
	if raw.StringAt("sentiment") == "negative" {
		if reach, ok := raw.Float64At("reach"); ok && reach >= 10000 {
			urgency = UrgencyHigh
		}
	}

	correlation := correlationField(raw)
	if correlation == "" {
		if postID := raw.StringAt("post_id"); postID != "" {
			correlation = "post:" + postID
		}
	}

	return NormalizedSignal{
		Type:           sigType,
		Urgency:        urgency,
		Payload:        raw.Clone(),
		ClientID:       clientIDField(raw),
		CorrelationKey: correlation,
	}, nil
}

// InternalAdapter normalizes events emitted by our own subsystems:
// anomaly detections, calibration feedback, operational notices.
type InternalAdapter struct{}

// Source implements Adapter
func (a *InternalAdapter) Source() Source { return SourceInternal }

// Normalize implements Adapter. Internal emitters grade themselves via a
// severity field; the adapter maps it onto the urgency scale.
func (a *InternalAdapter) Normalize(raw Payload) (NormalizedSignal, error) {
	sigType := firstString(raw, "type", "event")
	if sigType == "" {
		sigType = "internal_event"
	}

	urgency := UrgencyNormal
	switch raw.StringAt("severity") {
	case "critical":
		urgency = UrgencyCritical
	case "high":
		urgency = UrgencyHigh
	case "low":
		urgency = UrgencyLow
	}

	return NormalizedSignal{
		Type:           sigType,
		Urgency:        urgency,
		Payload:        raw.Clone(),
		ClientID:       clientIDField(raw),
		CorrelationKey: correlationField(raw),
	}, nil
}

// WebhookAdapter normalizes generic inbound webhooks from sources without
// a dedicated adapter.
type WebhookAdapter struct{}

// Source implements Adapter
func (a *WebhookAdapter) Source() Source { return SourceWebhook }

// Normalize implements Adapter
func (a *WebhookAdapter) Normalize(raw Payload) (NormalizedSignal, error) {
	sigType := firstString(raw, "event", "type")
	if sigType == "" {
		sigType = "webhook_received"
	}

	urgency := Urgency(raw.StringAt("urgency"))
	if !urgency.IsValid() {
		urgency = UrgencyNormal
	}

	return NormalizedSignal{
		Type:           sigType,
		Urgency:        urgency,
		Payload:        raw.Clone(),
		ClientID:       clientIDField(raw),
		CorrelationKey: correlationField(raw),
	}, nil
}

// firstString returns the first non-empty string value among the keys
func firstString(raw Payload, keys ...string) string {
	for _, key := range keys {
		if v := raw.StringAt(key); v != "" {
			return v
		}
	}
	return ""
}

// clientIDField extracts a client UUID from the common key spellings
func clientIDField(raw Payload) *uuid.UUID {
	for _, key := range []string{"client_id", "clientId"} {
		if v := raw.StringAt(key); v != "" {
			if id, err := uuid.Parse(v); err == nil {
				return &id
			}
		}
	}
	return nil
}

// correlationField extracts an explicit correlation key if the source set one
func correlationField(raw Payload) string {
	return firstString(raw, "correlation_key", "correlationKey")
}

// propertyChanged reports whether the raw event lists any of the given
// property names in its changed-properties array
func propertyChanged(raw Payload, names ...string) bool {
	v, ok := raw.ValueAt("properties_changed")
	if !ok {
		return false
	}
	list, ok := v.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		prop := strings.ToLower(coerceString(item))
		for _, name := range names {
			if prop == name {
				return true
			}
		}
	}
	return false
}
