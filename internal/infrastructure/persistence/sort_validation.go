package persistence

import (
	"strings"
)

// ValidateSortOrder folds direction input down to ASC or DESC. Anything
// that is not ASC, in any case or spacing, becomes DESC.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField only when the whitelist knows it,
// defaultField otherwise. Sort options arrive from callers as free text, so
// nothing unlisted may reach an ORDER BY clause.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// CommonSortFields covers the base columns every table carries.
var CommonSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// SignalSortFields is the ORDER BY whitelist for signal listings.
var SignalSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"source":       true,
	"type":         true,
	"urgency":      true,
	"status":       true,
	"received_at":  true,
	"processed_at": true,
}

// RoutingRuleSortFields is the ORDER BY whitelist for routing rule listings.
var RoutingRuleSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"source":     true,
	"priority":   true,
	"enabled":    true,
}

// AnomalySortFields is the ORDER BY whitelist for anomaly listings.
var AnomalySortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"metric":      true,
	"type":        true,
	"severity":    true,
	"confidence":  true,
	"observed_at": true,
}

// InsightSortFields is the ORDER BY whitelist for insight listings.
var InsightSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"category":       true,
	"type":           true,
	"severity":       true,
	"confidence":     true,
	"status":         true,
	"prioritized_at": true,
}

// PrioritySortFields is the ORDER BY whitelist for priority listings.
var PrioritySortFields = map[string]bool{
	"id":                 true,
	"created_at":         true,
	"updated_at":         true,
	"composite_score":    true,
	"bucket":             true,
	"status":             true,
	"recommended_due_at": true,
	"acted_at":           true,
}

// OutcomeSortFields is the ORDER BY whitelist for outcome listings.
var OutcomeSortFields = map[string]bool{
	"id":                  true,
	"created_at":          true,
	"updated_at":          true,
	"recommendation_type": true,
	"status":              true,
	"accepted_at":         true,
	"completed_at":        true,
	"measured_at":         true,
}

// QualityMetricSortFields is the ORDER BY whitelist for quality metric listings.
var QualityMetricSortFields = map[string]bool{
	"id":                  true,
	"created_at":          true,
	"updated_at":          true,
	"recommendation_type": true,
	"period":              true,
	"sample_size":         true,
	"quality_score":       true,
}
