// Package telemetry hooks the worker up to Pyroscope for continuous
// profiling. This file carries the pprof label helpers stage code wraps
// hot paths in.
package telemetry

import (
	"context"
	"maps"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Label keys the pipeline profiles under. Values passing through here must
// stay low cardinality; Pyroscope keeps one profile series per combination.
const (
	// ProfilingLabelStage is the pipeline stage name.
	ProfilingLabelStage = "stage"
	// ProfilingLabelTenantID is the tenant owning the profiled work.
	ProfilingLabelTenantID = "tenant_id"
	// ProfilingLabelRegion names a code region inside a stage, such as
	// "detection_rules" or "db_query".
	ProfilingLabelRegion = "region"
)

// maxLabelValueLength bounds label values so a runaway payload cannot
// inflate the profile store.
const maxLabelValueLength = 128

// highCardinalityLabels are per-entity keys sanitizeLabels drops outright.
// Profile series stay bounded per tenant, never per signal or request.
// tenant_id is deliberately absent: tenant counts run low hundreds at most.
var highCardinalityLabels = map[string]bool{
	"user_id":     true,
	"request_id":  true,
	"signal_id":   true,
	"insight_id":  true,
	"priority_id": true,
	"trace_id":    true,
	"span_id":     true,
	"session_id":  true,
}

// WithProfilingLabels runs fn with labels attached to its profile samples.
// Labels go through sanitizeLabels first; when nothing survives, fn runs
// unlabeled.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// ProfilingScope accumulates labels before running a block under them.
// The stage executor builds one per job:
//
//	telemetry.NewProfilingScope(nil).
//		WithStage("detection").
//		WithTenantID(tenantID.String()).
//		Run(ctx, func(ctx context.Context) { ... })
type ProfilingScope struct {
	labels map[string]string
}

// NewProfilingScope starts a scope seeded with labels; nil is fine.
func NewProfilingScope(labels map[string]string) *ProfilingScope {
	scope := &ProfilingScope{labels: make(map[string]string, len(labels))}
	maps.Copy(scope.labels, labels)
	return scope
}

// WithLabel adds one label and returns the scope for chaining.
func (s *ProfilingScope) WithLabel(key, value string) *ProfilingScope {
	s.labels[key] = value
	return s
}

// WithStage labels the pipeline stage.
func (s *ProfilingScope) WithStage(stage string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelStage, stage)
}

// WithTenantID labels the tenant owning the work.
func (s *ProfilingScope) WithTenantID(tenantID string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelTenantID, tenantID)
}

// WithRegion labels a code region inside a stage.
func (s *ProfilingScope) WithRegion(region string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelRegion, region)
}

// Labels returns a copy of the accumulated labels.
func (s *ProfilingScope) Labels() map[string]string {
	out := make(map[string]string, len(s.labels))
	maps.Copy(out, s.labels)
	return out
}

// Run executes fn under the accumulated labels.
func (s *ProfilingScope) Run(ctx context.Context, fn func(context.Context)) {
	WithProfilingLabels(ctx, s.labels, fn)
}

// sanitizeLabels turns a label map into the flat key-value slice pyroscope
// takes. Keys are normalized to snake_case, per-entity and empty entries
// dropped, oversized values truncated. Output is sorted by key so repeated
// calls label identically.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if key == "" || value == "" {
			continue
		}

		// Normalize before the cardinality check so "Trace-ID" and
		// "trace_id" filter the same way.
		sanitized := sanitizeLabelKey(key)
		if sanitized == "" || highCardinalityLabels[sanitized] {
			continue
		}

		if len(value) > maxLabelValueLength {
			value = value[:maxLabelValueLength]
		}
		pairs = append(pairs, sanitized, value)
	}
	return pairs
}

// sanitizeLabelKey lowercases and snake_cases a key, dropping anything
// outside [a-z0-9_].
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")

	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			out = append(out, c)
		}
	}
	return string(out)
}
