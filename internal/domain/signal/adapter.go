package signal

import (
	"fmt"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// NormalizedSignal is the adapter output: the source-specific raw event
// reduced to the fields the pipeline understands.
type NormalizedSignal struct {
	// Type is the normalized signal type (e.g. "traffic_spike",
	// "deal_stage_changed")
	Type string
	// Urgency is the adapter's urgency inference; zero value falls back to
	// normal
	Urgency Urgency
	// Payload is the normalized event body
	Payload Payload
	// ClientID links the signal to a client account when the source
	// identifies one
	ClientID *uuid.UUID
	// CorrelationKey groups related signals across deliveries; empty means
	// uncorrelated
	CorrelationKey string
	// DedupBasis overrides the payload as hashing input for events whose
	// identity is narrower than their content. Nil means hash the payload.
	DedupBasis Payload
}

// Adapter normalizes raw events from one source into NormalizedSignals
type Adapter interface {
	// Source returns the source this adapter handles
	Source() Source
	// Normalize converts a raw event payload into a normalized signal
	Normalize(raw Payload) (NormalizedSignal, error)
}

// NewUnsupportedSourceError builds the typed error for unknown sources
func NewUnsupportedSourceError(source Source) *shared.DomainError {
	return shared.NewDomainError("UNSUPPORTED_SOURCE", fmt.Sprintf("No adapter registered for source %q", source))
}

// Normalizer dispatches raw events to the adapter registered for their
// source and builds the resulting Signal aggregate.
type Normalizer struct {
	adapters map[Source]Adapter
}

// NewNormalizer creates a normalizer with the built-in adapters registered
func NewNormalizer() *Normalizer {
	n := &Normalizer{adapters: make(map[Source]Adapter)}
	n.Register(&AnalyticsAdapter{})
	n.Register(&CRMAdapter{})
	n.Register(&SocialAdapter{})
	n.Register(&InternalAdapter{})
	n.Register(&WebhookAdapter{})
	return n
}

// Register adds or replaces the adapter for its source
func (n *Normalizer) Register(a Adapter) {
	n.adapters[a.Source()] = a
}

// Supports returns true when an adapter is registered for the source
func (n *Normalizer) Supports(source Source) bool {
	_, ok := n.adapters[source]
	return ok
}

// Normalize runs the source's adapter over the raw event and constructs a
// pending Signal. Unknown sources return an UNSUPPORTED_SOURCE error.
func (n *Normalizer) Normalize(tenantID uuid.UUID, source Source, raw Payload) (*Signal, error) {
	adapter, ok := n.adapters[source]
	if !ok {
		return nil, NewUnsupportedSourceError(source)
	}

	normalized, err := adapter.Normalize(raw)
	if err != nil {
		return nil, err
	}

	return NewSignal(tenantID, source, normalized)
}
