package signal

import (
	"strings"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeRoutingRule = "RoutingRule"

// FilterOperator is a payload filter comparison operator
type FilterOperator string

const (
	FilterOpEquals      FilterOperator = "eq"
	FilterOpNotEquals   FilterOperator = "neq"
	FilterOpContains    FilterOperator = "contains"
	FilterOpGreaterThan FilterOperator = "gt"
	FilterOpLessThan    FilterOperator = "lt"
	FilterOpExists      FilterOperator = "exists"
)

// IsValid returns true if the operator is a known value
func (op FilterOperator) IsValid() bool {
	switch op {
	case FilterOpEquals, FilterOpNotEquals, FilterOpContains, FilterOpGreaterThan, FilterOpLessThan, FilterOpExists:
		return true
	}
	return false
}

// PayloadFilter is one condition of a routing rule, evaluated against a
// dotted path into the signal payload.
type PayloadFilter struct {
	Path     string         `json:"path"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value,omitempty"`
}

// Matches evaluates the filter against a payload. A missing path is
// undefined: it satisfies only exists=false and fails every other operator.
func (f PayloadFilter) Matches(p Payload) bool {
	value, present := p.ValueAt(f.Path)

	if f.Operator == FilterOpExists {
		want := true
		if b, ok := f.Value.(bool); ok {
			want = b
		} else if s := coerceString(f.Value); s == "false" {
			want = false
		}
		return present == want
	}

	if !present {
		return false
	}

	switch f.Operator {
	case FilterOpEquals:
		return filterEquals(value, f.Value)
	case FilterOpNotEquals:
		return !filterEquals(value, f.Value)
	case FilterOpContains:
		return filterContains(value, f.Value)
	case FilterOpGreaterThan:
		return filterCompare(value, f.Value) > 0
	case FilterOpLessThan:
		return filterCompare(value, f.Value) < 0
	default:
		return false
	}
}

// filterEquals compares numerically when both sides are numeric, otherwise
// by case-insensitive string form
func filterEquals(actual, expected any) bool {
	if a, ok := coerceFloat64(actual); ok {
		if e, ok := coerceFloat64(expected); ok {
			return a == e
		}
	}
	return strings.EqualFold(coerceString(actual), coerceString(expected))
}

// filterContains handles substring matches on strings and membership on
// arrays
func filterContains(actual, expected any) bool {
	if list, ok := actual.([]any); ok {
		for _, item := range list {
			if filterEquals(item, expected) {
				return true
			}
		}
		return false
	}
	return strings.Contains(
		strings.ToLower(coerceString(actual)),
		strings.ToLower(coerceString(expected)),
	)
}

// filterCompare orders numerically when possible, falling back to string
// ordering. Returns -1, 0 or 1.
func filterCompare(actual, expected any) int {
	if a, ok := coerceFloat64(actual); ok {
		if e, ok := coerceFloat64(expected); ok {
			switch {
			case a < e:
				return -1
			case a > e:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(coerceString(actual), coerceString(expected))
}

// RoutingRule decides which workflows a signal triggers. Rules are
// tenant-scoped and match on source, type, an urgency allow-list and a
// conjunction of payload filters.
type RoutingRule struct {
	shared.TenantAggregateRoot
	Name string `json:"name"`
	// Source restricts the rule to one source; empty matches any
	Source Source `json:"source,omitempty"`
	// SignalType restricts the rule to one signal type; empty matches any
	SignalType string `json:"signal_type,omitempty"`
	// Urgencies is an allow-list; empty admits every urgency
	Urgencies []Urgency `json:"urgencies,omitempty"`
	// Filters are ANDed payload conditions
	Filters []PayloadFilter `json:"filters,omitempty"`
	// WorkflowID names the workflow to trigger; dispatch is the caller's
	// responsibility
	WorkflowID uuid.UUID `json:"workflow_id"`
	// Priority orders matched rules in ingest results (higher first)
	Priority int  `json:"priority"`
	Enabled  bool `json:"enabled"`
}

// NewRoutingRule creates an enabled routing rule
func NewRoutingRule(tenantID uuid.UUID, name string, workflowID uuid.UUID) (*RoutingRule, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if name == "" {
		return nil, shared.NewDomainError("RULE_NAME_REQUIRED", "Routing rule name is required")
	}
	if workflowID == uuid.Nil {
		return nil, shared.NewDomainError("WORKFLOW_REQUIRED", "Routing rule requires a workflow ID")
	}

	return &RoutingRule{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Name:                name,
		WorkflowID:          workflowID,
		Enabled:             true,
	}, nil
}

// RestrictSource limits the rule to signals from one source
func (r *RoutingRule) RestrictSource(source Source) error {
	if !source.IsValid() {
		return NewUnsupportedSourceError(source)
	}
	r.Source = source
	r.Touch()
	return nil
}

// RestrictType limits the rule to one signal type
func (r *RoutingRule) RestrictType(signalType string) {
	r.SignalType = signalType
	r.Touch()
}

// SetUrgencies replaces the urgency allow-list
func (r *RoutingRule) SetUrgencies(urgencies ...Urgency) error {
	for _, u := range urgencies {
		if !u.IsValid() {
			return shared.NewDomainError("INVALID_URGENCY", "Unknown urgency in allow-list")
		}
	}
	r.Urgencies = urgencies
	r.Touch()
	return nil
}

// AddFilter appends a payload filter condition
func (r *RoutingRule) AddFilter(filter PayloadFilter) error {
	if filter.Path == "" {
		return shared.NewDomainError("FILTER_PATH_REQUIRED", "Payload filter path is required")
	}
	if !filter.Operator.IsValid() {
		return shared.NewDomainError("INVALID_FILTER_OPERATOR", "Unknown payload filter operator")
	}
	r.Filters = append(r.Filters, filter)
	r.Touch()
	return nil
}

// Enable enables the rule
func (r *RoutingRule) Enable() {
	r.Enabled = true
	r.Touch()
	r.IncrementVersion()
}

// Disable disables the rule without deleting it
func (r *RoutingRule) Disable() {
	r.Enabled = false
	r.Touch()
	r.IncrementVersion()
}

// MatchesSignal evaluates the full rule against a signal
func (r *RoutingRule) MatchesSignal(s *Signal) bool {
	if !r.Enabled || s == nil {
		return false
	}
	if r.TenantID != s.TenantID {
		return false
	}
	if r.Source != "" && r.Source != s.Source {
		return false
	}
	if r.SignalType != "" && r.SignalType != s.Type {
		return false
	}
	if len(r.Urgencies) > 0 && !r.urgencyAllowed(s.Urgency) {
		return false
	}
	for _, filter := range r.Filters {
		if !filter.Matches(s.Payload) {
			return false
		}
	}
	return true
}

func (r *RoutingRule) urgencyAllowed(u Urgency) bool {
	for _, allowed := range r.Urgencies {
		if allowed == u {
			return true
		}
	}
	return false
}
