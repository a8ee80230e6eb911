// Package metricquery is a small predicate IR for metric-store reads.
//
// Every read the verification service issues is built here first and only
// then compiled to SQL, so the provenance filter (tenant, mock flag, source
// prefix) can be inspected and asserted on without parsing SQL.
//
// Predicate is a sealed interface: only types in this package implement it,
// and Compile switches over them exhaustively.
package metricquery

import "github.com/roach88/seedkit/internal/provenance"

// Column is a filterable metrics column.
type Column string

const (
	ColTenantID   Column = "tenant_id"
	ColIsMockData Column = "is_mock_data"
	ColSource     Column = "source"
	ColMetricDate Column = "metric_date"
	ColPlatform   Column = "platform"
	ColCampaignID Column = "campaign_id"
)

var knownColumns = map[Column]bool{
	ColTenantID:   true,
	ColIsMockData: true,
	ColSource:     true,
	ColMetricDate: true,
	ColPlatform:   true,
	ColCampaignID: true,
}

// Predicate is a filter over metric rows.
type Predicate interface {
	predicateNode()
}

// Eq matches rows whose column equals Value.
type Eq struct {
	Column Column
	Value  any
}

func (Eq) predicateNode() {}

// HasPrefix matches rows whose text column starts with Prefix.
type HasPrefix struct {
	Column Column
	Prefix string
}

func (HasPrefix) predicateNode() {}

// Within matches rows whose metric_date lies in [From, To]. Dates are
// YYYY-MM-DD strings, which order correctly as text.
type Within struct {
	From string
	To   string
}

func (Within) predicateNode() {}

// Outside matches rows whose metric_date lies outside [From, To].
type Outside struct {
	From string
	To   string
}

func (Outside) predicateNode() {}

// And matches rows satisfying every predicate. An empty And matches all rows.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// AllOf returns And over ps with nested Ands flattened.
func AllOf(ps ...Predicate) And {
	var flat []Predicate
	for _, p := range ps {
		flat = append(flat, Conjuncts(p)...)
	}
	return And{Predicates: flat}
}

// Conjuncts flattens nested Ands into their leaf predicates.
func Conjuncts(p Predicate) []Predicate {
	switch v := p.(type) {
	case nil:
		return nil
	case And:
		var out []Predicate
		for _, c := range v.Predicates {
			out = append(out, Conjuncts(c)...)
		}
		return out
	case *And:
		return Conjuncts(*v)
	default:
		return []Predicate{p}
	}
}

// Provenance is the strict toolkit filter: the tenant's rows flagged as mock
// data whose source carries the toolkit prefix.
func Provenance(tenantID string) And {
	return AllOf(
		Eq{Column: ColTenantID, Value: tenantID},
		Eq{Column: ColIsMockData, Value: true},
		HasPrefix{Column: ColSource, Prefix: provenance.SourcePrefix},
	)
}

// MistaggedProvenance selects the tenant's rows that carry the toolkit source
// prefix but are not flagged as mock data. Any match is a tagging bug.
func MistaggedProvenance(tenantID string) And {
	return AllOf(
		Eq{Column: ColTenantID, Value: tenantID},
		Eq{Column: ColIsMockData, Value: false},
		HasPrefix{Column: ColSource, Prefix: provenance.SourcePrefix},
	)
}

// MockFlag returns the is_mock_data value p requires, if any.
func MockFlag(p Predicate) (value, ok bool) {
	for _, c := range Conjuncts(p) {
		if eq, isEq := c.(Eq); isEq && eq.Column == ColIsMockData {
			b, isBool := eq.Value.(bool)
			return b, isBool
		}
	}
	return false, false
}

// SourcePrefix returns the source prefix p requires, if any.
func SourcePrefix(p Predicate) (string, bool) {
	for _, c := range Conjuncts(p) {
		if hp, isPrefix := c.(HasPrefix); isPrefix && hp.Column == ColSource {
			return hp.Prefix, true
		}
	}
	return "", false
}

// TenantID returns the tenant p is scoped to, if any.
func TenantID(p Predicate) (string, bool) {
	for _, c := range Conjuncts(p) {
		if eq, isEq := c.(Eq); isEq && eq.Column == ColTenantID {
			s, isString := eq.Value.(string)
			return s, isString
		}
	}
	return "", false
}
