// Package rules evaluates aggregated campaign metrics against declarative
// rule catalogs.
//
// A rule is data: an id, a severity, a CEL boolean expression deciding
// whether it triggers and a text/template rendering its message. A single
// Evaluator interprets every rule, built-in or loaded from a CUE catalog.
package rules

import "math"

// Severity is the declared weight of a rule.
type Severity string

const (
	SeverityFail Severity = "FAIL"
	SeverityWarn Severity = "WARN"
	SeverityInfo Severity = "INFO"
)

// Valid reports whether s is a declared severity.
func (s Severity) Valid() bool {
	return s == SeverityFail || s == SeverityWarn || s == SeverityInfo
}

// Status is the outcome of one check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusWarn Status = "WARN"
	StatusInfo Status = "INFO"
)

// Category groups rules into catalogs.
type Category string

const (
	CategoryBusiness Category = "business"
	CategoryAnomaly  Category = "anomaly"
	CategoryCustom   Category = "custom"
)

// Rule is a declarative check over one Aggregate.
type Rule struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	// When is a CEL expression over the aggregate variables that must
	// evaluate to a bool.
	When string `json:"when"`
	// Message is a text/template rendered with the same variables.
	Message string `json:"message"`
}

// Check is the result of one rule against one aggregate, or of one of the
// verification service's own integrity checks.
type Check struct {
	RuleID   string         `json:"ruleId"`
	Name     string         `json:"name"`
	Status   Status         `json:"status"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// Aggregate is the per-campaign sum of metrics over a date window.
type Aggregate struct {
	CampaignID  string  `json:"campaignId"`
	Platform    string  `json:"platform"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
	IsMockData  bool    `json:"isMockData"`
	Source      string  `json:"source"`
}

// ROAS is revenue over spend, 0 when nothing was spent.
func (a Aggregate) ROAS() float64 { return ratio(a.Revenue, a.Spend) }

// CTR is clicks over impressions.
func (a Aggregate) CTR() float64 { return ratio(float64(a.Clicks), float64(a.Impressions)) }

// CVR is conversions over clicks.
func (a Aggregate) CVR() float64 { return ratio(float64(a.Conversions), float64(a.Clicks)) }

// Vars returns the variables visible to rule expressions and templates.
func (a Aggregate) Vars() map[string]any {
	return map[string]any{
		"campaign_id": a.CampaignID,
		"platform":    a.Platform,
		"impressions": a.Impressions,
		"clicks":      a.Clicks,
		"conversions": a.Conversions,
		"spend":       a.Spend,
		"revenue":     a.Revenue,
		"roas":        a.ROAS(),
		"ctr":         a.CTR(),
		"cvr":         a.CVR(),
	}
}

// Details is the aggregate attached to a triggered check.
func (a Aggregate) Details() map[string]any {
	return map[string]any{
		"campaignId":  a.CampaignID,
		"platform":    a.Platform,
		"impressions": a.Impressions,
		"clicks":      a.Clicks,
		"conversions": a.Conversions,
		"spend":       a.Spend,
		"revenue":     a.Revenue,
		"roas":        round4(a.ROAS()),
		"ctr":         round4(a.CTR()),
		"cvr":         round4(a.CVR()),
		"isMockData":  a.IsMockData,
		"source":      a.Source,
	}
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// BusinessRules is the built-in business-health catalog.
func BusinessRules() []Rule {
	return []Rule{
		{
			ID:       "BIZ-001",
			Name:     "ROAS_BELOW_BREAK_EVEN",
			Category: CategoryBusiness,
			Severity: SeverityWarn,
			When:     "spend > 0.0 && roas < 1.0",
			Message:  `Loss: campaign {{.campaign_id}} on {{.platform}} has ROAS {{printf "%.2f" .roas}} (spend {{printf "%.2f" .spend}}, revenue {{printf "%.2f" .revenue}})`,
		},
		{
			ID:       "BIZ-002",
			Name:     "ROAS_CRITICAL",
			Category: CategoryBusiness,
			Severity: SeverityWarn,
			When:     "spend > 0.0 && roas < 0.5",
			Message:  `Critical Loss: campaign {{.campaign_id}} on {{.platform}} has ROAS {{printf "%.2f" .roas}}`,
		},
		{
			ID:       "BIZ-003",
			Name:     "SPEND_WITHOUT_CONVERSIONS",
			Category: CategoryBusiness,
			Severity: SeverityWarn,
			When:     "spend > 0.0 && conversions == 0",
			Message:  `No conversions: campaign {{.campaign_id}} on {{.platform}} spent {{printf "%.2f" .spend}} without converting`,
		},
	}
}

// AnomalyRules is the built-in data-sanity catalog.
func AnomalyRules() []Rule {
	return []Rule{
		{
			ID:       "ANOM-001",
			Name:     "CLICKS_EXCEED_IMPRESSIONS",
			Category: CategoryAnomaly,
			Severity: SeverityFail,
			When:     "clicks > impressions",
			Message:  `Impossible data: campaign {{.campaign_id}} has {{.clicks}} clicks but only {{.impressions}} impressions`,
		},
		{
			ID:       "ANOM-002",
			Name:     "NEGATIVE_SPEND",
			Category: CategoryAnomaly,
			Severity: SeverityFail,
			When:     "spend < 0.0",
			Message:  `Impossible data: campaign {{.campaign_id}} has negative spend {{printf "%.2f" .spend}}`,
		},
		{
			ID:       "ANOM-003",
			Name:     "NEGATIVE_COUNTERS",
			Category: CategoryAnomaly,
			Severity: SeverityFail,
			When:     "impressions < 0 || clicks < 0 || conversions < 0 || revenue < 0.0",
			Message:  `Impossible data: campaign {{.campaign_id}} has a negative counter`,
		},
		{
			ID:       "ANOM-004",
			Name:     "CONVERSIONS_EXCEED_CLICKS",
			Category: CategoryAnomaly,
			Severity: SeverityWarn,
			When:     "conversions > clicks",
			Message:  `Suspicious data: campaign {{.campaign_id}} has {{.conversions}} conversions from {{.clicks}} clicks`,
		},
	}
}
