// Package scenario loads and validates named scenario definitions.
//
// A scenario file lives in a fixed base directory and is named after its id
// (for example checkout-growth.yaml). The loader resolves an id by exact file
// name first, then by scanning every file's aliases. Parsed documents pass a
// validate-then-construct step; a *Spec is never built from unchecked input.
package scenario

import (
	"fmt"
	"time"
)

// Trend shapes generated metrics over the scenario window.
type Trend string

const (
	TrendStable  Trend = "STABLE"
	TrendGrowth  Trend = "GROWTH"
	TrendDecline Trend = "DECLINE"
	TrendSpike   Trend = "SPIKE"
)

// Trends lists every accepted trend in declaration order.
var Trends = []Trend{TrendStable, TrendGrowth, TrendDecline, TrendSpike}

// Valid reports whether t is one of the declared trends.
func (t Trend) Valid() bool {
	for _, v := range Trends {
		if t == v {
			return true
		}
	}
	return false
}

const (
	DefaultDays            = 30
	MinDays                = 1
	MaxDays                = 365
	MaxBaseImpressions     = 1_000_000
	DefaultBaseImpressions = 10_000
)

// DefaultAnchorString is the fixed anchor used when a scenario omits
// dateAnchor. It never depends on the wall clock.
const DefaultAnchorString = "2024-01-01T00:00:00.000Z"

// DefaultAnchor is DefaultAnchorString as a time.
var DefaultAnchor = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// AnchorLayout formats a dateAnchor decoded as a YAML timestamp.
const AnchorLayout = "2006-01-02T15:04:05.000Z07:00"

// DateLayout is the calendar-day format used for metric dates and windows.
const DateLayout = "2006-01-02"

// Spec is a validated scenario definition.
type Spec struct {
	SchemaVersion   string   `json:"schemaVersion"`
	ScenarioID      string   `json:"scenarioId"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Trend           Trend    `json:"trend"`
	Days            int      `json:"days"`
	BaseImpressions float64  `json:"baseImpressions,omitempty"`
	DateAnchor      string   `json:"dateAnchor,omitempty"`
	Aliases         []string `json:"aliases"`

	// Path is the file the spec was read from.
	Path string `json:"-"`

	anchor    time.Time
	hasAnchor bool
}

// Summary is the listing entry for one scenario.
type Summary struct {
	ScenarioID string   `json:"scenarioId"`
	Name       string   `json:"name"`
	Trend      Trend    `json:"trend"`
	Days       int      `json:"days"`
	Aliases    []string `json:"aliases"`
}

// Summary returns the listing entry for s.
func (s *Spec) Summary() Summary {
	return Summary{
		ScenarioID: s.ScenarioID,
		Name:       s.Name,
		Trend:      s.Trend,
		Days:       s.Days,
		Aliases:    append([]string{}, s.Aliases...),
	}
}

// Anchor returns the parsed dateAnchor, or DefaultAnchor when none was set.
func (s *Spec) Anchor() time.Time {
	if !s.hasAnchor {
		return DefaultAnchor
	}
	return s.anchor
}

// Impressions returns the baseline daily impressions used for generation.
func (s *Spec) Impressions() int64 {
	if s.BaseImpressions <= 0 {
		return DefaultBaseImpressions
	}
	n := int64(s.BaseImpressions + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// EffectiveDays returns override when it is positive, else the scenario's days.
func (s *Spec) EffectiveDays(override int) int {
	if override > 0 {
		return override
	}
	if s.Days > 0 {
		return s.Days
	}
	return DefaultDays
}

// Window is an inclusive date range [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Window returns [anchor - days, anchor]. A non-positive days uses the
// scenario's own day count.
func (s *Spec) Window(days int) Window {
	d := s.EffectiveDays(days)
	end := s.Anchor()
	return Window{Start: end.AddDate(0, 0, -d), End: end}
}

// StartDate formats Start as YYYY-MM-DD.
func (w Window) StartDate() string { return w.Start.UTC().Format(DateLayout) }

// EndDate formats End as YYYY-MM-DD.
func (w Window) EndDate() string { return w.End.UTC().Format(DateLayout) }

// Contains reports whether the calendar date d (YYYY-MM-DD) lies in w.
func (w Window) Contains(d string) bool {
	return d >= w.StartDate() && d <= w.EndDate()
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.StartDate(), w.EndDate())
}
