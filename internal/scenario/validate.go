package scenario

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/schemaversion"
)

// idPattern is the lowercase-kebab form shared by scenario ids and file stems.
var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// anchorPattern accepts strict ISO-8601 UTC timestamps such as
// 2024-01-01T00:00:00Z and 2024-01-01T00:00:00.000Z.
var anchorPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d{1,9})?Z$`)

// ValidID reports whether id is a well-formed scenario id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Validate checks a parsed scenario document and returns every violation
// found. It never stops at the first problem and has no side effects, so
// validating the same document twice yields the same list.
func Validate(raw map[string]any) []failure.Violation {
	var out []failure.Violation
	add := func(code failure.Code, field, format string, args ...any) {
		out = append(out, failure.Violation{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if err := schemaversion.Check(raw["schemaVersion"]); err != nil {
		add(failure.CodeInvalidSchemaVersion, "schemaVersion", "%s", err.Error())
	}

	if name, ok := raw["name"].(string); !ok || strings.TrimSpace(name) == "" {
		add(failure.CodeInvalidName, "name", "name is required and must be a non-empty string")
	}

	if v, present := raw["description"]; present && v != nil {
		if _, ok := v.(string); !ok {
			add(failure.CodeInvalidDescription, "description", "description must be a string")
		}
	}

	trend, ok := raw["trend"].(string)
	if !ok || !Trend(trend).Valid() {
		add(failure.CodeInvalidTrend, "trend", "trend is required and must be one of %s", joinTrends())
	}

	if v, present := raw["baseImpressions"]; present {
		n, ok := number(v)
		if !ok || n <= 0 || n > MaxBaseImpressions {
			add(failure.CodeInvalidBaseImpressions, "baseImpressions",
				"baseImpressions must be a number in (0, %d]", MaxBaseImpressions)
		}
	}

	if v, present := raw["days"]; present {
		n, ok := number(v)
		if !ok || n != math.Trunc(n) || n < MinDays || n > MaxDays {
			add(failure.CodeInvalidDays, "days", "days must be an integer in [%d, %d]", MinDays, MaxDays)
		}
	}

	if v, present := raw["dateAnchor"]; present {
		if _, err := parseAnchor(v); err != nil {
			add(failure.CodeInvalidDateAnchor, "dateAnchor", "%s", err.Error())
		}
	}

	if v, present := raw["aliases"]; present {
		if _, ok := stringSlice(v); !ok {
			add(failure.CodeInvalidAliases, "aliases", "aliases must be an array of strings")
		}
	}

	return out
}

// FromDocument validates raw and constructs the Spec for scenario id.
func FromDocument(id string, raw map[string]any) (*Spec, error) {
	if !ValidID(id) {
		return nil, failure.Input(failure.CodeInvalidScenarioID,
			"scenario id %q must match %s", id, idPattern.String())
	}
	if violations := Validate(raw); len(violations) > 0 {
		return nil, failure.FromViolations(fmt.Sprintf("invalid scenario %q", id), violations)
	}
	return build(raw, id, ""), nil
}

// build constructs a Spec from a document that passed Validate.
func build(raw map[string]any, id, path string) *Spec {
	s := &Spec{
		SchemaVersion: raw["schemaVersion"].(string),
		ScenarioID:    id,
		Name:          strings.TrimSpace(raw["name"].(string)),
		Trend:         Trend(raw["trend"].(string)),
		Days:          DefaultDays,
		Aliases:       []string{},
		Path:          path,
	}
	if d, ok := raw["description"].(string); ok {
		s.Description = d
	}
	if v, ok := raw["days"]; ok {
		n, _ := number(v)
		s.Days = int(n)
	}
	if v, ok := raw["baseImpressions"]; ok {
		s.BaseImpressions, _ = number(v)
	}
	if v, ok := raw["dateAnchor"]; ok {
		s.anchor, _ = parseAnchor(v)
		s.hasAnchor = true
		if str, isString := v.(string); isString {
			s.DateAnchor = str
		} else {
			s.DateAnchor = s.anchor.Format(AnchorLayout)
		}
	}
	if v, ok := raw["aliases"]; ok {
		s.Aliases, _ = stringSlice(v)
	}
	return s
}

// parseAnchor accepts an ISO-8601 UTC string or, for unquoted YAML
// timestamps, a time.Time in UTC.
func parseAnchor(v any) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		if t.Location() != time.UTC {
			return time.Time{}, fmt.Errorf("dateAnchor %s must be in UTC (use a Z suffix)", t.Format(time.RFC3339))
		}
		return t, nil
	}
	s, ok := v.(string)
	if !ok || !anchorPattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("dateAnchor must be an ISO-8601 UTC timestamp such as %s", DefaultAnchorString)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("dateAnchor %q is not a valid date", s)
	}
	return t.UTC(), nil
}

// number accepts the numeric types produced by the YAML and JSON decoders.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func stringSlice(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func joinTrends() string {
	parts := make([]string, len(Trends))
	for i, t := range Trends {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
