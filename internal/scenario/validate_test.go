package scenario

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/seedkit/internal/failure"
)

func validDoc() map[string]any {
	return map[string]any{
		"schemaVersion": "1.0.0",
		"name":          "Spike",
		"trend":         "SPIKE",
	}
}

func TestValidateFields(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
		want  failure.Code
	}{
		{"base impressions zero", "baseImpressions", 0, failure.CodeInvalidBaseImpressions},
		{"base impressions too big", "baseImpressions", 1_000_001, failure.CodeInvalidBaseImpressions},
		{"base impressions string", "baseImpressions", "100", failure.CodeInvalidBaseImpressions},
		{"days fractional", "days", 2.5, failure.CodeInvalidDays},
		{"days too many", "days", 366, failure.CodeInvalidDays},
		{"anchor without zone", "dateAnchor", "2024-01-01T00:00:00", failure.CodeInvalidDateAnchor},
		{"anchor date only", "dateAnchor", "2024-01-01", failure.CodeInvalidDateAnchor},
		{"anchor impossible month", "dateAnchor", "2024-13-01T00:00:00Z", failure.CodeInvalidDateAnchor},
		{"aliases not list", "aliases", "growth", failure.CodeInvalidAliases},
		{"aliases mixed", "aliases", []any{"a", 1}, failure.CodeInvalidAliases},
		{"description number", "description", 7, failure.CodeInvalidDescription},
		{"trend lowercase", "trend", "growth", failure.CodeInvalidTrend},
		{"name blank", "name", "   ", failure.CodeInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc()
			doc[tt.field] = tt.value

			violations := Validate(doc)
			if assert.Len(t, violations, 1) {
				assert.Equal(t, tt.want, violations[0].Code)
				assert.Equal(t, tt.field, violations[0].Field)
			}
		})
	}
}

func TestValidateAcceptsBoundaries(t *testing.T) {
	doc := validDoc()
	doc["days"] = 365
	doc["baseImpressions"] = 1_000_000
	doc["dateAnchor"] = "2024-02-29T12:30:00Z"
	doc["aliases"] = []any{}
	doc["description"] = nil

	assert.Empty(t, Validate(doc))
}

func TestValidateIsIdempotent(t *testing.T) {
	doc := map[string]any{"trend": 3, "days": -1, "aliases": 9}

	first := Validate(doc)
	second := Validate(doc)

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestWindowDefaultsToFixedAnchor(t *testing.T) {
	spec := build(validDoc(), "spike", "")

	w := spec.Window(0)
	assert.Equal(t, DefaultAnchor, w.End)
	assert.Equal(t, DefaultAnchor.AddDate(0, 0, -DefaultDays), w.Start)
	assert.Equal(t, "2023-12-02", w.StartDate())
	assert.Equal(t, "2024-01-01", w.EndDate())
	assert.True(t, w.Contains("2023-12-15"))
	assert.False(t, w.Contains("2024-01-02"))
}

func TestWindowUsesScenarioAnchorAndOverride(t *testing.T) {
	doc := validDoc()
	doc["dateAnchor"] = "2024-06-30T00:00:00.000Z"
	doc["days"] = 10
	spec := build(doc, "spike", "")

	assert.Equal(t, time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC), spec.Window(0).Start)
	assert.Equal(t, time.Date(2024, 6, 23, 0, 0, 0, 0, time.UTC), spec.Window(7).Start)
}

func TestAnchorAcceptsDecodedTimestamp(t *testing.T) {
	doc := validDoc()
	doc["dateAnchor"] = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	spec, err := FromDocument("spike", doc)
	assert.NoError(t, err)
	if assert.NotNil(t, spec) {
		assert.Equal(t, "2024-03-01T00:00:00.000Z", spec.DateAnchor)
		assert.Equal(t, "2024-03-01", spec.Window(0).EndDate())
	}
}

func TestAnchorRejectsNonUTCTimestamp(t *testing.T) {
	doc := validDoc()
	doc["dateAnchor"] = time.Date(2024, 3, 1, 0, 0, 0, 0, time.FixedZone("ICT", 7*3600))

	_, err := FromDocument("spike", doc)
	assert.Equal(t, failure.CodeInvalidDateAnchor, failure.CodeOf(err))
	assert.Contains(t, err.Error(), "must be in UTC")
}

func TestZeroAnchorIsKept(t *testing.T) {
	doc := validDoc()
	doc["dateAnchor"] = "0001-01-01T00:00:00Z"

	spec, err := FromDocument("spike", doc)
	assert.NoError(t, err)
	if assert.NotNil(t, spec) {
		assert.Equal(t, time.Time{}, spec.Anchor())
		assert.NotEqual(t, DefaultAnchor, spec.Anchor())
	}
}
