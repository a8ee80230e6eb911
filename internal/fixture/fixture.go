// Package fixture loads golden fixtures: JSON files that record the expected
// shape of a generation run together with a checksum over that shape.
//
// A fixture whose stored checksum does not match the recomputed checksum of
// its shape is untrusted and rejected.
package fixture

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roach88/seedkit/internal/canon"
	"github.com/roach88/seedkit/internal/schemaversion"
)

// PlatformShape is the per-platform part of a Shape.
type PlatformShape struct {
	Campaigns  int `json:"campaigns"`
	MetricRows int `json:"metricRows"`
}

// Shape summarises a generation run.
type Shape struct {
	TotalCampaigns  int                      `json:"totalCampaigns"`
	TotalMetricRows int                      `json:"totalMetricRows"`
	PerPlatform     map[string]PlatformShape `json:"perPlatform"`
}

// Platforms returns the shape's platforms in sorted order.
func (s Shape) Platforms() []string {
	out := make([]string, 0, len(s.PerPlatform))
	for p := range s.PerPlatform {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Diff returns a human-readable difference between got and want, or "" when
// they match field by field. A nil PerPlatform map equals an empty one.
func Diff(got, want Shape) string {
	return cmp.Diff(want, got, cmpopts.EquateEmpty())
}

// Golden is a verified fixture.
type Golden struct {
	SchemaVersion string           `json:"schemaVersion"`
	ScenarioID    string           `json:"scenarioId"`
	Checksum      string           `json:"checksum"`
	Shape         Shape            `json:"shape"`
	Samples       []map[string]any `json:"samples"`

	// Path is the file the fixture was read from, empty for built fixtures.
	Path string `json:"-"`
}

// FileName returns the fixture file name for a scenario and seed.
func FileName(scenarioID string, seed int64) string {
	return fmt.Sprintf("%s_seed%d.fixture.json", scenarioID, seed)
}

// Build returns a fixture for shape with a freshly computed checksum.
func Build(scenarioID string, shape Shape, samples []map[string]any) (*Golden, error) {
	if shape.PerPlatform == nil {
		shape.PerPlatform = map[string]PlatformShape{}
	}
	if samples == nil {
		samples = []map[string]any{}
	}
	sum, err := canon.Checksum(shape)
	if err != nil {
		return nil, fmt.Errorf("build fixture: %w", err)
	}
	return &Golden{
		SchemaVersion: schemaversion.Supported,
		ScenarioID:    scenarioID,
		Checksum:      sum,
		Shape:         shape,
		Samples:       samples,
	}, nil
}

// Encode renders g as indented JSON followed by a newline. The checksum does
// not depend on this layout because it is computed over the canonical shape.
func Encode(g *Golden) ([]byte, error) {
	b, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode fixture: %w", err)
	}
	return append(b, '\n'), nil
}
