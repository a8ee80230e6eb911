package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/seedkit/internal/fixture"
	"github.com/roach88/seedkit/internal/scenario"
)

// ScenarioYAML is a valid STABLE scenario used across package tests.
const ScenarioYAML = `schemaVersion: "1.0.0"
name: Steady state
description: Flat traffic across every platform
trend: STABLE
days: 7
baseImpressions: 1000
aliases:
  - steady
`

// WriteFile writes content to dir/name, creating dir.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// WriteScenario writes a scenario file and returns its path.
func WriteScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	return WriteFile(t, dir, name, []byte(content))
}

// WriteFixture builds a golden fixture for shape and writes it under dir
// with the provider's file name.
func WriteFixture(t *testing.T, dir, scenarioID string, seed int64, shape fixture.Shape) *fixture.Golden {
	t.Helper()
	g, err := fixture.Build(scenarioID, shape, nil)
	require.NoError(t, err)
	data, err := fixture.Encode(g)
	require.NoError(t, err)
	g.Path = WriteFile(t, dir, fixture.FileName(scenarioID, seed), data)
	return g
}

// Spec parses doc as scenario id, failing the test on validation errors.
func Spec(t *testing.T, id string, doc map[string]any) *scenario.Spec {
	t.Helper()
	spec, err := scenario.FromDocument(id, doc)
	require.NoError(t, err)
	return spec
}
