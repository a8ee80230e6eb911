package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/seedkit/internal/failure"
)

const growthYAML = `schemaVersion: "1.0.0"
name: Checkout growth
description: Steady growth across marketplaces
trend: GROWTH
days: 14
baseImpressions: 5000
dateAnchor: "2024-03-01T00:00:00.000Z"
aliases:
  - growth
  - happy-path
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	return NewLoader(dir, nil), dir
}

func TestLoadExactMatch(t *testing.T) {
	l, dir := newTestLoader(t)
	writeScenario(t, dir, "checkout-growth.yaml", growthYAML)

	spec, err := l.Load("checkout-growth")
	require.NoError(t, err)

	assert.Equal(t, "checkout-growth", spec.ScenarioID)
	assert.Equal(t, "Checkout growth", spec.Name)
	assert.Equal(t, TrendGrowth, spec.Trend)
	assert.Equal(t, 14, spec.Days)
	assert.Equal(t, int64(5000), spec.Impressions())
	assert.Equal(t, []string{"growth", "happy-path"}, spec.Aliases)
	assert.Equal(t, "2024-03-01", spec.Anchor().Format(DateLayout))
}

func TestLoadUnquotedAnchor(t *testing.T) {
	l, dir := newTestLoader(t)
	writeScenario(t, dir, "march.yaml", `schemaVersion: "1.0.0"
name: March
trend: STABLE
dateAnchor: 2024-03-01T00:00:00Z
`)

	spec, err := l.Load("march")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", spec.Anchor().Format(DateLayout))
}

func TestLoadJSONAndDefaults(t *testing.T) {
	l, dir := newTestLoader(t)
	writeScenario(t, dir, "flat.json", `{"schemaVersion":"1.0.0","name":"Flat","trend":"STABLE"}`)

	spec, err := l.Load("flat")
	require.NoError(t, err)

	assert.Equal(t, DefaultDays, spec.Days)
	assert.Equal(t, int64(DefaultBaseImpressions), spec.Impressions())
	assert.Equal(t, DefaultAnchor, spec.Anchor())
	assert.Empty(t, spec.Aliases)
}

func TestLoadExtensionPrecedence(t *testing.T) {
	l, dir := newTestLoader(t)
	writeScenario(t, dir, "dup.json", `{"schemaVersion":"1.0.0","name":"From JSON","trend":"STABLE"}`)
	writeScenario(t, dir, "dup.yml", "schemaVersion: \"1.0.0\"\nname: From YML\ntrend: STABLE\n")

	spec, err := l.Load("dup")
	require.NoError(t, err)
	assert.Equal(t, "From YML", spec.Name)
}

func TestLoadByAlias(t *testing.T) {
	l, dir := newTestLoader(t)
	writeScenario(t, dir, "aaa-broken.yaml", "schemaVersion: [unterminated\n")
	writeScenario(t, dir, "checkout-growth.yaml", growthYAML)

	spec, err := l.Load("happy-path")
	require.NoError(t, err)
	assert.Equal(t, "checkout-growth", spec.ScenarioID)
}

func TestLoadErrors(t *testing.T) {
	l, dir := newTestLoader(t)
	writeScenario(t, dir, "too-big.yaml", growthYAML+"# "+strings.Repeat("x", MaxFileSize)+"\n")
	writeScenario(t, dir, "multi.yaml", "schemaVersion: \"1.0.0\"\nname: A\ntrend: STABLE\n---\nname: B\n")
	writeScenario(t, dir, "broken.json", `{"schemaVersion": "1.0.0",`)
	writeScenario(t, dir, "list.yaml", "- a\n- b\n")
	writeScenario(t, dir, "invalid.yaml", "schemaVersion: \"2.0.0\"\ntrend: SIDEWAYS\ndays: 0\n")

	tests := []struct {
		name  string
		id    string
		code  failure.Code
		class failure.Class
	}{
		{"traversal", "../etc/passwd", failure.CodePathTraversal, failure.ClassSecurity},
		{"separator", "a/b", failure.CodePathTraversal, failure.ClassSecurity},
		{"backslash", `a\b`, failure.CodePathTraversal, failure.ClassSecurity},
		{"uppercase", "Checkout", failure.CodeInvalidScenarioID, failure.ClassInput},
		{"underscore", "checkout_growth", failure.CodeInvalidScenarioID, failure.ClassInput},
		{"empty", "", failure.CodeInvalidScenarioID, failure.ClassInput},
		{"missing", "nope", failure.CodeScenarioNotFound, failure.ClassNotFound},
		{"too large", "too-big", failure.CodeFileTooLarge, failure.ClassSecurity},
		{"multi document", "multi", failure.CodeMultiDocumentNotAllowed, failure.ClassSecurity},
		{"bad json", "broken", failure.CodeParseError, failure.ClassInput},
		{"not an object", "list", failure.CodeParseError, failure.ClassInput},
		{"invalid fields", "invalid", failure.CodeInvalidSchemaVersion, failure.ClassInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(tt.id)
			require.Error(t, err)
			assert.Equal(t, tt.code, failure.CodeOf(err), err.Error())
			assert.Equal(t, tt.class, failure.ClassOf(err))
		})
	}
}

func TestLoadSecurityAndInputExitCodesDiffer(t *testing.T) {
	l, _ := newTestLoader(t)

	_, secErr := l.Load("../x")
	_, inErr := l.Load("Bad")

	assert.Equal(t, failure.ExitBlocked, failure.ExitCode(secErr))
	assert.Equal(t, failure.ExitValidationFailed, failure.ExitCode(inErr))
	assert.NotEqual(t, failure.ExitCode(secErr), failure.ExitCode(inErr))
}

func TestLoadInvalidReportsAllViolations(t *testing.T) {
	l, dir := newTestLoader(t)
	writeScenario(t, dir, "invalid.yaml", "schemaVersion: \"2.0.0\"\ntrend: SIDEWAYS\ndays: 0\n")

	_, err := l.Load("invalid")
	require.Error(t, err)

	fe, ok := failure.As(err)
	require.True(t, ok)
	codes := make([]failure.Code, len(fe.Violations))
	for i, v := range fe.Violations {
		codes[i] = v.Code
	}
	assert.Equal(t, []failure.Code{
		failure.CodeInvalidSchemaVersion,
		failure.CodeInvalidName,
		failure.CodeInvalidTrend,
		failure.CodeInvalidDays,
	}, codes)
	assert.Contains(t, err.Error(), "INVALID_DAYS")
}

func TestLoadFileDisallowedExtension(t *testing.T) {
	l, dir := newTestLoader(t)
	path := writeScenario(t, dir, "growth.toml", growthYAML)

	_, err := l.LoadFile(path)
	require.Error(t, err)
	assert.Equal(t, failure.CodeDisallowedExtension, failure.CodeOf(err))
	assert.Equal(t, failure.ClassSecurity, failure.ClassOf(err))
}

func TestLeadingDocumentMarkerAllowed(t *testing.T) {
	l, dir := newTestLoader(t)
	writeScenario(t, dir, "marked.yaml", "# header\n---\n"+growthYAML)

	_, err := l.Load("marked")
	require.NoError(t, err)
}

func TestListAvailableScenarios(t *testing.T) {
	l, dir := newTestLoader(t)
	writeScenario(t, dir, "checkout-growth.yaml", growthYAML)
	writeScenario(t, dir, "flat.json", `{"schemaVersion":"1.0.0","name":"Flat","trend":"STABLE"}`)
	writeScenario(t, dir, "broken.yaml", "name: [\n")
	writeScenario(t, dir, "README.md", "not a scenario")
	writeScenario(t, dir, "Bad_Name.yaml", growthYAML)

	list, err := l.ListAvailableScenarios()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "checkout-growth", list[0].ScenarioID)
	assert.Equal(t, []string{"growth", "happy-path"}, list[0].Aliases)
	assert.Equal(t, "flat", list[1].ScenarioID)
}

func TestListAvailableScenariosMissingDir(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent"), nil)

	list, err := l.ListAvailableScenarios()
	require.NoError(t, err)
	assert.Empty(t, list)
}
