package fixture

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/roach88/seedkit/internal/canon"
	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/pathpolicy"
	"github.com/roach88/seedkit/internal/schemaversion"
)

const (
	// MaxFileSize is the largest fixture file the provider will read.
	MaxFileSize = 256 * 1024

	// MaxMetricRows caps shape.totalMetricRows.
	MaxMetricRows = 1000
)

//go:embed fixture.schema.json
var schemaJSON string

const schemaURL = "https://seedkit.local/schemas/fixture.schema.json"

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func structuralSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("add fixture schema: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(schemaURL)
	})
	return compiledSchema, compileErr
}

// Provider reads fixtures from a base directory.
type Provider struct {
	baseDir string
}

// NewProvider returns a Provider rooted at baseDir.
func NewProvider(baseDir string) *Provider {
	return &Provider{baseDir: filepath.Clean(baseDir)}
}

// LoadFixture reads {scenarioID}_seed{seed}.fixture.json and runs its checks
// in a fixed order, each with its own failure code:
//
//  1. containment under the base directory   PATH_TRAVERSAL
//  2. existence                               FIXTURE_NOT_FOUND
//  3. size <= 256 KB                          FIXTURE_TOO_LARGE
//  4. JSON parse                              PARSE_ERROR
//  5. schemaVersion == 1.0.0                  UNSUPPORTED_SCHEMA_VERSION
//  6. scenarioId == requested id              INVALID_SCENARIO_ID
//  7. shape.totalMetricRows <= 1000           FIXTURE_ROW_LIMIT
//  8. checksum over the canonical shape       CHECKSUM_MISMATCH
//
// Size is checked before parsing, so an oversized file reports
// FIXTURE_TOO_LARGE even when its content is not valid JSON. The document's
// structure is checked against the embedded JSON schema between steps 6
// and 7.
func (p *Provider) LoadFixture(scenarioID string, seed int64) (*Golden, error) {
	path, err := pathpolicy.Join(p.baseDir, FileName(scenarioID, seed))
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failure.NotFound(failure.CodeFixtureNotFound,
			"fixture %s not found in %s", filepath.Base(path), p.baseDir).
			WithDetail("path", path)
	}
	if err != nil {
		return nil, failure.Wrap(failure.ClassRuntime, failure.CodeInternal, "stat fixture", err)
	}
	if info.Size() > MaxFileSize {
		return nil, failure.Security(failure.CodeFixtureTooLarge,
			"fixture %s is %d bytes (limit %d)", filepath.Base(path), info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Wrap(failure.ClassRuntime, failure.CodeInternal, "read fixture", err)
	}
	if len(data) > MaxFileSize {
		return nil, failure.Security(failure.CodeFixtureTooLarge,
			"fixture %s is %d bytes (limit %d)", filepath.Base(path), len(data), MaxFileSize)
	}

	g, err := Parse(data, scenarioID)
	if err != nil {
		return nil, err
	}
	g.Path = path
	return g, nil
}

// Parse runs checks 4 to 8 of LoadFixture on an in-memory document.
func Parse(data []byte, scenarioID string) (*Golden, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, failure.Wrap(failure.ClassInput, failure.CodeParseError, "parse fixture", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, failure.Input(failure.CodeParseError, "fixture must be a JSON object")
	}

	if err := schemaversion.Check(obj["schemaVersion"]); err != nil {
		return nil, failure.Input(failure.CodeUnsupportedSchemaVersion, "fixture %s", err.Error())
	}

	if got, _ := obj["scenarioId"].(string); got != scenarioID {
		return nil, failure.Input(failure.CodeInvalidScenarioID,
			"fixture scenarioId %q does not match requested scenario %q", got, scenarioID)
	}

	schema, err := structuralSchema()
	if err != nil {
		return nil, failure.Wrap(failure.ClassRuntime, failure.CodeInternal, "compile fixture schema", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, failure.Wrap(failure.ClassInput, failure.CodeParseError, "fixture structure is invalid", err)
	}

	var g Golden
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, failure.Wrap(failure.ClassInput, failure.CodeParseError, "decode fixture", err)
	}

	if g.Shape.TotalMetricRows > MaxMetricRows {
		return nil, failure.Input(failure.CodeFixtureRowLimit,
			"fixture declares %d metric rows (limit %d)", g.Shape.TotalMetricRows, MaxMetricRows)
	}

	// The checksum covers the shape exactly as stored, unknown fields included.
	ok, got, err := canon.VerifyChecksum(obj["shape"], g.Checksum)
	if err != nil {
		return nil, failure.Wrap(failure.ClassInput, failure.CodeParseError, "canonicalize fixture shape", err)
	}
	if !ok {
		return nil, failure.Input(failure.CodeChecksumMismatch,
			"fixture checksum mismatch: stored %s, computed %s", g.Checksum, got).
			WithDetail("expected", g.Checksum).
			WithDetail("actual", got)
	}

	if g.Shape.PerPlatform == nil {
		g.Shape.PerPlatform = map[string]PlatformShape{}
	}
	return &g, nil
}

// decode parses a single JSON value, keeping numbers exact.
func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON document")
	}
	return v, nil
}
