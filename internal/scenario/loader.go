package scenario

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/pathpolicy"
)

// MaxFileSize is the largest scenario file the loader will read.
const MaxFileSize = 64 * 1024

// Extensions lists the accepted file extensions in lookup order.
var Extensions = []string{".yaml", ".yml", ".json"}

// Loader reads scenarios from a single base directory.
type Loader struct {
	baseDir string
	logger  *slog.Logger
}

// NewLoader returns a Loader for baseDir. A nil logger uses slog.Default().
func NewLoader(baseDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{baseDir: filepath.Clean(baseDir), logger: logger}
}

// BaseDir returns the directory scenarios are read from.
func (l *Loader) BaseDir() string {
	return l.baseDir
}

// Load resolves nameOrID to a scenario and returns the validated spec.
//
// Resolution order:
//  1. nameOrID is checked (path separators are a traversal violation, any
//     other deviation from lowercase-kebab is a format violation)
//  2. exact file name match, trying .yaml, .yml, .json in that order
//  3. alias scan over every scenario file; malformed files are skipped
//  4. SCENARIO_NOT_FOUND
func (l *Loader) Load(nameOrID string) (*Spec, error) {
	if err := checkID(nameOrID); err != nil {
		return nil, err
	}

	for _, ext := range Extensions {
		path, err := pathpolicy.Join(l.baseDir, nameOrID+ext)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return l.LoadFile(path)
	}

	spec, err := l.resolveAlias(nameOrID)
	if err != nil {
		return nil, err
	}
	if spec != nil {
		return spec, nil
	}

	return nil, failure.NotFound(failure.CodeScenarioNotFound,
		"scenario %q not found in %s (searched %s files and aliases)",
		nameOrID, l.baseDir, strings.Join(Extensions, ", ")).
		WithDetail("scenario", nameOrID).
		WithDetail("searchedDir", l.baseDir)
}

// LoadFile reads, parses and validates one scenario file. The scenario id is
// the file name without its extension.
func (l *Loader) LoadFile(path string) (*Spec, error) {
	id, raw, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	spec, err := FromDocument(id, raw)
	if err != nil {
		if fe, ok := failure.As(err); ok {
			fe.WithDetail("path", path)
		}
		return nil, err
	}
	spec.Path = path
	return spec, nil
}

// ListAvailableScenarios returns a summary of every loadable scenario sorted
// by id. Files that fail to load are logged and left out.
func (l *Loader) ListAvailableScenarios() ([]Summary, error) {
	ids, err := l.scenarioIDs()
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		spec, err := l.Load(id)
		if err != nil {
			l.logger.Warn("skipping unloadable scenario", "scenario", id, "error", err)
			continue
		}
		out = append(out, spec.Summary())
	}
	return out, nil
}

func (l *Loader) resolveAlias(alias string) (*Spec, error) {
	files, err := l.scenarioFiles()
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		_, raw, err := readDocument(path)
		if err != nil {
			l.logger.Debug("alias scan skipped malformed scenario", "path", path, "error", err)
			continue
		}
		aliases, ok := stringSlice(raw["aliases"])
		if !ok || !contains(aliases, alias) {
			continue
		}
		l.logger.Info("resolved scenario alias", "alias", alias, "path", path)
		return l.LoadFile(path)
	}
	return nil, nil
}

// scenarioFiles lists candidate files in lexical order. A missing base
// directory yields no files.
func (l *Loader) scenarioFiles() ([]string, error) {
	entries, err := os.ReadDir(l.baseDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, failure.Wrap(failure.ClassRuntime, failure.CodeInternal, "read scenario directory", err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !allowedExtension(e.Name()) {
			continue
		}
		if !ValidID(stem(e.Name())) {
			continue
		}
		files = append(files, filepath.Join(l.baseDir, e.Name()))
	}
	return files, nil
}

func (l *Loader) scenarioIDs() ([]string, error) {
	files, err := l.scenarioFiles()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var ids []string
	for _, f := range files {
		id := stem(filepath.Base(f))
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// checkID separates traversal attempts from plain format violations.
func checkID(nameOrID string) error {
	if strings.ContainsAny(nameOrID, `/\`) || strings.Contains(nameOrID, "..") {
		return failure.Security(failure.CodePathTraversal,
			"scenario id %q must not contain path separators", nameOrID)
	}
	if !ValidID(nameOrID) {
		return failure.Input(failure.CodeInvalidScenarioID,
			"scenario id %q must match %s", nameOrID, idPattern.String())
	}
	return nil
}

// readDocument enforces the file-level checks and returns the parsed object
// together with the id derived from the file name.
func readDocument(path string) (string, map[string]any, error) {
	name := filepath.Base(path)
	if !allowedExtension(name) {
		return "", nil, failure.Security(failure.CodeDisallowedExtension,
			"scenario file %q must have one of the extensions %s", name, strings.Join(Extensions, ", "))
	}
	id := stem(name)
	if !ValidID(id) {
		return "", nil, failure.Input(failure.CodeInvalidScenarioID,
			"scenario file name %q does not yield a valid scenario id", name)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, failure.NotFound(failure.CodeScenarioNotFound, "scenario file %s does not exist", path)
		}
		return "", nil, failure.Wrap(failure.ClassRuntime, failure.CodeInternal, "stat scenario file", err)
	}
	if info.Size() > MaxFileSize {
		return "", nil, failure.Security(failure.CodeFileTooLarge,
			"scenario file %s is %d bytes (limit %d)", name, info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, failure.Wrap(failure.ClassRuntime, failure.CodeInternal, "read scenario file", err)
	}
	// Re-check: the file may have grown since Stat.
	if len(data) > MaxFileSize {
		return "", nil, failure.Security(failure.CodeFileTooLarge,
			"scenario file %s is %d bytes (limit %d)", name, len(data), MaxFileSize)
	}

	raw, err := parseDocument(name, data)
	if err != nil {
		return "", nil, err
	}
	return id, raw, nil
}

func parseDocument(name string, data []byte) (map[string]any, error) {
	var parsed any
	if strings.EqualFold(filepath.Ext(name), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&parsed); err != nil {
			return nil, failure.Wrap(failure.ClassInput, failure.CodeParseError, "parse scenario "+name, err)
		}
		if _, err := dec.Token(); err != io.EOF {
			return nil, failure.Input(failure.CodeParseError, "parse scenario %s: trailing data after JSON document", name)
		}
	} else {
		if hasMultipleDocuments(data) {
			return nil, failure.Security(failure.CodeMultiDocumentNotAllowed,
				"scenario %s contains more than one YAML document", name)
		}
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, failure.Wrap(failure.ClassInput, failure.CodeParseError, "parse scenario "+name, err)
		}
	}

	obj, ok := asObject(parsed)
	if !ok {
		return nil, failure.Input(failure.CodeParseError, "scenario %s must contain an object", name)
	}
	return obj, nil
}

// hasMultipleDocuments reports whether a "---" separator follows document
// content. A leading separator before any content is allowed.
func hasMultipleDocuments(data []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), MaxFileSize+1)
	seenContent := false
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if line == "---" || strings.HasPrefix(line, "--- ") {
			if seenContent {
				return true
			}
			continue
		}
		seenContent = true
	}
	return false
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func allowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
