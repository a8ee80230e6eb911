package rules

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/seedkit/internal/failure"
)

// MaxCatalogSize caps custom catalog files.
const MaxCatalogSize = 64 * 1024

// catalogSchema constrains custom catalogs. Rule bodies are closed, so a
// misspelled field is an error rather than silently ignored.
const catalogSchema = `
#Rule: {
	name:     string & !=""
	severity: "FAIL" | "WARN" | "INFO"
	when:     string & !=""
	message:  string & !=""
}

rule: [string]: #Rule
`

var ruleIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*(-[A-Z0-9]+)+$`)

type cueRule struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	When     string `json:"when"`
	Message  string `json:"message"`
}

// LoadCatalogCUE reads custom rules from a CUE file of the form
//
//	rule: "CUSTOM-001": {
//		name:     "HIGH_CPC"
//		severity: "WARN"
//		when:     "clicks > 0 && spend / double(clicks) > 2.0"
//		message:  "CPC above 2.00 for {{.campaign_id}}"
//	}
//
// Rules come back sorted by id with CategoryCustom. Every rule is checked
// with ev.ValidateRule, so an expression that does not compile is rejected
// at load time.
func LoadCatalogCUE(path string, ev *Evaluator) ([]Rule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, failure.NotFound(failure.CodeInvalidRule, "rule catalog %s: %v", path, err)
	}
	if info.Size() > MaxCatalogSize {
		return nil, failure.Security(failure.CodeFileTooLarge,
			"rule catalog %s is %d bytes (limit %d)", path, info.Size(), MaxCatalogSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Wrap(failure.ClassRuntime, failure.CodeInternal, "read rule catalog", err)
	}
	return ParseCatalogCUE(data, path, ev)
}

// ParseCatalogCUE is LoadCatalogCUE for in-memory source. filename is used in
// error positions only.
func ParseCatalogCUE(src []byte, filename string, ev *Evaluator) ([]Rule, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(catalogSchema, cue.Filename("catalog_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, failure.Wrap(failure.ClassRuntime, failure.CodeInternal, "compile catalog schema", err)
	}

	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, failure.Wrap(failure.ClassInput, failure.CodeInvalidRule, "parse rule catalog", err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, failure.Wrap(failure.ClassInput, failure.CodeInvalidRule, "rule catalog does not match schema", err)
	}

	rulesVal := unified.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return []Rule{}, nil
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, failure.Wrap(failure.ClassInput, failure.CodeInvalidRule, "iterate rules", err)
	}

	var out []Rule
	for iter.Next() {
		id := iter.Selector().Unquoted()
		if !ruleIDPattern.MatchString(id) {
			return nil, failure.Input(failure.CodeInvalidRule,
				"rule id %q must look like CUSTOM-001", id)
		}

		var cr cueRule
		if err := iter.Value().Decode(&cr); err != nil {
			return nil, failure.Wrap(failure.ClassInput, failure.CodeInvalidRule, fmt.Sprintf("decode rule %s", id), err)
		}
		r := Rule{
			ID:       id,
			Name:     cr.Name,
			Category: CategoryCustom,
			Severity: Severity(cr.Severity),
			When:     cr.When,
			Message:  cr.Message,
		}
		if err := ev.ValidateRule(r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
