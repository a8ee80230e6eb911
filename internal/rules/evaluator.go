package rules

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/google/cel-go/cel"

	"github.com/roach88/seedkit/internal/failure"
)

// Evaluator compiles and runs rules. Compiled programs and templates are
// cached by source text, so one Evaluator can be shared by concurrent
// verifications.
type Evaluator struct {
	env *cel.Env

	mu        sync.RWMutex
	programs  map[string]cel.Program
	templates map[string]*template.Template
}

// NewEvaluator builds the CEL environment exposing the aggregate variables.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("campaign_id", cel.StringType),
		cel.Variable("platform", cel.StringType),
		cel.Variable("impressions", cel.IntType),
		cel.Variable("clicks", cel.IntType),
		cel.Variable("conversions", cel.IntType),
		cel.Variable("spend", cel.DoubleType),
		cel.Variable("revenue", cel.DoubleType),
		cel.Variable("roas", cel.DoubleType),
		cel.Variable("ctr", cel.DoubleType),
		cel.Variable("cvr", cel.DoubleType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &Evaluator{
		env:       env,
		programs:  make(map[string]cel.Program),
		templates: make(map[string]*template.Template),
	}, nil
}

// MustNewEvaluator is like NewEvaluator but panics on error.
func MustNewEvaluator() *Evaluator {
	e, err := NewEvaluator()
	if err != nil {
		panic(err)
	}
	return e
}

// Evaluate runs every rule against agg and returns exactly one check per
// rule, in rule order:
//   - triggered: status equals the rule's severity, rendered message, the
//     aggregate as details
//   - not triggered: PASS, "rule not triggered"
//   - compile, evaluation or template failure (or a panic): FAIL with an
//     "Evaluation Error" message
func (e *Evaluator) Evaluate(agg Aggregate, rules []Rule) []Check {
	vars := agg.Vars()
	checks := make([]Check, 0, len(rules))
	for _, r := range rules {
		checks = append(checks, e.evaluateOne(r, agg, vars))
	}
	return checks
}

func (e *Evaluator) evaluateOne(r Rule, agg Aggregate, vars map[string]any) (check Check) {
	defer func() {
		if p := recover(); p != nil {
			check = evaluationError(r, agg, fmt.Errorf("panic: %v", p))
		}
	}()

	triggered, err := e.eval(r.When, vars)
	if err != nil {
		return evaluationError(r, agg, err)
	}
	if !triggered {
		return Check{
			RuleID:   r.ID,
			Name:     r.Name,
			Status:   StatusPass,
			Severity: r.Severity,
			Message:  "rule not triggered",
			Details:  map[string]any{"campaignId": agg.CampaignID, "platform": agg.Platform},
		}
	}

	msg, err := e.render(r.Message, vars)
	if err != nil {
		return evaluationError(r, agg, err)
	}
	return Check{
		RuleID:   r.ID,
		Name:     r.Name,
		Status:   statusFor(r.Severity),
		Severity: r.Severity,
		Message:  msg,
		Details:  agg.Details(),
	}
}

func evaluationError(r Rule, agg Aggregate, err error) Check {
	return Check{
		RuleID:   r.ID,
		Name:     r.Name,
		Status:   StatusFail,
		Severity: SeverityFail,
		Message:  fmt.Sprintf("Evaluation Error: %v", err),
		Details:  map[string]any{"campaignId": agg.CampaignID, "platform": agg.Platform},
	}
}

func statusFor(s Severity) Status {
	switch s {
	case SeverityFail:
		return StatusFail
	case SeverityWarn:
		return StatusWarn
	default:
		return StatusInfo
	}
}

// ValidateRule checks that r is well formed and that its expression and
// message compile. It returns an INVALID_RULE input error otherwise.
func (e *Evaluator) ValidateRule(r Rule) error {
	invalid := func(format string, args ...any) error {
		return failure.Input(failure.CodeInvalidRule, "rule %q: %s", r.ID, fmt.Sprintf(format, args...))
	}
	if strings.TrimSpace(r.ID) == "" {
		return failure.Input(failure.CodeInvalidRule, "rule id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return invalid("name is required")
	}
	if !r.Severity.Valid() {
		return invalid("severity %q must be FAIL, WARN or INFO", r.Severity)
	}
	if _, err := e.program(r.When); err != nil {
		return invalid("%v", err)
	}
	if _, err := e.template(r.Message); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func (e *Evaluator) eval(expr string, vars map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result is %T, not bool", out.Value())
	}
	return val, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.programs[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

func (e *Evaluator) template(text string) (*template.Template, error) {
	e.mu.RLock()
	tmpl, hit := e.templates[text]
	e.mu.RUnlock()
	if hit {
		return tmpl, nil
	}

	tmpl, err := template.New("message").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("message template: %w", err)
	}

	e.mu.Lock()
	e.templates[text] = tmpl
	e.mu.Unlock()
	return tmpl, nil
}

func (e *Evaluator) render(text string, vars map[string]any) (string, error) {
	tmpl, err := e.template(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render message: %w", err)
	}
	return b.String(), nil
}
