package verify

import (
	"github.com/roach88/seedkit/internal/provenance"
	"github.com/roach88/seedkit/internal/rules"
)

// Integrity check ids and names.
const (
	RuleRowCount    = "INT-001"
	RuleDateWindow  = "INT-003"
	RuleMockFlag    = "INT-004"
	RuleSystemError = "SYS-ERR"

	NameRowCount      = "ROW_COUNT_MATCH"
	NameDateWindow    = "DATE_WINDOW_MATCH"
	NameMockFlag      = "MOCK_FLAG_CONSISTENCY"
	NameRuleEvalError = "RULE_EVAL_ERROR"
)

// TimestampLayout formats Meta.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Meta identifies a verification run.
type Meta struct {
	Version    string `json:"version"`
	Generator  string `json:"generator"`
	Timestamp  string `json:"timestamp"`
	RunID      string `json:"runId"`
	ScenarioID string `json:"scenarioId"`
	TenantID   string `json:"tenantId"`
	DryRun     bool   `json:"dryRun"`
}

// Summary tallies the checks of a run.
type Summary struct {
	Status     rules.Status `json:"status"`
	Total      int          `json:"total"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Warned     int          `json:"warned"`
	DurationMs int64        `json:"durationMs"`
}

// Provenance records the filter every verification query ran under.
type Provenance struct {
	IsMockData   bool   `json:"isMockData"`
	SourcePrefix string `json:"sourcePrefix"`
}

// Result is the complete output of VerifyScenario.
type Result struct {
	Meta       Meta          `json:"meta"`
	Summary    Summary       `json:"summary"`
	Results    []rules.Check `json:"results"`
	Provenance Provenance    `json:"provenance"`
}

// Passed reports whether the run's status is not FAIL.
func (r *Result) Passed() bool {
	return r.Summary.Status != rules.StatusFail
}

func toolkitProvenance() Provenance {
	return Provenance{IsMockData: true, SourcePrefix: provenance.SourcePrefix}
}

// Summarize tallies checks. Status is FAIL if any check failed, else WARN if
// any warned, else PASS. INFO checks count toward Total only.
func Summarize(checks []rules.Check) Summary {
	s := Summary{Status: rules.StatusPass, Total: len(checks)}
	for _, c := range checks {
		switch c.Status {
		case rules.StatusPass:
			s.Passed++
		case rules.StatusFail:
			s.Failed++
		case rules.StatusWarn:
			s.Warned++
		}
	}
	switch {
	case s.Failed > 0:
		s.Status = rules.StatusFail
	case s.Warned > 0:
		s.Status = rules.StatusWarn
	}
	return s
}
