// Package manifest records the audit trail of one seed pipeline run.
//
// Steps are appended in execution order and never edited. Once a manifest is
// finished it is handed to a Writer and persisted exactly once.
package manifest

import (
	"strings"
	"time"

	"github.com/roach88/seedkit/internal/schemaversion"
)

// StepName identifies a pipeline step.
type StepName string

const (
	StepValidateInput StepName = "VALIDATE_INPUT"
	StepLoadScenario  StepName = "LOAD_SCENARIO"
	StepLoadFixtures  StepName = "LOAD_FIXTURES"
	StepExecute       StepName = "EXECUTE"
	StepVerify        StepName = "VERIFY"
)

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepSuccess StepStatus = "SUCCESS"
	StepFailed  StepStatus = "FAILED"
	StepSkipped StepStatus = "SKIPPED"
)

// Status is the overall outcome of a run.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusBlocked Status = "BLOCKED"
)

// Mode selects how the EXECUTE step obtains its data.
type Mode string

const (
	ModeGenerated Mode = "GENERATED"
	ModeFixture   Mode = "FIXTURE"
	ModeHybrid    Mode = "HYBRID"
)

// ParseMode accepts a mode name in any case.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeGenerated:
		return ModeGenerated, true
	case ModeFixture:
		return ModeFixture, true
	case ModeHybrid:
		return ModeHybrid, true
	}
	return "", false
}

// Step is one entry of the audit trail.
type Step struct {
	Name    StepName   `json:"name"`
	Status  StepStatus `json:"status"`
	Summary string     `json:"summary"`
}

// Counts are row counts per table. TotalRows counts metric rows.
type Counts struct {
	Campaigns  int `json:"campaigns"`
	MetricRows int `json:"metricRows"`
	TotalRows  int `json:"totalRows"`
}

// NewCounts builds Counts with TotalRows set to metricRows.
func NewCounts(campaigns, metricRows int) Counts {
	return Counts{Campaigns: campaigns, MetricRows: metricRows, TotalRows: metricRows}
}

// Results holds planned and applied write counts.
type Results struct {
	WritesPlanned struct {
		EstimatedCounts Counts `json:"estimatedCounts"`
	} `json:"writesPlanned"`
	WritesApplied struct {
		ActualCounts Counts `json:"actualCounts"`
	} `json:"writesApplied"`
}

// Manifest is the record of one run. It belongs to a single run and is not
// safe for concurrent use.
type Manifest struct {
	SchemaVersion   string    `json:"schemaVersion"`
	RunID           string    `json:"runId"`
	ScenarioID      string    `json:"scenarioId"`
	TenantID        string    `json:"tenantId"`
	Mode            Mode      `json:"mode"`
	Seed            int64     `json:"seed"`
	Days            int       `json:"days"`
	Platforms       []string  `json:"platforms"`
	DryRun          bool      `json:"dryRun"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	Steps           []Step    `json:"steps"`
	Results         Results   `json:"results"`
	Status          Status    `json:"status"`
	ExitCode        int       `json:"exitCode"`
	FixtureChecksum string    `json:"fixtureChecksum,omitempty"`
	ManifestPath    string    `json:"manifestPath,omitempty"`
}

// Header carries the identity fields of a run.
type Header struct {
	RunID      string
	ScenarioID string
	TenantID   string
	Mode       Mode
	Seed       int64
	Days       int
	Platforms  []string
	DryRun     bool
}

// New starts a manifest in the RUNNING state.
func New(h Header, startedAt time.Time) *Manifest {
	return &Manifest{
		SchemaVersion: schemaversion.Supported,
		RunID:         h.RunID,
		ScenarioID:    h.ScenarioID,
		TenantID:      h.TenantID,
		Mode:          h.Mode,
		Seed:          h.Seed,
		Days:          h.Days,
		Platforms:     append([]string{}, h.Platforms...),
		DryRun:        h.DryRun,
		StartedAt:     startedAt.UTC(),
		Steps:         []Step{},
		Status:        StatusRunning,
	}
}

// Append adds a step to the end of the trail.
func (m *Manifest) Append(name StepName, status StepStatus, summary string) {
	m.Steps = append(m.Steps, Step{Name: name, Status: status, Summary: summary})
}

// StepList returns a copy of the steps in execution order.
func (m *Manifest) StepList() []Step {
	return append([]Step(nil), m.Steps...)
}

// SetPlanned records the estimated write counts.
func (m *Manifest) SetPlanned(c Counts) {
	m.Results.WritesPlanned.EstimatedCounts = c
}

// SetApplied records the counts actually written.
func (m *Manifest) SetApplied(c Counts) {
	m.Results.WritesApplied.ActualCounts = c
}

// SetFixtureChecksum records the checksum of the fixture used by the run.
func (m *Manifest) SetFixtureChecksum(sum string) {
	m.FixtureChecksum = sum
}

// SetDays records the effective day count once the scenario is known.
func (m *Manifest) SetDays(days int) {
	m.Days = days
}

// Finish sets the final status and exit code.
func (m *Manifest) Finish(status Status, exitCode int, at time.Time) {
	m.Status = status
	m.ExitCode = exitCode
	m.FinishedAt = at.UTC()
}

// LastStep returns the most recent step and false when none was recorded.
func (m *Manifest) LastStep() (Step, bool) {
	if len(m.Steps) == 0 {
		return Step{}, false
	}
	return m.Steps[len(m.Steps)-1], true
}
