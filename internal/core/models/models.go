// SPDX-License-Identifier: Apache-2.0

package models

import "time"

// Mode selects what a run does with the steps of a fix.
type Mode string

const (
	ModeApply      Mode = "apply"
	ModeRevert     Mode = "revert"
	ModeStatusOnly Mode = "status"
)

// Outcome classifies what happened to a single step during a run.
type Outcome string

const (
	OutcomeSkipped        Outcome = "skipped"
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already-applied"
	OutcomeNotApplied     Outcome = "not-applied"
	OutcomeReverted       Outcome = "reverted"
	OutcomeRolledBack     Outcome = "rolled-back"
	OutcomeFailed         Outcome = "failed"
)

// RunOutcome classifies the overall result of a run.
type RunOutcome string

const (
	RunSuccess        RunOutcome = "success"
	RunPartialFailure RunOutcome = "partial-failure"
	RunRolledBack     RunOutcome = "rolled-back"
	RunAborted        RunOutcome = "aborted"
)

// StepSpec is the declarative form of a single step inside a fix
// definition. The Type selects a registered step implementation and
// Params is validated against that implementation's parameter schema.
type StepSpec struct {
	ID          string                 `yaml:"id" json:"id"`
	Type        string                 `yaml:"type" json:"type"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Condition   string                 `yaml:"condition,omitempty" json:"condition,omitempty"` // CEL expression over probed facts
	Critical    bool                   `yaml:"critical,omitempty" json:"critical,omitempty"`
	Retriable   bool                   `yaml:"retriable,omitempty" json:"retriable,omitempty"`
	DependsOn   []string               `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Params      map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
}

// FactSpec declares a named probe whose result becomes available to
// the CEL conditions of a fix and its steps.
type FactSpec struct {
	Probe string `yaml:"probe" json:"probe"`
	ID    string `yaml:"id,omitempty" json:"id,omitempty"`     // PCI vendor:device or ACPI HID
	Name  string `yaml:"name,omitempty" json:"name,omitempty"` // kernel module or service unit
	Path  string `yaml:"path,omitempty" json:"path,omitempty"`
	Scope string `yaml:"scope,omitempty" json:"scope,omitempty"` // system (default) or user
}

// Fix is a named, ordered collection of steps that converges one
// hardware-enablement change. Package sets map a logical dependency
// name to concrete package names per distro family.
type Fix struct {
	Name        string                         `yaml:"name" json:"name"`
	Description string                         `yaml:"description,omitempty" json:"description,omitempty"`
	Condition   string                         `yaml:"condition,omitempty" json:"condition,omitempty"`
	Facts       map[string]FactSpec            `yaml:"facts,omitempty" json:"facts,omitempty"`
	PackageSets map[string]map[string][]string `yaml:"package_sets,omitempty" json:"package_sets,omitempty"`
	Steps       []StepSpec                     `yaml:"steps" json:"steps"`
}

// StepResult records the outcome of one step in a run.
type StepResult struct {
	StepID   string        `yaml:"step_id" json:"step_id"`
	Outcome  Outcome       `yaml:"outcome" json:"outcome"`
	Error    string        `yaml:"error,omitempty" json:"error,omitempty"`
	Duration time.Duration `yaml:"duration" json:"duration"`
}

// Fingerprint identifies the system a run executed against.
type Fingerprint struct {
	DistroFamily  string   `yaml:"distro_family" json:"distro_family"`
	DistroVersion string   `yaml:"distro_version,omitempty" json:"distro_version,omitempty"`
	KernelVersion string   `yaml:"kernel_version,omitempty" json:"kernel_version,omitempty"`
	HardwareIDs   []string `yaml:"hardware_ids,omitempty" json:"hardware_ids,omitempty"`
}

// RunReport is the full record of a single apply/revert/status run.
type RunReport struct {
	RunID     string       `yaml:"run_id" json:"run_id"`
	FixName   string       `yaml:"fix_name" json:"fix_name"`
	Mode      Mode         `yaml:"mode" json:"mode"`
	StartedAt time.Time    `yaml:"started_at" json:"started_at"`
	System    Fingerprint  `yaml:"system" json:"system"`
	Results   []StepResult `yaml:"results" json:"results"`
	Outcome   RunOutcome   `yaml:"outcome" json:"outcome"`
}

// Failed reports whether any step in the run failed.
func (r *RunReport) Failed() bool {
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

// Counts tallies step results by outcome.
func (r *RunReport) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}

// RunOptions contains options threaded through a run.
type RunOptions struct {
	Mode        Mode
	DryRun      bool
	Force       bool
	Verbose     bool
	WorkingDir  string
	ExtraParams map[string]interface{}
}
