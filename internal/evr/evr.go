// Package evr implements the Expected-Visible-Result state machine: the
// per-EVR readiness predicate and the Plan/Task completion gates built on
// top of it.
//
// The advisory layer (Severity/Result/Outcome) mirrors the composable-check
// idiom used elsewhere in this codebase for workflow guardrails: gates are
// binary (HardBlock) but task.read also surfaces non-fatal SUGGESTION
// results (unreferenced EVRs) using the same Outcome shape.
package evr

import (
	"fmt"
	"strings"

	"github.com/deadwavewave/wavetask/internal/model"
)

// Severity indicates how a check result affects the caller.
type Severity int

const (
	// Suggestion is advisory — operation proceeds, message included in response.
	Suggestion Severity = iota
	// Warning is advisory — operation proceeds, message included in response.
	Warning
	// SoftBlock stops execution unless explicitly overridden.
	SoftBlock
	// HardBlock stops execution unconditionally — used for the binary plan/task gates.
	HardBlock
)

func (s Severity) String() string {
	switch s {
	case Suggestion:
		return "SUGGESTION"
	case Warning:
		return "WARNING"
	case SoftBlock:
		return "SOFT_BLOCK"
	case HardBlock:
		return "HARD_BLOCK"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of a single check.
type Result struct {
	CheckName string   `json:"check_name"`
	Passed    bool     `json:"passed"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	Remedy    string   `json:"remedy,omitempty"`
}

// Outcome aggregates the results of running a set of checks.
type Outcome struct {
	Blocked bool     `json:"blocked"`
	Results []Result `json:"results"`
}

func (o *Outcome) filterSeverity(sev Severity) []Result {
	var out []Result
	for _, r := range o.Results {
		if !r.Passed && r.Severity == sev {
			out = append(out, r)
		}
	}
	return out
}

// HardBlocks returns all hard-block results.
func (o *Outcome) HardBlocks() []Result { return o.filterSeverity(HardBlock) }

// Warnings returns all warning results.
func (o *Outcome) Warnings() []Result { return o.filterSeverity(Warning) }

// Suggestions returns all suggestion results.
func (o *Outcome) Suggestions() []Result { return o.filterSeverity(Suggestion) }

// FormatBlockMessage renders a human-readable explanation of why the
// operation was blocked.
func (o *Outcome) FormatBlockMessage() string {
	if !o.Blocked {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Operation blocked:\n")
	for _, r := range o.HardBlocks() {
		sb.WriteString(fmt.Sprintf("\n[HARD_BLOCK] %s: %s", r.CheckName, r.Message))
		if r.Remedy != "" {
			sb.WriteString(fmt.Sprintf("\n  Remedy: %s", r.Remedy))
		}
	}
	return sb.String()
}

// FormatAdvisoryMessage renders warnings and suggestions for read paths.
func (o *Outcome) FormatAdvisoryMessage() string {
	warnings := o.Warnings()
	suggestions := o.Suggestions()
	if len(warnings) == 0 && len(suggestions) == 0 {
		return ""
	}
	var sb strings.Builder
	if len(warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, r := range warnings {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", r.CheckName, r.Message))
		}
	}
	if len(suggestions) > 0 {
		sb.WriteString("Suggestions:\n")
		for _, r := range suggestions {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", r.CheckName, r.Message))
		}
	}
	return sb.String()
}

// BlockReason is the per-EVR reason a task cannot yet complete.
type BlockReason string

// Task-gate block reasons.
const (
	ReasonStatusUnknown   BlockReason = "status_unknown"
	ReasonFailed          BlockReason = "failed"
	ReasonNeedSkipReason  BlockReason = "need_reason_for_skip"
)

// RequiredFinal names one EVR blocking task completion and why.
type RequiredFinal struct {
	EVRID  string      `json:"evr_id"`
	Reason BlockReason `json:"reason"`
}

// Summary tallies EVR statuses across a set.
type Summary struct {
	Passed       []string `json:"passed"`
	Failed       []string `json:"failed"`
	Skipped      []string `json:"skipped"`
	Unknown      []string `json:"unknown"`
	Unreferenced []string `json:"unreferenced"`
	Total        int      `json:"total"`
}

// Summarize computes the Summary for a set of EVRs (§4.4 "Summary").
func Summarize(all []model.ExpectedResult) Summary {
	var s Summary
	for _, e := range all {
		switch e.Status {
		case model.EVRPass:
			s.Passed = append(s.Passed, e.ID)
		case model.EVRFail:
			s.Failed = append(s.Failed, e.ID)
		case model.EVRSkip:
			s.Skipped = append(s.Skipped, e.ID)
		case model.EVRUnknown:
			s.Unknown = append(s.Unknown, e.ID)
		}
		if len(e.ReferencedBy) == 0 {
			s.Unreferenced = append(s.Unreferenced, e.ID)
		}
	}
	s.Total = len(s.Passed) + len(s.Failed) + len(s.Skipped) + len(s.Unknown)
	return s
}

// Ready reports whether a single EVR satisfies the readiness predicate
// (§4.4): status is pass or skip (skip requires non-empty notes), and the
// EVR is referenced by at least one plan.
func Ready(e *model.ExpectedResult) bool {
	if e.Status != model.EVRPass && e.Status != model.EVRSkip {
		return false
	}
	if e.Status == model.EVRSkip && strings.TrimSpace(e.Notes) == "" {
		return false
	}
	return len(e.ReferencedBy) > 0
}

// TrackVerificationRun prepends a run to an EVR and mirrors its fields onto
// status/lastRun/notes/proof, per §4.4's state-machine rule.
func TrackVerificationRun(e *model.ExpectedResult, run model.VerificationRun) {
	e.Runs = append([]model.VerificationRun{run}, e.Runs...)
	at := run.At
	e.Status = run.Status
	e.LastRun = &at
	e.Notes = run.Notes
	e.Proof = run.Proof
}

// PlanGateResult is the outcome of CheckPlanGate.
type PlanGateResult struct {
	BoundEVRs    []string `json:"bound_evrs"`
	PendingEVRs  []string `json:"pending_evrs"`
	CanComplete  bool     `json:"can_complete"`
}

// CheckPlanGate evaluates whether a plan's bound EVRs are all ready.
func CheckPlanGate(evrBindings []string, all []model.ExpectedResult) PlanGateResult {
	byID := make(map[string]*model.ExpectedResult, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}

	result := PlanGateResult{BoundEVRs: evrBindings}
	for _, id := range evrBindings {
		e, ok := byID[id]
		if !ok || !Ready(e) {
			result.PendingEVRs = append(result.PendingEVRs, id)
		}
	}
	result.CanComplete = len(result.PendingEVRs) == 0
	return result
}

// TaskGateResult is the outcome of CheckTaskCompletion.
type TaskGateResult struct {
	CanComplete   bool            `json:"can_complete"`
	ErrorCode     string          `json:"error_code,omitempty"`
	RequiredFinal []RequiredFinal `json:"required_final,omitempty"`
	Summary       Summary         `json:"summary"`
	Unreferenced  []string        `json:"unreferenced"`
}

// CheckTaskCompletion evaluates the task-wide EVR gate (§4.4 "Task gate").
func CheckTaskCompletion(all []model.ExpectedResult) TaskGateResult {
	summary := Summarize(all)
	result := TaskGateResult{Summary: summary, Unreferenced: summary.Unreferenced}

	for _, e := range all {
		var reason BlockReason
		switch {
		case e.Status == model.EVRUnknown:
			reason = ReasonStatusUnknown
		case e.Status == model.EVRFail:
			reason = ReasonFailed
		case e.Status == model.EVRSkip && strings.TrimSpace(e.Notes) == "":
			reason = ReasonNeedSkipReason
		default:
			continue
		}
		result.RequiredFinal = append(result.RequiredFinal, RequiredFinal{EVRID: e.ID, Reason: reason})
	}

	result.CanComplete = len(result.RequiredFinal) == 0
	if !result.CanComplete {
		result.ErrorCode = "EVR_NOT_READY"
	}
	return result
}

// RequiresFinalRuntimeCheck reports whether an EVR needs a final run during
// the task completion window: static EVRs that already passed with proof
// are exempt, runtime EVRs always require one (§4.4 "Static vs runtime").
// The Task Manager is responsible for prompting the run; this only reports
// the requirement.
func RequiresFinalRuntimeCheck(e *model.ExpectedResult) bool {
	if e.EffectiveClass() == model.EVRClassStatic {
		return !(e.Status == model.EVRPass && strings.TrimSpace(e.Proof) != "")
	}
	return true
}
