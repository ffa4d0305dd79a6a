// Package panel implements the Panel Renderer (C3) and Panel Parser (C4):
// a deterministic, round-trip-safe bridge between a structured Task and its
// canonical Markdown form.
//
// The format is a small, fixed micro-grammar (§4.3), not general Markdown;
// rendering and parsing are both hand-written line-oriented passes rather
// than built on a generic Markdown→AST library, because the round-trip law
// requires byte-exact control a generic parser does not offer.
package panel

import "github.com/deadwavewave/wavetask/internal/model"

// CheckboxFor maps a status value to its bijective checkbox marker (§4.3).
func CheckboxFor(status string) string {
	switch status {
	case model.PlanToDo:
		return "[ ]"
	case model.PlanInProgress:
		return "[-]"
	case model.PlanCompleted:
		return "[x]"
	case model.PlanBlocked:
		return "[!]"
	default:
		return "[ ]"
	}
}

// StatusForCheckbox maps a checkbox marker back to a status value. Unknown
// markers round-trip as to_do with ok=false, signalling a parser warning.
func StatusForCheckbox(marker string) (status string, ok bool) {
	switch marker {
	case "[ ]":
		return model.PlanToDo, true
	case "[-]":
		return model.PlanInProgress, true
	case "[x]", "[X]":
		return model.PlanCompleted, true
	case "[!]":
		return model.PlanBlocked, true
	default:
		return model.PlanToDo, false
	}
}

// Warning is a non-fatal parser finding (§4.3 "Failure semantics": parser
// errors are collected and returned alongside a best-effort result).
type Warning struct {
	Section string
	Message string
}

// Panel is the structured result of parsing a Markdown document: the
// subset of a Task's fields the panel format can express, keyed the same
// way as the renderer's input so the synchronizer can compare them field
// by field via anchor.
type Panel struct {
	Title        string
	TaskID       string
	References   []string
	Requirements []string
	Issues       []string
	TaskHints    []string
	EVRs         []model.ExpectedResult
	Plans        []model.Plan
	LogLines     []string

	// MDVersion is the ETag recorded in the optional front matter block,
	// empty when front matter is absent or disabled.
	MDVersion string
}
