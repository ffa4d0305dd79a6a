package content

import "github.com/deadwavewave/wavetask/internal/mcp"

// --- wavetask://entity-model resource ---

// EntityModelResource exposes the full task/plan/step/EVR data model as a
// reference resource. LLMs can read this to understand the shape of
// task_read's result and what task_modify's fields mean.
type EntityModelResource struct{}

func (r *EntityModelResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "wavetask://entity-model",
		Name:        "Wavetask Entity Model",
		Description: "Complete reference of the Task/Plan/Step/ExpectedResult data model and the panel it renders to",
		MimeType:    "text/markdown",
	}
}

func (r *EntityModelResource) Read() (*mcp.ResourcesReadResult, error) {
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{
				URI:      "wavetask://entity-model",
				MimeType: "text/markdown",
				Text:     entityModelContent,
			},
		},
	}, nil
}

// --- wavetask://evr-gate resource ---

// EVRGateResource exposes the EVR readiness and gating rules as a
// reference resource.
type EVRGateResource struct{}

func (r *EVRGateResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "wavetask://evr-gate",
		Name:        "Wavetask EVR Gate",
		Description: "Reference of EVR readiness rules and when plan/task completion is blocked",
		MimeType:    "text/markdown",
	}
}

func (r *EVRGateResource) Read() (*mcp.ResourcesReadResult, error) {
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{
				URI:      "wavetask://evr-gate",
				MimeType: "text/markdown",
				Text:     evrGateContent,
			},
		},
	}, nil
}

// --- wavetask://tool-reference resource ---

// ToolReferenceResource exposes a quick-reference card for the 8 tools.
type ToolReferenceResource struct{}

func (r *ToolReferenceResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "wavetask://tool-reference",
		Name:        "Wavetask Tool Reference",
		Description: "Quick-reference card for all 8 wavetask tools with parameters and usage notes",
		MimeType:    "text/markdown",
	}
}

func (r *ToolReferenceResource) Read() (*mcp.ResourcesReadResult, error) {
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{
				URI:      "wavetask://tool-reference",
				MimeType: "text/markdown",
				Text:     toolReferenceContent,
			},
		},
	}, nil
}

// --- Static content ---

const entityModelContent = `# Wavetask Entity Model

## Task

The top-level coherence artifact. A project has at most one active Task
at a time; it lives as JSON under the project's ".wave" directory and
is mirrored into a Markdown panel.

- **Properties**: id, title, slug, story (optional), goal (10-2000
  chars), knowledge_refs ([]string), task_hints ([]string),
  current_plan_id, created_at, updated_at, completed_at (set on
  completion)
- **Owns**: overall_plan ([]Plan, up to 20 entries), expectedResults
  ([]ExpectedResult), logs ([]LogEntry, append-only)

## Plan

One ordered unit of the overall plan. Exactly one plan is normally
in_progress at a time; completing it auto-advances the next to_do plan.

- **Properties**: id (` + "`plan-N`" + `), description, status
  (to_do/in_progress/completed/blocked), evidence, notes, completed_at
- **Owns**: steps ([]Step)
- **References**: evrBindings ([]string — ids of ExpectedResults that
  gate this plan's completion)

## Step

A single unit of work inside a Plan.

- **Properties**: id (` + "`<planID>.N`" + `), description, status (same
  vocabulary as Plan), evidence, notes, completed_at
- **References**: usesEVR ([]string), contextTags (map[string]string)

## ExpectedResult (EVR)

An Expected Visible Result: something that must be independently
verified before the plan(s) or task it's bound to can be marked
complete.

- **Properties**: id, title, verify (StringList — how to check it),
  expect (StringList — what a passing check looks like), status
  (pass/fail/skip/unknown), class (static/runtime, defaults to
  runtime), lastRun, notes, proof
- **References**: referencedBy ([]string — ids of Plans this EVR is
  bound to, the inverse of Plan.evrBindings)
- **Owns**: runs ([]VerificationRun — full history, newest first)

## VerificationRun

One recorded execution of an EVR's verification.

- **Properties**: at (time), by (ai/user/ci/tool), status, notes, proof

## LogEntry

One append-only record in Task.logs.

- **Properties**: timestamp, level, category
  (content/status/sync/conflict/evr/lifecycle), action, message,
  ai_notes, details (map[string]any)
- Highlight actions VERIFIED/FAILED/TEST are surfaced directly in the
  rendered panel and in task_read's logs_highlights.

## ProjectRecord

Identifies a project and its data root, held in the global registry at
~/.wave/projects.json.

- **Properties**: id, root, slug, origin, last_seen
`

const evrGateContent = `# Wavetask EVR Gate Reference

## Overview

An EVR only counts as satisfied once its most recent VerificationRun
has status "pass", or "skip" with non-empty notes. A fresh "unknown"
EVR, one whose last run was "fail", or a skip without notes blocks
whatever it gates.

## Plan Gate

Runs when task_update (update_type "plan") tries to move a plan to
status "completed". For every id in the plan's evrBindings:

| Last run status | Effect |
|---|---|
| pass | satisfied |
| skip with notes | satisfied |
| skip without notes | blocks — id appears in evr_for_plan |
| fail | blocks — id appears in evr_for_plan |
| unknown / no runs | blocks — id appears in evr_for_plan |

On block, the update returns evr_pending (true) and evr_for_plan (the
unsatisfied EVR ids) without changing the plan's status. Completing a plan also requires non-empty notes describing
what was done.

## Task Gate

Runs on task_complete. The same satisfaction rule applies, but across
every EVR on the task (expectedResults), not just the ones bound to
the most recently completed plan. On block, the result's
RequiredFinal lists the unsatisfied EVRs and the task is not archived.

## Class

- **static**: typically checked once by inspection; a pass tends to
  stay valid across later edits unless something invalidates it.
- **runtime**: expected to be re-verified after changes that could
  affect it — a pass recorded before a later code change should not be
  trusted without a fresh run.

Class only affects how an agent should decide whether to re-run an
EVR; it does not change the Plan Gate or Task Gate logic itself, which
always looks at the latest run regardless of class.

## Illegal Transitions

A plan cannot move directly from blocked to completed — clear the
block by moving it back to in_progress first, then complete it from
there. Step updates are not checked for this transition.
`

const toolReferenceContent = `# Wavetask Tool Quick Reference

## Task Tools

### task_init
Start a new active task. If one is already active, the new task
replaces it; the previous task is not archived.
- **Required**: title, goal
- **Optional**: overall_plan ([]string, up to 20), knowledge_refs
  ([]string), story

### task_read
Read the active task, synchronizing it against the panel first.
- **Params**: none
- **Returns**: task, sync_preview (if out-of-band panel edits were
  merged in), evr summary, an advisory string flagging EVRs nothing
  references

### task_update
Advance a plan, step, or record an EVR verification run.
- **Required**: update_type (plan/step/evr)
- **Additional params**: vary by update_type — see the tool's input
  schema
- **Gated by**: the Plan Gate (completing a plan) and illegal
  blocked→completed transitions

### task_modify
Replace one field of the active task's content.
- **Required**: field (goal/plan/steps/hints/evr)
- **Additional params**: vary by field — see the tool's input schema

### task_complete
Complete the active task and archive it.
- **Required**: summary
- **Gated by**: the Task Gate across every EVR on the task

## Project Tools

### project_ensure
Ensure a project registration exists at a directory, upserting it into
the global registry.
- **Required**: path

### project_find
Search the global project registry by slug substring and/or exact
path.
- **Optional**: slug, path

### project_cleanup
Remove stale entries from the global project registry: projects whose
root no longer exists or whose local project.json disagrees.
- **Params**: none
`
