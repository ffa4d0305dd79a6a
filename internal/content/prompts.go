// Package content provides MCP prompts and resources for the wavetask server.
package content

import "github.com/deadwavewave/wavetask/internal/mcp"

// --- guide prompt ---

// GuidePrompt is an actionable prompt that walks an agent through the
// task lifecycle: init, update, modify, complete, read, and how the EVR
// gate and panel sync affect each step.
type GuidePrompt struct{}

func (p *GuidePrompt) Definition() mcp.PromptDefinition {
	return mcp.PromptDefinition{
		Name:        "wavetask-guide",
		Description: "Interactive guide to the active-task workflow: initializing a task, working its plan and steps, recording EVR verification runs, and completing it.",
		Arguments:   []mcp.PromptArgument{},
	}
}

func (p *GuidePrompt) Get(arguments map[string]string) (*mcp.PromptsGetResult, error) {
	return &mcp.PromptsGetResult{
		Description: "Guide for working a project's active task end-to-end",
		Messages: []mcp.PromptMessage{
			{
				Role:    "user",
				Content: mcp.TextContent(workflowGuide),
			},
		},
	}, nil
}

const workflowGuide = `# Working the Active Task

A project has at most one active task at a time. The task lives as JSON
under the project's ".wave" directory and is mirrored into a
human-readable Markdown panel; both are kept coherent automatically, so
you should read and write through the tools below rather than editing
either file by hand.

## Your Role

1. Start a task with task_init once you know the goal and a rough plan.
2. Work through the plan's steps, recording progress with task_update.
3. Record verification runs against EVRs (Expected Visible Results)
   before marking a plan or the task itself done.
4. Adjust the plan, steps, hints, or EVR set with task_modify as
   understanding changes.
5. Finish with task_complete once every EVR required for completion is
   satisfied.

## Step 1: Initialize

Call task_init with:
- title: short, stable name for the task
- goal: what done looks like, 10-2000 characters
- overall_plan: an ordered list of plan descriptions (up to 20 entries).
  The first plan starts in_progress; the rest start to_do.
- knowledge_refs (optional): paths or links worth re-reading
- story (optional): the originating request or ticket, for context

If a task is already active, task_init replaces it and the previous
task is not archived — complete it first if it should go to history.

## Step 2: Work the Plan

Call task_read at any point to see the current plan, its steps, and
the status of every EVR. The result includes an advisory field that
flags EVRs nothing in the plan currently references — use it to catch
verification that was written but never wired to a plan or step.

Call task_update with update_type "step" to move a step to in_progress
or completed. Completing the last step of a plan's steps does not
complete the plan by itself when the plan also carries EVRs bound
directly to it — those still need a "plan" update once their runs are
in.

Call task_update with update_type "plan" to move a plan to in_progress,
blocked, or completed. Completing a plan requires:
- notes describing what was done, and
- every EVR bound to that plan showing status "pass" (or "skip" with
  notes) in its most recent verification run.

If an EVR bound to the plan hasn't been run yet, or its last run
failed, the update is rejected: the result sets evr_pending and lists
the pending EVR ids in evr_for_plan so you know exactly what to go
verify.
Completing a plan auto-advances the next to_do plan to in_progress.

A plan cannot move directly from blocked to completed — clear the
block (move it back to in_progress) first.

## Step 3: Record Verification Runs

Call task_update with update_type "evr" and one or more entries:
- evr_id: which EVR this run is for (an unrecognized id is created on
  the fly with status unknown, so you can record against an EVR you
  haven't formally added yet via task_modify)
- status: pass, fail, skip, or unknown
- notes, proof (optional): what you observed and how
- by: ai, user, ci, or tool (defaults to ai)

Static-class EVRs are typically satisfied by inspection or a one-time
check; runtime-class EVRs need a fresh run after each relevant change
rather than relying on a stale pass from earlier in the task.

## Step 4: Adjust as Understanding Changes

Call task_modify with field:
- goal: replace the task's goal text
- plan: replace the entire ordered plan list (resets progress on each
  plan to to_do except the first, which becomes in_progress)
- steps: replace one plan's steps (requires plan_id); the first step
  starts in_progress if that plan is itself in_progress
- hints: replace the free-form task hints list
- evr: create, update, or remove EVRs (one entry per EVR), optionally
  binding each to a plan via plan_id

Prefer targeted "evr" modifications over a full plan rewrite when you
only need to add or correct one verification item — rewriting the plan
resets every other plan's progress.

## Step 5: Complete

Call task_complete with a summary once you believe the task is done.
Completion is gated the same way plan completion is, but against every
EVR on the task, not just the ones bound to the last plan. If anything
is still unsatisfied, the call fails and returns the list of
unsatisfied EVRs (RequiredFinal) instead of completing — work through
those and call task_complete again. On success the task is archived
and the project has no active task until the next task_init.
`
