// Package task implements the MCP tools that front the Task Manager (C7):
// task_init, task_update, task_modify, task_complete, task_read.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/deadwavewave/wavetask/internal/mcp"
	"github.com/deadwavewave/wavetask/internal/session"
	"github.com/deadwavewave/wavetask/internal/taskmgr"
	"github.com/deadwavewave/wavetask/internal/werrors"
)

// resolveSession binds the call to a project's session: the bound path from
// the transport (HTTP's X-Wavetask-Project header) if present, else the
// server process's own working directory (stdio mode, one project per
// process launch).
func resolveSession(ctx context.Context, resolver *session.Resolver) (*session.Session, error) {
	path := mcp.ProjectPathFrom(ctx)
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, werrors.Wrap(werrors.CodeInternal, "resolving working directory", err)
		}
		path = wd
	}
	return resolver.Resolve(path)
}

func errFromTool(err error) *mcp.ToolsCallResult {
	return mcp.ErrorResult(fmt.Sprintf("%s: %v", werrors.CodeOf(err), err))
}

// --- task_init ---

type Init struct{ resolver *session.Resolver }

func NewInit(resolver *session.Resolver) *Init { return &Init{resolver: resolver} }

func (t *Init) Name() string        { return "task_init" }
func (t *Init) Description() string {
	return "Start a new task: title, goal, and an optional ordered overall plan. Replaces whatever task was previously active for this project."
}
func (t *Init) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string", "description": "Short task title, 1-200 characters"},
    "goal": {"type": "string", "description": "What the task must accomplish, 10-2000 characters"},
    "overall_plan": {"type": "array", "items": {"type": "string"}, "description": "Ordered plan step descriptions, up to 20 entries"},
    "knowledge_refs": {"type": "array", "items": {"type": "string"}, "description": "References to supporting material"},
    "story": {"type": "string", "description": "Free-form narrative context"}
  },
  "required": ["title", "goal"]
}`)
}

type initParams struct {
	Title         string   `json:"title"`
	Goal          string   `json:"goal"`
	OverallPlan   []string `json:"overall_plan,omitempty"`
	KnowledgeRefs []string `json:"knowledge_refs,omitempty"`
	Story         string   `json:"story,omitempty"`
}

func (t *Init) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p initParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	sess, err := resolveSession(ctx, t.resolver)
	if err != nil {
		return nil, err
	}

	result, err := sess.Tasks.InitTask(ctx, taskmgr.InitParams{
		Title:         p.Title,
		Goal:          p.Goal,
		OverallPlan:   p.OverallPlan,
		KnowledgeRefs: p.KnowledgeRefs,
		Story:         p.Story,
	})
	if err != nil {
		return errFromTool(err), nil
	}
	return mcp.JSONResult(result)
}

// --- task_read ---

type Read struct{ resolver *session.Resolver }

func NewRead(resolver *session.Resolver) *Read { return &Read{resolver: resolver} }

func (t *Read) Name() string        { return "task_read" }
func (t *Read) Description() string {
	return "Read the active task. Reconciles any pending Markdown panel edits into state first (lazy sync) and returns the up-to-date task."
}
func (t *Read) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *Read) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	sess, err := resolveSession(ctx, t.resolver)
	if err != nil {
		return nil, err
	}
	result, err := sess.Tasks.GetCurrentTask(ctx)
	if err != nil {
		return errFromTool(err), nil
	}
	if result.Task == nil {
		return mcp.ErrorResult("no active task"), nil
	}
	return mcp.JSONResult(result)
}

// --- task_complete ---

type Complete struct{ resolver *session.Resolver }

func NewComplete(resolver *session.Resolver) *Complete { return &Complete{resolver: resolver} }

func (t *Complete) Name() string        { return "task_complete" }
func (t *Complete) Description() string {
	return "Complete the active task. Blocked by any EVR that is not yet ready (unknown/failed status, or a skip without a reason). On success the task is archived to history."
}
func (t *Complete) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "summary": {"type": "string", "description": "Completion summary recorded in the task's log"}
  },
  "required": ["summary"]
}`)
}

type completeParams struct {
	Summary string `json:"summary"`
}

func (t *Complete) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p completeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	sess, err := resolveSession(ctx, t.resolver)
	if err != nil {
		return nil, err
	}

	result, err := sess.Tasks.CompleteTask(ctx, p.Summary)
	if err != nil {
		return errFromTool(err), nil
	}
	return mcp.JSONResult(result)
}
