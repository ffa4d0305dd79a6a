package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deadwavewave/wavetask/internal/mcp"
	"github.com/deadwavewave/wavetask/internal/session"
	"github.com/deadwavewave/wavetask/internal/taskmgr"
)

// --- task_modify ---

type Modify struct{ resolver *session.Resolver }

func NewModify(resolver *session.Resolver) *Modify { return &Modify{resolver: resolver} }

func (t *Modify) Name() string { return "task_modify" }
func (t *Modify) Description() string {
	return "Replace one field of the active task's content: goal, the overall plan, a plan's steps, task hints, or an EVR (create/update/remove)."
}
func (t *Modify) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "task_id": {"type": "string", "description": "Must match the active task if given"},
    "field": {"type": "string", "enum": ["goal", "plan", "steps", "hints", "evr"]},
    "goal": {"type": "string"},
    "plan": {"type": "array", "items": {"type": "string"}, "description": "Full replacement plan descriptions, 1-20 entries"},
    "plan_id": {"type": "string", "description": "Target plan for the steps field"},
    "steps": {"type": "array", "items": {"type": "string"}, "description": "Full replacement step descriptions for plan_id"},
    "hints": {"type": "array", "items": {"type": "string"}},
    "evr": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "op": {"type": "string", "enum": ["create", "update", "remove"]},
          "id": {"type": "string"},
          "title": {"type": "string"},
          "verify": {"type": "array", "items": {"type": "string"}},
          "expect": {"type": "array", "items": {"type": "string"}},
          "class": {"type": "string", "enum": ["static", "runtime"]},
          "plan_id": {"type": "string", "description": "Bind this EVR to a plan"}
        },
        "required": ["op", "id"]
      }
    }
  },
  "required": ["field"]
}`)
}

type evrSpec struct {
	Op     string   `json:"op"`
	ID     string   `json:"id"`
	Title  string   `json:"title,omitempty"`
	Verify []string `json:"verify,omitempty"`
	Expect []string `json:"expect,omitempty"`
	Class  string   `json:"class,omitempty"`
	PlanID string   `json:"plan_id,omitempty"`
}

type modifyParams struct {
	TaskID string    `json:"task_id,omitempty"`
	Field  string    `json:"field"`
	Goal   string    `json:"goal,omitempty"`
	Plan   []string  `json:"plan,omitempty"`
	PlanID string    `json:"plan_id,omitempty"`
	Steps  []string  `json:"steps,omitempty"`
	Hints  []string  `json:"hints,omitempty"`
	EVR    []evrSpec `json:"evr,omitempty"`
}

func (t *Modify) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p modifyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	sess, err := resolveSession(ctx, t.resolver)
	if err != nil {
		return nil, err
	}

	specs := make([]taskmgr.EVRSpec, 0, len(p.EVR))
	for _, e := range p.EVR {
		specs = append(specs, taskmgr.EVRSpec{
			Op: taskmgr.EVROp(e.Op), ID: e.ID, Title: e.Title,
			Verify: e.Verify, Expect: e.Expect, Class: e.Class, PlanID: e.PlanID,
		})
	}

	result, err := sess.Tasks.ModifyTask(ctx, taskmgr.ModifyParams{
		TaskID: p.TaskID,
		Field:  taskmgr.ModifyField(p.Field),
		Goal:   p.Goal,
		Plan:   p.Plan,
		PlanID: p.PlanID,
		Steps:  p.Steps,
		Hints:  p.Hints,
		EVR:    specs,
	})
	if err != nil {
		return errFromTool(err), nil
	}
	return mcp.JSONResult(result)
}
