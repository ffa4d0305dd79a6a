package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deadwavewave/wavetask/internal/mcp"
	"github.com/deadwavewave/wavetask/internal/session"
	"github.com/deadwavewave/wavetask/internal/taskmgr"
)

// --- task_update ---

type Update struct{ resolver *session.Resolver }

func NewUpdate(resolver *session.Resolver) *Update { return &Update{resolver: resolver} }

func (t *Update) Name() string { return "task_update" }
func (t *Update) Description() string {
	return "Update the status of a plan, step, or EVR on the active task. Plan completion is gated on its bound EVRs being ready; completed plans and steps auto-advance to the next to_do entry."
}
func (t *Update) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "task_id": {"type": "string", "description": "Must match the active task if given"},
    "update_type": {"type": "string", "enum": ["plan", "step", "evr"]},
    "plan_id": {"type": "string"},
    "step_id": {"type": "string"},
    "status": {"type": "string", "enum": ["to_do", "in_progress", "completed", "blocked"]},
    "evidence": {"type": "string"},
    "notes": {"type": "string", "description": "Required when completing a plan"},
    "evr": {
      "type": "array",
      "description": "Verification runs to record when update_type is evr",
      "items": {
        "type": "object",
        "properties": {
          "evr_id": {"type": "string"},
          "status": {"type": "string", "enum": ["pass", "fail", "skip", "unknown"]},
          "notes": {"type": "string"},
          "proof": {"type": "string"},
          "by": {"type": "string", "enum": ["ai", "user", "ci", "tool"]}
        },
        "required": ["evr_id", "status"]
      }
    }
  },
  "required": ["update_type"]
}`)
}

type evrUpdateItem struct {
	EVRID  string `json:"evr_id"`
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
	Proof  string `json:"proof,omitempty"`
	By     string `json:"by,omitempty"`
}

type updateParams struct {
	TaskID     string          `json:"task_id,omitempty"`
	UpdateType string          `json:"update_type"`
	PlanID     string          `json:"plan_id,omitempty"`
	StepID     string          `json:"step_id,omitempty"`
	Status     string          `json:"status,omitempty"`
	Evidence   string          `json:"evidence,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	EVR        []evrUpdateItem `json:"evr,omitempty"`
}

func (t *Update) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p updateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	sess, err := resolveSession(ctx, t.resolver)
	if err != nil {
		return nil, err
	}

	items := make([]taskmgr.EVRUpdateItem, 0, len(p.EVR))
	for _, e := range p.EVR {
		items = append(items, taskmgr.EVRUpdateItem{EVRID: e.EVRID, Status: e.Status, Notes: e.Notes, Proof: e.Proof, By: e.By})
	}

	result, err := sess.Tasks.UpdateTaskStatus(ctx, taskmgr.UpdateParams{
		TaskID:     p.TaskID,
		UpdateType: taskmgr.UpdateType(p.UpdateType),
		PlanID:     p.PlanID,
		StepID:     p.StepID,
		Status:     p.Status,
		Evidence:   p.Evidence,
		Notes:      p.Notes,
		EVRItems:   items,
	})
	if err != nil {
		return errFromTool(err), nil
	}
	return mcp.JSONResult(result)
}
