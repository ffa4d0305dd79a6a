package taskmgr

import (
	"context"
	"fmt"

	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/werrors"
)

// ModifyField selects which part of a task ModifyTask replaces (§4.6
// "modifyTask").
type ModifyField string

const (
	FieldGoal  ModifyField = "goal"
	FieldPlan  ModifyField = "plan"
	FieldSteps ModifyField = "steps"
	FieldHints ModifyField = "hints"
	FieldEVR   ModifyField = "evr"
)

// EVROp selects the mutation ModifyTask performs on an EVR entry.
type EVROp string

const (
	EVROpCreate EVROp = "create"
	EVROpUpdate EVROp = "update"
	EVROpRemove EVROp = "remove"
)

// EVRSpec is one entry of the evr field on a ModifyParams.
type EVRSpec struct {
	Op      EVROp
	ID      string
	Title   string
	Verify  []string
	Expect  []string
	Class   string
	PlanID  string // bind to this plan on create/update
}

// ModifyParams is the input to ModifyTask.
type ModifyParams struct {
	TaskID string
	Field  ModifyField

	Goal  string
	Plan  []string // plan descriptions, full replacement, preserves §4.6 "plan replacement resets current_plan_id"
	Steps []string // step descriptions for PlanID, full replacement
	PlanID string  // target plan for the "steps" field
	Hints []string
	EVR   []EVRSpec
}

// ModifyResult is the output of ModifyTask.
type ModifyResult struct {
	Success bool `json:"success"`
}

// ModifyTask replaces one field of the active task's content (§4.6
// "modifyTask").
func (m *Manager) ModifyTask(ctx context.Context, params ModifyParams) (*ModifyResult, error) {
	var result *ModifyResult

	err := m.withWriteLock(ctx, func() error {
		task, version, err := m.store.Load()
		if err != nil {
			return err
		}
		if task == nil {
			return werrors.New(werrors.CodeTaskNotFound, "no active task")
		}
		if params.TaskID != "" && params.TaskID != task.ID {
			return werrors.New(werrors.CodeTaskNotFound, "task_id does not match the active task")
		}

		// apply performs the requested field replacement against t. It is
		// called once against the initially loaded task and, on a
		// StateVersion conflict, again against each freshly reloaded copy,
		// so a retry reapplies the actual field change instead of
		// discarding it.
		apply := func(t *model.Task) error {
			m.lazySync(t)

			switch params.Field {
			case FieldGoal:
				if len(params.Goal) < 10 || len(params.Goal) > 2000 {
					return werrors.New(werrors.CodeValidationError, "goal must be 10-2000 characters")
				}
				t.Goal = params.Goal

			case FieldPlan:
				if len(params.Plan) == 0 || len(params.Plan) > 20 {
					return werrors.New(werrors.CodeValidationError, "plan must have 1-20 entries")
				}
				plans := make([]model.Plan, 0, len(params.Plan))
				for i, desc := range params.Plan {
					plans = append(plans, model.Plan{
						ID:          fmt.Sprintf("plan-%d", i+1),
						Description: desc,
						Status:      model.PlanToDo,
					})
				}
				plans[0].Status = model.PlanInProgress
				t.OverallPlan = plans
				t.CurrentPlanID = plans[0].ID

			case FieldSteps:
				plan := t.FindPlan(params.PlanID)
				if plan == nil {
					return werrors.New(werrors.CodePlanNotFound, "plan not found: "+params.PlanID)
				}
				steps := make([]model.Step, 0, len(params.Steps))
				for i, desc := range params.Steps {
					steps = append(steps, model.Step{
						ID:          fmt.Sprintf("%s.%d", plan.ID, i+1),
						Description: desc,
						Status:      model.StepToDo,
					})
				}
				if len(steps) > 0 && plan.Status == model.PlanInProgress {
					steps[0].Status = model.StepInProgress
				}
				plan.Steps = steps

			case FieldHints:
				t.TaskHints = params.Hints

			case FieldEVR:
				for _, spec := range params.EVR {
					if err := m.applyEVRSpec(t, spec); err != nil {
						return err
					}
				}

			default:
				return werrors.New(werrors.CodeValidationError, "unknown field: "+string(params.Field))
			}

			t.Logs = append(t.Logs, newLog(model.LogCategoryContent, "MODIFY", "modified field "+string(params.Field), map[string]any{"field": params.Field}))
			return nil
		}

		if err := apply(task); err != nil {
			return err
		}

		if _, err := m.saveWithRetry(task, version, apply); err != nil {
			return err
		}
		result = &ModifyResult{Success: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Manager) applyEVRSpec(task *model.Task, spec EVRSpec) error {
	switch spec.Op {
	case EVROpCreate:
		e := model.ExpectedResult{
			ID:     spec.ID,
			Title:  spec.Title,
			Verify: model.StringList(spec.Verify),
			Expect: model.StringList(spec.Expect),
			Status: model.EVRUnknown,
			Class:  spec.Class,
		}
		if spec.PlanID != "" {
			plan := task.FindPlan(spec.PlanID)
			if plan == nil {
				return werrors.New(werrors.CodePlanNotFound, "plan not found: "+spec.PlanID)
			}
			plan.EVRBindings = append(plan.EVRBindings, e.ID)
			e.ReferencedBy = append(e.ReferencedBy, spec.PlanID)
		}
		task.ExpectedResults = append(task.ExpectedResults, e)

	case EVROpUpdate:
		e := task.FindEVR(spec.ID)
		if e == nil {
			return werrors.New(werrors.CodeEVRNotFound, "evr not found: "+spec.ID)
		}
		if spec.Title != "" {
			e.Title = spec.Title
		}
		if spec.Verify != nil {
			e.Verify = model.StringList(spec.Verify)
		}
		if spec.Expect != nil {
			e.Expect = model.StringList(spec.Expect)
		}
		if spec.Class != "" {
			e.Class = spec.Class
		}
		if spec.PlanID != "" {
			plan := task.FindPlan(spec.PlanID)
			if plan == nil {
				return werrors.New(werrors.CodePlanNotFound, "plan not found: "+spec.PlanID)
			}
			if !containsStr(plan.EVRBindings, e.ID) {
				plan.EVRBindings = append(plan.EVRBindings, e.ID)
			}
			if !containsStr(e.ReferencedBy, spec.PlanID) {
				e.ReferencedBy = append(e.ReferencedBy, spec.PlanID)
			}
		}

	case EVROpRemove:
		// Unbind from every plan before removing the EVR itself (§4.6
		// "EVR create/update/remove with unbind on remove").
		for i := range task.OverallPlan {
			task.OverallPlan[i].EVRBindings = removeStr(task.OverallPlan[i].EVRBindings, spec.ID)
		}
		for i, e := range task.ExpectedResults {
			if e.ID == spec.ID {
				task.ExpectedResults = append(task.ExpectedResults[:i], task.ExpectedResults[i+1:]...)
				break
			}
		}

	default:
		return werrors.New(werrors.CodeValidationError, "unknown evr op: "+string(spec.Op))
	}
	return nil
}

func containsStr(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}

func removeStr(items []string, s string) []string {
	out := items[:0]
	for _, it := range items {
		if it != s {
			out = append(out, it)
		}
	}
	return out
}
