package taskmgr

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/deadwavewave/wavetask/internal/evr"
	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/sync"
	"github.com/deadwavewave/wavetask/internal/werrors"
)

// UpdateType selects which kind of entity UpdateTaskStatus mutates.
type UpdateType string

const (
	UpdatePlan UpdateType = "plan"
	UpdateStep UpdateType = "step"
	UpdateEVR  UpdateType = "evr"
)

// EVRUpdateItem is one entry of the evr field on an UpdateParams (§4.6
// "EVR update rules").
type EVRUpdateItem struct {
	EVRID  string
	Status string
	Notes  string
	Proof  string
	By     string
}

// UpdateParams is the input to UpdateTaskStatus (§6 "task.update").
type UpdateParams struct {
	TaskID     string
	UpdateType UpdateType
	PlanID     string
	StepID     string
	Status     string
	Evidence   string
	Notes      string
	EVRItems   []EVRUpdateItem
}

// UpdateResult is the output of UpdateTaskStatus.
type UpdateResult struct {
	Success      bool              `json:"success"`
	SyncPreview  *sync.Result      `json:"sync_preview,omitempty"`
	EVRPending   bool              `json:"evr_pending,omitempty"`
	EVRForPlan   []string          `json:"evr_for_plan,omitempty"`
	EVRForNode   []string          `json:"evr_for_node,omitempty"`
	StepsRequired bool             `json:"steps_required,omitempty"`
	AutoAdvanced bool              `json:"auto_advanced,omitempty"`
	StartedNewPlan string          `json:"started_new_plan,omitempty"`
	NextStep     *model.Step       `json:"next_step,omitempty"`
	Hints        []string          `json:"hints,omitempty"`
}

// UpdateTaskStatus performs a lazy sync, applies the requested mutation,
// and persists (§4.6 "updateTaskStatus").
func (m *Manager) UpdateTaskStatus(ctx context.Context, params UpdateParams) (*UpdateResult, error) {
	var result *UpdateResult

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

		// apply performs the requested mutation against t and records its
		// outcome in result. It is called once against the initially loaded
		// task and, on a StateVersion conflict, again against each freshly
		// reloaded copy, so a retry re-derives and reapplies the actual
		// change (including gate recomputation) instead of discarding it.
		apply := func(t *model.Task) error {
			syncResult := m.lazySync(t)

			var applyErr error
			switch params.UpdateType {
			case UpdatePlan:
				result, applyErr = m.updatePlan(t, params)
			case UpdateStep:
				result, applyErr = m.updateStep(t, params)
			case UpdateEVR:
				result, applyErr = m.updateEVR(t, params)
			default:
				applyErr = werrors.New(werrors.CodeValidationError, "unknown update_type")
			}
			if applyErr != nil {
				return applyErr
			}
			if syncResult.Applied {
				result.SyncPreview = syncResult
			}
			if !result.Success {
				return errMutationSuperseded // gate failure: nothing to persist, op returns as-is
			}
			return nil
		}

		if err := apply(task); err != nil {
			if errors.Is(err, errMutationSuperseded) {
				return nil
			}
			return err
		}

		_, err = m.saveWithRetry(task, version, apply)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Manager) updatePlan(task *model.Task, params UpdateParams) (*UpdateResult, error) {
	plan := task.FindPlan(params.PlanID)
	if plan == nil {
		return nil, werrors.New(werrors.CodePlanNotFound, "plan not found: "+params.PlanID)
	}

	if plan.Status == model.PlanBlocked && params.Status == model.PlanCompleted {
		return nil, werrors.New(werrors.CodeInvalidTransition, "blocked plan cannot transition directly to completed")
	}

	result := &UpdateResult{}

	if params.Status == model.PlanCompleted {
		if strings.TrimSpace(params.Notes) == "" {
			return nil, werrors.New(werrors.CodeValidationError, "completing a plan requires non-empty notes")
		}
		gate := evr.CheckPlanGate(plan.EVRBindings, task.ExpectedResults)
		if !gate.CanComplete {
			result.Success = false
			result.EVRPending = true
			result.EVRForPlan = gate.PendingEVRs
			return result, nil
		}

		now := time.Now().UTC()
		plan.Status = model.PlanCompleted
		plan.Notes = params.Notes
		plan.CompletedAt = &now
		task.Logs = append(task.Logs, newLog(model.LogCategoryStatus, "PLAN_COMPLETED", "plan "+plan.ID+" completed", nil))

		if next := nextToDoPlan(task, plan.ID); next != nil {
			next.Status = model.PlanInProgress
			task.CurrentPlanID = next.ID
			result.AutoAdvanced = true
			result.StartedNewPlan = next.ID
			task.Logs = append(task.Logs, newLog(model.LogCategoryLifecycle, "AUTO_ADVANCE", "advanced to plan "+next.ID, nil))
		} else {
			task.CurrentPlanID = ""
		}

		result.Success = true
		return result, nil
	}

	if params.Status == model.PlanInProgress {
		plan.Status = model.PlanInProgress
		if params.Evidence != "" {
			plan.Evidence = params.Evidence
		}
		if len(plan.Steps) == 0 {
			result.StepsRequired = true
		}
		result.EVRForNode = plan.EVRBindings
		result.Success = true
		return result, nil
	}

	plan.Status = params.Status
	if params.Evidence != "" {
		plan.Evidence = params.Evidence
	}
	if params.Notes != "" {
		plan.Notes = params.Notes
	}
	result.Success = true
	return result, nil
}

func nextToDoPlan(task *model.Task, afterID string) *model.Plan {
	found := false
	for i := range task.OverallPlan {
		if task.OverallPlan[i].ID == afterID {
			found = true
			continue
		}
		if found && task.OverallPlan[i].Status == model.PlanToDo {
			return &task.OverallPlan[i]
		}
	}
	return nil
}

func (m *Manager) updateStep(task *model.Task, params UpdateParams) (*UpdateResult, error) {
	step, plan := task.FindStep(params.StepID)
	if step == nil {
		return nil, werrors.New(werrors.CodeStepNotFound, "step not found: "+params.StepID)
	}

	step.Status = params.Status
	if params.Evidence != "" {
		step.Evidence = params.Evidence
	}
	if params.Notes != "" {
		step.Notes = params.Notes
	}

	result := &UpdateResult{Success: true}

	if step.Status != model.StepCompleted {
		result.NextStep = step
		return result, nil
	}

	now := time.Now().UTC()
	step.CompletedAt = &now

	if next := nextToDoStep(plan, step.ID); next != nil {
		next.Status = model.StepInProgress
		result.AutoAdvanced = true
		result.NextStep = next
		return result, nil
	}

	result.NextStep = step

	if allStepsCompleted(plan) {
		planResult, err := m.updatePlan(task, UpdateParams{
			TaskID: params.TaskID, PlanID: plan.ID, Status: model.PlanCompleted,
			Notes: "all steps completed",
		})
		if err != nil {
			return nil, err
		}
		if planResult.Success {
			result.AutoAdvanced = true
			result.StartedNewPlan = planResult.StartedNewPlan
		}
	}

	return result, nil
}

func nextToDoStep(plan *model.Plan, afterID string) *model.Step {
	found := false
	for i := range plan.Steps {
		if plan.Steps[i].ID == afterID {
			found = true
			continue
		}
		if found && plan.Steps[i].Status == model.StepToDo {
			return &plan.Steps[i]
		}
	}
	return nil
}

func allStepsCompleted(plan *model.Plan) bool {
	if len(plan.Steps) == 0 {
		return false
	}
	for _, s := range plan.Steps {
		if s.Status != model.StepCompleted {
			return false
		}
	}
	return true
}

func (m *Manager) updateEVR(task *model.Task, params UpdateParams) (*UpdateResult, error) {
	result := &UpdateResult{Success: true}

	for _, item := range params.EVRItems {
		e := task.FindEVR(item.EVRID)
		if e == nil {
			// Missing EVRs are created in place with empty verify/expect
			// so runs can be recorded before the panel defines them (§4.6).
			task.ExpectedResults = append(task.ExpectedResults, model.ExpectedResult{
				ID:     item.EVRID,
				Status: model.EVRUnknown,
			})
			e = &task.ExpectedResults[len(task.ExpectedResults)-1]
		}

		by := item.By
		if by == "" {
			by = model.RunByAI
		}
		run := model.VerificationRun{
			At:     time.Now().UTC(),
			By:     by,
			Status: item.Status,
			Notes:  item.Notes,
			Proof:  item.Proof,
		}
		evr.TrackVerificationRun(e, run)

		action := evrHighlightAction(item.Status)
		task.Logs = append(task.Logs, newLog(model.LogCategoryEVR, action, "evr "+e.ID+" "+item.Status, map[string]any{"evr_id": e.ID}))
	}

	task.Logs = append(task.Logs, newLog(model.LogCategoryEVR, "EVR_UPDATE", "recorded verification runs", map[string]any{"count": len(params.EVRItems)}))
	return result, nil
}

func evrHighlightAction(status string) string {
	switch status {
	case model.EVRPass:
		return model.LogActionVerified
	case model.EVRFail:
		return model.LogActionFailed
	default:
		return model.LogActionTest
	}
}
