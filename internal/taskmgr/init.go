package taskmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/werrors"
)

// InitParams is the input to InitTask (§6 "task.init").
type InitParams struct {
	Title         string
	Goal          string
	OverallPlan   []string // each entry becomes one Plan's description
	KnowledgeRefs []string
	Story         string
}

// InitResult is the output of InitTask.
type InitResult struct {
	TaskID        string   `json:"task_id"`
	Slug          string   `json:"slug"`
	CurrentPlanID string   `json:"current_plan_id,omitempty"`
	PlanRequired  bool     `json:"plan_required"`
	PlanIDs       []string `json:"plan_ids"`
}

// InitTask validates params, creates a new Task, and persists it (§4.6
// "initTask").
func (m *Manager) InitTask(ctx context.Context, params InitParams) (*InitResult, error) {
	if err := validateInit(params); err != nil {
		return nil, err
	}

	taskID := ulid.Make().String()
	now := time.Now().UTC()

	task := &model.Task{
		ID:            taskID,
		Title:         params.Title,
		Slug:          slugify(params.Title),
		Story:         params.Story,
		Goal:          params.Goal,
		KnowledgeRefs: params.KnowledgeRefs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	planIDs := make([]string, 0, len(params.OverallPlan))
	for i, desc := range params.OverallPlan {
		id := fmt.Sprintf("plan-%d", i+1)
		task.OverallPlan = append(task.OverallPlan, model.Plan{
			ID:          id,
			Description: desc,
			Status:      model.PlanToDo,
		})
		planIDs = append(planIDs, id)
	}

	planRequired := len(planIDs) == 0
	if len(planIDs) > 0 {
		task.CurrentPlanID = planIDs[0]
		task.OverallPlan[0].Status = model.PlanInProgress
	}

	task.Logs = append(task.Logs, newLog(model.LogCategoryLifecycle, "INIT",
		fmt.Sprintf("task %s initialized", taskID), map[string]any{"plan_count": len(planIDs)}))

	var result *InitResult
	err := m.withWriteLock(ctx, func() error {
		if _, err := m.store.Save(task, 0); err != nil {
			return err
		}
		result = &InitResult{
			TaskID:        task.ID,
			Slug:          task.Slug,
			CurrentPlanID: task.CurrentPlanID,
			PlanRequired:  planRequired,
			PlanIDs:       planIDs,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateInit(p InitParams) error {
	if len(p.Title) == 0 || len(p.Title) > 200 {
		return werrors.New(werrors.CodeValidationError, "title must be 1-200 characters")
	}
	if len(p.Goal) < 10 || len(p.Goal) > 2000 {
		return werrors.New(werrors.CodeValidationError, "goal must be 10-2000 characters")
	}
	if len(p.OverallPlan) > 20 {
		return werrors.New(werrors.CodeValidationError, "overall_plan may not exceed 20 entries")
	}
	for _, d := range p.OverallPlan {
		if len(d) > 500 {
			return werrors.New(werrors.CodeValidationError, "plan description may not exceed 500 characters")
		}
	}
	return nil
}
