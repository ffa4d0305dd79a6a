package taskmgr

import (
	"context"
	"strings"
	"testing"

	"github.com/deadwavewave/wavetask/internal/lock"
	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/taskstore"
)

func repeatChar(c byte, n int) string {
	return strings.Repeat(string(c), n)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, _ := newTestManagerWithRoot(t)
	return m
}

func newTestManagerWithRoot(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	locks := lock.New(root, nil, lock.Options{})
	store := taskstore.New(root, locks, false)
	return New(store, locks, nil, NewProcessID()), root
}

func TestInitTaskValidation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.InitTask(ctx, InitParams{Title: "", Goal: "a sufficiently long goal"}); err == nil {
		t.Fatal("expected empty title to be rejected")
	}
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "short"}); err == nil {
		t.Fatal("expected a goal under 10 chars to be rejected")
	}
	plans := make([]string, 21)
	for i := range plans {
		plans[i] = "plan"
	}
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: plans}); err == nil {
		t.Fatal("expected more than 20 plan entries to be rejected")
	}
}

func TestInitTaskBoundaryLimits(t *testing.T) {
	ctx := context.Background()

	t.Run("title exactly 200 chars accepted", func(t *testing.T) {
		m := newTestManager(t)
		if _, err := m.InitTask(ctx, InitParams{Title: repeatChar('a', 200), Goal: "a sufficiently long goal"}); err != nil {
			t.Fatalf("expected a 200-char title to be accepted, got: %v", err)
		}
	})
	t.Run("title 201 chars rejected", func(t *testing.T) {
		m := newTestManager(t)
		if _, err := m.InitTask(ctx, InitParams{Title: repeatChar('a', 201), Goal: "a sufficiently long goal"}); err == nil {
			t.Fatal("expected a 201-char title to be rejected")
		}
	})
	t.Run("goal exactly 10 chars accepted", func(t *testing.T) {
		m := newTestManager(t)
		if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: repeatChar('a', 10)}); err != nil {
			t.Fatalf("expected a 10-char goal to be accepted, got: %v", err)
		}
	})
	t.Run("goal 9 chars rejected", func(t *testing.T) {
		m := newTestManager(t)
		if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: repeatChar('a', 9)}); err == nil {
			t.Fatal("expected a 9-char goal to be rejected")
		}
	})
	t.Run("goal exactly 2000 chars accepted", func(t *testing.T) {
		m := newTestManager(t)
		if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: repeatChar('a', 2000)}); err != nil {
			t.Fatalf("expected a 2000-char goal to be accepted, got: %v", err)
		}
	})
	t.Run("goal 2001 chars rejected", func(t *testing.T) {
		m := newTestManager(t)
		if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: repeatChar('a', 2001)}); err == nil {
			t.Fatal("expected a 2001-char goal to be rejected")
		}
	})
	t.Run("exactly 20 plan entries accepted", func(t *testing.T) {
		m := newTestManager(t)
		plans := make([]string, 20)
		for i := range plans {
			plans[i] = "plan"
		}
		if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: plans}); err != nil {
			t.Fatalf("expected exactly 20 plan entries to be accepted, got: %v", err)
		}
	})
	t.Run("plan description exactly 500 chars accepted", func(t *testing.T) {
		m := newTestManager(t)
		if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{repeatChar('a', 500)}}); err != nil {
			t.Fatalf("expected a 500-char plan description to be accepted, got: %v", err)
		}
	})
	t.Run("plan description 501 chars rejected", func(t *testing.T) {
		m := newTestManager(t)
		if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{repeatChar('a', 501)}}); err == nil {
			t.Fatal("expected a 501-char plan description to be rejected")
		}
	})
}

func TestInitTaskStartsFirstPlanInProgress(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	result, err := m.InitTask(ctx, InitParams{
		Title:       "Add retry to the fetch client",
		Goal:        "Requests retry on transient errors",
		OverallPlan: []string{"implement retry loop", "wire into client"},
	})
	if err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	if result.PlanRequired {
		t.Fatal("plan_required should be false when overall_plan was given")
	}
	if result.CurrentPlanID != "plan-1" {
		t.Errorf("CurrentPlanID = %q, want plan-1", result.CurrentPlanID)
	}

	read, err := m.GetCurrentTask(ctx)
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}
	if read.Task.OverallPlan[0].Status != model.PlanInProgress {
		t.Errorf("plan-1 status = %q, want %q", read.Task.OverallPlan[0].Status, model.PlanInProgress)
	}
	if read.Task.OverallPlan[1].Status != model.PlanToDo {
		t.Errorf("plan-2 status = %q, want %q", read.Task.OverallPlan[1].Status, model.PlanToDo)
	}
}

func TestInitTaskNoPlanSetsPlanRequired(t *testing.T) {
	m := newTestManager(t)
	result, err := m.InitTask(context.Background(), InitParams{Title: "x", Goal: "a sufficiently long goal"})
	if err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	if !result.PlanRequired {
		t.Fatal("expected plan_required when overall_plan was omitted")
	}
}

func TestUpdatePlanBlocksOnMissingNotes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"do the thing"}}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	if _, err := m.UpdateTaskStatus(ctx, UpdateParams{UpdateType: UpdatePlan, PlanID: "plan-1", Status: model.PlanCompleted}); err == nil {
		t.Fatal("expected completing a plan without notes to be rejected")
	}
}

func TestUpdatePlanBlocksOnPendingEVR(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"do the thing"}}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	if _, err := m.ModifyTask(ctx, ModifyParams{Field: FieldEVR, EVR: []EVRSpec{
		{Op: EVROpCreate, ID: "evr-1", Title: "it works", PlanID: "plan-1"},
	}}); err != nil {
		t.Fatalf("ModifyTask: %v", err)
	}

	result, err := m.UpdateTaskStatus(ctx, UpdateParams{UpdateType: UpdatePlan, PlanID: "plan-1", Status: model.PlanCompleted, Notes: "done"})
	if err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if result.Success {
		t.Fatal("expected completion to be blocked by the unresolved EVR")
	}
	if !result.EVRPending || len(result.EVRForPlan) != 1 || result.EVRForPlan[0] != "evr-1" {
		t.Errorf("EVRForPlan = %v", result.EVRForPlan)
	}
}

func TestUpdatePlanAutoAdvancesAndCompletes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"first", "second"}}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	result, err := m.UpdateTaskStatus(ctx, UpdateParams{UpdateType: UpdatePlan, PlanID: "plan-1", Status: model.PlanCompleted, Notes: "done"})
	if err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if !result.Success || !result.AutoAdvanced || result.StartedNewPlan != "plan-2" {
		t.Fatalf("expected auto-advance to plan-2, got %+v", result)
	}

	read, err := m.GetCurrentTask(ctx)
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}
	if read.Task.CurrentPlanID != "plan-2" {
		t.Errorf("CurrentPlanID = %q, want plan-2", read.Task.CurrentPlanID)
	}
	if read.Task.OverallPlan[1].Status != model.PlanInProgress {
		t.Errorf("plan-2 status = %q, want %q", read.Task.OverallPlan[1].Status, model.PlanInProgress)
	}
}

func TestUpdatePlanBlockedCannotCompleteDirectly(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"do the thing"}}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	if _, err := m.UpdateTaskStatus(ctx, UpdateParams{UpdateType: UpdatePlan, PlanID: "plan-1", Status: model.PlanBlocked, Notes: "stuck"}); err != nil {
		t.Fatalf("UpdateTaskStatus(blocked): %v", err)
	}
	if _, err := m.UpdateTaskStatus(ctx, UpdateParams{UpdateType: UpdatePlan, PlanID: "plan-1", Status: model.PlanCompleted, Notes: "done"}); err == nil {
		t.Fatal("expected blocked -> completed to be rejected")
	}
}

func TestUpdateStepAutoAdvancesAndCascadesPlanCompletion(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"do the thing"}}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	if _, err := m.ModifyTask(ctx, ModifyParams{Field: FieldSteps, PlanID: "plan-1", Steps: []string{"step one", "step two"}}); err != nil {
		t.Fatalf("ModifyTask(steps): %v", err)
	}

	result, err := m.UpdateTaskStatus(ctx, UpdateParams{UpdateType: UpdateStep, StepID: "plan-1.1", Status: model.StepCompleted})
	if err != nil {
		t.Fatalf("UpdateTaskStatus(step1): %v", err)
	}
	if !result.AutoAdvanced || result.NextStep == nil || result.NextStep.ID != "plan-1.2" {
		t.Fatalf("expected auto-advance to plan-1.2, got %+v", result)
	}

	result, err = m.UpdateTaskStatus(ctx, UpdateParams{UpdateType: UpdateStep, StepID: "plan-1.2", Status: model.StepCompleted})
	if err != nil {
		t.Fatalf("UpdateTaskStatus(step2): %v", err)
	}
	if !result.AutoAdvanced {
		t.Fatalf("expected completing the last step to cascade into a plan completion, got %+v", result)
	}

	read, err := m.GetCurrentTask(ctx)
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}
	if read.Task.OverallPlan[0].Status != model.PlanCompleted {
		t.Errorf("plan-1 status = %q, want %q", read.Task.OverallPlan[0].Status, model.PlanCompleted)
	}
}

func TestUpdateEVRCreatesUnrecognizedID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"do the thing"}}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	_, err := m.UpdateTaskStatus(ctx, UpdateParams{UpdateType: UpdateEVR, EVRItems: []EVRUpdateItem{
		{EVRID: "evr-surprise", Status: model.EVRPass, Notes: "checked manually"},
	}})
	if err != nil {
		t.Fatalf("UpdateTaskStatus(evr): %v", err)
	}

	read, err := m.GetCurrentTask(ctx)
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}
	e := read.Task.FindEVR("evr-surprise")
	if e == nil {
		t.Fatal("expected an unrecognized EVR id to be auto-created")
	}
	if e.Status != model.EVRPass || len(e.Runs) != 1 {
		t.Errorf("evr-surprise = %+v", e)
	}
}

func TestModifyTaskIDMismatchRejected(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"do the thing"}}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	_, err := m.ModifyTask(ctx, ModifyParams{TaskID: "not-the-active-task", Field: FieldGoal, Goal: "a new and also sufficiently long goal"})
	if err == nil {
		t.Fatal("expected a task_id naming the wrong task to be rejected")
	}
}

func TestModifyPlanReplacementResetsCurrentPlan(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"first", "second"}}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	if _, err := m.UpdateTaskStatus(ctx, UpdateParams{UpdateType: UpdatePlan, PlanID: "plan-1", Status: model.PlanCompleted, Notes: "done"}); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}

	if _, err := m.ModifyTask(ctx, ModifyParams{Field: FieldPlan, Plan: []string{"replanned work"}}); err != nil {
		t.Fatalf("ModifyTask(plan): %v", err)
	}

	read, err := m.GetCurrentTask(ctx)
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}
	if len(read.Task.OverallPlan) != 1 || read.Task.OverallPlan[0].ID != "plan-1" {
		t.Fatalf("OverallPlan = %+v", read.Task.OverallPlan)
	}
	if read.Task.CurrentPlanID != "plan-1" || read.Task.OverallPlan[0].Status != model.PlanInProgress {
		t.Errorf("plan replacement did not reset current plan: %+v", read.Task)
	}
}

func TestCompleteTaskBlockedByPendingEVR(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"do the thing"}}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	if _, err := m.ModifyTask(ctx, ModifyParams{Field: FieldEVR, EVR: []EVRSpec{
		{Op: EVROpCreate, ID: "evr-1", Title: "it works", PlanID: "plan-1"},
	}}); err != nil {
		t.Fatalf("ModifyTask(evr): %v", err)
	}

	result, err := m.CompleteTask(ctx, "wrapping up")
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if result.Success {
		t.Fatal("expected completion to be blocked by the unresolved EVR")
	}
	if result.ErrorCode != "EVR_NOT_READY" {
		t.Errorf("ErrorCode = %q, want EVR_NOT_READY", result.ErrorCode)
	}
}

func TestCompleteTaskArchivesOnSuccess(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	init, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"do the thing"}})
	if err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	result, err := m.CompleteTask(ctx, "all done")
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if !result.Success || result.TaskID != init.TaskID {
		t.Fatalf("CompleteTask result = %+v", result)
	}

	read, err := m.GetCurrentTask(ctx)
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}
	if read.Task != nil {
		t.Fatal("expected no active task after completion")
	}
}

func TestGetCurrentTaskNoActiveTask(t *testing.T) {
	m := newTestManager(t)
	read, err := m.GetCurrentTask(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}
	if read.Task != nil {
		t.Fatal("expected a nil task when none has been initialized")
	}
}

func TestGetCurrentTaskAdvisesOnUnreferencedEVR(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"do the thing"}}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	if _, err := m.ModifyTask(ctx, ModifyParams{Field: FieldEVR, EVR: []EVRSpec{
		{Op: EVROpCreate, ID: "evr-orphan", Title: "nothing binds to this"},
	}}); err != nil {
		t.Fatalf("ModifyTask(evr): %v", err)
	}

	read, err := m.GetCurrentTask(ctx)
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}
	if read.Advisory == "" {
		t.Error("expected an advisory message about the unreferenced EVR")
	}
}

func TestGetCurrentTaskDerivedFields(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal", OverallPlan: []string{"do the thing"}}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	if _, err := m.ModifyTask(ctx, ModifyParams{Field: FieldEVR, EVR: []EVRSpec{
		{Op: EVROpCreate, ID: "evr-static", Title: "static with proof", Class: model.EVRClassStatic, PlanID: "plan-1"},
		{Op: EVROpCreate, ID: "evr-runtime", Title: "always needs a run", PlanID: "plan-1"},
	}}); err != nil {
		t.Fatalf("ModifyTask(evr): %v", err)
	}

	if _, err := m.UpdateTaskStatus(ctx, UpdateParams{
		UpdateType: UpdateEVR,
		EVRItems: []EVRUpdateItem{
			{EVRID: "evr-static", Status: model.EVRPass, Proof: "ran the check"},
			{EVRID: "evr-runtime", Status: model.EVRFail},
		},
	}); err != nil {
		t.Fatalf("UpdateTaskStatus(evr): %v", err)
	}

	read, err := m.GetCurrentTask(ctx)
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}

	if read.MDVersion == "" {
		t.Error("expected MDVersion to be populated")
	}
	if read.LogsFullCount != len(read.Task.Logs) {
		t.Errorf("LogsFullCount = %d, want %d", read.LogsFullCount, len(read.Task.Logs))
	}
	if len(read.LogsHighlights) == 0 {
		t.Error("expected at least one highlight log entry from the EVR verification runs")
	}
	for _, l := range read.LogsHighlights {
		if l.Action != model.LogActionVerified && l.Action != model.LogActionFailed && l.Action != model.LogActionTest {
			t.Errorf("highlight entry has non-highlight action %q", l.Action)
		}
	}

	if len(read.EVRDetails) != 2 {
		t.Fatalf("EVRDetails = %d entries, want 2", len(read.EVRDetails))
	}
	var staticDetail, runtimeDetail *EVRDetail
	for i := range read.EVRDetails {
		switch read.EVRDetails[i].EVRID {
		case "evr-static":
			staticDetail = &read.EVRDetails[i]
		case "evr-runtime":
			runtimeDetail = &read.EVRDetails[i]
		}
	}
	if staticDetail == nil || runtimeDetail == nil {
		t.Fatal("expected both evr-static and evr-runtime in EVRDetails")
	}
	if staticDetail.RequiresFinalCheck {
		t.Error("a passed static EVR with proof should not require a final runtime check")
	}
	if !runtimeDetail.RequiresFinalCheck {
		t.Error("a runtime EVR always requires a final check")
	}
	if len(read.EVRRequiredFinal) != 1 || read.EVRRequiredFinal[0] != "evr-runtime" {
		t.Errorf("EVRRequiredFinal = %v, want [evr-runtime]", read.EVRRequiredFinal)
	}
}

// TestSaveWithRetryReappliesMutationOnConflict exercises saveWithRetry
// itself against a genuine StateVersion conflict (a write that landed
// between this call's load and save, as if a second writer bypassed the
// advisory lock and wrote current-task.json directly). The mutate callback
// must reapply the caller's real field change to the freshly reloaded
// task, not merely resave whatever the other writer left behind.
func TestSaveWithRetryReappliesMutationOnConflict(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.InitTask(ctx, InitParams{Title: "x", Goal: "a sufficiently long goal"}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	task, version, err := m.store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// A second writer commits version+1 behind this call's back.
	racer, _, err := m.store.Load()
	if err != nil {
		t.Fatalf("Load (racer): %v", err)
	}
	racer.TaskHints = append(racer.TaskHints, "left by the racing writer")
	if res, err := m.store.Save(racer, version); err != nil || !res.Success {
		t.Fatalf("racer Save: res=%+v err=%v", res, err)
	}

	mutateCalls := 0
	const wantGoal = "goal rewritten by the retried mutation"
	saved, err := m.saveWithRetry(task, version, func(fresh *model.Task) error {
		mutateCalls++
		fresh.Goal = wantGoal
		return nil
	})
	if err != nil {
		t.Fatalf("saveWithRetry: %v", err)
	}
	if mutateCalls != 1 {
		t.Fatalf("mutate called %d times, want 1", mutateCalls)
	}
	if saved.Goal != wantGoal {
		t.Fatalf("saveWithRetry result Goal = %q, want %q", saved.Goal, wantGoal)
	}

	reread, _, err := m.store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reread.Goal != wantGoal {
		t.Fatalf("on-disk Goal = %q, want %q — the retried mutation was dropped", reread.Goal, wantGoal)
	}
	if len(reread.TaskHints) != 1 {
		t.Errorf("expected the racing writer's hint to survive the retry, TaskHints = %v", reread.TaskHints)
	}
}
