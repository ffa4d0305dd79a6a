package taskmgr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// These mirror the six end-to-end scenarios walked through init, update,
// modify, and complete against a single project's on-disk state.

func TestScenarioInitThenCompleteNoEVRs(t *testing.T) {
	m, root := newTestManagerWithRoot(t)
	ctx := context.Background()

	init, err := m.InitTask(ctx, InitParams{
		Title:       "T1",
		Goal:        "Implement feature X completely",
		OverallPlan: []string{"design", "build", "ship"},
	})
	if err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	if init.CurrentPlanID != "plan-1" {
		t.Fatalf("CurrentPlanID = %q, want plan-1", init.CurrentPlanID)
	}

	for _, planID := range []string{"plan-1", "plan-2", "plan-3"} {
		res, err := m.UpdateTaskStatus(ctx, UpdateParams{
			UpdateType: UpdatePlan, PlanID: planID, Status: "completed", Notes: "done",
		})
		if err != nil {
			t.Fatalf("UpdateTaskStatus(%s): %v", planID, err)
		}
		if !res.Success {
			t.Fatalf("UpdateTaskStatus(%s) did not succeed: %+v", planID, res)
		}
	}

	complete, err := m.CompleteTask(ctx, "ok")
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if !complete.Success {
		t.Fatalf("CompleteTask did not succeed: %+v", complete)
	}
	if complete.TaskID != init.TaskID {
		t.Errorf("archived task id = %q, want %q", complete.TaskID, init.TaskID)
	}
	if complete.Summary == nil || complete.Summary.Total != 0 {
		t.Errorf("evr_summary.total = %+v, want 0", complete.Summary)
	}

	historyPath := filepath.Join(root, "history", complete.TaskID+".json")
	if _, err := os.Stat(historyPath); err != nil {
		t.Errorf("expected history file to exist: %v", err)
	}
	currentPath := filepath.Join(root, "current-task.json")
	if _, err := os.Stat(currentPath); !os.IsNotExist(err) {
		t.Errorf("expected current-task.json to be gone, stat err = %v", err)
	}
}

func TestScenarioEVRGateBlocksPlanCompletion(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	init, err := m.InitTask(ctx, InitParams{
		Title:       "T1",
		Goal:        "Implement feature X completely",
		OverallPlan: []string{"design", "build", "ship"},
	})
	if err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	if _, err := m.ModifyTask(ctx, ModifyParams{
		TaskID: init.TaskID,
		Field:  FieldEVR,
		EVR: []EVRSpec{{
			Op: EVROpCreate, ID: "evr-1", Title: "Feature works",
			Verify: []string{"run it"}, Expect: []string{"it works"}, PlanID: "plan-1",
		}},
	}); err != nil {
		t.Fatalf("ModifyTask(EVR create): %v", err)
	}

	res, err := m.UpdateTaskStatus(ctx, UpdateParams{
		UpdateType: UpdatePlan, PlanID: "plan-1", Status: "completed", Notes: "x",
	})
	if err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if res.Success {
		t.Fatal("expected plan completion to be blocked by the unready EVR")
	}
	if !res.EVRPending {
		t.Fatal("expected evr_pending to be true")
	}
	if len(res.EVRForPlan) != 1 || res.EVRForPlan[0] != "evr-1" {
		t.Errorf("EVRForPlan = %v, want [evr-1]", res.EVRForPlan)
	}

	read, err := m.GetCurrentTask(ctx)
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}
	if plan := read.Task.OverallPlan[0]; plan.Status != "in_progress" {
		t.Errorf("plan-1 status = %q, want in_progress", plan.Status)
	}
}

func TestScenarioPanelEditSyncsOnNextRead(t *testing.T) {
	m, root := newTestManagerWithRoot(t)
	ctx := context.Background()

	if _, err := m.InitTask(ctx, InitParams{
		Title:       "T1",
		Goal:        "Implement feature X completely",
		OverallPlan: []string{"design", "build", "ship"},
	}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	panelPath := filepath.Join(root, "current-task.md")
	raw, err := os.ReadFile(panelPath)
	if err != nil {
		t.Fatalf("reading panel: %v", err)
	}
	edited := strings.Replace(string(raw), "design", "design phase", 1)
	if edited == string(raw) {
		t.Fatal("expected the panel to contain the text being edited")
	}
	if err := os.WriteFile(panelPath, []byte(edited), 0o644); err != nil {
		t.Fatalf("writing edited panel: %v", err)
	}

	read, err := m.GetCurrentTask(ctx)
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}
	if read.Task.OverallPlan[0].Description != "design phase" {
		t.Errorf("OverallPlan[0].Description = %q, want %q", read.Task.OverallPlan[0].Description, "design phase")
	}

	found := false
	for _, l := range read.Task.Logs {
		if l.Category == "content" && strings.Contains(strings.ToLower(l.Action), "sync") {
			found = true
		}
	}
	if !found {
		t.Error("expected a content/sync log entry to be appended")
	}
	if read.SyncPreview == nil || len(read.SyncPreview.Conflicts) != 0 {
		t.Errorf("expected no conflicts from a one-sided panel edit, got %+v", read.SyncPreview)
	}
}

func TestScenarioConcurrentMutationVersionConflict(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.InitTask(ctx, InitParams{Title: "T1", Goal: "Implement feature X completely"}); err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	taskA, versionA, err := m.store.Load()
	if err != nil {
		t.Fatalf("Load (A): %v", err)
	}
	taskB, versionB, err := m.store.Load()
	if err != nil {
		t.Fatalf("Load (B): %v", err)
	}
	if versionA != versionB {
		t.Fatalf("expected both readers to observe the same version, got %d and %d", versionA, versionB)
	}

	taskA.Goal = "Implement feature X completely, revision A"
	resA, err := m.store.Save(taskA, versionA)
	if err != nil {
		t.Fatalf("Save(A): %v", err)
	}
	if !resA.Success || resA.NewVersion != versionA+1 {
		t.Fatalf("Save(A) result = %+v", resA)
	}

	taskB.Goal = "Implement feature X completely, revision B"
	resB, err := m.store.Save(taskB, versionB)
	if err != nil {
		t.Fatalf("Save(B): %v", err)
	}
	if resB.Success || !resB.Conflict {
		t.Fatalf("expected Save(B) to conflict on a stale version, got %+v", resB)
	}

	reread, rereadVersion, err := m.store.Load()
	if err != nil {
		t.Fatalf("reload after conflict: %v", err)
	}
	reread.Goal = "Implement feature X completely, revision B retried"
	resRetry, err := m.store.Save(reread, rereadVersion)
	if err != nil {
		t.Fatalf("Save(B retry): %v", err)
	}
	if !resRetry.Success || resRetry.NewVersion != versionA+2 {
		t.Fatalf("Save(B retry) result = %+v, want version %d", resRetry, versionA+2)
	}
}

func TestScenarioStaleLockReclaim(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	deadHandle, err := m.locks.AcquireWrite(ctx, activeTaskSlot, "proc-dead", 1*time.Millisecond)
	if err != nil {
		t.Fatalf("AcquireWrite(dead): %v", err)
	}
	_ = deadHandle
	time.Sleep(5 * time.Millisecond)

	liveHandle, err := m.locks.AcquireWrite(ctx, activeTaskSlot, m.processID, 0)
	if err != nil {
		t.Fatalf("expected the stale lock to be reclaimed, got: %v", err)
	}
	if liveHandle.ProcessID != m.processID {
		t.Errorf("reclaimed handle ProcessID = %q, want %q", liveHandle.ProcessID, m.processID)
	}
	_ = m.locks.Release(liveHandle)
}

func TestScenarioEVRSkipWithoutReasonBlocksCompletion(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	init, err := m.InitTask(ctx, InitParams{
		Title:       "T1",
		Goal:        "Implement feature X completely",
		OverallPlan: []string{"design"},
	})
	if err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	if _, err := m.ModifyTask(ctx, ModifyParams{
		TaskID: init.TaskID,
		Field:  FieldEVR,
		EVR: []EVRSpec{{
			Op: EVROpCreate, ID: "evr-1", Title: "Feature works",
			Verify: []string{"run it"}, Expect: []string{"it works"}, PlanID: "plan-1",
		}},
	}); err != nil {
		t.Fatalf("ModifyTask(EVR create): %v", err)
	}

	if _, err := m.UpdateTaskStatus(ctx, UpdateParams{
		UpdateType: UpdateEVR,
		EVRItems:   []EVRUpdateItem{{EVRID: "evr-1", Status: "skip", Notes: ""}},
	}); err != nil {
		t.Fatalf("UpdateTaskStatus(EVR skip): %v", err)
	}

	result, err := m.CompleteTask(ctx, "")
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if result.Success {
		t.Fatal("expected completion to be blocked by the unreasoned skip")
	}
	if result.ErrorCode != "EVR_NOT_READY" {
		t.Errorf("ErrorCode = %q, want EVR_NOT_READY", result.ErrorCode)
	}
	if len(result.RequiredFinal) != 1 || result.RequiredFinal[0].EVRID != "evr-1" {
		t.Errorf("RequiredFinal = %+v", result.RequiredFinal)
	}

	read, err := m.GetCurrentTask(ctx)
	if err != nil {
		t.Fatalf("GetCurrentTask: %v", err)
	}
	if read.Task == nil {
		t.Fatal("expected the task to remain active after a blocked completion")
	}
}
