package panel

import (
	"strings"
	"testing"
	"time"

	"github.com/deadwavewave/wavetask/internal/model"
)

func sampleTask() *model.Task {
	return &model.Task{
		ID:    "01HXYZ",
		Title: "Add retry to the fetch client",
		Goal:  "Requests retry on transient errors\nISSUE: current client gives up after one attempt",
		KnowledgeRefs: []string{"internal/fetch/client.go"},
		TaskHints:     []string{"keep the retry count configurable"},
		ExpectedResults: []model.ExpectedResult{
			{
				ID:           "evr-1",
				Title:        "Retries on 503",
				Verify:       model.StringList{"hit the endpoint with a mocked 503"},
				Expect:       model.StringList{"client retries up to the configured max"},
				Status:       model.EVRPass,
				Class:        model.EVRClassRuntime,
				ReferencedBy: []string{"plan-1"},
			},
		},
		OverallPlan: []model.Plan{
			{
				ID:          "plan-1",
				Description: "Implement retry loop",
				Status:      model.PlanInProgress,
				EVRBindings: []string{"evr-1"},
				Steps: []model.Step{
					{ID: "plan-1.1", Description: "add backoff helper", Status: model.StepCompleted},
					{ID: "plan-1.2", Description: "wire helper into client", Status: model.StepInProgress},
				},
			},
		},
		Logs: []model.LogEntry{
			{Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Level: "info", Category: model.LogCategoryContent, Action: "INIT", Message: "task created"},
		},
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	task := sampleTask()
	doc := Render(task, RenderOptions{})

	p, warnings := Parse(doc)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}

	if p.Title != task.Title {
		t.Errorf("Title = %q, want %q", p.Title, task.Title)
	}
	if p.TaskID != task.ID {
		t.Errorf("TaskID = %q, want %q", p.TaskID, task.ID)
	}
	if len(p.Requirements) != 1 || p.Requirements[0] != "Requests retry on transient errors" {
		t.Errorf("Requirements = %v", p.Requirements)
	}
	if len(p.Issues) != 1 || p.Issues[0] != "current client gives up after one attempt" {
		t.Errorf("Issues = %v", p.Issues)
	}
	if JoinGoal(p.Requirements, p.Issues) != task.Goal {
		t.Errorf("JoinGoal(Parse(Render(t))) = %q, want %q", JoinGoal(p.Requirements, p.Issues), task.Goal)
	}

	if len(p.Plans) != 1 {
		t.Fatalf("Plans = %d entries, want 1", len(p.Plans))
	}
	gotPlan := p.Plans[0]
	wantPlan := task.OverallPlan[0]
	if gotPlan.ID != wantPlan.ID || gotPlan.Description != wantPlan.Description || gotPlan.Status != wantPlan.Status {
		t.Errorf("Plan = %+v, want %+v", gotPlan, wantPlan)
	}
	if len(gotPlan.Steps) != 2 {
		t.Fatalf("Steps = %d, want 2", len(gotPlan.Steps))
	}
	for i, s := range gotPlan.Steps {
		want := wantPlan.Steps[i]
		if s.ID != want.ID || s.Description != want.Description || s.Status != want.Status {
			t.Errorf("Step[%d] = %+v, want %+v", i, s, want)
		}
	}

	if len(p.EVRs) != 1 {
		t.Fatalf("EVRs = %d, want 1", len(p.EVRs))
	}
	gotEVR := p.EVRs[0]
	wantEVR := task.ExpectedResults[0]
	if gotEVR.ID != wantEVR.ID || gotEVR.Title != wantEVR.Title || gotEVR.Status != wantEVR.Status {
		t.Errorf("EVR = %+v, want %+v", gotEVR, wantEVR)
	}
}

func TestRenderParseNoDiffIsStable(t *testing.T) {
	task := sampleTask()
	doc1 := Render(task, RenderOptions{})
	doc2 := Render(task, RenderOptions{})
	if doc1 != doc2 {
		t.Fatal("Render must be deterministic for an unchanged task")
	}
}

func TestRenderContextTagsDeterministicOrder(t *testing.T) {
	task := sampleTask()
	task.OverallPlan[0].ContextTags = map[string]string{
		"zeta": "last", "alpha": "first", "mid": "middle",
	}
	task.OverallPlan[0].Steps[0].ContextTags = map[string]string{
		"omega": "z", "beta": "b",
	}

	var first string
	for i := 0; i < 5; i++ {
		doc := Render(task, RenderOptions{})
		if i == 0 {
			first = doc
			continue
		}
		if doc != first {
			t.Fatalf("Render of unchanged context tags produced different output across runs (iteration %d)", i)
		}
	}
}

func TestCheckboxBijection(t *testing.T) {
	statuses := []string{model.PlanToDo, model.PlanInProgress, model.PlanCompleted, model.PlanBlocked}
	for _, s := range statuses {
		marker := CheckboxFor(s)
		got, ok := StatusForCheckbox(marker)
		if !ok {
			t.Errorf("StatusForCheckbox(%q) reported not ok", marker)
		}
		if got != s {
			t.Errorf("round trip of %q through %q produced %q", s, marker, got)
		}
	}
}

func TestStatusForCheckboxUnknownMarker(t *testing.T) {
	status, ok := StatusForCheckbox("[?]")
	if ok {
		t.Fatal("expected ok=false for an unrecognized marker")
	}
	if status != model.PlanToDo {
		t.Errorf("fallback status = %q, want %q", status, model.PlanToDo)
	}
}

func TestParseUnknownCheckboxWarns(t *testing.T) {
	doc := "# Task: x\n\n## Plans & Steps\n\n1. [?] do the thing <!-- plan:plan-1 -->\n"
	_, warnings := Parse(doc)
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warnings))
	}
	if !strings.Contains(warnings[0].Message, "plan-1") {
		t.Errorf("warning message = %q, want it to name plan-1", warnings[0].Message)
	}
}

func TestRenderParseMultiElementVerifyExpectRoundTrip(t *testing.T) {
	task := sampleTask()
	task.ExpectedResults[0].Verify = model.StringList{
		"hit the endpoint with a mocked 503",
		"hit it again with a mocked 429",
		"confirm the backoff timer is reset between runs",
	}
	task.ExpectedResults[0].Expect = model.StringList{
		"client retries up to the configured max",
		"each retry uses exponential backoff",
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	task.ExpectedResults[0].LastRun = &now
	task.ExpectedResults[0].Runs = []model.VerificationRun{
		{At: now, By: model.RunByAI, Status: model.EVRPass, Notes: "looks good"},
	}

	doc := Render(task, RenderOptions{})
	p, warnings := Parse(doc)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
	if len(p.EVRs) != 1 {
		t.Fatalf("EVRs = %d, want 1", len(p.EVRs))
	}

	got := p.EVRs[0]
	want := task.ExpectedResults[0]
	if len(got.Verify) != len(want.Verify) {
		t.Fatalf("Verify = %v, want %v", got.Verify, want.Verify)
	}
	for i := range want.Verify {
		if got.Verify[i] != want.Verify[i] {
			t.Errorf("Verify[%d] = %q, want %q", i, got.Verify[i], want.Verify[i])
		}
	}
	if len(got.Expect) != len(want.Expect) {
		t.Fatalf("Expect = %v, want %v", got.Expect, want.Expect)
	}
	for i := range want.Expect {
		if got.Expect[i] != want.Expect[i] {
			t.Errorf("Expect[%d] = %q, want %q", i, got.Expect[i], want.Expect[i])
		}
	}
	if got.LastRun == nil || !got.LastRun.Equal(*want.LastRun) {
		t.Errorf("LastRun = %v, want %v", got.LastRun, want.LastRun)
	}
}

func TestFrontMatterRoundTrip(t *testing.T) {
	task := sampleTask()
	doc := Render(task, RenderOptions{FrontMatter: true})
	if !strings.HasPrefix(doc, "---\n") {
		t.Fatal("expected a front-matter block when FrontMatter is enabled")
	}

	p, _ := Parse(doc)
	if p.MDVersion == "" {
		t.Error("expected MDVersion to be parsed from front matter")
	}
	if p.Title != task.Title {
		t.Errorf("Title after front-matter parse = %q, want %q", p.Title, task.Title)
	}
}
