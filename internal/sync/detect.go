package sync

import (
	"strings"
	"time"

	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/panel"
)

// detect implements the Detect + Merge phases of §4.5: it compares
// panel-sourced fields against state-sourced fields and applies the
// etag_first_then_ts merge policy, returning the changes to apply and any
// conflicts that must instead be recorded without mutation.
func detect(p *panel.Panel, task *model.Task, panelETag string, panelModTime time.Time) ([]ContentChange, []StatusChange, []Conflict) {
	panelWins := panelETag != task.MDVersion

	var changes []ContentChange
	var statusChanges []StatusChange
	var conflicts []Conflict

	if p.Title != "" && p.Title != task.Title {
		appendContentChange(&changes, &conflicts, "title", "title", task.Title, p.Title, panelWins, task.UpdatedAt, panelModTime)
	}

	if joined := joinRequirementsIssues(p); joined != "" && joined != task.Goal {
		appendContentChange(&changes, &conflicts, "goal", "requirements", task.Goal, joined, panelWins, task.UpdatedAt, panelModTime)
	}

	if hintsJoined := strings.Join(p.TaskHints, "\n"); len(p.TaskHints) > 0 && hintsJoined != strings.Join(task.TaskHints, "\n") {
		changes = append(changes, ContentChange{
			Section: "task_hints", Field: "hints",
			OldValue: strings.Join(task.TaskHints, "\n"), NewValue: hintsJoined,
			Source: SourcePanel,
		})
	}

	for _, pp := range p.Plans {
		existing := task.FindPlan(pp.ID)
		if existing == nil {
			continue // new plan from panel: left for modifyTask, not lazy sync
		}
		if pp.Description != "" && pp.Description != existing.Description {
			appendContentChange(&changes, &conflicts, "plan:"+pp.ID, "description", existing.Description, pp.Description, panelWins, task.UpdatedAt, panelModTime)
		}
		if pp.Status != "" && pp.Status != existing.Status {
			statusChanges = append(statusChanges, StatusChange{Target: TargetPlan, ID: pp.ID, OldStatus: existing.Status, NewStatus: pp.Status})
		}
		for _, ps := range pp.Steps {
			existingStep, _ := task.FindStep(ps.ID)
			if existingStep == nil {
				continue
			}
			if ps.Description != "" && ps.Description != existingStep.Description {
				appendContentChange(&changes, &conflicts, "step:"+ps.ID, "description", existingStep.Description, ps.Description, panelWins, task.UpdatedAt, panelModTime)
			}
			if ps.Status != "" && ps.Status != existingStep.Status {
				statusChanges = append(statusChanges, StatusChange{Target: TargetStep, ID: ps.ID, OldStatus: existingStep.Status, NewStatus: ps.Status})
			}
		}
	}

	for _, pe := range p.EVRs {
		existing := task.FindEVR(pe.ID)
		if existing == nil {
			continue
		}
		if pe.Title != "" && pe.Title != existing.Title {
			appendContentChange(&changes, &conflicts, "evr:"+pe.ID, "title", existing.Title, pe.Title, panelWins, task.UpdatedAt, panelModTime)
		}
		if len(pe.Verify) > 0 && joinList(pe.Verify) != joinList(existing.Verify) {
			appendContentChange(&changes, &conflicts, "evr:"+pe.ID, "verify", joinList(existing.Verify), joinList(pe.Verify), panelWins, task.UpdatedAt, panelModTime)
		}
		if len(pe.Expect) > 0 && joinList(pe.Expect) != joinList(existing.Expect) {
			appendContentChange(&changes, &conflicts, "evr:"+pe.ID, "expect", joinList(existing.Expect), joinList(pe.Expect), panelWins, task.UpdatedAt, panelModTime)
		}
		if pe.Status != "" && pe.Status != existing.Status {
			statusChanges = append(statusChanges, StatusChange{Target: TargetEVR, ID: pe.ID, OldStatus: existing.Status, NewStatus: pe.Status})
		}
	}

	return changes, statusChanges, conflicts
}

func joinRequirementsIssues(p *panel.Panel) string {
	if len(p.Requirements) == 0 && len(p.Issues) == 0 {
		return ""
	}
	return joinGoalFields(p.Requirements, p.Issues)
}

func joinGoalFields(requirements, issues []string) string {
	lines := append([]string{}, requirements...)
	for _, i := range issues {
		lines = append(lines, "ISSUE: "+i)
	}
	return strings.Join(lines, "\n")
}

func joinList(items model.StringList) string {
	return strings.Join(items, "\n")
}

// appendContentChange decides, per the etag_first_then_ts policy, whether a
// panel-vs-state disagreement becomes an applied ContentChange (panel
// wins) or a Conflict (state's more-recent update is retained, and no
// change is applied). When the ETag and panel mtime both agree with state
// yet content nonetheless differs, the Open Question fix in §9 applies:
// panel still wins for content fields.
func appendContentChange(changes *[]ContentChange, conflicts *[]Conflict, section, field, oldValue, newValue string, panelWins bool, stateUpdatedAt, panelModTime time.Time) {
	if panelWins && stateUpdatedAt.After(panelModTime) {
		*conflicts = append(*conflicts, Conflict{
			Region: section, Field: field, Reason: ReasonTSConflict,
			OursTS: stateUpdatedAt, TheirsTS: panelModTime,
		})
		return
	}
	*changes = append(*changes, ContentChange{Section: section, Field: field, OldValue: oldValue, NewValue: newValue, Source: SourcePanel})
}
