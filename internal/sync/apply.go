package sync

import (
	"strings"

	"github.com/deadwavewave/wavetask/internal/model"
)

// apply mutates task in place for a single resolved ContentChange (§4.5
// "Apply phase").
func apply(task *model.Task, c ContentChange) {
	switch {
	case c.Section == "title":
		task.Title = c.NewValue
	case c.Section == "goal":
		task.Goal = c.NewValue
	case c.Section == "task_hints":
		task.TaskHints = strings.Split(c.NewValue, "\n")
	case strings.HasPrefix(c.Section, "plan:"):
		id := strings.TrimPrefix(c.Section, "plan:")
		if p := task.FindPlan(id); p != nil && c.Field == "description" {
			p.Description = c.NewValue
		}
	case strings.HasPrefix(c.Section, "step:"):
		id := strings.TrimPrefix(c.Section, "step:")
		if s, _ := task.FindStep(id); s != nil && c.Field == "description" {
			s.Description = c.NewValue
		}
	case strings.HasPrefix(c.Section, "evr:"):
		id := strings.TrimPrefix(c.Section, "evr:")
		e := task.FindEVR(id)
		if e == nil {
			return
		}
		switch c.Field {
		case "title":
			e.Title = c.NewValue
		case "verify":
			e.Verify = splitList(c.NewValue)
		case "expect":
			e.Expect = splitList(c.NewValue)
		}
	}
}

func splitList(s string) model.StringList {
	if s == "" {
		return nil
	}
	return model.StringList(strings.Split(s, "\n"))
}

// applyStatus mutates task in place for a resolved StatusChange. No
// auto-advancement happens here — that belongs to the Task Manager's
// step-advancement rule (§4.5's "Apply phase").
func applyStatus(task *model.Task, sc StatusChange) {
	switch sc.Target {
	case TargetPlan:
		if p := task.FindPlan(sc.ID); p != nil {
			p.Status = sc.NewStatus
		}
	case TargetStep:
		if s, _ := task.FindStep(sc.ID); s != nil {
			s.Status = sc.NewStatus
		}
	case TargetEVR:
		if e := task.FindEVR(sc.ID); e != nil {
			e.Status = sc.NewStatus
		}
	}
}
