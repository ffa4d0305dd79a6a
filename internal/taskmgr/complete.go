package taskmgr

import (
	"context"
	"errors"
	"time"

	"github.com/deadwavewave/wavetask/internal/evr"
	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/werrors"
)

// CompleteResult is the output of CompleteTask.
type CompleteResult struct {
	Success       bool               `json:"success"`
	TaskID        string             `json:"task_id"`
	ErrorCode     string             `json:"error_code,omitempty"`
	RequiredFinal []evr.RequiredFinal `json:"required_final,omitempty"`
	Summary       *evr.Summary       `json:"summary,omitempty"`
}

// CompleteTask runs the task-wide EVR gate and, on success, archives the
// task to history (§4.6 "completeTask").
func (m *Manager) CompleteTask(ctx context.Context, summary string) (*CompleteResult, error) {
	var result *CompleteResult

	err := m.withWriteLock(ctx, func() error {
		task, version, err := m.store.Load()
		if err != nil {
			return err
		}
		if task == nil {
			return werrors.New(werrors.CodeTaskNotFound, "no active task")
		}

		// apply runs the task-wide EVR gate and, if it passes, marks the
		// task completed. It is called once against the initially loaded
		// task and, on a StateVersion conflict, again against each freshly
		// reloaded copy, so a retry re-checks the gate (another writer may
		// have changed an EVR) instead of blindly resaving stale state.
		var toArchive *model.Task
		apply := func(t *model.Task) error {
			m.lazySync(t)

			gate := evr.CheckTaskCompletion(t.ExpectedResults)
			if !gate.CanComplete {
				result = &CompleteResult{
					Success:       false,
					TaskID:        t.ID,
					ErrorCode:     gate.ErrorCode,
					RequiredFinal: gate.RequiredFinal,
					Summary:       &gate.Summary,
				}
				return errMutationSuperseded
			}

			now := time.Now().UTC()
			t.CompletedAt = &now
			t.Logs = append(t.Logs, newLog(model.LogCategoryLifecycle, "TASK_COMPLETED", summary, nil))

			result = &CompleteResult{Success: true, TaskID: t.ID, Summary: &gate.Summary}
			toArchive = t
			return nil
		}

		if err := apply(task); err != nil {
			if errors.Is(err, errMutationSuperseded) {
				return nil
			}
			return err
		}

		if _, err := m.saveWithRetry(task, version, apply); err != nil {
			return err
		}
		if !result.Success {
			return nil // a retry's gate recheck superseded the original completion
		}
		return m.store.Archive(toArchive)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
