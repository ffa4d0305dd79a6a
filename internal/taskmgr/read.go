package taskmgr

import (
	"context"

	"github.com/deadwavewave/wavetask/internal/evr"
	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/sync"
)

// ReadResult is the output of GetCurrentTask (§6 "task.read").
type ReadResult struct {
	Task        *model.Task  `json:"task"`
	SyncPreview *sync.Result `json:"sync_preview,omitempty"`
	EVRSummary  evr.Summary  `json:"evr_summary"`
	Advisory    string       `json:"advisory,omitempty"`

	// EVRDetails gives the host a per-EVR readiness breakdown without
	// re-deriving it from Task.ExpectedResults.
	EVRDetails []EVRDetail `json:"evr_details"`
	// EVRRequiredFinal lists the EVRs that still need a final verification
	// run before the task could complete (evr.RequiresFinalRuntimeCheck),
	// independent of whether the gate currently blocks completion for some
	// other reason.
	EVRRequiredFinal []string `json:"evr_required_final,omitempty"`
	// LogsHighlights is the most recent highlight-worthy log entries
	// (VERIFIED/FAILED/TEST actions), newest last.
	LogsHighlights []model.LogEntry `json:"logs_highlights,omitempty"`
	// LogsFullCount is the total number of log entries on the task, which
	// may exceed len(LogsHighlights).
	LogsFullCount int `json:"logs_full_count"`
	// MDVersion is the rendered panel's current ETag.
	MDVersion string `json:"md_version,omitempty"`
	// PanelPending reports whether this read's own lazy sync found and
	// applied a panel edit that had not yet been reconciled into state.
	PanelPending bool `json:"panel_pending"`
}

// EVRDetail is one entry of ReadResult.EVRDetails.
type EVRDetail struct {
	EVRID             string `json:"evr_id"`
	Title             string `json:"title"`
	Status            string `json:"status"`
	Class             string `json:"class"`
	Ready             bool   `json:"ready"`
	RequiresFinalCheck bool  `json:"requires_final_check"`
}

// logsHighlightLimit bounds how many highlight log entries task.read
// returns; the full count is still reported via LogsFullCount.
const logsHighlightLimit = 10

// buildEVRDetails derives the per-EVR readiness breakdown task.read
// surfaces alongside the raw Task.ExpectedResults.
func buildEVRDetails(all []model.ExpectedResult) ([]EVRDetail, []string) {
	details := make([]EVRDetail, 0, len(all))
	var requiredFinal []string
	for i := range all {
		e := &all[i]
		requiresFinal := evr.RequiresFinalRuntimeCheck(e)
		details = append(details, EVRDetail{
			EVRID:              e.ID,
			Title:              e.Title,
			Status:             e.Status,
			Class:              e.EffectiveClass(),
			Ready:              evr.Ready(e),
			RequiresFinalCheck: requiresFinal,
		})
		if requiresFinal {
			requiredFinal = append(requiredFinal, e.ID)
		}
	}
	return details, requiredFinal
}

// logsHighlights returns the most recent highlight-worthy log entries
// (chronological order, oldest of the selected entries first), per the
// teacher's pattern of surfacing a trimmed "what just happened" summary
// alongside the full log.
func logsHighlights(logs []model.LogEntry, limit int) []model.LogEntry {
	var highlights []model.LogEntry
	for i := len(logs) - 1; i >= 0 && len(highlights) < limit; i-- {
		switch logs[i].Action {
		case model.LogActionVerified, model.LogActionFailed, model.LogActionTest:
			highlights = append(highlights, logs[i])
		}
	}
	for l, r := 0, len(highlights)-1; l < r; l, r = l+1, r-1 {
		highlights[l], highlights[r] = highlights[r], highlights[l]
	}
	return highlights
}

// GetCurrentTask performs a lazy sync under a read lock and returns the
// reconciled task (§4.6 "getCurrentTask"). A sync that applies changes is
// persisted immediately so the on-disk task stays coherent with the panel
// it was just reconciled against.
func (m *Manager) GetCurrentTask(ctx context.Context) (*ReadResult, error) {
	var result *ReadResult

	handle, err := m.locks.AcquireRead(ctx, activeTaskSlot, m.processID, m.locks.DefaultTimeout())
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := m.locks.Release(handle); rerr != nil && m.logger != nil {
			m.logger.Error("failed to release lock", "task_id", activeTaskSlot, "error", rerr)
		}
	}()

	task, version, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if task == nil {
		return &ReadResult{Task: nil}, nil
	}

	syncResult := m.lazySync(task)
	if syncResult.Applied {
		if _, err := m.store.Save(task, version); err != nil {
			return nil, err
		}
	}

	details, requiredFinal := buildEVRDetails(task.ExpectedResults)

	result = &ReadResult{
		Task:             task,
		EVRSummary:       evr.Summarize(task.ExpectedResults),
		EVRDetails:       details,
		EVRRequiredFinal: requiredFinal,
		LogsHighlights:   logsHighlights(task.Logs, logsHighlightLimit),
		LogsFullCount:    len(task.Logs),
		MDVersion:        task.MDVersion,
		PanelPending:     syncResult.Applied,
	}
	if syncResult.Applied {
		result.SyncPreview = syncResult
	}

	outcome := advisoryOutcome(task)
	result.Advisory = outcome.FormatAdvisoryMessage()

	return result, nil
}

// advisoryOutcome surfaces non-fatal suggestions on the read path: one for
// each EVR that no plan references.
func advisoryOutcome(task *model.Task) *evr.Outcome {
	outcome := &evr.Outcome{}
	for _, e := range task.ExpectedResults {
		if len(e.ReferencedBy) == 0 {
			outcome.Results = append(outcome.Results, evr.Result{
				CheckName: "unreferenced_evr",
				Passed:    false,
				Severity:  evr.Suggestion,
				Message:   "EVR " + e.ID + " is not referenced by any plan",
			})
		}
	}
	return outcome
}
