// Package taskmgr implements the Task Manager (C7): the orchestrator that
// wires together the Concurrency Manager, Lazy Synchronizer, EVR
// Validator, and taskstore persistence behind the five operations a host
// dispatches (init, update, modify, complete, read).
package taskmgr

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"

	"github.com/deadwavewave/wavetask/internal/lock"
	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/sync"
	"github.com/deadwavewave/wavetask/internal/taskstore"
	"github.com/deadwavewave/wavetask/internal/werrors"
)

// maxWriteRetries bounds retries on a StateVersion conflict (§4.6
// "Concurrency": "Versioned writes are retried on conflict up to 3 times").
const maxWriteRetries = 3

// Manager orchestrates a single project's current task.
type Manager struct {
	store     *taskstore.Store
	locks     *lock.Manager
	logger    *slog.Logger
	processID string
}

// New creates a Manager. processID identifies this engine instance to the
// Concurrency Manager's lock protocol.
func New(store *taskstore.Store, locks *lock.Manager, logger *slog.Logger, processID string) *Manager {
	return &Manager{store: store, locks: locks, logger: logger, processID: processID}
}

// NewProcessID generates a fresh process identifier suitable for
// Manager.New, using the same ULID scheme as every other identifier in
// this engine.
func NewProcessID() string {
	return ulid.Make().String()
}

// activeTaskSlot names the single per-project lock slot a project's
// one active task occupies. A project has at most one active task at a
// time (§3), so the lock protocol serializes on this fixed slot rather than
// on the task's own id, which callers of the read/update/complete
// operations don't know in advance.
const activeTaskSlot = "active-task"

// withWriteLock runs fn while holding the active task's write lock, always
// releasing it on the way out (success, error, or panic).
func (m *Manager) withWriteLock(ctx context.Context, fn func() error) error {
	// The Manager's configured default is passed explicitly rather than 0:
	// 0 now means "fail immediately if contended" (§4.2), and production
	// writes should tolerate brief contention rather than fail-fast on it.
	handle, err := m.locks.AcquireWrite(ctx, activeTaskSlot, m.processID, m.locks.DefaultTimeout())
	if err != nil {
		return err
	}
	defer func() {
		if rerr := m.locks.Release(handle); rerr != nil && m.logger != nil {
			m.logger.Error("failed to release lock", "task_id", activeTaskSlot, "error", rerr)
		}
	}()
	return fn()
}

// lazySync loads the panel (if any) and reconciles it into task, per the
// ordering guarantee in §5: sync always happens before the mutation phase
// and never observes the current operation's own writes.
func (m *Manager) lazySync(task *model.Task) *sync.Result {
	doc, modTime, err := m.store.LoadPanel()
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("failed to load panel for lazy sync", "task_id", task.ID, "error", err)
		}
		return &sync.Result{Applied: false, Error: err.Error()}
	}
	return sync.Sync(task, doc, modTime)
}

// errMutationSuperseded signals that, on reapplication against a freshly
// reloaded task, the caller's mutation no longer applies — e.g. an EVR
// gate that passed against the stale read now blocks it. saveWithRetry
// treats this as "nothing left to persist" rather than a failure: the
// caller is expected to have already recorded the superseding outcome on
// its result before returning it from mutate.
var errMutationSuperseded = errors.New("mutation no longer applies to the current task state")

// saveWithRetry persists task, retrying on StateVersion conflict by
// re-reading the task and calling mutate again against the fresh copy, so
// a retry re-derives and reapplies the caller's actual change instead of
// silently dropping it. mutate must mutate t in place; returning
// errMutationSuperseded aborts the retry without error, leaving the fresh
// (unmutated-by-this-call) task on disk.
func (m *Manager) saveWithRetry(task *model.Task, version int, mutate func(t *model.Task) error) (*model.Task, error) {
	for attempt := 0; attempt <= maxWriteRetries; attempt++ {
		task.UpdatedAt = time.Now().UTC()
		result, err := m.store.Save(task, version)
		if err != nil {
			return nil, err
		}
		if result.Success {
			return task, nil
		}

		// Conflict: re-read, reapply the mutation, retry.
		fresh, freshVersion, err := m.store.Load()
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			return nil, werrors.New(werrors.CodeTaskNotFound, "task disappeared during retry")
		}
		if err := mutate(fresh); err != nil {
			if errors.Is(err, errMutationSuperseded) {
				return fresh, nil
			}
			return nil, err
		}
		task = fresh
		version = freshVersion
	}
	return nil, werrors.New(werrors.CodeStateVersionConflict, "exceeded retries writing task")
}

var slugNonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// slugify derives a Task.slug from its title: ASCII/Unicode word runs
// joined by hyphens, lowercased unless purely CJK, capped at 100 chars
// (§3 "slug (derived from title; ≤100 chars; Unicode-safe)").
func slugify(title string) string {
	s := slugNonWord.ReplaceAllString(strings.TrimSpace(title), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "untitled-task"
	}
	if !isPureCJK(s) {
		s = strings.ToLower(s)
	}
	if runes := []rune(s); len(runes) > 100 {
		s = strings.TrimRight(string(runes[:100]), "-")
	}
	if s == "" {
		return "untitled-task"
	}
	return s
}

func isPureCJK(s string) bool {
	for _, r := range s {
		if r == '-' {
			continue
		}
		if !unicode.Is(unicode.Han, r) {
			return false
		}
	}
	return true
}

func newLog(category, action, message string, details map[string]any) model.LogEntry {
	entry := model.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     "info",
		Category:  category,
		Action:    action,
		Message:   message,
		Details:   details,
	}
	return taskstore.RedactAndTruncate(entry)
}
