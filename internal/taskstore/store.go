// Package taskstore persists Tasks as JSON + rendered Markdown under a
// project's ".wave" data root, using the Concurrency Manager's
// version-checked atomic writes, and archives completed tasks to history.
package taskstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/deadwavewave/wavetask/internal/lock"
	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/panel"
	"github.com/deadwavewave/wavetask/internal/sync"
	"github.com/deadwavewave/wavetask/internal/werrors"
)

const (
	currentTaskJSON = "current-task.json"
	currentTaskMD   = "current-task.md"
)

// Store persists the single active task for one project.
type Store struct {
	docsRoot    string
	locks       *lock.Manager
	frontMatter bool
}

// New creates a Store rooted at a project's ".wave" directory.
func New(docsRoot string, locks *lock.Manager, frontMatter bool) *Store {
	return &Store{docsRoot: docsRoot, locks: locks, frontMatter: frontMatter}
}

func (s *Store) taskPath() string    { return filepath.Join(s.docsRoot, currentTaskJSON) }
func (s *Store) panelPath() string   { return filepath.Join(s.docsRoot, currentTaskMD) }
func (s *Store) historyPath(id string) string {
	return filepath.Join(s.docsRoot, "history", id+".json")
}

// Load reads the current task JSON along with its StateVersion. Returns
// (nil, 0, nil) if no task is currently active. There is at most one active
// task per project, so its id is read from the file itself rather than
// supplied by the caller.
func (s *Store) Load() (*model.Task, int, error) {
	data, err := os.ReadFile(s.taskPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, werrors.Wrap(werrors.CodeFileSystemError, "reading current task", err)
	}
	var t model.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, 0, werrors.Wrap(werrors.CodeInternal, "current-task.json is corrupted", err)
	}
	version, err := s.locks.ReadVersion(t.ID)
	if err != nil {
		return nil, 0, err
	}
	return &t, version, nil
}

// LoadPanel reads the current panel document and its modification time.
// Returns ("", zero-time, nil) if no panel file is present.
func (s *Store) LoadPanel() (string, time.Time, error) {
	info, err := os.Stat(s.panelPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, werrors.Wrap(werrors.CodeFileSystemError, "stat current-task.md", err)
	}
	data, err := os.ReadFile(s.panelPath())
	if err != nil {
		return "", time.Time{}, werrors.Wrap(werrors.CodeFileSystemError, "reading current-task.md", err)
	}
	return string(data), info.ModTime(), nil
}

// Save persists task as JSON (version-checked via the Concurrency Manager)
// and renders+writes the Markdown panel. Returns the write result so
// callers can detect and retry on a StateVersion conflict.
func (s *Store) Save(task *model.Task, expectedVersion int) (lock.WriteResult, error) {
	rendered := panel.Render(task, panel.RenderOptions{FrontMatter: s.frontMatter})
	body := rendered
	if s.frontMatter {
		if idx := indexOfDelim(rendered); idx >= 0 {
			body = rendered[idx:]
		}
	}
	task.MDVersion = sync.ETag(body)

	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return lock.WriteResult{}, werrors.Wrap(werrors.CodeInternal, "encoding task", err)
	}

	result, err := s.locks.AtomicWrite(task.ID, s.taskPath(), data, expectedVersion)
	if err != nil {
		return lock.WriteResult{}, err
	}
	if !result.Success {
		return result, nil
	}

	if err := os.MkdirAll(s.docsRoot, 0o755); err != nil {
		return result, werrors.Wrap(werrors.CodeFileSystemError, "creating docs root", err)
	}
	if err := os.WriteFile(s.panelPath(), []byte(rendered), 0o644); err != nil {
		return result, werrors.Wrap(werrors.CodeFileSystemError, "writing current-task.md", err)
	}

	return result, nil
}

// Archive moves a completed task to history: it writes
// "history/<id>.json" first and only deletes the live JSON/Markdown once
// that write succeeds, per the archive-then-delete two-phase rule (§9
// Open Question: "archive first, delete only on archive success").
func (s *Store) Archive(task *model.Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return werrors.Wrap(werrors.CodeInternal, "encoding task for archive", err)
	}

	path := s.historyPath(task.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return werrors.Wrap(werrors.CodeFileSystemError, "creating history directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-archive-*")
	if err != nil {
		return werrors.Wrap(werrors.CodeFileSystemError, "creating temp archive file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return werrors.Wrap(werrors.CodeFileSystemError, "writing temp archive file", err)
	}
	tmp.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return werrors.Wrap(werrors.CodeFileSystemError, "renaming archive file", err)
	}

	// Archive succeeded; only now is it safe to delete the live copies.
	if err := os.Remove(s.taskPath()); err != nil && !os.IsNotExist(err) {
		return werrors.Wrap(werrors.CodeFileSystemError, "removing current-task.json", err)
	}
	if err := os.Remove(s.panelPath()); err != nil && !os.IsNotExist(err) {
		return werrors.Wrap(werrors.CodeFileSystemError, "removing current-task.md", err)
	}
	return nil
}

// indexOfDelim returns the offset just past a leading front-matter block's
// closing "---\n" delimiter, or -1 if none is present.
func indexOfDelim(s string) int {
	const delim = "\n---\n"
	if len(s) < 4 || s[:4] != "---\n" {
		return -1
	}
	rest := s[4:]
	for i := 0; i+len(delim) <= len(rest); i++ {
		if rest[i:i+len(delim)] == delim {
			return 4 + i + len(delim)
		}
	}
	return -1
}
