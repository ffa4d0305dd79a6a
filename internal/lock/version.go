package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/deadwavewave/wavetask/internal/werrors"
)

func (m *Manager) statePath(taskID string) string {
	return filepath.Join(m.docsRoot, ".state", taskID+".state")
}

// ReadVersion returns the current StateVersion for a task, or 0 if no
// version file exists yet (a brand-new task).
func (m *Manager) ReadVersion(taskID string) (int, error) {
	data, err := os.ReadFile(m.statePath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, werrors.Wrap(werrors.CodeFileSystemError, "reading state version", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, werrors.Wrap(werrors.CodeFileSystemError, "parsing state version", err)
	}
	return v, nil
}

// WriteResult reports whether a versioned write succeeded.
type WriteResult struct {
	Success     bool
	Conflict    bool
	NewVersion  int
}

// AtomicWrite writes data to path only if the task's on-disk StateVersion
// still equals expectedVersion, then bumps the version. Both the target
// file and the version file are written via temp-file-then-rename so a
// crash mid-write never leaves a partial file in place.
func (m *Manager) AtomicWrite(taskID, path string, data []byte, expectedVersion int) (WriteResult, error) {
	current, err := m.ReadVersion(taskID)
	if err != nil {
		return WriteResult{}, err
	}
	if current != expectedVersion {
		return WriteResult{Success: false, Conflict: true, NewVersion: current}, nil
	}

	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return WriteResult{}, werrors.Wrap(werrors.CodeFileSystemError, "writing task file", err)
	}

	newVersion := current + 1
	statePath := m.statePath(taskID)
	if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
		return WriteResult{}, werrors.Wrap(werrors.CodeFileSystemError, "creating state directory", err)
	}
	if err := writeFileAtomic(statePath, []byte(strconv.Itoa(newVersion)), 0o644); err != nil {
		return WriteResult{}, werrors.Wrap(werrors.CodeFileSystemError, "writing state version", err)
	}

	return WriteResult{Success: true, NewVersion: newVersion}, nil
}

// writeFileAtomic writes data to a temp file in the same directory as path,
// then renames it into place, so readers never observe a partial write.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// ReadVersioned reads path along with the task's current StateVersion, for
// callers that want to later verify no write occurred since (§4.2 "Readers
// get {data, version}").
func (m *Manager) ReadVersioned(taskID, path string) ([]byte, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	version, err := m.ReadVersion(taskID)
	if err != nil {
		return nil, 0, err
	}
	return data, version, nil
}
