// Package lock implements the Concurrency Manager (C2): the per-task file
// lock protocol with TTL and stale-lock reclaim, deadlock detection over a
// wait-for graph, StateVersion-based optimistic writes, and snapshots.
//
// Every operation here is scoped to a single task's "<docs>/.locks" and
// "<docs>/.state" directories under a project's data root; callers own the
// docs root the way the task manager owns the in-memory Task.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/werrors"
)

// Manager serializes mutations to tasks under a single project's docs root.
type Manager struct {
	docsRoot         string
	logger           *slog.Logger
	defaultTimeout   time.Duration
	retryInterval    time.Duration
	maxRetries       int
}

// Options configures a Manager's default timing.
type Options struct {
	DefaultTimeout time.Duration
	RetryInterval  time.Duration
	MaxRetries     int
}

// New creates a Manager rooted at docsRoot (a project's ".wave" directory).
func New(docsRoot string, logger *slog.Logger, opts Options) *Manager {
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.RetryInterval == 0 {
		opts.RetryInterval = 50 * time.Millisecond
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 1000
	}
	return &Manager{
		docsRoot:       docsRoot,
		logger:         logger,
		defaultTimeout: opts.DefaultTimeout,
		retryInterval:  opts.RetryInterval,
		maxRetries:     opts.MaxRetries,
	}
}

// Handle is a held lock, returned from a successful Acquire.
type Handle struct {
	TaskID    string
	ProcessID string
	Type      string
	path      string
}

func (m *Manager) lockPath(taskID string) string {
	return filepath.Join(m.docsRoot, ".locks", taskID+".lock")
}

// DefaultTimeout returns the Manager's configured acquisition-wait timeout
// (Options.DefaultTimeout), for callers that want that wait without hardcoding
// it themselves.
func (m *Manager) DefaultTimeout() time.Duration {
	return m.defaultTimeout
}

// AcquireWrite acquires (or reclaims) the write lock for a task. timeout < 0
// waits indefinitely; timeout == 0 fails immediately if the lock is
// contended (after one opportunistic stale-lock reclaim attempt); a positive
// value bounds the wait explicitly. Callers that want the Manager's
// configured default wait instead of fail-fast must pass DefaultTimeout()
// explicitly — 0 always means "don't wait".
func (m *Manager) AcquireWrite(ctx context.Context, taskID, processID string, timeout time.Duration) (*Handle, error) {
	return m.acquire(ctx, taskID, processID, model.LockWrite, timeout)
}

// AcquireRead acquires a short-lived lock for a consistent read (§5: reads
// that must observe a consistent JSON+panel pair may take the same lock).
// Its timeout follows the same convention as AcquireWrite.
func (m *Manager) AcquireRead(ctx context.Context, taskID, processID string, timeout time.Duration) (*Handle, error) {
	return m.acquire(ctx, taskID, processID, model.LockRead, timeout)
}

// AcquireWriteForce acquires the write lock for a task bypassing the normal
// wait/retry protocol: it succeeds only when no lock is held, or the held
// lock is stale (§4.2 "Force acquisition"). A valid (non-stale) lock held by
// another process is rejected outright with CodeLockHeld rather than waited
// out — callers that want to wait belong on AcquireWrite instead.
func (m *Manager) AcquireWriteForce(taskID, processID string) (*Handle, error) {
	path := m.lockPath(taskID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, werrors.Wrap(werrors.CodeFileSystemError, "creating locks directory", err)
	}

	l, err := readLock(path)
	if err != nil {
		return nil, err
	}
	if l != nil && !isStale(l) {
		return nil, werrors.New(werrors.CodeLockHeld, fmt.Sprintf("lock for task %s is held and not stale; force acquisition refused", taskID))
	}
	if l != nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, werrors.Wrap(werrors.CodeFileSystemError, "removing stale lock", err)
		}
		if m.logger != nil {
			m.logger.Warn("force-reclaimed stale lock", "task_id", taskID, "previous_holder", l.ProcessID, "new_holder", processID)
		}
	}

	handle, err := m.tryCreate(path, taskID, processID, model.LockWrite, m.defaultTimeout)
	if isConflict(err) {
		return nil, werrors.New(werrors.CodeLockHeld, fmt.Sprintf("lock for task %s was recreated concurrently; force acquisition refused", taskID))
	}
	return handle, err
}

func (m *Manager) acquire(ctx context.Context, taskID, processID, lockType string, timeout time.Duration) (*Handle, error) {
	path := m.lockPath(taskID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, werrors.Wrap(werrors.CodeFileSystemError, "creating locks directory", err)
	}

	m.sweepOne(path)

	// ttl governs how long the lock, once granted, lives before it is
	// eligible for stale reclaim — distinct from timeout, which only governs
	// how long this call is willing to wait to acquire it. timeout == 0 asks
	// for "don't wait", not "expires instantly", so a granted lock still
	// gets the Manager's configured TTL.
	ttl := timeout
	if timeout == 0 {
		ttl = m.defaultTimeout
	}

	deadline := time.Now().Add(timeout)
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil, werrors.Wrap(werrors.CodeInternal, "lock acquisition cancelled", ctx.Err())
		default:
		}

		handle, err := m.tryCreate(path, taskID, processID, lockType, ttl)
		if err == nil {
			return handle, nil
		}
		if !isConflict(err) {
			return nil, err
		}

		reclaimed, rerr := m.reclaimIfStale(path)
		if rerr != nil {
			return nil, rerr
		}
		if reclaimed {
			continue // retry create immediately, no sleep
		}

		if timeout == 0 {
			return nil, werrors.New(werrors.CodeLockTimeout, fmt.Sprintf("lock for task %s is held", taskID))
		}

		attempts++
		if attempts > m.maxRetries {
			return nil, werrors.New(werrors.CodeLockTimeout, "max lock acquisition retries exceeded")
		}
		if timeout > 0 && time.Now().After(deadline) {
			return nil, werrors.New(werrors.CodeLockTimeout, fmt.Sprintf("timed out acquiring lock for task %s", taskID))
		}

		select {
		case <-ctx.Done():
			return nil, werrors.Wrap(werrors.CodeInternal, "lock acquisition cancelled", ctx.Err())
		case <-time.After(m.retryInterval):
		}
	}
}

type conflictError struct{}

func (conflictError) Error() string { return "lock file already exists" }

func isConflict(err error) bool {
	_, ok := err.(conflictError)
	return ok
}

// tryCreate attempts to exclusively create the lock file. ttl is the
// duration before the resulting lock becomes eligible for stale reclaim
// (negative means it never goes stale).
func (m *Manager) tryCreate(path, taskID, processID, lockType string, ttl time.Duration) (*Handle, error) {
	timeoutMS := int64(ttl / time.Millisecond)
	if ttl < 0 {
		timeoutMS = -1
	}
	l := model.Lock{
		TaskID:    taskID,
		ProcessID: processID,
		Timestamp: time.Now().UnixMilli(),
		Timeout:   timeoutMS,
		Type:      lockType,
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, werrors.Wrap(werrors.CodeInternal, "encoding lock", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, conflictError{}
		}
		return nil, werrors.Wrap(werrors.CodeFileSystemError, "creating lock file", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return nil, werrors.Wrap(werrors.CodeFileSystemError, "writing lock file", err)
	}

	return &Handle{TaskID: taskID, ProcessID: processID, Type: lockType, path: path}, nil
}

// readLock reads and parses a lock file. Returns (nil, nil) if absent.
func readLock(path string) (*model.Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, werrors.Wrap(werrors.CodeFileSystemError, "reading lock file", err)
	}
	var l model.Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, werrors.Wrap(werrors.CodeCorruptedLock, "parsing lock file", err)
	}
	return &l, nil
}

// reclaimIfStale deletes path if the lock it holds is stale. Returns true
// if it reclaimed (deleted) the file.
func (m *Manager) reclaimIfStale(path string) (bool, error) {
	l, err := readLock(path)
	if err != nil {
		return false, err
	}
	if l == nil {
		return true, nil // already gone; caller should retry create
	}
	if isStale(l) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, werrors.Wrap(werrors.CodeFileSystemError, "removing stale lock", err)
		}
		if m.logger != nil {
			m.logger.Warn("reclaimed stale lock", "task_id", l.TaskID, "holder", l.ProcessID)
		}
		return true, nil
	}
	return false, nil
}

// isStale reports whether timestamp+timeout precedes now. timeout == -1
// (wait indefinitely for the holder, not a deadline) never goes stale.
func isStale(l *model.Lock) bool {
	if l.Timeout < 0 {
		return false
	}
	deadline := time.UnixMilli(l.Timestamp + l.Timeout)
	return time.Now().After(deadline)
}

// sweepOne opportunistically reclaims path if it is stale, ignoring errors
// (this is a best-effort pre-pass before each acquisition attempt, §4.2).
func (m *Manager) sweepOne(path string) {
	_, _ = m.reclaimIfStale(path)
}

// Release drops a held lock, verifying that the caller is still the holder.
func (m *Manager) Release(h *Handle) error {
	l, err := readLock(h.path)
	if err != nil {
		return err
	}
	if l == nil {
		return nil // already gone
	}
	if l.ProcessID != h.ProcessID {
		return werrors.New(werrors.CodeForeignLock, fmt.Sprintf("lock for task %s is held by a different process", h.TaskID))
	}
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return werrors.Wrap(werrors.CodeFileSystemError, "removing lock file", err)
	}
	return nil
}

// SweepStale scans every lock file under the docs root and removes stale
// ones. Intended for periodic invocation by the scheduler as well as the
// opportunistic per-acquisition sweep.
func (m *Manager) SweepStale() (int, error) {
	dir := filepath.Join(m.docsRoot, ".locks")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, werrors.Wrap(werrors.CodeFileSystemError, "reading locks directory", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		reclaimed, err := m.reclaimIfStale(path)
		if err != nil {
			if m.logger != nil {
				m.logger.Error("error sweeping lock", "path", path, "error", err)
			}
			continue
		}
		if reclaimed {
			removed++
		}
	}
	return removed, nil
}
