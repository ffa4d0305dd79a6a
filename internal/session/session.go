// Package session binds an MCP request's project path to the stack of
// per-project components (lock manager, task store, task manager) that
// implement it, caching one stack per project root for the life of the
// process.
package session

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/deadwavewave/wavetask/internal/config"
	"github.com/deadwavewave/wavetask/internal/lock"
	"github.com/deadwavewave/wavetask/internal/registry"
	"github.com/deadwavewave/wavetask/internal/taskmgr"
	"github.com/deadwavewave/wavetask/internal/taskstore"
)

const dataDirName = ".wave"

// Session is one project's wired stack.
type Session struct {
	ProjectRoot string
	Locks       *lock.Manager
	Store       *taskstore.Store
	Tasks       *taskmgr.Manager
}

// Resolver lazily builds and caches a Session per project root.
type Resolver struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *registry.Registry

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewResolver creates a Resolver.
func NewResolver(cfg *config.Config, logger *slog.Logger, reg *registry.Registry) *Resolver {
	return &Resolver{cfg: cfg, logger: logger, registry: reg, sessions: make(map[string]*Session)}
}

// Resolve returns the Session for projectPath, creating it (and registering
// the project, per C1) on first use.
func (r *Resolver) Resolve(projectPath string) (*Session, error) {
	root, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[root]; ok {
		return s, nil
	}

	if _, err := r.registry.EnsureAtPath(root); err != nil {
		return nil, err
	}

	docsRoot := filepath.Join(root, dataDirName)
	locks := lock.New(docsRoot, r.logger, lock.Options{
		DefaultTimeout: time.Duration(r.cfg.Locks.DefaultTimeoutMS) * time.Millisecond,
		RetryInterval:  time.Duration(r.cfg.Locks.RetryIntervalMS) * time.Millisecond,
		MaxRetries:     r.cfg.Locks.MaxRetries,
	})
	store := taskstore.New(docsRoot, locks, r.cfg.Sync.FrontMatter)
	tasks := taskmgr.New(store, locks, r.logger, taskmgr.NewProcessID())

	s := &Session{ProjectRoot: root, Locks: locks, Store: store, Tasks: tasks}
	r.sessions[root] = s
	return s, nil
}

// Each calls fn once for every cached session. Used by the scheduler's
// periodic sweep job.
func (r *Resolver) Each(fn func(*Session)) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		fn(s)
	}
}
