// Package registry implements the Project Registry (C1): per-project
// identity stored at "<dir>/.wave/project.json", and a process-shared
// global index at "~/.wave/projects.json" mapping id -> ProjectRecord.
package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/deadwavewave/wavetask/internal/model"
	"github.com/deadwavewave/wavetask/internal/werrors"
)

// timeoutContext returns a context bounded by d, used solely to cap
// flock's blocking retry loop; the caller never inspects its error beyond
// "did we get the lock in time".
func timeoutContext(d time.Duration) context.Context {
	ctx, _ := context.WithTimeout(context.Background(), d)
	return ctx
}

// globalWriteTimeout bounds upsert_global per §4.1: "Operation is bounded
// by a 5-second timeout; on timeout, log a warning and no-op."
const globalWriteTimeout = 5 * time.Second

// Registry resolves filesystem paths to stable project identities and
// maintains the global id -> path index.
type Registry struct {
	globalPath string
	logger     *slog.Logger
}

// New creates a Registry backed by the global registry file at globalPath
// (typically "~/.wave/projects.json").
func New(globalPath string, logger *slog.Logger) *Registry {
	return &Registry{globalPath: globalPath, logger: logger}
}

func projectFilePath(dir string) string {
	return filepath.Join(dir, ".wave", "project.json")
}

// LoadByPath reads "<dir>/.wave/project.json". Returns (nil, nil) if absent.
func (r *Registry) LoadByPath(dir string) (*model.ProjectRecord, error) {
	data, err := os.ReadFile(projectFilePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, werrors.Wrap(werrors.CodeFileSystemError, "reading project.json", err)
	}
	var rec model.ProjectRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, werrors.Wrap(werrors.CodeInternal, "project.json is corrupted", err)
	}
	return &rec, nil
}

// EnsureAtPath loads the project record at dir, creating and persisting one
// if none exists yet.
func (r *Registry) EnsureAtPath(dir string) (*model.ProjectRecord, error) {
	existing, err := r.LoadByPath(dir)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	rec := &model.ProjectRecord{
		ID:       ulid.Make().String(),
		Root:     dir,
		Slug:     sanitizeSlug(filepath.Base(dir)),
		Origin:   detectGitRemote(dir),
		LastSeen: time.Now().UTC(),
	}

	path := projectFilePath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, werrors.Wrap(werrors.CodeFileSystemError, "creating .wave directory", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, werrors.Wrap(werrors.CodeInternal, "encoding project.json", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, werrors.Wrap(werrors.CodeFileSystemError, "writing project.json", err)
	}

	if err := r.UpsertGlobal(*rec); err != nil && r.logger != nil {
		r.logger.Warn("failed to register project globally", "project_id", rec.ID, "error", err)
	}

	return rec, nil
}

var slugWordChar = regexp.MustCompile(`[^\p{L}\p{N}\-]+`)

// sanitizeSlug normalizes a basename into a project slug: retain word
// chars and CJK, compress whitespace/punctuation runs to a single hyphen,
// lowercase unless the slug is pure CJK, cap at 50 chars.
func sanitizeSlug(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "untitled-project"
	}

	replaced := slugWordChar.ReplaceAllString(name, "-")
	replaced = strings.Trim(replaced, "-")
	for strings.Contains(replaced, "--") {
		replaced = strings.ReplaceAll(replaced, "--", "-")
	}

	if replaced == "" {
		return "untitled-project"
	}

	if !isPureCJK(replaced) {
		replaced = strings.ToLower(replaced)
	}

	if runes := []rune(replaced); len(runes) > 50 {
		replaced = string(runes[:50])
		replaced = strings.TrimRight(replaced, "-")
	}

	if replaced == "" {
		return "untitled-project"
	}
	return replaced
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

// detectGitRemote returns the "origin" remote URL for dir, or "" if none
// can be determined. Best-effort: any failure is silently ignored, per
// §4.1's "origin if detectable".
func detectGitRemote(dir string) string {
	cmd := exec.Command("git", "-C", dir, "remote", "get-url", "origin")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// readGlobal reads the global registry, tolerating an absent or corrupt
// file by treating it as empty (§4.1 "Failure semantics").
func readGlobal(path string) *model.GlobalRegistry {
	data, err := os.ReadFile(path)
	if err != nil {
		return &model.GlobalRegistry{Projects: map[string]model.ProjectRecord{}, Version: "1.0.0"}
	}
	var reg model.GlobalRegistry
	if err := json.Unmarshal(data, &reg); err != nil || reg.Projects == nil {
		return &model.GlobalRegistry{Projects: map[string]model.ProjectRecord{}, Version: "1.0.0"}
	}
	return &reg
}

// UpsertGlobal merges record into the global registry, keyed by id, and
// writes it atomically under an OS-level advisory lock so concurrent
// processes don't interleave read-modify-write cycles. Bounded by
// globalWriteTimeout; a timeout is logged and treated as a no-op rather
// than propagated, per §4.1.
func (r *Registry) UpsertGlobal(record model.ProjectRecord) error {
	if err := os.MkdirAll(filepath.Dir(r.globalPath), 0o755); err != nil {
		return werrors.Wrap(werrors.CodeFileSystemError, "creating global registry directory", err)
	}

	fl := flock.New(r.globalPath + ".flock")
	locked, err := fl.TryLockContext(timeoutContext(globalWriteTimeout), 20*time.Millisecond)
	if err != nil || !locked {
		if r.logger != nil {
			r.logger.Warn("timed out acquiring global registry lock; skipping upsert", "project_id", record.ID)
		}
		return nil
	}
	defer fl.Unlock()

	reg := readGlobal(r.globalPath)
	record.LastSeen = time.Now().UTC()
	reg.Projects[record.ID] = record
	reg.UpdatedAt = time.Now().UTC()
	if reg.Version == "" {
		reg.Version = "1.0.0"
	}

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return werrors.Wrap(werrors.CodeInternal, "encoding global registry", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.globalPath), ".tmp-projects-*")
	if err != nil {
		return werrors.Wrap(werrors.CodeFileSystemError, "creating temp registry file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return werrors.Wrap(werrors.CodeFileSystemError, "writing temp registry file", err)
	}
	tmp.Close()

	if err := os.Rename(tmpPath, r.globalPath); err != nil {
		os.Remove(tmpPath)
		return werrors.Wrap(werrors.CodeFileSystemError, "renaming registry file", err)
	}
	return nil
}

// ResolveProject looks up id in the global registry and verifies the
// record's root still agrees with the local project.json.
func (r *Registry) ResolveProject(id string) (*model.ProjectRecord, error) {
	reg := readGlobal(r.globalPath)
	rec, ok := reg.Projects[id]
	if !ok {
		return nil, nil
	}
	if _, err := os.Stat(rec.Root); err != nil {
		return nil, nil // stale: root missing
	}
	local, err := r.LoadByPath(rec.Root)
	if err != nil || local == nil || local.ID != id {
		return nil, nil // stale: local record disagrees or is gone
	}
	return &rec, nil
}

// CleanupResult is the outcome of CleanupInvalidProjects.
type CleanupResult struct {
	Removed []string `json:"removed"`
	Errors  []string `json:"errors"`
}

// CleanupInvalidProjects sweeps the global registry, dropping entries
// whose root is missing or whose local project.json disagrees.
func (r *Registry) CleanupInvalidProjects() (CleanupResult, error) {
	fl := flock.New(r.globalPath + ".flock")
	locked, err := fl.TryLockContext(timeoutContext(globalWriteTimeout), 20*time.Millisecond)
	if err != nil || !locked {
		return CleanupResult{}, werrors.New(werrors.CodeFileSystemError, "could not acquire global registry lock")
	}
	defer fl.Unlock()

	reg := readGlobal(r.globalPath)
	result := CleanupResult{}

	for id, rec := range reg.Projects {
		if _, err := os.Stat(rec.Root); err != nil {
			delete(reg.Projects, id)
			result.Removed = append(result.Removed, id)
			continue
		}
		local, err := r.LoadByPath(rec.Root)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if local == nil || local.ID != id {
			delete(reg.Projects, id)
			result.Removed = append(result.Removed, id)
		}
	}

	sort.Strings(result.Removed)

	reg.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return result, werrors.Wrap(werrors.CodeInternal, "encoding global registry", err)
	}
	if err := os.WriteFile(r.globalPath, data, 0o644); err != nil {
		return result, werrors.Wrap(werrors.CodeFileSystemError, "writing global registry", err)
	}

	return result, nil
}

// FindQuery filters FindProjects.
type FindQuery struct {
	Slug string
	Path string
}

// FindProjects returns registry entries matching query, sorted by
// last_seen descending. A substring match is allowed on slug; path
// matching compares canonicalized roots.
func (r *Registry) FindProjects(q FindQuery) ([]model.ProjectRecord, error) {
	reg := readGlobal(r.globalPath)

	var canonQuery string
	if q.Path != "" {
		abs, err := filepath.Abs(q.Path)
		if err == nil {
			canonQuery = filepath.Clean(abs)
		} else {
			canonQuery = filepath.Clean(q.Path)
		}
	}

	var out []model.ProjectRecord
	for _, rec := range reg.Projects {
		if q.Slug != "" && !strings.Contains(rec.Slug, q.Slug) {
			continue
		}
		if canonQuery != "" && filepath.Clean(rec.Root) != canonQuery {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})

	return out, nil
}
