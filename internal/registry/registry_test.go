package registry

import (
	"path/filepath"
	"testing"

	"github.com/deadwavewave/wavetask/internal/model"
)

func TestEnsureAtPathCreatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(t.TempDir(), "projects.json")
	r := New(globalPath, nil)

	rec, err := r.EnsureAtPath(dir)
	if err != nil {
		t.Fatalf("EnsureAtPath: %v", err)
	}
	if rec.ID == "" || rec.Root != dir {
		t.Fatalf("rec = %+v", rec)
	}

	again, err := r.EnsureAtPath(dir)
	if err != nil {
		t.Fatalf("EnsureAtPath (second call): %v", err)
	}
	if again.ID != rec.ID {
		t.Errorf("EnsureAtPath should be idempotent: got a new id %q, want %q", again.ID, rec.ID)
	}
}

func TestEnsureAtPathRegistersGlobally(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(t.TempDir(), "projects.json")
	r := New(globalPath, nil)

	rec, err := r.EnsureAtPath(dir)
	if err != nil {
		t.Fatalf("EnsureAtPath: %v", err)
	}

	resolved, err := r.ResolveProject(rec.ID)
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if resolved == nil || resolved.Root != dir {
		t.Fatalf("ResolveProject = %+v, want root %q", resolved, dir)
	}
}

func TestResolveProjectStaleRootRemoved(t *testing.T) {
	globalPath := filepath.Join(t.TempDir(), "projects.json")
	r := New(globalPath, nil)

	ghost := model.ProjectRecord{ID: "01GHOST", Root: filepath.Join(t.TempDir(), "gone")}
	if err := r.UpsertGlobal(ghost); err != nil {
		t.Fatalf("UpsertGlobal: %v", err)
	}

	resolved, err := r.ResolveProject("01GHOST")
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if resolved != nil {
		t.Fatal("expected a project whose root no longer exists to resolve to nil")
	}
}

func TestCleanupInvalidProjectsRemovesMissingRoots(t *testing.T) {
	live := t.TempDir()
	globalPath := filepath.Join(t.TempDir(), "projects.json")
	r := New(globalPath, nil)

	liveRec, err := r.EnsureAtPath(live)
	if err != nil {
		t.Fatalf("EnsureAtPath: %v", err)
	}
	if err := r.UpsertGlobal(model.ProjectRecord{ID: "01GONE", Root: filepath.Join(t.TempDir(), "vanished")}); err != nil {
		t.Fatalf("UpsertGlobal: %v", err)
	}

	result, err := r.CleanupInvalidProjects()
	if err != nil {
		t.Fatalf("CleanupInvalidProjects: %v", err)
	}
	if len(result.Removed) != 1 || result.Removed[0] != "01GONE" {
		t.Fatalf("Removed = %v, want [01GONE]", result.Removed)
	}

	resolved, err := r.ResolveProject(liveRec.ID)
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if resolved == nil {
		t.Error("expected the live project to survive cleanup")
	}
}

func TestFindProjectsFiltersBySlug(t *testing.T) {
	globalPath := filepath.Join(t.TempDir(), "projects.json")
	r := New(globalPath, nil)

	if _, err := r.EnsureAtPath(filepath.Join(t.TempDir(), "wavetask-server")); err != nil {
		t.Fatalf("EnsureAtPath: %v", err)
	}
	if _, err := r.EnsureAtPath(filepath.Join(t.TempDir(), "unrelated-thing")); err != nil {
		t.Fatalf("EnsureAtPath: %v", err)
	}

	found, err := r.FindProjects(FindQuery{Slug: "wavetask"})
	if err != nil {
		t.Fatalf("FindProjects: %v", err)
	}
	if len(found) != 1 || found[0].Slug != "wavetask-server" {
		t.Fatalf("FindProjects(slug=wavetask) = %+v", found)
	}
}

func TestSanitizeSlug(t *testing.T) {
	cases := map[string]string{
		"My Cool Project!!": "my-cool-project",
		"   ":               "untitled-project",
		"already-fine":      "already-fine",
	}
	for input, want := range cases {
		if got := sanitizeSlug(input); got != want {
			t.Errorf("sanitizeSlug(%q) = %q, want %q", input, got, want)
		}
	}
}
