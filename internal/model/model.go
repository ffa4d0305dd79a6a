// Package model defines the structured types that make up a Task and its
// owned collections: Plan, Step, ExpectedResult (EVR), VerificationRun, and
// LogEntry, plus the process-shared Lock and StateVersion records and the
// ProjectRecord used by the project registry.
//
// Plans, Steps, and EVRs belong to exactly one Task; there is no sharing and
// no cycles. Cross-references between EVRs and Plans are id sequences
// (EVRBindings, ReferencedBy), never pointers — lookups always go through the
// owning Task.
package model

import "time"

// Plan status values.
const (
	PlanToDo       = "to_do"
	PlanInProgress = "in_progress"
	PlanCompleted  = "completed"
	PlanBlocked    = "blocked"
)

// Step status values share the Plan status vocabulary.
const (
	StepToDo       = PlanToDo
	StepInProgress = PlanInProgress
	StepCompleted  = PlanCompleted
	StepBlocked    = PlanBlocked
)

// EVR status values.
const (
	EVRPass    = "pass"
	EVRFail    = "fail"
	EVRSkip    = "skip"
	EVRUnknown = "unknown"
)

// EVR class values. Class defaults to EVRClassRuntime when unset.
const (
	EVRClassStatic  = "static"
	EVRClassRuntime = "runtime"
)

// VerificationRun.By values.
const (
	RunByAI   = "ai"
	RunByUser = "user"
	RunByCI   = "ci"
	RunByTool = "tool"
)

// LogEntry.Category values used by the core; hosts may add their own.
const (
	LogCategoryContent  = "content"
	LogCategoryStatus   = "status"
	LogCategorySync     = "sync"
	LogCategoryConflict = "conflict"
	LogCategoryEVR      = "evr"
	LogCategoryLifecycle = "lifecycle"
)

// LogEntry highlight actions, surfaced verbatim in rendered logs and in
// task.read's logs_highlights.
const (
	LogActionVerified = "VERIFIED"
	LogActionFailed   = "FAILED"
	LogActionTest     = "TEST"
)

// VerificationRun records one execution of an EVR's verification.
type VerificationRun struct {
	At     time.Time `json:"at"`
	By     string    `json:"by"`
	Status string    `json:"status"`
	Notes  string    `json:"notes,omitempty"`
	Proof  string    `json:"proof,omitempty"`
}

// StringList is a verify/expect field: it may be a JSON string or a JSON
// array of strings on the wire, and always round-trips losslessly.
type StringList []string

// ExpectedResult is an Expected-Visible-Result (EVR).
type ExpectedResult struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Verify       StringList        `json:"verify"`
	Expect       StringList        `json:"expect"`
	Status       string            `json:"status"`
	Class        string            `json:"class,omitempty"`
	LastRun      *time.Time        `json:"lastRun,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Proof        string            `json:"proof,omitempty"`
	ReferencedBy []string          `json:"referencedBy"`
	Runs         []VerificationRun `json:"runs"`
}

// EffectiveClass returns Class, defaulting to EVRClassRuntime when unset.
func (e *ExpectedResult) EffectiveClass() string {
	if e.Class == "" {
		return EVRClassRuntime
	}
	return e.Class
}

// Step is a single unit of work inside a Plan.
type Step struct {
	ID           string            `json:"id"`
	Description  string            `json:"description"`
	Status       string            `json:"status"`
	Hints        []string          `json:"hints,omitempty"`
	UsesEVR      []string          `json:"usesEVR,omitempty"`
	ContextTags  map[string]string `json:"contextTags,omitempty"`
	Evidence     string            `json:"evidence,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// Plan is a unit of the overall plan for a Task.
type Plan struct {
	ID           string            `json:"id"`
	Description  string            `json:"description"`
	Status       string            `json:"status"`
	Steps        []Step            `json:"steps"`
	Hints        []string          `json:"hints,omitempty"`
	EVRBindings  []string          `json:"evrBindings,omitempty"`
	ContextTags  map[string]string `json:"contextTags,omitempty"`
	Evidence     string            `json:"evidence,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// LogEntry is one append-only record in Task.Logs.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Category  string         `json:"category"`
	Action    string         `json:"action"`
	Message   string         `json:"message"`
	AINotes   string         `json:"ai_notes,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Task is the top-level coherence artifact.
type Task struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Slug            string           `json:"slug"`
	Story           string           `json:"story,omitempty"`
	Goal            string           `json:"goal"`
	KnowledgeRefs   []string         `json:"knowledge_refs,omitempty"`
	TaskHints       []string         `json:"task_hints,omitempty"`
	OverallPlan     []Plan           `json:"overall_plan"`
	CurrentPlanID   string           `json:"current_plan_id,omitempty"`
	ExpectedResults []ExpectedResult `json:"expectedResults,omitempty"`
	Logs            []LogEntry       `json:"logs"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`

	// MDVersion is the ETag of the panel as of the last render (§4.3, §4.5).
	// It is not part of the wire contract with hosts beyond task.read's
	// md_version field; it is persisted so the synchronizer can detect
	// out-of-band panel edits across process restarts.
	MDVersion string `json:"md_version,omitempty"`
}

// FindPlan returns the plan with the given id, or nil.
func (t *Task) FindPlan(id string) *Plan {
	for i := range t.OverallPlan {
		if t.OverallPlan[i].ID == id {
			return &t.OverallPlan[i]
		}
	}
	return nil
}

// FindStep returns the step with the given id and its owning plan, or nil, nil.
func (t *Task) FindStep(id string) (*Step, *Plan) {
	for i := range t.OverallPlan {
		plan := &t.OverallPlan[i]
		for j := range plan.Steps {
			if plan.Steps[j].ID == id {
				return &plan.Steps[j], plan
			}
		}
	}
	return nil, nil
}

// FindEVR returns the EVR with the given id, or nil.
func (t *Task) FindEVR(id string) *ExpectedResult {
	for i := range t.ExpectedResults {
		if t.ExpectedResults[i].ID == id {
			return &t.ExpectedResults[i]
		}
	}
	return nil
}

// ProjectRecord identifies a project and its per-project data root (C1).
type ProjectRecord struct {
	ID       string    `json:"id"`
	Root     string    `json:"root"`
	Slug     string    `json:"slug"`
	Origin   string    `json:"origin,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// GlobalRegistry is the contents of ~/.wave/projects.json.
type GlobalRegistry struct {
	Projects  map[string]ProjectRecord `json:"projects"`
	Version   string                   `json:"version"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// Lock is the contents of a per-task lock file (C2).
type Lock struct {
	TaskID    string `json:"taskId"`
	ProcessID string `json:"processId"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Timeout   int64  `json:"timeout"`   // ms before stale reclaim; -1 = never goes stale
	Type      string `json:"type"`      // read | write
}

// Lock.Type values.
const (
	LockRead  = "read"
	LockWrite = "write"
)

// Snapshot records a point-in-time checksum of a task's JSON (C2).
type Snapshot struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Checksum  string    `json:"checksum"`
	data      []byte
}
