package panel

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/deadwavewave/wavetask/internal/model"
)

// RenderOptions controls optional rendering behavior.
type RenderOptions struct {
	// FrontMatter enables the ETag front-matter block (§4.3 "Optional
	// front matter").
	FrontMatter bool
}

// Render produces the canonical Markdown panel for a Task.
func Render(t *model.Task, opts RenderOptions) string {
	var body strings.Builder

	body.WriteString("# Task: ")
	body.WriteString(t.Title)
	body.WriteString("\n")

	if t.ID != "" {
		body.WriteString("\nTask ID: ")
		body.WriteString(t.ID)
		body.WriteString("\n")
	}

	if len(t.KnowledgeRefs) > 0 {
		body.WriteString("\nReferences: ")
		body.WriteString(strings.Join(t.KnowledgeRefs, ", "))
		body.WriteString("\n")
	}

	requirements, issues := splitGoal(t.Goal)
	if len(requirements) > 0 {
		body.WriteString("\n## Requirements\n\n")
		for _, r := range requirements {
			body.WriteString("- ")
			body.WriteString(r)
			body.WriteString("\n")
		}
	}
	if len(issues) > 0 {
		body.WriteString("\n## Issues\n\n")
		for _, i := range issues {
			body.WriteString("- ")
			body.WriteString(i)
			body.WriteString("\n")
		}
	}

	if len(t.TaskHints) > 0 {
		body.WriteString("\n## Task Hints\n\n")
		for _, h := range t.TaskHints {
			body.WriteString("> ")
			body.WriteString(h)
			body.WriteString("\n")
		}
	}

	if len(t.ExpectedResults) > 0 {
		body.WriteString("\n## Expected Visible Results\n")
		for _, e := range t.ExpectedResults {
			renderEVR(&body, e)
		}
	}

	if len(t.OverallPlan) > 0 {
		body.WriteString("\n## Plans & Steps\n\n")
		for pi, p := range t.OverallPlan {
			renderPlan(&body, pi+1, p)
		}
	}

	body.WriteString("\n## Logs\n\n")
	for _, l := range t.Logs {
		body.WriteString(renderLogLine(l))
		body.WriteString("\n")
	}

	rendered := body.String()

	if !opts.FrontMatter {
		return rendered
	}

	sum := md5.Sum([]byte(rendered))
	etag := hex.EncodeToString(sum[:])
	var fm strings.Builder
	fm.WriteString("---\n")
	fm.WriteString("md_version: ")
	fm.WriteString(etag)
	fm.WriteString("\n")
	fm.WriteString("last_modified: ")
	fm.WriteString(time.Now().UTC().Format(time.RFC3339))
	fm.WriteString("\n---\n")
	fm.WriteString(rendered)
	return fm.String()
}

// splitGoal divides Task.Goal into "Requirements" (the bullet list of what
// must be true) and "Issues" (lines prefixed "ISSUE:") — the renderer's
// join of these two sections is the inverse of the parser's
// "requirements (-> T.goal as joined newline)" rule in §4.5.
func splitGoal(goal string) (requirements, issues []string) {
	for _, line := range strings.Split(goal, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "ISSUE:"); ok {
			issues = append(issues, strings.TrimSpace(rest))
			continue
		}
		requirements = append(requirements, line)
	}
	return
}

// JoinGoal is the inverse of splitGoal, used by the parser to reconstruct
// Task.Goal from a panel's Requirements/Issues sections.
func JoinGoal(requirements, issues []string) string {
	lines := make([]string, 0, len(requirements)+len(issues))
	lines = append(lines, requirements...)
	for _, i := range issues {
		lines = append(lines, "ISSUE: "+i)
	}
	return strings.Join(lines, "\n")
}

func renderEVR(body *strings.Builder, e model.ExpectedResult) {
	body.WriteString("\n### ")
	body.WriteString(e.Title)
	body.WriteString(" <!-- evr:")
	body.WriteString(e.ID)
	body.WriteString(" -->\n")

	body.WriteString("\n**Verify:** ")
	body.WriteString(renderStringList(e.Verify))
	body.WriteString("\n")

	body.WriteString("\n**Expect:** ")
	body.WriteString(renderStringList(e.Expect))
	body.WriteString("\n")

	body.WriteString("\n- status: ")
	body.WriteString(e.Status)
	body.WriteString("\n")
	if e.Class != "" {
		body.WriteString("- class: ")
		body.WriteString(e.Class)
		body.WriteString("\n")
	}
	if e.LastRun != nil {
		body.WriteString("- lastRun: ")
		body.WriteString(e.LastRun.UTC().Format(time.RFC3339))
		body.WriteString("\n")
	}
	if e.Notes != "" {
		body.WriteString("- notes: ")
		body.WriteString(e.Notes)
		body.WriteString("\n")
	}
	if e.Proof != "" {
		body.WriteString("- proof: ")
		body.WriteString(e.Proof)
		body.WriteString("\n")
	}

	if len(e.Runs) > 0 {
		body.WriteString("\n**Verification Runs:**\n\n")
		for _, r := range e.Runs {
			body.WriteString(fmt.Sprintf("- %s by %s: %s", r.At.UTC().Format(time.RFC3339), r.By, r.Status))
			if r.Notes != "" {
				body.WriteString(" — " + r.Notes)
			}
			body.WriteString("\n")
		}
	}
}

// renderStringList renders a StringList: a single element inline as a
// scalar, multiple elements with the first inline and the rest in a
// collapsible block (§4.3 "Array fields").
func renderStringList(items model.StringList) string {
	if len(items) == 0 {
		return ""
	}
	if len(items) == 1 {
		return items[0]
	}
	var sb strings.Builder
	sb.WriteString(items[0])
	sb.WriteString("\n\n<details><summary>more</summary>\n\n")
	for _, it := range items[1:] {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
	sb.WriteString("\n</details>")
	return sb.String()
}

func renderPlan(body *strings.Builder, n int, p model.Plan) {
	body.WriteString(fmt.Sprintf("%d. %s %s <!-- plan:%s -->\n", n, CheckboxFor(p.Status), p.Description, p.ID))

	for _, h := range p.Hints {
		body.WriteString("   > ")
		body.WriteString(h)
		body.WriteString("\n")
	}
	for _, k := range sortedKeys(p.ContextTags) {
		body.WriteString(fmt.Sprintf("   - [%s] %s\n", k, p.ContextTags[k]))
	}

	for si, s := range p.Steps {
		body.WriteString(fmt.Sprintf("   %d.%d %s %s <!-- step:%s -->\n", n, si+1, CheckboxFor(s.Status), s.Description, s.ID))
		for _, h := range s.Hints {
			body.WriteString("      > ")
			body.WriteString(h)
			body.WriteString("\n")
		}
		for _, k := range sortedKeys(s.ContextTags) {
			body.WriteString(fmt.Sprintf("      - [%s] %s\n", k, s.ContextTags[k]))
		}
	}
}

// sortedKeys returns a map's keys in lexicographic order, so re-rendering
// an unchanged task is always byte-stable regardless of Go's randomized
// map iteration order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func renderLogLine(l model.LogEntry) string {
	return fmt.Sprintf("- [%s] (%s/%s) %s: %s",
		l.Timestamp.UTC().Format(time.RFC3339), l.Level, l.Category, l.Action, l.Message)
}
