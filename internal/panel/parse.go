package panel

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/deadwavewave/wavetask/internal/model"
)

var (
	headingRe    = regexp.MustCompile(`^# Task: (.*)$`)
	taskIDRe     = regexp.MustCompile(`^Task ID: (.*)$`)
	referencesRe = regexp.MustCompile(`^References: (.*)$`)
	sectionRe    = regexp.MustCompile(`^## (.+)$`)
	evrHeadingRe = regexp.MustCompile(`^### (.*) <!-- evr:([^ ]+) -->$`)
	planRe       = regexp.MustCompile(`^(\d+)\. (\[.\]) (.*) <!-- plan:([^ ]+) -->$`)
	stepRe       = regexp.MustCompile(`^\s+(\d+)\.(\d+) (\[.\]) (.*) <!-- step:([^ ]+) -->$`)
	bulletRe     = regexp.MustCompile(`^- (.*)$`)
	blockquoteRe = regexp.MustCompile(`^>\s?(.*)$`)
	indentBQRe   = regexp.MustCompile(`^\s+>\s?(.*)$`)
	contextTagRe = regexp.MustCompile(`^\s*- \[([^\]]+)\] (.*)$`)
	frontMatterMDVersionRe = regexp.MustCompile(`^md_version: (.*)$`)
)

// Parse reads a canonical (or user-edited) panel document and returns the
// best-effort structured result plus any warnings encountered (§4.3
// "Failure semantics").
func Parse(doc string) (*Panel, []Warning) {
	var warnings []Warning

	lines := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n")

	panelOut := &Panel{}

	idx := 0
	if idx < len(lines) && strings.TrimSpace(lines[idx]) == "---" {
		idx++
		for idx < len(lines) && strings.TrimSpace(lines[idx]) != "---" {
			if m := frontMatterMDVersionRe.FindStringSubmatch(strings.TrimSpace(lines[idx])); m != nil {
				panelOut.MDVersion = m[1]
			}
			idx++
		}
		idx++ // skip closing ---
	}

	var requirements, issues []string
	var currentSection string
	var pendingEVR *model.ExpectedResult
	var pendingEVRList string // "verify" or "expect": which array field continuation bullets fold into
	var pendingPlan *model.Plan
	var pendingStep *model.Step

	flushEVR := func() {
		if pendingEVR != nil {
			panelOut.EVRs = append(panelOut.EVRs, *pendingEVR)
			pendingEVR = nil
		}
	}
	flushStep := func() {
		if pendingStep != nil && pendingPlan != nil {
			pendingPlan.Steps = append(pendingPlan.Steps, *pendingStep)
			pendingStep = nil
		}
	}
	flushPlan := func() {
		flushStep()
		if pendingPlan != nil {
			panelOut.Plans = append(panelOut.Plans, *pendingPlan)
			pendingPlan = nil
		}
	}

	for ; idx < len(lines); idx++ {
		line := lines[idx]
		trimmed := strings.TrimRight(line, " \t")

		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			panelOut.Title = m[1]
			continue
		}
		if m := taskIDRe.FindStringSubmatch(trimmed); m != nil {
			panelOut.TaskID = m[1]
			continue
		}
		if m := referencesRe.FindStringSubmatch(trimmed); m != nil {
			for _, r := range strings.Split(m[1], ",") {
				r = strings.TrimSpace(r)
				if r != "" {
					panelOut.References = append(panelOut.References, r)
				}
			}
			continue
		}
		if m := sectionRe.FindStringSubmatch(trimmed); m != nil {
			flushEVR()
			flushPlan()
			currentSection = strings.TrimSpace(m[1])
			continue
		}

		switch currentSection {
		case "Requirements":
			if m := bulletRe.FindStringSubmatch(trimmed); m != nil {
				requirements = append(requirements, m[1])
			}
		case "Issues":
			if m := bulletRe.FindStringSubmatch(trimmed); m != nil {
				issues = append(issues, m[1])
			}
		case "Task Hints":
			if m := blockquoteRe.FindStringSubmatch(trimmed); m != nil {
				panelOut.TaskHints = append(panelOut.TaskHints, m[1])
			}
		case "Expected Visible Results":
			parseEVRLine(trimmed, &pendingEVR, &pendingEVRList, flushEVR, &warnings)
		case "Plans & Steps":
			parsePlanLine(trimmed, &pendingPlan, &pendingStep, flushStep, flushPlan, &warnings)
		case "Logs":
			if strings.TrimSpace(trimmed) != "" {
				panelOut.LogLines = append(panelOut.LogLines, trimmed)
			}
		}
	}

	flushEVR()
	flushPlan()

	panelOut.Requirements = requirements
	panelOut.Issues = issues

	return panelOut, warnings
}

func parseEVRLine(line string, pending **model.ExpectedResult, listField *string, flush func(), warnings *[]Warning) {
	if m := evrHeadingRe.FindStringSubmatch(line); m != nil {
		flush()
		*pending = &model.ExpectedResult{Title: m[1], ID: m[2]}
		*listField = ""
		return
	}
	if *pending == nil {
		return
	}
	e := *pending

	if rest, ok := strings.CutPrefix(line, "**Verify:** "); ok {
		e.Verify = model.StringList{strings.TrimSpace(rest)}
		*listField = "verify"
		return
	}
	if rest, ok := strings.CutPrefix(line, "**Expect:** "); ok {
		e.Expect = model.StringList{strings.TrimSpace(rest)}
		*listField = "expect"
		return
	}
	if strings.HasPrefix(line, "**Verification Runs:**") {
		// closes out whichever array field was open; the run log
		// bullets that follow are not Verify/Expect continuations.
		*listField = ""
		return
	}
	trimmedLine := strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(trimmedLine, "- status: "); ok {
		e.Status = strings.TrimSpace(rest)
		return
	}
	if rest, ok := strings.CutPrefix(trimmedLine, "- class: "); ok {
		e.Class = strings.TrimSpace(rest)
		return
	}
	if rest, ok := strings.CutPrefix(trimmedLine, "- lastRun: "); ok {
		if at, err := time.Parse(time.RFC3339, strings.TrimSpace(rest)); err == nil {
			e.LastRun = &at
		}
		return
	}
	if rest, ok := strings.CutPrefix(trimmedLine, "- notes: "); ok {
		e.Notes = strings.TrimSpace(rest)
		return
	}
	if rest, ok := strings.CutPrefix(trimmedLine, "- proof: "); ok {
		e.Proof = strings.TrimSpace(rest)
		return
	}
	if rest, ok := strings.CutPrefix(trimmedLine, "- "); ok {
		// a continuation bullet under a collapsible array block; fold
		// into whichever of Verify/Expect was most recently opened.
		switch *listField {
		case "verify":
			e.Verify = append(e.Verify, strings.TrimSpace(rest))
		case "expect":
			e.Expect = append(e.Expect, strings.TrimSpace(rest))
		}
	}
}

func parsePlanLine(line string, pendingPlan **model.Plan, pendingStep **model.Step, flushStep, flushPlan func(), warnings *[]Warning) {
	if m := planRe.FindStringSubmatch(line); m != nil {
		flushPlan()
		status, ok := StatusForCheckbox(m[2])
		if !ok {
			*warnings = append(*warnings, Warning{Section: "Plans & Steps", Message: "unknown checkbox marker " + m[2] + " for plan " + m[4]})
		}
		*pendingPlan = &model.Plan{ID: m[4], Description: m[3], Status: status}
		return
	}
	if m := stepRe.FindStringSubmatch(line); m != nil {
		flushStep()
		status, ok := StatusForCheckbox(m[3])
		if !ok {
			*warnings = append(*warnings, Warning{Section: "Plans & Steps", Message: "unknown checkbox marker " + m[3] + " for step " + m[5]})
		}
		*pendingStep = &model.Step{ID: m[5], Description: m[4], Status: status}
		return
	}

	if *pendingPlan == nil {
		return
	}

	if m := contextTagRe.FindStringSubmatch(line); m != nil {
		if *pendingStep != nil {
			if (*pendingStep).ContextTags == nil {
				(*pendingStep).ContextTags = map[string]string{}
			}
			(*pendingStep).ContextTags[m[1]] = m[2]
			return
		}
		if (*pendingPlan).ContextTags == nil {
			(*pendingPlan).ContextTags = map[string]string{}
		}
		(*pendingPlan).ContextTags[m[1]] = m[2]
		return
	}

	if m := indentBQRe.FindStringSubmatch(line); m != nil {
		if *pendingStep != nil {
			(*pendingStep).Hints = append((*pendingStep).Hints, m[1])
			return
		}
		(*pendingPlan).Hints = append((*pendingPlan).Hints, m[1])
		return
	}
}

// ParseInt is a small helper kept for callers that need to turn a plan
// ordinal (the numeric prefix before "plan-<n>") into an int; unused
// ordinals are tolerated since anchors, not position, carry identity.
func ParseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
