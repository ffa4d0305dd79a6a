// Package project implements the MCP tools that front the Project
// Registry (C1): project_ensure, project_find, project_cleanup.
package project

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deadwavewave/wavetask/internal/mcp"
	"github.com/deadwavewave/wavetask/internal/registry"
)

// --- project_ensure ---

type Ensure struct{ registry *registry.Registry }

func NewEnsure(reg *registry.Registry) *Ensure { return &Ensure{registry: reg} }

func (t *Ensure) Name() string { return "project_ensure" }
func (t *Ensure) Description() string {
	return "Ensure a project registration exists at the given directory, creating one if needed, and upsert it into the global registry."
}
func (t *Ensure) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "Absolute or relative path to the project root"}
  },
  "required": ["path"]
}`)
}

type ensureParams struct {
	Path string `json:"path"`
}

func (t *Ensure) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p ensureParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Path == "" {
		return mcp.ErrorResult("path is required"), nil
	}

	record, err := t.registry.EnsureAtPath(p.Path)
	if err != nil {
		return mcp.ErrorResult(fmt.Sprintf("%v", err)), nil
	}
	return mcp.JSONResult(record)
}

// --- project_find ---

type Find struct{ registry *registry.Registry }

func NewFind(reg *registry.Registry) *Find { return &Find{registry: reg} }

func (t *Find) Name() string { return "project_find" }
func (t *Find) Description() string {
	return "Search the global project registry by slug substring and/or exact path."
}
func (t *Find) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "slug": {"type": "string", "description": "Substring match against a project's slug"},
    "path": {"type": "string", "description": "Exact path match"}
  }
}`)
}

type findParams struct {
	Slug string `json:"slug,omitempty"`
	Path string `json:"path,omitempty"`
}

func (t *Find) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p findParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	results, err := t.registry.FindProjects(registry.FindQuery{Slug: p.Slug, Path: p.Path})
	if err != nil {
		return mcp.ErrorResult(fmt.Sprintf("%v", err)), nil
	}
	return mcp.JSONResult(map[string]any{"projects": results})
}

// --- project_cleanup ---

type Cleanup struct{ registry *registry.Registry }

func NewCleanup(reg *registry.Registry) *Cleanup { return &Cleanup{registry: reg} }

func (t *Cleanup) Name() string { return "project_cleanup" }
func (t *Cleanup) Description() string {
	return "Remove stale entries from the global project registry: projects whose root no longer exists or whose local project.json disagrees."
}
func (t *Cleanup) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *Cleanup) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	result, err := t.registry.CleanupInvalidProjects()
	if err != nil {
		return mcp.ErrorResult(fmt.Sprintf("%v", err)), nil
	}
	return mcp.JSONResult(result)
}
