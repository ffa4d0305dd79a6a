package mcp

import "context"

// contextKey is an unexported type for context keys in this package.
type contextKey struct{}

// projectKey is the context key for the bound project path.
var projectKey = contextKey{}

// WithProjectPath returns a context carrying the given project root path.
// Tool implementations read this via ProjectPathFrom to resolve which
// project's task store a call applies to, the way a multi-tenant transport
// carries a tenant ID alongside each request.
func WithProjectPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, projectKey, path)
}

// ProjectPathFrom extracts the bound project root path from the context.
// Returns empty string if none is present.
func ProjectPathFrom(ctx context.Context) string {
	if v, ok := ctx.Value(projectKey).(string); ok {
		return v
	}
	return ""
}
