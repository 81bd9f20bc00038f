// Package tool provides the registry and implementations of the tools the
// assistant can call during a turn.
package tool

import (
	"context"
	"fmt"

	"github.com/pptgirl/pptgirl/internal/workspace"
)

// Tool is one callable tool.
type Tool interface {
	// Name returns the tool name as exposed to the model.
	Name() string

	// Description returns a brief description of the tool.
	Description() string

	// Schema returns the JSON schema for the tool parameters.
	Schema() map[string]any

	// Execute runs the tool with the given parameters.
	Execute(ctx context.Context, params map[string]any, call *Call) Result
}

// Call carries the per-invocation context a tool executes in.
type Call struct {
	SessionID string

	// WorkspaceID is empty for local-only sessions; tools that need durable
	// artifact storage must fail with a structured error in that case.
	WorkspaceID string
	Workspace   workspace.Store

	// Todos is the session-scoped task store.
	Todos *TodoStore

	// Report forwards an intermediate progress step to the caller. Never nil.
	Report func(step string)
}

// Result is the structured outcome of a tool execution. Errors are results
// too; the model sees them and decides how to react.
type Result struct {
	Content string
	IsError bool

	// Data carries structured extras (artifact URLs, counts) for callers
	// that want more than the textual content.
	Data map[string]any
}

// Error kinds, prefixed onto error result content so both the model and the
// event stream can tell schema mistakes from runtime failures.
const (
	KindInvalidArguments    = "invalid_arguments"
	KindUnknownTool         = "unknown_tool"
	KindToolExecutionFailed = "tool_execution_failed"
)

// Errorf builds an error result with the given kind prefix.
func Errorf(kind, format string, args ...any) Result {
	return Result{
		Content: kind + ": " + fmt.Sprintf(format, args...),
		IsError: true,
	}
}

// Textf builds a successful text result.
func Textf(format string, args ...any) Result {
	return Result{Content: fmt.Sprintf(format, args...)}
}

// requireWorkspace returns an error result when the session has no durable
// workspace (degraded local-only mode).
func requireWorkspace(call *Call) (Result, bool) {
	if call.WorkspaceID == "" || call.Workspace == nil {
		return Errorf(KindToolExecutionFailed,
			"this session has no durable workspace; file operations are unavailable"), false
	}
	return Result{}, true
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok
}
