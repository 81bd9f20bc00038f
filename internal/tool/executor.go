package tool

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pptgirl/pptgirl/internal/message"
)

const defaultToolTimeout = 3 * time.Minute

// Executor dispatches tool calls to registered tools and normalizes every
// failure mode into a structured result. Callers never see a panic or an
// unhandled error from a tool.
type Executor struct {
	Registry *Registry

	// Timeout bounds a single tool execution. Zero means defaultToolTimeout.
	Timeout time.Duration

	Logger *zap.Logger
}

// Deadliner lets a tool override the executor's per-call timeout.
type Deadliner interface {
	Deadline() time.Duration
}

// ExecuteToolCall runs one tool call and returns a tool result suitable for
// feeding back to the model. It never returns an error; invalid arguments,
// unknown tools, panics and timeouts all become error results.
func (e *Executor) ExecuteToolCall(ctx context.Context, tc message.ToolCall, call *Call) message.ToolResult {
	if call.Report == nil {
		call.Report = func(string) {}
	}

	params, err := message.ParseToolInput(tc.Arguments)
	if err != nil {
		return e.errorResult(tc, Errorf(KindInvalidArguments, "malformed arguments for %s: %v", tc.Name, err))
	}

	impl, ok := e.Registry.Get(tc.Name)
	if !ok {
		return e.errorResult(tc, Errorf(KindUnknownTool, "unknown tool: %s", tc.Name))
	}

	if missing := missingRequired(impl.Schema(), params); len(missing) > 0 {
		return e.errorResult(tc, Errorf(KindInvalidArguments,
			"missing required parameters for %s: %v", tc.Name, missing))
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	if d, ok := impl.(Deadliner); ok {
		timeout = d.Deadline()
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := e.run(toolCtx, impl, params, call)
	if result.IsError && toolCtx.Err() == context.DeadlineExceeded {
		result = Errorf(KindToolExecutionFailed, "%s timed out after %s", tc.Name, timeout)
	}
	return e.toMessageResult(tc, result)
}

// run invokes the tool with panic recovery.
func (e *Executor) run(ctx context.Context, impl Tool, params map[string]any, call *Call) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			if e.Logger != nil {
				e.Logger.Error("tool panicked",
					zap.String("tool", impl.Name()),
					zap.Any("panic", r))
			}
			result = Errorf(KindToolExecutionFailed, "%s: %v", impl.Name(), r)
		}
	}()
	return impl.Execute(ctx, params, call)
}

func (e *Executor) errorResult(tc message.ToolCall, res Result) message.ToolResult {
	if e.Logger != nil {
		e.Logger.Warn("tool call rejected",
			zap.String("tool", tc.Name),
			zap.String("tool_call_id", tc.ID),
			zap.String("reason", res.Content))
	}
	return e.toMessageResult(tc, res)
}

func (e *Executor) toMessageResult(tc message.ToolCall, res Result) message.ToolResult {
	content := res.Content
	if content == "" && !res.IsError {
		content = fmt.Sprintf("%s completed", tc.Name)
	}
	return message.ToolResult{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    content,
		IsError:    res.IsError,
	}
}

// missingRequired returns the required schema fields absent from params.
func missingRequired(schema map[string]any, params map[string]any) []string {
	var missing []string
	required, _ := schema["required"].([]string)
	for _, field := range required {
		if _, ok := params[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}
