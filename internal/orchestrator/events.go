package orchestrator

import (
	"github.com/pptgirl/pptgirl/internal/message"
)

// EventType identifies the kind of a turn event.
type EventType string

const (
	// EventMessage carries an incremental chunk of assistant text.
	EventMessage EventType = "message"

	// EventToolCallStart announces a tool call whose name and arguments
	// are fully known.
	EventToolCallStart EventType = "tool_call_start"

	// EventToolCallStep carries one progress report from a running tool.
	EventToolCallStep EventType = "tool_call_step"

	// EventToolCallComplete marks a tool call's successful completion.
	EventToolCallComplete EventType = "tool_call_complete"

	// EventToolCallError marks a tool call's failure. The turn continues.
	EventToolCallError EventType = "tool_call_error"

	// EventFinalMessage is the last event of a successful turn.
	EventFinalMessage EventType = "final_message"

	// EventError aborts the turn: transport failure, timeout, or
	// cancellation. No final_message follows.
	EventError EventType = "error"
)

// Event is one item of a turn's ordered event stream.
type Event struct {
	Type EventType `json:"type"`

	// Text is the chunk text for message events, the step text for
	// tool_call_step events, and the error description for error events.
	Text string `json:"text,omitempty"`

	// ToolCall is a snapshot of the invocation for tool_call_* events.
	ToolCall *message.ToolInvocation `json:"tool_call,omitempty"`

	// Final is set on final_message events only.
	Final *FinalMessage `json:"final,omitempty"`
}

// FinalMessage summarizes a completed turn.
type FinalMessage struct {
	SessionID string                   `json:"session_id"`
	Content   string                   `json:"content"`
	ToolCalls []message.ToolInvocation `json:"tool_calls,omitempty"`
	Usage     message.Usage            `json:"usage"`

	// TotalTokens is the conversation's updated token-usage snapshot.
	TotalTokens int `json:"total_tokens"`
}
