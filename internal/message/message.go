// Package message defines the canonical message types used across the codebase.
// All packages import from here to avoid circular dependencies.
package message

import (
	"encoding/json"
	"strings"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartType identifies the kind of a content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part is one element of a multi-part message body.
type Part struct {
	Type  PartType   `json:"type"`
	Text  string     `json:"text,omitempty"`
	Image *ImageData `json:"image,omitempty"`
}

// ImageData carries base64-encoded image content for multimodal messages.
type ImageData struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
	FileName  string `json:"file_name,omitempty"`
	Size      int    `json:"size,omitempty"`
}

// Message represents one chat message. Content holds scalar text; Parts
// holds ordered multi-part content (text segments and image references).
// A message uses one or the other, never both. Role and content are
// immutable after creation.
type Message struct {
	ID         string           `json:"id,omitempty"`
	Role       Role             `json:"role"`
	Content    string           `json:"content,omitempty"`
	Parts      []Part           `json:"parts,omitempty"`
	ToolCalls  []ToolInvocation `json:"tool_calls,omitempty"`
	ToolResult *ToolResult      `json:"tool_result,omitempty"`
	CreatedAt  time.Time        `json:"created_at,omitempty"`
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Step is one progress report emitted during a tool invocation.
type Step struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ToolInvocation is the durable record of one tool call: the request plus
// its ordered progress steps and terminal outcome. Exactly one of Result
// and Error is set once the invocation is terminal.
type ToolInvocation struct {
	ToolCall
	Steps     []Step    `json:"steps,omitempty"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Terminal reports whether the invocation has finished.
func (ti *ToolInvocation) Terminal() bool {
	return ti.Result != "" || ti.Error != ""
}

// ToolResult is a tool outcome fed back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name,omitempty"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Attachment is a user-supplied file accompanying one user message.
// Attachments are transient: images become vision parts, everything is
// stored to the session workspace, and non-image files are referenced as
// trailing text.
type Attachment struct {
	FileName  string
	Content   []byte
	MediaType string
}

// IsImage reports whether the attachment's declared media type is an image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MediaType, "image/")
}

// UserMessage creates a plain text user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text, CreatedAt: time.Now()}
}

// UserPartsMessage creates a multi-part user message.
func UserPartsMessage(parts []Part) Message {
	return Message{Role: RoleUser, Parts: parts, CreatedAt: time.Now()}
}

// AssistantMessage creates an assistant message with its tool invocations.
func AssistantMessage(text string, calls []ToolInvocation) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls, CreatedAt: time.Now()}
}

// ToolResultMessage creates a tool result message. Tool results travel with
// user role on the wire, matching what chat APIs expect.
func ToolResultMessage(result ToolResult) Message {
	return Message{Role: RoleUser, ToolResult: &result, CreatedAt: time.Now()}
}

// ErrorResult creates an error ToolResult for a tool call.
func ErrorResult(tc ToolCall, content string) *ToolResult {
	return &ToolResult{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    content,
		IsError:    true,
	}
}

// Text returns the textual content of a message, flattening text parts.
// Image parts are not represented.
func (m *Message) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// ParseToolInput deserializes JSON tool arguments into a params map.
func ParseToolInput(input string) (map[string]any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return nil, err
	}
	return params, nil
}

// CompletionResponse represents a completion response from an LLM provider.
type CompletionResponse struct {
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"` // "end_turn", "tool_use", "max_tokens"
	Usage      Usage      `json:"usage"`
}

// Usage contains token usage information.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChunkType represents the type of a stream chunk.
type ChunkType string

const (
	ChunkTypeText      ChunkType = "text"
	ChunkTypeToolStart ChunkType = "tool_start"
	ChunkTypeToolInput ChunkType = "tool_input"
	ChunkTypeDone      ChunkType = "done"
	ChunkTypeError     ChunkType = "error"
)

// StreamChunk represents a chunk in a streaming response.
type StreamChunk struct {
	Type     ChunkType
	Text     string              // for text and tool_input chunks
	ToolID   string              // for tool_start chunks
	ToolName string              // for tool_start chunks
	Response *CompletionResponse // for done chunks
	Error    error               // for error chunks
}
