// Package provider provides interfaces and implementations for interacting
// with LLM providers.
package provider

import (
	"context"

	"github.com/pptgirl/pptgirl/internal/message"
)

// ModelInfo represents information about an available model.
type ModelInfo struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DisplayName      string `json:"displayName,omitempty"`
	InputTokenLimit  int    `json:"inputTokenLimit,omitempty"`
	OutputTokenLimit int    `json:"outputTokenLimit,omitempty"`
}

// CompletionOptions contains options for a completion request.
type CompletionOptions struct {
	Model        string
	Messages     []message.Message
	MaxTokens    int
	Temperature  float64
	Tools        []Tool
	SystemPrompt string
}

// Tool represents a tool definition offered to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// LLMProvider is the interface that all providers must implement.
type LLMProvider interface {
	// Stream sends a completion request and returns a channel of streaming chunks.
	Stream(ctx context.Context, opts CompletionOptions) <-chan message.StreamChunk

	// ListModels returns the available models for this provider.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Name returns the provider name.
	Name() string
}

