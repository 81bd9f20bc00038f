// Package client wraps an LLM provider with model and token configuration.
package client

import (
	"context"
	"sync"

	"github.com/pptgirl/pptgirl/internal/message"
	"github.com/pptgirl/pptgirl/internal/provider"
)

const defaultMaxTokens = 8192

// TokenUsage tracks token consumption for a conversation.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Client wraps an LLM provider with model and token configuration.
// Token accounting is safe for concurrent turns.
type Client struct {
	Provider  provider.LLMProvider
	Model     string
	MaxTokens int // custom override; 0 means default

	mu     sync.Mutex
	tokens TokenUsage
}

// AddUsage accumulates token usage from a completion response.
func (c *Client) AddUsage(usage message.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens.InputTokens += usage.InputTokens
	c.tokens.OutputTokens += usage.OutputTokens
	c.tokens.TotalTokens = c.tokens.InputTokens + c.tokens.OutputTokens
}

// Tokens returns the accumulated token usage.
func (c *Client) Tokens() TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// Stream starts a streaming completion request and returns a chunk channel.
func (c *Client) Stream(ctx context.Context, msgs []message.Message,
	tools []provider.Tool, sysPrompt string) <-chan message.StreamChunk {
	return c.Provider.Stream(ctx, c.opts(msgs, tools, sysPrompt))
}

// Models lists the models the wrapped provider offers.
func (c *Client) Models(ctx context.Context) ([]provider.ModelInfo, error) {
	return c.Provider.ListModels(ctx)
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.Provider.Name()
}

// ModelID returns the model identifier.
func (c *Client) ModelID() string {
	return c.Model
}

func (c *Client) opts(msgs []message.Message, tools []provider.Tool, sysPrompt string) provider.CompletionOptions {
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return provider.CompletionOptions{
		Model:        c.Model,
		Messages:     msgs,
		MaxTokens:    maxTokens,
		Tools:        tools,
		SystemPrompt: sysPrompt,
	}
}
