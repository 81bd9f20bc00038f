// Package anthropic implements the LLMProvider interface on the Anthropic SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/pptgirl/pptgirl/internal/log"
	"github.com/pptgirl/pptgirl/internal/message"
	"github.com/pptgirl/pptgirl/internal/provider"
)

// Client implements the LLMProvider interface using the Anthropic SDK.
type Client struct {
	client anthropic.Client
	name   string
}

// New creates a Client from an API key.
func New(apiKey string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		name:   "anthropic",
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Stream sends a completion request and returns a channel of streaming chunks.
func (c *Client) Stream(ctx context.Context, opts provider.CompletionOptions) <-chan message.StreamChunk {
	ch := make(chan message.StreamChunk)

	go func() {
		defer close(ch)

		anthropicMsgs := make([]anthropic.MessageParam, 0, len(opts.Messages))
		for _, msg := range opts.Messages {
			switch msg.Role {
			case message.RoleUser:
				if msg.ToolResult != nil {
					anthropicMsgs = append(anthropicMsgs, anthropic.NewUserMessage(
						anthropic.NewToolResultBlock(
							msg.ToolResult.ToolCallID,
							msg.ToolResult.Content,
							msg.ToolResult.IsError,
						),
					))
				} else if len(msg.Parts) > 0 {
					blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
					for _, part := range msg.Parts {
						switch part.Type {
						case message.PartImage:
							if part.Image != nil {
								blocks = append(blocks, anthropic.NewImageBlockBase64(
									part.Image.MediaType,
									part.Image.Data,
								))
							}
						case message.PartText:
							if part.Text != "" {
								blocks = append(blocks, anthropic.NewTextBlock(part.Text))
							}
						}
					}
					anthropicMsgs = append(anthropicMsgs, anthropic.NewUserMessage(blocks...))
				} else {
					anthropicMsgs = append(anthropicMsgs, anthropic.NewUserMessage(
						anthropic.NewTextBlock(msg.Content),
					))
				}
			case message.RoleAssistant:
				if len(msg.ToolCalls) > 0 {
					blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
					if msg.Content != "" {
						blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
					}
					for _, tc := range msg.ToolCalls {
						var input any
						if tc.Arguments != "" {
							if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
								input = tc.Arguments
							}
						} else {
							input = map[string]any{}
						}
						blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
					}
					anthropicMsgs = append(anthropicMsgs, anthropic.NewAssistantMessage(blocks...))
				} else {
					anthropicMsgs = append(anthropicMsgs, anthropic.NewAssistantMessage(
						anthropic.NewTextBlock(msg.Content),
					))
				}
			}
		}

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(opts.Model),
			MaxTokens: int64(opts.MaxTokens),
			Messages:  anthropicMsgs,
		}

		if opts.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{
				{Text: opts.SystemPrompt},
			}
		}

		if len(opts.Tools) > 0 {
			tools := make([]anthropic.ToolUnionParam, 0, len(opts.Tools))
			for _, t := range opts.Tools {
				inputSchema := anthropic.ToolInputSchemaParam{}
				if properties, ok := t.Parameters["properties"]; ok {
					inputSchema.Properties = properties
				}
				if required, ok := t.Parameters["required"].([]string); ok {
					inputSchema.Required = required
				} else if required, ok := t.Parameters["required"].([]any); ok {
					requiredStrs := make([]string, 0, len(required))
					for _, r := range required {
						if s, ok := r.(string); ok {
							requiredStrs = append(requiredStrs, s)
						}
					}
					inputSchema.Required = requiredStrs
				}

				tools = append(tools, anthropic.ToolUnionParam{
					OfTool: &anthropic.ToolParam{
						Name:        t.Name,
						Description: anthropic.String(t.Description),
						InputSchema: inputSchema,
					},
				})
			}
			params.Tools = tools
		}

		stream := c.client.Messages.NewStreaming(ctx, params)

		var currentToolID string
		var currentToolName string
		var currentToolInput string
		var response message.CompletionResponse

		streamStart := time.Now()
		chunkCount := 0

		for stream.Next() {
			event := stream.Current()
			chunkCount++

			switch event.Type {
			case "content_block_start":
				block := event.AsContentBlockStart()
				if block.ContentBlock.Type == "tool_use" {
					currentToolID = block.ContentBlock.ID
					currentToolName = block.ContentBlock.Name
					currentToolInput = ""
					ch <- message.StreamChunk{
						Type:     message.ChunkTypeToolStart,
						ToolID:   currentToolID,
						ToolName: currentToolName,
					}
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta()
				switch delta.Delta.Type {
				case "text_delta":
					if delta.Delta.Text != "" {
						ch <- message.StreamChunk{
							Type: message.ChunkTypeText,
							Text: delta.Delta.Text,
						}
						response.Content += delta.Delta.Text
					}
				case "input_json_delta":
					if delta.Delta.PartialJSON != "" {
						ch <- message.StreamChunk{
							Type:   message.ChunkTypeToolInput,
							ToolID: currentToolID,
							Text:   delta.Delta.PartialJSON,
						}
						currentToolInput += delta.Delta.PartialJSON
					}
				}

			case "content_block_stop":
				if currentToolID != "" && currentToolName != "" {
					response.ToolCalls = append(response.ToolCalls, message.ToolCall{
						ID:        currentToolID,
						Name:      currentToolName,
						Arguments: currentToolInput,
					})
					currentToolID = ""
					currentToolName = ""
					currentToolInput = ""
				}

			case "message_delta":
				msgDelta := event.AsMessageDelta()
				response.StopReason = normalizeStopReason(string(msgDelta.Delta.StopReason))
				response.Usage.OutputTokens = int(msgDelta.Usage.OutputTokens)

			case "message_start":
				msgStart := event.AsMessageStart()
				response.Usage.InputTokens = int(msgStart.Message.Usage.InputTokens)
			}
		}

		log.Logger().Debug("stream done",
			zap.String("provider", c.name),
			zap.Duration("duration", time.Since(streamStart)),
			zap.Int("chunks", chunkCount),
		)

		if err := stream.Err(); err != nil {
			ch <- message.StreamChunk{
				Type:  message.ChunkTypeError,
				Error: err,
			}
			return
		}

		ch <- message.StreamChunk{
			Type:     message.ChunkTypeDone,
			Response: &response,
		}
	}()

	return ch
}

func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "end_turn"
	case "tool_use":
		return "tool_use"
	case "max_tokens":
		return "max_tokens"
	default:
		return reason
	}
}

// ListModels returns available models using the Anthropic Models API.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	pager := c.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})

	var models []provider.ModelInfo
	for pager.Next() {
		m := pager.Current()
		models = append(models, provider.ModelInfo{
			ID:          m.ID,
			Name:        m.DisplayName,
			DisplayName: m.DisplayName,
		})
	}
	if err := pager.Err(); err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no models returned from API")
	}
	return models, nil
}

var _ provider.LLMProvider = (*Client)(nil)
