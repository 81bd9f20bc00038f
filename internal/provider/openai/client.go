// Package openai implements the LLMProvider interface on the OpenAI SDK.
package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/pptgirl/pptgirl/internal/log"
	"github.com/pptgirl/pptgirl/internal/message"
	"github.com/pptgirl/pptgirl/internal/provider"
)

// Client implements the LLMProvider interface using the OpenAI SDK.
type Client struct {
	client openai.Client
	name   string
}

// New creates a Client from an API key.
func New(apiKey string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		name:   "openai",
	}
}

// NewWithClient wraps an existing SDK client.
func NewWithClient(client openai.Client) *Client {
	return &Client{client: client, name: "openai"}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// SDK exposes the underlying SDK client for non-chat features such as
// image generation.
func (c *Client) SDK() openai.Client {
	return c.client
}

// Stream sends a completion request via the Chat Completions API and
// returns a channel of streaming chunks.
func (c *Client) Stream(ctx context.Context, opts provider.CompletionOptions) <-chan message.StreamChunk {
	ch := make(chan message.StreamChunk)

	go func() {
		defer close(ch)

		messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(opts.Messages)+1)

		if opts.SystemPrompt != "" {
			messages = append(messages, openai.SystemMessage(opts.SystemPrompt))
		}

		for _, msg := range opts.Messages {
			switch msg.Role {
			case message.RoleUser:
				if msg.ToolResult != nil {
					messages = append(messages, openai.ToolMessage(
						msg.ToolResult.Content,
						msg.ToolResult.ToolCallID,
					))
				} else if len(msg.Parts) > 0 {
					parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
					for _, part := range msg.Parts {
						switch part.Type {
						case message.PartText:
							if part.Text != "" {
								parts = append(parts, openai.ChatCompletionContentPartUnionParam{
									OfText: &openai.ChatCompletionContentPartTextParam{
										Text: part.Text,
									},
								})
							}
						case message.PartImage:
							if part.Image != nil {
								dataURI := fmt.Sprintf("data:%s;base64,%s", part.Image.MediaType, part.Image.Data)
								parts = append(parts, openai.ChatCompletionContentPartUnionParam{
									OfImageURL: &openai.ChatCompletionContentPartImageParam{
										ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
											URL: dataURI,
										},
									},
								})
							}
						}
					}
					messages = append(messages, openai.ChatCompletionMessageParamUnion{
						OfUser: &openai.ChatCompletionUserMessageParam{
							Content: openai.ChatCompletionUserMessageParamContentUnion{
								OfArrayOfContentParts: parts,
							},
						},
					})
				} else {
					messages = append(messages, openai.UserMessage(msg.Content))
				}
			case message.RoleAssistant:
				if len(msg.ToolCalls) > 0 {
					var asstMsg openai.ChatCompletionAssistantMessageParam
					if msg.Content != "" {
						asstMsg.Content.OfString = openai.Opt(msg.Content)
					}
					asstMsg.ToolCalls = make([]openai.ChatCompletionMessageToolCallUnionParam, len(msg.ToolCalls))
					for i, tc := range msg.ToolCalls {
						asstMsg.ToolCalls[i] = openai.ChatCompletionMessageToolCallUnionParam{
							OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
								ID: tc.ID,
								Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
									Name:      tc.Name,
									Arguments: tc.Arguments,
								},
							},
						}
					}
					messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &asstMsg})
				} else {
					messages = append(messages, openai.AssistantMessage(msg.Content))
				}
			default:
				messages = append(messages, openai.SystemMessage(msg.Content))
			}
		}

		params := openai.ChatCompletionNewParams{
			Model:    opts.Model,
			Messages: messages,
		}

		if opts.MaxTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
		}
		if opts.Temperature > 0 {
			params.Temperature = openai.Float(opts.Temperature)
		}

		if len(opts.Tools) > 0 {
			tools := make([]openai.ChatCompletionToolUnionParam, 0, len(opts.Tools))
			for _, t := range opts.Tools {
				var funcParams openai.FunctionParameters = t.Parameters
				tools = append(tools, openai.ChatCompletionToolUnionParam{
					OfFunction: &openai.ChatCompletionFunctionToolParam{
						Function: openai.FunctionDefinitionParam{
							Name:        t.Name,
							Description: openai.String(t.Description),
							Parameters:  funcParams,
						},
					},
				})
			}
			params.Tools = tools
		}

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)

		toolCalls := make(map[int]*message.ToolCall)
		var toolOrder []int
		var response message.CompletionResponse

		streamStart := time.Now()
		chunkCount := 0

		for stream.Next() {
			chunk := stream.Current()
			chunkCount++

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					ch <- message.StreamChunk{
						Type: message.ChunkTypeText,
						Text: choice.Delta.Content,
					}
					response.Content += choice.Delta.Content
				}

				for _, tc := range choice.Delta.ToolCalls {
					idx := int(tc.Index)

					if _, exists := toolCalls[idx]; !exists {
						toolCalls[idx] = &message.ToolCall{
							ID:   tc.ID,
							Name: tc.Function.Name,
						}
						toolOrder = append(toolOrder, idx)
						ch <- message.StreamChunk{
							Type:     message.ChunkTypeToolStart,
							ToolID:   tc.ID,
							ToolName: tc.Function.Name,
						}
					}

					if tc.Function.Arguments != "" {
						toolCalls[idx].Arguments += tc.Function.Arguments
						ch <- message.StreamChunk{
							Type:   message.ChunkTypeToolInput,
							ToolID: toolCalls[idx].ID,
							Text:   tc.Function.Arguments,
						}
					}
				}

				if choice.FinishReason != "" {
					switch choice.FinishReason {
					case "stop":
						response.StopReason = "end_turn"
					case "tool_calls":
						response.StopReason = "tool_use"
					case "length":
						response.StopReason = "max_tokens"
					default:
						response.StopReason = choice.FinishReason
					}
				}
			}

			if chunk.Usage.PromptTokens > 0 {
				response.Usage.InputTokens = int(chunk.Usage.PromptTokens)
			}
			if chunk.Usage.CompletionTokens > 0 {
				response.Usage.OutputTokens = int(chunk.Usage.CompletionTokens)
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

		sort.Ints(toolOrder)
		for _, idx := range toolOrder {
			response.ToolCalls = append(response.ToolCalls, *toolCalls[idx])
		}

		ch <- message.StreamChunk{
			Type:     message.ChunkTypeDone,
			Response: &response,
		}
	}()

	return ch
}

// ListModels returns the available chat models.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]provider.ModelInfo, 0)
	for _, m := range page.Data {
		id := m.ID
		if strings.HasPrefix(id, "dall-e") ||
			strings.HasPrefix(id, "tts-") ||
			strings.HasPrefix(id, "whisper-") ||
			strings.HasPrefix(id, "text-embedding") ||
			strings.HasPrefix(id, "gpt-image") ||
			strings.Contains(id, "-realtime") {
			continue
		}
		models = append(models, provider.ModelInfo{
			ID:          id,
			Name:        id,
			DisplayName: id,
		})
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})

	return models, nil
}

var _ provider.LLMProvider = (*Client)(nil)
