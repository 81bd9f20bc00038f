// Package google implements the LLMProvider interface on the Google GenAI SDK.
package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/pptgirl/pptgirl/internal/message"
	"github.com/pptgirl/pptgirl/internal/provider"
)

// Client implements the LLMProvider interface using the Google GenAI SDK.
type Client struct {
	client *genai.Client
	name   string
}

// New creates a Client from an API key.
func New(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Client{client: client, name: "google"}, nil
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

		contents := make([]*genai.Content, 0, len(opts.Messages))
		for _, msg := range opts.Messages {
			var role string
			switch msg.Role {
			case message.RoleUser:
				role = "user"
			case message.RoleAssistant:
				role = "model"
			default:
				role = string(msg.Role)
			}

			parts := make([]*genai.Part, 0)

			switch {
			case msg.ToolResult != nil:
				var result map[string]any
				if err := json.Unmarshal([]byte(msg.ToolResult.Content), &result); err != nil {
					result = map[string]any{"result": msg.ToolResult.Content}
				}
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolResult.ToolCallID,
						Name:     msg.ToolResult.ToolName,
						Response: result,
					},
				})
			case len(msg.ToolCalls) > 0:
				if msg.Content != "" {
					parts = append(parts, &genai.Part{Text: msg.Content})
				}
				for _, tc := range msg.ToolCalls {
					var args map[string]any
					if tc.Arguments != "" {
						if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
							args = nil
						}
					}
					parts = append(parts, &genai.Part{
						FunctionCall: &genai.FunctionCall{
							ID:   tc.ID,
							Name: tc.Name,
							Args: args,
						},
					})
				}
			case len(msg.Parts) > 0:
				for _, part := range msg.Parts {
					switch part.Type {
					case message.PartText:
						if part.Text != "" {
							parts = append(parts, &genai.Part{Text: part.Text})
						}
					case message.PartImage:
						if part.Image != nil {
							raw, err := base64.StdEncoding.DecodeString(part.Image.Data)
							if err != nil {
								continue
							}
							parts = append(parts, &genai.Part{
								InlineData: &genai.Blob{
									MIMEType: part.Image.MediaType,
									Data:     raw,
								},
							})
						}
					}
				}
			default:
				parts = append(parts, &genai.Part{Text: msg.Content})
			}

			contents = append(contents, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}

		config := &genai.GenerateContentConfig{}

		if opts.SystemPrompt != "" {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: opts.SystemPrompt}},
			}
		}
		if opts.MaxTokens > 0 {
			config.MaxOutputTokens = int32(opts.MaxTokens)
		}
		if opts.Temperature > 0 {
			temp := float32(opts.Temperature)
			config.Temperature = &temp
		}

		if len(opts.Tools) > 0 {
			funcDecls := make([]*genai.FunctionDeclaration, 0, len(opts.Tools))
			for _, t := range opts.Tools {
				fd := &genai.FunctionDeclaration{
					Name:        t.Name,
					Description: t.Description,
				}
				if t.Parameters != nil {
					fd.ParametersJsonSchema = t.Parameters
				}
				funcDecls = append(funcDecls, fd)
			}
			config.Tools = []*genai.Tool{
				{FunctionDeclarations: funcDecls},
			}
		}

		var response message.CompletionResponse

		for result, err := range c.client.Models.GenerateContentStream(ctx, opts.Model, contents, config) {
			if err != nil {
				ch <- message.StreamChunk{
					Type:  message.ChunkTypeError,
					Error: err,
				}
				return
			}

			for _, candidate := range result.Candidates {
				if candidate.Content == nil {
					continue
				}

				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						ch <- message.StreamChunk{
							Type: message.ChunkTypeText,
							Text: part.Text,
						}
						response.Content += part.Text
					}

					if part.FunctionCall != nil {
						fc := part.FunctionCall
						argsJSON, _ := json.Marshal(fc.Args)

						ch <- message.StreamChunk{
							Type:     message.ChunkTypeToolStart,
							ToolID:   fc.ID,
							ToolName: fc.Name,
						}
						ch <- message.StreamChunk{
							Type:   message.ChunkTypeToolInput,
							ToolID: fc.ID,
							Text:   string(argsJSON),
						}

						response.ToolCalls = append(response.ToolCalls, message.ToolCall{
							ID:        fc.ID,
							Name:      fc.Name,
							Arguments: string(argsJSON),
						})
					}
				}

				if candidate.FinishReason != "" {
					switch candidate.FinishReason {
					case "STOP":
						response.StopReason = "end_turn"
					case "MAX_TOKENS":
						response.StopReason = "max_tokens"
					default:
						response.StopReason = string(candidate.FinishReason)
					}
				}
			}

			if result.UsageMetadata != nil {
				response.Usage.InputTokens = int(result.UsageMetadata.PromptTokenCount)
				response.Usage.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
			}
		}

		if len(response.ToolCalls) > 0 && response.StopReason == "" {
			response.StopReason = "tool_use"
		}

		ch <- message.StreamChunk{
			Type:     message.ChunkTypeDone,
			Response: &response,
		}
	}()

	return ch
}

// ListModels returns the available Gemini models.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	var models []provider.ModelInfo

	for model, err := range c.client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}
		name := strings.TrimPrefix(model.Name, "models/")
		if !strings.Contains(name, "gemini") {
			continue
		}
		models = append(models, provider.ModelInfo{
			ID:               name,
			Name:             model.DisplayName,
			DisplayName:      model.DisplayName,
			InputTokenLimit:  int(model.InputTokenLimit),
			OutputTokenLimit: int(model.OutputTokenLimit),
		})
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})

	return models, nil
}

var _ provider.LLMProvider = (*Client)(nil)
