package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/pptgirl/pptgirl/internal/message"
	"github.com/pptgirl/pptgirl/internal/provider"
)

// Fake is an in-memory provider for tests. It replays a queue of scripted
// responses, one per completion request, and records each request it sees.
type Fake struct {
	mu        sync.Mutex
	responses []message.CompletionResponse
	callIdx   int

	// ErrorAt injects a stream error on the Nth call (1-based). Zero disables.
	ErrorAt  int
	ErrorMsg string

	// Calls records the options of every request, in order.
	Calls []provider.CompletionOptions
}

// NewFake creates a fake provider that replays the given responses in order.
func NewFake(responses ...message.CompletionResponse) *Fake {
	return &Fake{responses: responses}
}

// Enqueue appends a response to the replay queue.
func (f *Fake) Enqueue(resp message.CompletionResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{{ID: "fake-model", Name: "Fake Model"}}, nil
}

// Stream replays the next scripted response as a chunk sequence: one text
// chunk for the content, a tool_start and tool_input chunk per tool call,
// then a done chunk carrying the full response.
func (f *Fake) Stream(ctx context.Context, opts provider.CompletionOptions) <-chan message.StreamChunk {
	f.mu.Lock()
	f.callIdx++
	call := f.callIdx
	f.Calls = append(f.Calls, opts)
	var resp message.CompletionResponse
	exhausted := len(f.responses) == 0
	if !exhausted {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.mu.Unlock()

	ch := make(chan message.StreamChunk)
	go func() {
		defer close(ch)
		if f.ErrorAt != 0 && call == f.ErrorAt {
			msg := f.ErrorMsg
			if msg == "" {
				msg = "injected stream error"
			}
			ch <- message.StreamChunk{Type: message.ChunkTypeError, Error: fmt.Errorf("%s", msg)}
			return
		}
		if exhausted {
			ch <- message.StreamChunk{Type: message.ChunkTypeError,
				Error: fmt.Errorf("fake provider: no scripted response for call %d", call)}
			return
		}
		if resp.Content != "" {
			select {
			case ch <- message.StreamChunk{Type: message.ChunkTypeText, Text: resp.Content}:
			case <-ctx.Done():
				return
			}
		}
		for _, tc := range resp.ToolCalls {
			select {
			case ch <- message.StreamChunk{Type: message.ChunkTypeToolStart, ToolID: tc.ID, ToolName: tc.Name}:
			case <-ctx.Done():
				return
			}
			select {
			case ch <- message.StreamChunk{Type: message.ChunkTypeToolInput, ToolID: tc.ID, Text: tc.Arguments}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- message.StreamChunk{Type: message.ChunkTypeDone, Response: &resp}:
		case <-ctx.Done():
		}
	}()
	return ch
}
