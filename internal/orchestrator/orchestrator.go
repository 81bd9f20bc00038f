// Package orchestrator drives one chat turn: it assembles the outgoing
// message list, streams the model's output, dispatches tool calls, feeds
// results back, and emits incremental events until the model produces a
// final answer.
package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pptgirl/pptgirl/internal/client"
	"github.com/pptgirl/pptgirl/internal/contextedit"
	"github.com/pptgirl/pptgirl/internal/convstore"
	"github.com/pptgirl/pptgirl/internal/message"
	"github.com/pptgirl/pptgirl/internal/provider"
	"github.com/pptgirl/pptgirl/internal/session"
	"github.com/pptgirl/pptgirl/internal/system"
	"github.com/pptgirl/pptgirl/internal/tool"
	"github.com/pptgirl/pptgirl/internal/workspace"
)

const (
	defaultMaxRounds   = 10
	defaultTurnTimeout = 5 * time.Minute
)

// TurnRequest is one user input to run through the turn loop.
type TurnRequest struct {
	Session     session.Session
	Text        string
	Attachments []message.Attachment

	// EnabledTools restricts the tool schemas offered to the model.
	// Empty means all registered tools.
	EnabledTools []string
}

// Orchestrator runs turns. One Orchestrator serves all sessions; per-turn
// state lives on the stack of RunTurn, so concurrent turns for different
// sessions do not interfere.
type Orchestrator struct {
	Client     *client.Client
	Registry   *tool.Registry
	Exec       *tool.Executor
	Adapter    *convstore.Adapter
	Workspaces workspace.Store
	Sessions   *session.Manager
	Policy     contextedit.Policy

	// BuildSystemPrompt overrides the default prompt assembly in tests.
	BuildSystemPrompt func(system.Config) string

	MaxRounds   int           // model/tool cycles per turn; 0 means default
	TurnTimeout time.Duration // whole-turn deadline; 0 means default

	Logger *zap.Logger

	todoMu sync.Mutex
	todos  map[string]*tool.TodoStore
}

// RunTurn executes one turn and emits its event stream through emit.
// Events are emitted in production order; final_message is always last on
// success, and an error event replaces it on transport failure, timeout,
// or cancellation. emit is never called concurrently.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest, emit func(Event)) {
	timeout := o.TurnTimeout
	if timeout <= 0 {
		timeout = defaultTurnTimeout
	}
	turnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var emitMu sync.Mutex
	send := func(ev Event) {
		emitMu.Lock()
		defer emitMu.Unlock()
		emit(ev)
	}

	sess := req.Session
	convID := sess.ConvID

	// Read-time context editing: decide from the durable history and
	// usage snapshot, then re-read with the strategies applied. A missing
	// usage snapshot (or unreachable store) skips editing entirely.
	var usagePtr *contextedit.TokenUsage
	priorTokens := 0
	if usage, ok := o.Adapter.TokenUsage(turnCtx, convID); ok {
		usagePtr = &usage
		priorTokens = usage.TotalTokens
	}
	raw, err := o.Adapter.ReadAll(turnCtx, convID, nil)
	if err != nil {
		o.log().Warn("history read failed, starting from empty context",
			zap.String("conv_id", convID), zap.Error(err))
		raw = nil
	}
	strategies := o.Policy.Decide(usagePtr, raw)
	history := raw
	if len(strategies) > 0 {
		if edited, err := o.Adapter.ReadAll(turnCtx, convID, strategies); err == nil {
			history = edited
		}
	}

	userMsg := o.buildUserMessage(turnCtx, sess, req)

	// The user message is persisted before any model work so it survives
	// a failed turn.
	o.Adapter.Append(turnCtx, convID, userMsg)
	if o.Sessions != nil {
		o.Sessions.Touch(sess, req.Text)
	}

	msgs := append(history, userMsg)
	schemas := o.Registry.Schemas(req.EnabledTools)
	sysPrompt := o.systemPrompt(sess, schemas)

	maxRounds := o.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}

	var (
		allInvocations []message.ToolInvocation
		finalParts     []string
		turnUsage      message.Usage
	)

	for round := 0; round < maxRounds; round++ {
		resp, err := o.streamRound(turnCtx, msgs, schemas, sysPrompt, send)
		if err != nil {
			send(Event{Type: EventError, Text: o.describeTurnError(turnCtx, err)})
			return
		}

		o.Client.AddUsage(resp.Usage)
		turnUsage.InputTokens += resp.Usage.InputTokens
		turnUsage.OutputTokens += resp.Usage.OutputTokens

		if resp.Content != "" {
			finalParts = append(finalParts, resp.Content)
		}

		if len(resp.ToolCalls) == 0 {
			o.finalize(turnCtx, sess, strings.Join(finalParts, "\n\n"),
				resp.Content, allInvocations, turnUsage, priorTokens, send)
			return
		}

		invocations := o.dispatchTools(turnCtx, sess, resp.ToolCalls, send)
		allInvocations = append(allInvocations, invocations...)

		// The assistant message and every tool result are appended to the
		// in-flight list (and the durable log) before the next round, so
		// the model always sees complete results.
		assistantMsg := message.AssistantMessage(resp.Content, invocations)
		o.Adapter.Append(turnCtx, convID, assistantMsg)
		msgs = append(msgs, assistantMsg)

		for i, inv := range invocations {
			content := inv.Result
			isError := false
			if inv.Error != "" {
				content = inv.Error
				isError = true
			}
			result := message.ToolResult{
				ToolCallID: resp.ToolCalls[i].ID,
				ToolName:   resp.ToolCalls[i].Name,
				Content:    content,
				IsError:    isError,
			}
			resultMsg := message.ToolResultMessage(result)
			o.Adapter.Append(turnCtx, convID, resultMsg)
			msgs = append(msgs, resultMsg)
		}
	}

	send(Event{Type: EventError,
		Text: fmt.Sprintf("turn aborted after %d tool rounds without a final answer", maxRounds)})
}

// streamRound drains one model stream, forwarding text chunks as message
// events and returning the collected response.
func (o *Orchestrator) streamRound(ctx context.Context, msgs []message.Message,
	schemas []provider.Tool, sysPrompt string, send func(Event)) (*message.CompletionResponse, error) {
	var resp message.CompletionResponse

	for chunk := range o.Client.Stream(ctx, msgs, schemas, sysPrompt) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch chunk.Type {
		case message.ChunkTypeText:
			resp.Content += chunk.Text
			send(Event{Type: EventMessage, Text: chunk.Text})
		case message.ChunkTypeToolStart:
			resp.ToolCalls = append(resp.ToolCalls, message.ToolCall{
				ID:   chunk.ToolID,
				Name: chunk.ToolName,
			})
		case message.ChunkTypeToolInput:
			if len(resp.ToolCalls) > 0 {
				resp.ToolCalls[len(resp.ToolCalls)-1].Arguments += chunk.Text
			}
		case message.ChunkTypeDone:
			if chunk.Response != nil {
				return chunk.Response, nil
			}
			return &resp, nil
		case message.ChunkTypeError:
			return nil, chunk.Error
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// dispatchTools executes one round's tool calls concurrently. Events for
// different tools may interleave; events for one tool stay ordered. Every
// invocation is terminal on return.
func (o *Orchestrator) dispatchTools(ctx context.Context, sess session.Session,
	calls []message.ToolCall, send func(Event)) []message.ToolInvocation {

	invocations := make([]message.ToolInvocation, len(calls))
	var invMu sync.Mutex

	for i, tc := range calls {
		invocations[i] = message.ToolInvocation{ToolCall: tc, StartedAt: time.Now()}
		send(Event{Type: EventToolCallStart, ToolCall: snapshot(&invocations[i])})
	}

	var wg sync.WaitGroup
	for i := range invocations {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			inv := &invocations[idx]

			call := &tool.Call{
				SessionID:   sess.ID,
				WorkspaceID: sess.WorkspaceID,
				Workspace:   o.Workspaces,
				Todos:       o.todosFor(sess.ID),
				Report: func(step string) {
					invMu.Lock()
					inv.Steps = append(inv.Steps, message.Step{Text: step, At: time.Now()})
					snap := snapshot(inv)
					invMu.Unlock()
					send(Event{Type: EventToolCallStep, Text: step, ToolCall: snap})
				},
			}

			result := o.Exec.ExecuteToolCall(ctx, inv.ToolCall, call)

			invMu.Lock()
			evType := EventToolCallComplete
			if result.IsError {
				inv.Error = result.Content
				evType = EventToolCallError
			} else {
				inv.Result = result.Content
			}
			snap := snapshot(inv)
			invMu.Unlock()
			send(Event{Type: evType, ToolCall: snap})
		}(i)
	}
	wg.Wait()
	return invocations
}

// finalize persists the closing assistant message, records the usage
// snapshot, and emits final_message.
func (o *Orchestrator) finalize(ctx context.Context, sess session.Session,
	fullText, lastRoundText string, invocations []message.ToolInvocation,
	turnUsage message.Usage, priorTokens int, send func(Event)) {

	// The final round had no tool calls; its text closes the turn.
	o.Adapter.Append(ctx, sess.ConvID, message.AssistantMessage(lastRoundText, nil))

	totalTokens := priorTokens + turnUsage.InputTokens + turnUsage.OutputTokens
	o.Adapter.RecordUsage(ctx, sess.ConvID, totalTokens)

	send(Event{Type: EventFinalMessage, Final: &FinalMessage{
		SessionID:   sess.ID,
		Content:     fullText,
		ToolCalls:   invocations,
		Usage:       turnUsage,
		TotalTokens: totalTokens,
	}})
}

// buildUserMessage assembles the user message: text first, then image
// parts, then references to non-image attachments as trailing text. Every
// attachment is stored to the workspace when one is available.
func (o *Orchestrator) buildUserMessage(ctx context.Context, sess session.Session, req TurnRequest) message.Message {
	if len(req.Attachments) == 0 {
		return message.UserMessage(req.Text)
	}

	var parts []message.Part
	if req.Text != "" {
		parts = append(parts, message.Part{Type: message.PartText, Text: req.Text})
	}

	var refs []string
	for _, att := range req.Attachments {
		storedPath := ""
		if sess.WorkspaceID != "" && o.Workspaces != nil {
			p, err := o.Workspaces.UpsertArtifact(ctx, sess.WorkspaceID,
				"uploads/"+att.FileName, att.Content, att.MediaType)
			if err != nil {
				o.log().Warn("attachment store failed",
					zap.String("file", att.FileName), zap.Error(err))
			} else {
				storedPath = p
			}
		}

		if att.IsImage() {
			parts = append(parts, message.Part{
				Type: message.PartImage,
				Image: &message.ImageData{
					MediaType: att.MediaType,
					Data:      base64.StdEncoding.EncodeToString(att.Content),
					FileName:  att.FileName,
					Size:      len(att.Content),
				},
			})
			continue
		}

		ref := fmt.Sprintf("[attachment: %s (%s, %d bytes)", att.FileName, att.MediaType, len(att.Content))
		if storedPath != "" {
			ref += ", stored at " + storedPath
		}
		refs = append(refs, ref+"]")
	}
	if len(refs) > 0 {
		parts = append(parts, message.Part{Type: message.PartText, Text: strings.Join(refs, "\n")})
	}
	return message.UserPartsMessage(parts)
}

func (o *Orchestrator) systemPrompt(sess session.Session, schemas []provider.Tool) string {
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	cfg := system.Config{
		Provider:    o.Client.Name(),
		Model:       o.Client.ModelID(),
		SessionID:   sess.ID,
		WorkspaceID: sess.WorkspaceID,
		ToolNames:   names,
	}
	if o.BuildSystemPrompt != nil {
		return o.BuildSystemPrompt(cfg)
	}
	return system.BuildPrompt(cfg)
}

func (o *Orchestrator) describeTurnError(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "turn timed out before completion"
	case errors.Is(ctx.Err(), context.Canceled):
		return "turn cancelled"
	default:
		return fmt.Sprintf("model request failed: %v", err)
	}
}

// todosFor returns the session's todo store, creating it on first use.
func (o *Orchestrator) todosFor(sessionID string) *tool.TodoStore {
	o.todoMu.Lock()
	defer o.todoMu.Unlock()
	if o.todos == nil {
		o.todos = make(map[string]*tool.TodoStore)
	}
	store, ok := o.todos[sessionID]
	if !ok {
		store = tool.NewTodoStore()
		o.todos[sessionID] = store
	}
	return store
}

// DropTodos releases a deleted session's todo store.
func (o *Orchestrator) DropTodos(sessionID string) {
	o.todoMu.Lock()
	defer o.todoMu.Unlock()
	delete(o.todos, sessionID)
}

// snapshot copies an invocation for event payloads so later mutation does
// not race with the consumer.
func snapshot(inv *message.ToolInvocation) *message.ToolInvocation {
	cp := *inv
	cp.Steps = append([]message.Step(nil), inv.Steps...)
	return &cp
}

func (o *Orchestrator) log() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}
