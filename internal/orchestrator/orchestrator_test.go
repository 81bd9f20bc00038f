package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

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

type env struct {
	orch *Orchestrator
	fake *client.Fake
	conv convstore.Store
	sess session.Session
	gen  *scriptedGenerator
}

type scriptedGenerator struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]error // 1-based call index
}

func (g *scriptedGenerator) GenerateImage(ctx context.Context, model, prompt, size string) ([]byte, error) {
	g.mu.Lock()
	g.calls++
	err := g.failOn[g.calls]
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []byte("png-" + prompt), nil
}

func newEnv(t *testing.T, responses ...message.CompletionResponse) *env {
	t.Helper()
	ctx := context.Background()

	conv, err := convstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ws, err := workspace.NewDiskStore(t.TempDir(), "http://localhost/artifacts")
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}
	convID, err := conv.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	wsID, err := ws.CreateWorkspace(ctx)
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}

	gen := &scriptedGenerator{failOn: map[int]error{}}
	reg := tool.NewRegistry()
	reg.Register(&tool.SlideImageTool{Generator: gen, Model: "img"})
	reg.Register(&tool.WriteFileTool{})

	fake := client.NewFake(responses...)
	orch := &Orchestrator{
		Client:     &client.Client{Provider: fake, Model: "test-model"},
		Registry:   reg,
		Exec:       &tool.Executor{Registry: reg},
		Adapter:    convstore.NewAdapter(conv, nil),
		Workspaces: ws,
		Policy:     contextedit.DefaultPolicy(),
		BuildSystemPrompt: func(cfg system.Config) string {
			return "test system prompt"
		},
	}
	return &env{
		orch: orch,
		fake: fake,
		conv: conv,
		sess: session.Session{ID: "sess-1", UserID: "alice", ConvID: convID, WorkspaceID: wsID},
		gen:  gen,
	}
}

func (e *env) run(t *testing.T, text string) []Event {
	t.Helper()
	var events []Event
	e.orch.RunTurn(context.Background(), TurnRequest{Session: e.sess, Text: text},
		func(ev Event) { events = append(events, ev) })
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	return events
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func countType(events []Event, et EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == et {
			n++
		}
	}
	return n
}

func finalOf(t *testing.T, events []Event) *FinalMessage {
	t.Helper()
	last := events[len(events)-1]
	if last.Type != EventFinalMessage {
		t.Fatalf("last event = %s, want final_message (all: %v)", last.Type, eventTypes(events))
	}
	return last.Final
}

func slideCall(id string, n int) message.ToolCall {
	return message.ToolCall{
		ID:   id,
		Name: "generate_slide_image",
		Arguments: fmt.Sprintf(`{"slide_number":%d,"prompt":"slide %d content"}`,
			n, n),
	}
}

func TestTurnPlainOutline(t *testing.T) {
	outline := "1. Intro\n2. Body\n3. Close"
	e := newEnv(t, message.CompletionResponse{
		Content:    outline,
		StopReason: "end_turn",
		Usage:      message.Usage{InputTokens: 100, OutputTokens: 50},
	})

	events := e.run(t, "Create a 3-slide outline about Go")

	if countType(events, EventMessage) == 0 {
		t.Error("expected message events")
	}
	if countType(events, EventToolCallStart) != 0 {
		t.Error("plain turn must not emit tool events")
	}
	final := finalOf(t, events)
	if final.Content != outline {
		t.Errorf("final content = %q", final.Content)
	}
	if final.TotalTokens != 150 {
		t.Errorf("TotalTokens = %d, want 150", final.TotalTokens)
	}

	// Durable log: user message then assistant answer.
	msgs, err := e.conv.GetMessages(context.Background(), e.sess.ConvID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != message.RoleUser || msgs[1].Role != message.RoleAssistant {
		t.Fatalf("durable log = %d messages", len(msgs))
	}
	if msgs[1].Content != outline {
		t.Errorf("stored assistant content = %q", msgs[1].Content)
	}
}

func TestTurnGeneratesSlides(t *testing.T) {
	e := newEnv(t,
		message.CompletionResponse{
			Content:    "Generating your deck now.",
			ToolCalls:  []message.ToolCall{slideCall("tc1", 1), slideCall("tc2", 2), slideCall("tc3", 3)},
			StopReason: "tool_use",
			Usage:      message.Usage{InputTokens: 200, OutputTokens: 40},
		},
		message.CompletionResponse{
			Content:    "Done! Your three slides are linked above.",
			StopReason: "end_turn",
			Usage:      message.Usage{InputTokens: 300, OutputTokens: 30},
		},
	)

	events := e.run(t, "Looks good, generate the deck")

	if got := countType(events, EventToolCallStart); got != 3 {
		t.Errorf("tool_call_start = %d, want 3", got)
	}
	if got := countType(events, EventToolCallComplete); got != 3 {
		t.Errorf("tool_call_complete = %d, want 3", got)
	}
	if got := countType(events, EventToolCallError); got != 0 {
		t.Errorf("tool_call_error = %d, want 0", got)
	}

	final := finalOf(t, events)
	if len(final.ToolCalls) != 3 {
		t.Fatalf("final tool calls = %d", len(final.ToolCalls))
	}
	for _, inv := range final.ToolCalls {
		if !strings.Contains(inv.Result, "http://localhost/artifacts/") {
			t.Errorf("invocation result %q lacks image link", inv.Result)
		}
	}
	if !strings.Contains(final.Content, "Generating your deck now.") ||
		!strings.Contains(final.Content, "Done!") {
		t.Errorf("final content = %q", final.Content)
	}
	if final.TotalTokens != 570 {
		t.Errorf("TotalTokens = %d, want 570", final.TotalTokens)
	}

	// Second model call must include the tool results.
	if len(e.fake.Calls) != 2 {
		t.Fatalf("model calls = %d, want 2", len(e.fake.Calls))
	}
	secondMsgs := e.fake.Calls[1].Messages
	results := 0
	for _, m := range secondMsgs {
		if m.ToolResult != nil {
			results++
		}
	}
	if results != 3 {
		t.Errorf("second round saw %d tool results, want 3", results)
	}

	// Durable log carries the invocations on the assistant message.
	msgs, _ := e.conv.GetMessages(context.Background(), e.sess.ConvID)
	var withCalls *message.Message
	for i := range msgs {
		if len(msgs[i].ToolCalls) > 0 {
			withCalls = &msgs[i]
		}
	}
	if withCalls == nil {
		t.Fatal("no durable assistant message with tool invocations")
	}
	if len(withCalls.ToolCalls) != 3 || !withCalls.ToolCalls[0].Terminal() {
		t.Errorf("durable invocations = %+v", withCalls.ToolCalls)
	}
}

// appendFailStore fails assistant-message appends once armed.
type appendFailStore struct {
	convstore.Store
	armed bool
}

func (s *appendFailStore) AppendMessage(ctx context.Context, convID string, msg message.Message) error {
	if s.armed && msg.Role == message.RoleAssistant {
		return errors.New("disk full")
	}
	return s.Store.AppendMessage(ctx, convID, msg)
}

func TestTurnSurvivesPersistenceFailure(t *testing.T) {
	e := newEnv(t, message.CompletionResponse{
		Content:    "Here is your outline.",
		StopReason: "end_turn",
	})
	failing := &appendFailStore{Store: e.conv, armed: true}
	e.orch.Adapter = convstore.NewAdapter(failing, nil)

	events := e.run(t, "hello")

	final := finalOf(t, events)
	if final.Content != "Here is your outline." {
		t.Errorf("final content = %q", final.Content)
	}

	// The failed assistant write is absent from the durable log; the user
	// message is still there.
	msgs, _ := e.conv.GetMessages(context.Background(), e.sess.ConvID)
	for _, m := range msgs {
		if m.Role == message.RoleAssistant {
			t.Errorf("assistant message should not have been persisted: %+v", m)
		}
	}
	if len(msgs) != 1 {
		t.Errorf("durable log = %d messages, want 1 (user only)", len(msgs))
	}
}

func TestTurnPartialToolFailure(t *testing.T) {
	e := newEnv(t,
		message.CompletionResponse{
			ToolCalls:  []message.ToolCall{slideCall("tc1", 1), slideCall("tc2", 2), slideCall("tc3", 3)},
			StopReason: "tool_use",
		},
		message.CompletionResponse{
			Content:    "Slides 1 and 3 are ready; slide 2 failed, want me to retry?",
			StopReason: "end_turn",
		},
	)
	e.gen.failOn[2] = errors.New("render backend crashed")

	events := e.run(t, "generate all three")

	if got := countType(events, EventToolCallError); got != 1 {
		t.Fatalf("tool_call_error = %d, want 1", got)
	}
	if got := countType(events, EventToolCallComplete); got != 2 {
		t.Errorf("tool_call_complete = %d, want 2", got)
	}

	final := finalOf(t, events)
	var failed int
	for _, inv := range final.ToolCalls {
		if inv.Error != "" {
			failed++
			if !strings.Contains(inv.Error, "render backend crashed") {
				t.Errorf("error = %q", inv.Error)
			}
		}
	}
	if failed != 1 {
		t.Errorf("failed invocations = %d, want 1", failed)
	}
	if !strings.Contains(final.Content, "slide 2 failed") {
		t.Errorf("final content = %q", final.Content)
	}

	// The model saw the error as a structured result, not a crash.
	second := e.fake.Calls[1].Messages
	errResults := 0
	for _, m := range second {
		if m.ToolResult != nil && m.ToolResult.IsError {
			errResults++
		}
	}
	if errResults != 1 {
		t.Errorf("error results fed to model = %d, want 1", errResults)
	}
}

func TestTurnTransportError(t *testing.T) {
	e := newEnv(t)
	e.fake.ErrorAt = 1
	e.fake.ErrorMsg = "connection reset"

	events := e.run(t, "hello")

	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("last event = %s, want error", last.Type)
	}
	if !strings.Contains(last.Text, "connection reset") {
		t.Errorf("error text = %q", last.Text)
	}
	if countType(events, EventFinalMessage) != 0 {
		t.Error("no final_message after a transport error")
	}
}

type stallProvider struct{}

func (stallProvider) Name() string { return "stall" }

func (stallProvider) ListModels(context.Context) ([]provider.ModelInfo, error) { return nil, nil }

func (stallProvider) Stream(ctx context.Context, _ provider.CompletionOptions) <-chan message.StreamChunk {
	ch := make(chan message.StreamChunk)
	go func() {
		defer close(ch)
		<-ctx.Done()
		ch <- message.StreamChunk{Type: message.ChunkTypeError, Error: ctx.Err()}
	}()
	return ch
}

func TestTurnTimeout(t *testing.T) {
	e := newEnv(t)
	e.orch.Client = &client.Client{Provider: stallProvider{}, Model: "m"}
	e.orch.TurnTimeout = 30 * time.Millisecond

	events := e.run(t, "hello")

	last := events[len(events)-1]
	if last.Type != EventError || !strings.Contains(last.Text, "timed out") {
		t.Errorf("last event = %s %q, want timeout error", last.Type, last.Text)
	}
}

func TestTurnAttachmentAssembly(t *testing.T) {
	e := newEnv(t, message.CompletionResponse{Content: "Got your files.", StopReason: "end_turn"})

	var events []Event
	e.orch.RunTurn(context.Background(), TurnRequest{
		Session: e.sess,
		Text:    "use these",
		Attachments: []message.Attachment{
			{FileName: "logo.png", Content: []byte("img"), MediaType: "image/png"},
			{FileName: "notes.txt", Content: []byte("facts"), MediaType: "text/plain"},
		},
	}, func(ev Event) { events = append(events, ev) })
	finalOf(t, events)

	msgs, _ := e.conv.GetMessages(context.Background(), e.sess.ConvID)
	user := msgs[0]
	if len(user.Parts) != 3 {
		t.Fatalf("user parts = %d, want 3", len(user.Parts))
	}
	if user.Parts[0].Type != message.PartText || user.Parts[0].Text != "use these" {
		t.Errorf("part 0 = %+v, want leading text", user.Parts[0])
	}
	if user.Parts[1].Type != message.PartImage || user.Parts[1].Image.FileName != "logo.png" {
		t.Errorf("part 1 = %+v, want image", user.Parts[1])
	}
	if user.Parts[2].Type != message.PartText || !strings.Contains(user.Parts[2].Text, "notes.txt") {
		t.Errorf("part 2 = %+v, want trailing reference", user.Parts[2])
	}

	// Both attachments were stored durably.
	for _, p := range []string{"uploads/logo.png", "uploads/notes.txt"} {
		if _, err := e.orch.Workspaces.GetArtifact(context.Background(),
			e.sess.WorkspaceID, p, false, false); err != nil {
			t.Errorf("attachment %s not stored: %v", p, err)
		}
	}
}

func TestTurnMaxRounds(t *testing.T) {
	// A model that keeps requesting tools forever.
	e := newEnv(t)
	for i := 0; i < 5; i++ {
		e.fake.Enqueue(message.CompletionResponse{
			ToolCalls:  []message.ToolCall{slideCall(fmt.Sprintf("tc%d", i), 1)},
			StopReason: "tool_use",
		})
	}
	e.orch.MaxRounds = 3

	events := e.run(t, "loop forever")

	last := events[len(events)-1]
	if last.Type != EventError || !strings.Contains(last.Text, "3 tool rounds") {
		t.Errorf("last event = %s %q", last.Type, last.Text)
	}
	if len(e.fake.Calls) != 3 {
		t.Errorf("model calls = %d, want 3", len(e.fake.Calls))
	}
}

func TestTurnStepOrderingPerTool(t *testing.T) {
	e := newEnv(t,
		message.CompletionResponse{
			ToolCalls:  []message.ToolCall{slideCall("tc1", 1), slideCall("tc2", 2)},
			StopReason: "tool_use",
		},
		message.CompletionResponse{Content: "done", StopReason: "end_turn"},
	)

	events := e.run(t, "two slides")

	// Steps for one tool must appear in order, and complete after steps.
	perTool := map[string][]EventType{}
	for _, ev := range events {
		if ev.ToolCall != nil {
			perTool[ev.ToolCall.ID] = append(perTool[ev.ToolCall.ID], ev.Type)
		}
	}
	for id, seq := range perTool {
		if seq[0] != EventToolCallStart {
			t.Errorf("tool %s: first event %s", id, seq[0])
		}
		if seq[len(seq)-1] != EventToolCallComplete {
			t.Errorf("tool %s: last event %s", id, seq[len(seq)-1])
		}
	}
	if len(perTool) != 2 {
		t.Errorf("tools seen = %d", len(perTool))
	}
}
