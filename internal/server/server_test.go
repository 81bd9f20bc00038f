package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pptgirl/pptgirl/internal/auth"
	"github.com/pptgirl/pptgirl/internal/client"
	"github.com/pptgirl/pptgirl/internal/contextedit"
	"github.com/pptgirl/pptgirl/internal/convstore"
	"github.com/pptgirl/pptgirl/internal/message"
	"github.com/pptgirl/pptgirl/internal/orchestrator"
	"github.com/pptgirl/pptgirl/internal/session"
	"github.com/pptgirl/pptgirl/internal/system"
	"github.com/pptgirl/pptgirl/internal/tool"
	"github.com/pptgirl/pptgirl/internal/workspace"
)

type testServer struct {
	srv  *Server
	fake *client.Fake
	ws   workspace.Store
}

func newTestServer(t *testing.T, responses ...message.CompletionResponse) *testServer {
	t.Helper()

	conv, err := convstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ws, err := workspace.NewDiskStore(t.TempDir(), "http://localhost/artifacts")
	if err != nil {
		t.Fatal(err)
	}
	rows, err := session.NewRowStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mgr := &session.Manager{Rows: rows, Conversations: conv, Workspaces: ws}

	fake := client.NewFake(responses...)
	reg := tool.NewRegistry()
	reg.Register(&tool.WriteFileTool{})
	reg.Register(&tool.ListFilesTool{})
	orch := &orchestrator.Orchestrator{
		Client:     &client.Client{Provider: fake, Model: "m"},
		Registry:   reg,
		Exec:       &tool.Executor{Registry: reg},
		Adapter:    convstore.NewAdapter(conv, nil),
		Workspaces: ws,
		Sessions:   mgr,
		Policy:     contextedit.DefaultPolicy(),
		BuildSystemPrompt: func(system.Config) string {
			return "test prompt"
		},
	}

	return &testServer{
		srv: &Server{
			Orch:          orch,
			Sessions:      mgr,
			Conversations: conv,
			Workspaces:    ws,
			Identity:      auth.NewTokenIdentity(map[string]string{"tok": "alice"}),
		},
		fake: fake,
		ws:   ws,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	r := httptest.NewRequest(method, path, body)
	r.Header.Set("Authorization", "Bearer tok")
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, r)
	return w
}

func (ts *testServer) chatJSON(t *testing.T, body string) *httptest.ResponseRecorder {
	return ts.do(t, "POST", "/api/chat", bytes.NewBufferString(body), "application/json")
}

func TestChatRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	r := httptest.NewRequest("POST", "/api/chat", strings.NewReader(`{"message":"hi"}`))
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestChatRejectsMalformedInput(t *testing.T) {
	ts := newTestServer(t)
	for name, body := range map[string]string{
		"bad json":      `{"message":`,
		"empty message": `{"message":"  "}`,
	} {
		if w := ts.chatJSON(t, body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
	if len(ts.fake.Calls) != 0 {
		t.Error("malformed input must be rejected before any model work")
	}
}

func TestChatSingleResponse(t *testing.T) {
	ts := newTestServer(t, message.CompletionResponse{
		Content:    "Here is your outline.",
		StopReason: "end_turn",
		Usage:      message.Usage{InputTokens: 10, OutputTokens: 5},
	})

	w := ts.chatJSON(t, `{"message":"outline please"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var final orchestrator.FinalMessage
	if err := json.Unmarshal(w.Body.Bytes(), &final); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if final.Content != "Here is your outline." || final.SessionID == "" {
		t.Errorf("final = %+v", final)
	}

	// The session now exists and holds both messages.
	w = ts.do(t, "GET", "/api/sessions/"+final.SessionID+"/messages", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("messages status = %d", w.Code)
	}
	var listing struct {
		Messages []message.Message `json:"messages"`
	}
	json.Unmarshal(w.Body.Bytes(), &listing)
	if len(listing.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(listing.Messages))
	}
}

func TestChatStreamSSE(t *testing.T) {
	ts := newTestServer(t, message.CompletionResponse{
		Content:    "streamed answer",
		StopReason: "end_turn",
	})

	w := ts.chatJSON(t, `{"message":"hi","stream":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: message\n") {
		t.Errorf("missing message event:\n%s", body)
	}
	if !strings.Contains(body, "event: final_message\n") {
		t.Errorf("missing final_message event:\n%s", body)
	}
	// final_message is last.
	lastEvent := body[strings.LastIndex(body, "event: "):]
	if !strings.HasPrefix(lastEvent, "event: final_message") {
		t.Errorf("last event:\n%s", lastEvent)
	}
}

func TestChatStreamError(t *testing.T) {
	ts := newTestServer(t)
	ts.fake.ErrorAt = 1
	ts.fake.ErrorMsg = "upstream down"

	w := ts.chatJSON(t, `{"message":"hi","stream":true}`)
	if !strings.Contains(w.Body.String(), "event: error\n") {
		t.Errorf("missing error event:\n%s", w.Body.String())
	}

	// Non-streaming requests surface the same failure as a 502.
	ts.fake.ErrorAt = 2
	w = ts.chatJSON(t, `{"message":"hi"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestChatMultipartAttachments(t *testing.T) {
	ts := newTestServer(t, message.CompletionResponse{
		Content:    "got it",
		StopReason: "end_turn",
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("message", "use this file")
	fw, _ := mw.CreateFormFile("attachments", "notes.txt")
	fw.Write([]byte("facts"))
	mw.Close()

	w := ts.do(t, "POST", "/api/chat", &buf, mw.FormDataContentType())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var final orchestrator.FinalMessage
	json.Unmarshal(w.Body.Bytes(), &final)

	// The attachment landed in the session workspace.
	sess, err := ts.srv.Sessions.Get("alice", final.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ts.ws.GetArtifact(context.Background(),
		sess.WorkspaceID, "uploads/notes.txt", false, false); err != nil {
		t.Errorf("attachment not stored: %v", err)
	}
}

func TestSessionListAndDelete(t *testing.T) {
	ts := newTestServer(t,
		message.CompletionResponse{Content: "a", StopReason: "end_turn"},
	)
	w := ts.chatJSON(t, `{"message":"first session"}`)
	var final orchestrator.FinalMessage
	json.Unmarshal(w.Body.Bytes(), &final)

	w = ts.do(t, "GET", "/api/sessions", nil, "")
	var listing struct {
		Sessions []session.Session `json:"sessions"`
	}
	json.Unmarshal(w.Body.Bytes(), &listing)
	if len(listing.Sessions) != 1 || listing.Sessions[0].Title == "" {
		t.Errorf("sessions = %+v", listing.Sessions)
	}

	w = ts.do(t, "DELETE", "/api/sessions/"+final.SessionID, nil, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	w = ts.do(t, "DELETE", "/api/sessions/"+final.SessionID, nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestModelsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "GET", "/api/models", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Provider string `json:"provider"`
		Models   []struct {
			ID string `json:"id"`
		} `json:"models"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Provider != "fake" {
		t.Errorf("provider = %q", body.Provider)
	}
	if len(body.Models) != 1 || body.Models[0].ID != "fake-model" {
		t.Errorf("models = %+v", body.Models)
	}
}

func TestUsageEndpoint(t *testing.T) {
	ts := newTestServer(t, message.CompletionResponse{
		Content:    "done",
		StopReason: "end_turn",
		Usage:      message.Usage{InputTokens: 10, OutputTokens: 5},
	})
	ts.chatJSON(t, `{"message":"hi"}`)

	w := ts.do(t, "GET", "/api/usage", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Model string `json:"model"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Model != "m" {
		t.Errorf("model = %q", body.Model)
	}
	if body.Usage.InputTokens != 10 || body.Usage.OutputTokens != 5 || body.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", body.Usage)
	}
}

func TestToolsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "GET", "/api/tools", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Tools []string `json:"tools"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	want := map[string]bool{"write_file": false, "list_files": false}
	for _, name := range body.Tools {
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %s missing from %v", name, body.Tools)
		}
	}
}

func TestChatUploadLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.MaxUploadBytes = 512

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("message", "use this file")
	fw, _ := mw.CreateFormFile("attachments", "big.bin")
	fw.Write(bytes.Repeat([]byte("x"), 4096))
	mw.Close()

	w := ts.do(t, "POST", "/api/chat", &buf, mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(ts.fake.Calls) != 0 {
		t.Error("oversized upload must be rejected before any model work")
	}
}

func TestMessagesUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "GET", "/api/sessions/nope/messages", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestExportDeck(t *testing.T) {
	ts := newTestServer(t, message.CompletionResponse{Content: "hi", StopReason: "end_turn"})
	w := ts.chatJSON(t, `{"message":"Quarterly Review deck"}`)
	var final orchestrator.FinalMessage
	json.Unmarshal(w.Body.Bytes(), &final)

	sess, _ := ts.srv.Sessions.Get("alice", final.SessionID)

	// No slides yet.
	w = ts.do(t, "POST", "/api/sessions/"+final.SessionID+"/export", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("empty export status = %d, want 404", w.Code)
	}

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		ts.ws.UpsertArtifact(ctx, sess.WorkspaceID,
			fmt.Sprintf("slides/slide-%02d.png", i), []byte(fmt.Sprintf("png%d", i)), "image/png")
	}

	w = ts.do(t, "POST", "/api/sessions/"+final.SessionID+"/export", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".pptx") {
		t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
	}
	if _, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len())); err != nil {
		t.Errorf("export is not a valid archive: %v", err)
	}
}

func TestArtifactServing(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	wsID, _ := ts.ws.CreateWorkspace(ctx)
	ts.ws.UpsertArtifact(ctx, wsID, "slides/slide-01.png", []byte("pngdata"), "image/png")

	// No auth header: artifact links are public.
	r := httptest.NewRequest("GET", "/artifacts/"+wsID+"/slides/slide-01.png", nil)
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK || w.Body.String() != "pngdata" {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}

	r = httptest.NewRequest("GET", "/artifacts/"+wsID+"/missing.png", nil)
	w = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing artifact status = %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	r := httptest.NewRequest("OPTIONS", "/api/chat", nil)
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS headers")
	}
}
