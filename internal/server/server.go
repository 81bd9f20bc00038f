// Package server exposes the chat application over HTTP: a streaming chat
// endpoint, session management, artifact serving, and deck export.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pptgirl/pptgirl/internal/auth"
	"github.com/pptgirl/pptgirl/internal/convstore"
	"github.com/pptgirl/pptgirl/internal/export"
	"github.com/pptgirl/pptgirl/internal/message"
	"github.com/pptgirl/pptgirl/internal/orchestrator"
	"github.com/pptgirl/pptgirl/internal/session"
	"github.com/pptgirl/pptgirl/internal/workspace"
)

const defaultMaxUploadBytes = 32 << 20

// Server wires the HTTP surface to the turn orchestrator and stores. All
// dependencies are injected at construction.
type Server struct {
	Orch          *orchestrator.Orchestrator
	Sessions      *session.Manager
	Conversations convstore.Store
	Workspaces    workspace.Store
	Identity      auth.Identity
	Logger        *zap.Logger

	// MaxUploadBytes caps the chat request body. Zero means default.
	MaxUploadBytes int64
}

// Handler builds the routed handler with logging, CORS, and auth applied.
// Artifact serving stays outside auth so minted links work in a browser.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/chat", s.handleChat)
	api.HandleFunc("GET /api/models", s.handleModels)
	api.HandleFunc("GET /api/usage", s.handleUsage)
	api.HandleFunc("GET /api/tools", s.handleTools)
	api.HandleFunc("GET /api/sessions", s.handleListSessions)
	api.HandleFunc("GET /api/sessions/{id}/messages", s.handleMessages)
	api.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	api.HandleFunc("POST /api/sessions/{id}/export", s.handleExport)

	root := http.NewServeMux()
	root.Handle("/api/", requireAuth(s.Identity, api))
	root.HandleFunc("GET /artifacts/{ws}/{path...}", s.handleArtifact)
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return logRequests(s.log(), allowCORS(root))
}

type chatRequest struct {
	Message      string   `json:"message"`
	SessionID    string   `json:"session_id,omitempty"`
	EnabledTools []string `json:"enabled_tools,omitempty"`
	Stream       bool     `json:"stream,omitempty"`

	attachments []message.Attachment
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	req, err := parseChatRequest(r, maxBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	sess, err := s.Sessions.Resolve(ctx, userFrom(ctx), req.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session setup failed")
		return
	}

	turn := orchestrator.TurnRequest{
		Session:      sess,
		Text:         req.Message,
		Attachments:  req.attachments,
		EnabledTools: req.EnabledTools,
	}

	if req.Stream {
		s.streamTurn(ctx, w, turn)
		return
	}
	s.respondTurn(ctx, w, turn)
}

// streamTurn runs the turn and forwards every event over SSE.
func (s *Server) streamTurn(ctx context.Context, w http.ResponseWriter, turn orchestrator.TurnRequest) {
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.Orch.RunTurn(ctx, turn, func(ev orchestrator.Event) {
		if err := sse.Send(string(ev.Type), eventPayload(ev)); err != nil {
			s.log().Debug("sse write failed, client likely gone", zap.Error(err))
		}
	})
}

// respondTurn runs the turn to completion and answers with one JSON body.
func (s *Server) respondTurn(ctx context.Context, w http.ResponseWriter, turn orchestrator.TurnRequest) {
	var (
		final   *orchestrator.FinalMessage
		turnErr string
	)
	s.Orch.RunTurn(ctx, turn, func(ev orchestrator.Event) {
		switch ev.Type {
		case orchestrator.EventFinalMessage:
			final = ev.Final
		case orchestrator.EventError:
			turnErr = ev.Text
		}
	})

	if final == nil {
		if turnErr == "" {
			turnErr = "turn produced no final message"
		}
		writeError(w, http.StatusBadGateway, turnErr)
		return
	}
	writeJSON(w, http.StatusOK, final)
}

// eventPayload shapes one orchestrator event for the wire.
func eventPayload(ev orchestrator.Event) any {
	switch ev.Type {
	case orchestrator.EventMessage:
		return map[string]string{"text": ev.Text}
	case orchestrator.EventFinalMessage:
		return ev.Final
	case orchestrator.EventError:
		return map[string]string{"error": ev.Text}
	default:
		// Tool lifecycle events carry the invocation snapshot; steps also
		// carry the step text.
		payload := map[string]any{"tool_call": ev.ToolCall}
		if ev.Text != "" {
			payload["text"] = ev.Text
		}
		return payload
	}
}

// parseChatRequest accepts either a JSON body or a multipart form with
// file attachments.
func parseChatRequest(r *http.Request, maxBytes int64) (*chatRequest, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		return parseMultipartChat(r, maxBytes)
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %v", err)
	}
	return &req, nil
}

func parseMultipartChat(r *http.Request, maxBytes int64) (*chatRequest, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %v", err)
	}
	req := &chatRequest{
		Message:   r.FormValue("message"),
		SessionID: r.FormValue("session_id"),
		Stream:    r.FormValue("stream") == "true",
	}
	if tools := r.FormValue("enabled_tools"); tools != "" {
		for _, name := range strings.Split(tools, ",") {
			if name = strings.TrimSpace(name); name != "" {
				req.EnabledTools = append(req.EnabledTools, name)
			}
		}
	}
	for _, fh := range r.MultipartForm.File["attachments"] {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %v", fh.Filename, err)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %v", fh.Filename, err)
		}
		mediaType := fh.Header.Get("Content-Type")
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		req.attachments = append(req.attachments, message.Attachment{
			FileName:  fh.Filename,
			Content:   content,
			MediaType: mediaType,
		})
	}
	return req, nil
}

// handleModels lists the models the configured provider offers, so clients
// can show what the server could be switched to.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.Orch.Client.Models(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "listing models failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": s.Orch.Client.Name(),
		"models":   models,
	})
}

// handleUsage reports the process-lifetime token totals across all turns.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	c := s.Orch.Client
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": c.Name(),
		"model":    c.ModelID(),
		"usage":    c.Tokens(),
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.Orch.Registry.Names()})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Sessions.List(userFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	var msgs []message.Message
	if sess.ConvID != "" {
		var err error
		msgs, err = s.Conversations.GetMessages(r.Context(), sess.ConvID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "reading messages failed")
			return
		}
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"messages":   msgs,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Sessions.Delete(r.Context(), userFrom(r.Context()), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "deleting session failed")
		return
	}
	s.Orch.DropTodos(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	if sess.WorkspaceID == "" {
		writeError(w, http.StatusConflict, "session has no workspace to export")
		return
	}

	ctx := r.Context()
	artifacts, _, err := s.Workspaces.ListArtifacts(ctx, sess.WorkspaceID, "slides/*.png")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing slides failed")
		return
	}
	if len(artifacts) == 0 {
		writeError(w, http.StatusNotFound, "no slides to export")
		return
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })

	slides := make([]export.Slide, 0, len(artifacts))
	for _, a := range artifacts {
		content, err := s.Workspaces.GetArtifact(ctx, sess.WorkspaceID, a.Path, true, false)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "reading slide failed")
			return
		}
		slides = append(slides, export.Slide{Name: a.Path, PNG: content.Content})
	}

	deck, err := export.BuildDeck(slides)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "building deck failed")
		return
	}

	name := sess.Title
	if name == "" {
		name = "deck"
	}
	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", sanitizeFilename(name)+".pptx"))
	w.Write(deck)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	wsID := r.PathValue("ws")
	path := r.PathValue("path")
	art, err := s.Workspaces.GetArtifact(r.Context(), wsID, path, true, false)
	if err != nil {
		if errors.Is(err, workspace.ErrNotFound) || errors.Is(err, workspace.ErrInvalidPath) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, "reading artifact failed")
		return
	}
	w.Header().Set("Content-Type", art.MimeType)
	w.Write(art.Content)
}

// ownedSession loads the path session and enforces ownership.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	sess, err := s.Sessions.Get(userFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
		} else {
			writeError(w, http.StatusInternalServerError, "loading session failed")
		}
		return session.Session{}, false
	}
	return sess, true
}

func sanitizeFilename(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteRune('-')
		}
	}
	if sb.Len() == 0 {
		return "deck"
	}
	return sb.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
