package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pptgirl/pptgirl/internal/workspace"
)

const maxReadLines = 2000

// ReadFileTool reads an artifact from the session workspace.
type ReadFileTool struct{}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file from the session workspace. Text files return their content; binary files return a short summary."
}

func (t *ReadFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Workspace-relative path of the file to read",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "Line number to start reading from (1-based). Default is 1.",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of lines to read. Default is 2000.",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]any, call *Call) Result {
	if res, ok := requireWorkspace(call); !ok {
		return res
	}

	p, ok := stringParam(params, "path")
	if !ok || p == "" {
		return Errorf(KindInvalidArguments, "path is required")
	}

	art, err := call.Workspace.GetArtifact(ctx, call.WorkspaceID, p, true, true)
	if err == workspace.ErrNotFound {
		return Errorf(KindToolExecutionFailed, "file not found: %s", p)
	}
	if err != nil {
		return Errorf(KindToolExecutionFailed, "read %s: %v", p, err)
	}

	if !strings.HasPrefix(art.MimeType, "text/") && !isTextualMime(art.MimeType) {
		msg := fmt.Sprintf("binary file %s (%s, %d bytes)", p, art.MimeType, art.Size)
		if art.PublicURL != "" {
			msg += ", available at " + art.PublicURL
		}
		return Result{Content: msg, Data: map[string]any{
			"path":     art.Path,
			"size":     art.Size,
			"url":      art.PublicURL,
			"base64":   base64.StdEncoding.EncodeToString(art.Content),
			"mimeType": art.MimeType,
		}}
	}

	offset := intParam(params, "offset", 1)
	limit := intParam(params, "limit", maxReadLines)
	if offset < 1 {
		offset = 1
	}
	if limit < 1 || limit > maxReadLines {
		limit = maxReadLines
	}

	lines := strings.Split(string(art.Content), "\n")
	if offset > len(lines) {
		return Errorf(KindInvalidArguments, "offset %d is past the end of %s (%d lines)", offset, p, len(lines))
	}
	end := offset - 1 + limit
	truncated := false
	if end < len(lines) {
		truncated = true
	} else {
		end = len(lines)
	}
	content := strings.Join(lines[offset-1:end], "\n")
	if truncated {
		content += fmt.Sprintf("\n... (truncated at line %d of %d)", end, len(lines))
	}
	return Result{Content: content, Data: map[string]any{"path": art.Path, "lines": len(lines)}}
}

func isTextualMime(mimeType string) bool {
	switch {
	case strings.Contains(mimeType, "json"),
		strings.Contains(mimeType, "xml"),
		strings.Contains(mimeType, "yaml"),
		strings.Contains(mimeType, "javascript"),
		strings.Contains(mimeType, "svg"):
		return true
	}
	return false
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
