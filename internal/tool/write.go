package tool

import (
	"context"

	"github.com/pptgirl/pptgirl/internal/workspace"
)

// WriteFileTool writes an artifact into the session workspace.
type WriteFileTool struct{}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file in the session workspace. Creates parent directories as needed and overwrites any existing file."
}

func (t *WriteFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Workspace-relative path of the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write to the file",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, params map[string]any, call *Call) Result {
	if res, ok := requireWorkspace(call); !ok {
		return res
	}

	p, ok := stringParam(params, "path")
	if !ok || p == "" {
		return Errorf(KindInvalidArguments, "path is required")
	}
	content, ok := stringParam(params, "content")
	if !ok {
		return Errorf(KindInvalidArguments, "content is required")
	}

	stored, err := call.Workspace.UpsertArtifact(ctx, call.WorkspaceID, p, []byte(content), "")
	if err == workspace.ErrInvalidPath {
		return Errorf(KindInvalidArguments, "invalid path: %s", p)
	}
	if err != nil {
		return Errorf(KindToolExecutionFailed, "write %s: %v", p, err)
	}
	return Textf("Wrote %d bytes to %s", len(content), stored)
}
