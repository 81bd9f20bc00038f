package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/pptgirl/pptgirl/internal/workspace"
)

// ListFilesTool lists workspace artifacts matching a glob pattern.
type ListFilesTool struct{}

func (t *ListFilesTool) Name() string { return "list_files" }

func (t *ListFilesTool) Description() string {
	return "List files in the session workspace matching a glob pattern. Supports ** for recursive matching. An empty pattern lists everything."
}

func (t *ListFilesTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Glob pattern to match files (e.g. '**/*.png', 'slides/*'). Default is all files.",
			},
		},
		"required": []string{},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, params map[string]any, call *Call) Result {
	if res, ok := requireWorkspace(call); !ok {
		return res
	}

	pattern, _ := stringParam(params, "pattern")

	artifacts, dirs, err := call.Workspace.ListArtifacts(ctx, call.WorkspaceID, pattern)
	if err == workspace.ErrNotFound {
		return Errorf(KindToolExecutionFailed, "workspace not found")
	}
	if err != nil {
		return Errorf(KindToolExecutionFailed, "list files: %v", err)
	}
	if len(artifacts) == 0 {
		return Textf("No files match %q", patternOrAll(pattern))
	}

	var b strings.Builder
	for _, a := range artifacts {
		fmt.Fprintf(&b, "%s  (%d bytes, %s)\n", a.Path, a.Size, a.MimeType)
	}
	return Result{
		Content: strings.TrimRight(b.String(), "\n"),
		Data:    map[string]any{"count": len(artifacts), "dirs": dirs},
	}
}

func patternOrAll(pattern string) string {
	if pattern == "" {
		return "**/*"
	}
	return pattern
}
