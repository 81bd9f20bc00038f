package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/pptgirl/pptgirl/internal/workspace"
)

// EditFileTool performs string replacement edits on workspace files.
type EditFileTool struct{}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Edit a workspace file using string replacement. The old_string must be unique in the file unless replace_all is true. Returns a unified diff of the change."
}

func (t *EditFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Workspace-relative path of the file to edit",
			},
			"old_string": map[string]any{
				"type":        "string",
				"description": "The text to replace. Must be unique in the file unless replace_all is true.",
			},
			"new_string": map[string]any{
				"type":        "string",
				"description": "The replacement text. Can be empty to delete old_string.",
			},
			"replace_all": map[string]any{
				"type":        "boolean",
				"description": "If true, replace all occurrences. Default is false.",
			},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, params map[string]any, call *Call) Result {
	if res, ok := requireWorkspace(call); !ok {
		return res
	}

	p, ok := stringParam(params, "path")
	if !ok || p == "" {
		return Errorf(KindInvalidArguments, "path is required")
	}
	oldString, ok := stringParam(params, "old_string")
	if !ok {
		return Errorf(KindInvalidArguments, "old_string is required")
	}
	newString, ok := stringParam(params, "new_string")
	if !ok {
		return Errorf(KindInvalidArguments, "new_string is required")
	}
	replaceAll, _ := params["replace_all"].(bool)

	art, err := call.Workspace.GetArtifact(ctx, call.WorkspaceID, p, true, false)
	if err == workspace.ErrNotFound {
		return Errorf(KindToolExecutionFailed, "file not found: %s", p)
	}
	if err != nil {
		return Errorf(KindToolExecutionFailed, "read %s: %v", p, err)
	}

	oldContent := string(art.Content)
	count := strings.Count(oldContent, oldString)
	if count == 0 {
		return Errorf(KindToolExecutionFailed, "old_string not found in %s", p)
	}
	if !replaceAll && count > 1 {
		return Errorf(KindToolExecutionFailed,
			"old_string is not unique in %s (found %d occurrences); use replace_all=true", p, count)
	}

	var newContent string
	replaced := 1
	if replaceAll {
		replaced = count
		newContent = strings.ReplaceAll(oldContent, oldString, newString)
	} else {
		newContent = strings.Replace(oldContent, oldString, newString, 1)
	}

	if _, err := call.Workspace.UpsertArtifact(ctx, call.WorkspaceID, p, []byte(newContent), art.MimeType); err != nil {
		return Errorf(KindToolExecutionFailed, "write %s: %v", p, err)
	}

	edits := myers.ComputeEdits(span.URIFromPath(p), oldContent, newContent)
	diff := fmt.Sprint(gotextdiff.ToUnified(p, p, oldContent, edits))

	return Result{
		Content: fmt.Sprintf("Edited %s (%d replacement(s))\n\n%s", p, replaced, diff),
		Data:    map[string]any{"path": p, "replacements": replaced},
	}
}
