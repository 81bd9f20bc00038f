package tool

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ImageGenerator renders one image for a prompt and returns the raw bytes.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, model, prompt, size string) ([]byte, error)
}

// SlideImageTool generates one presentation slide image and stores it as a
// workspace artifact.
type SlideImageTool struct {
	Generator ImageGenerator

	// Model is the image model identifier passed through to the generator.
	Model string

	// Size is the generated image size, e.g. "1536x1024". Empty lets the
	// generator pick.
	Size string
}

// Deadline gives image generation more room than ordinary tools.
func (t *SlideImageTool) Deadline() time.Duration { return 5 * time.Minute }

func (t *SlideImageTool) Name() string { return "generate_slide_image" }

func (t *SlideImageTool) Description() string {
	return "Generate one presentation slide as an image from a detailed visual description. The image is stored in the session workspace and its public URL is returned."
}

func (t *SlideImageTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"slide_number": map[string]any{
				"type":        "integer",
				"description": "1-based position of this slide in the deck",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Short slide title, used for the artifact file name",
			},
			"prompt": map[string]any{
				"type":        "string",
				"description": "Complete visual description of the slide: layout, text content, style, colors",
			},
		},
		"required": []string{"slide_number", "prompt"},
	}
}

func (t *SlideImageTool) Execute(ctx context.Context, params map[string]any, call *Call) Result {
	if res, ok := requireWorkspace(call); !ok {
		return res
	}
	if t.Generator == nil {
		return Errorf(KindToolExecutionFailed, "image generation is not configured")
	}

	prompt, ok := stringParam(params, "prompt")
	if !ok || prompt == "" {
		return Errorf(KindInvalidArguments, "prompt is required")
	}
	slideNum := intParam(params, "slide_number", 0)
	if slideNum < 1 {
		return Errorf(KindInvalidArguments, "slide_number must be a positive integer")
	}
	title, _ := stringParam(params, "title")

	call.Report(fmt.Sprintf("rendering slide %d", slideNum))
	data, err := t.Generator.GenerateImage(ctx, t.Model, prompt, t.Size)
	if err != nil {
		return Errorf(KindToolExecutionFailed, "slide %d: %v", slideNum, err)
	}

	name := fmt.Sprintf("slides/slide-%02d.png", slideNum)
	if title != "" {
		name = fmt.Sprintf("slides/slide-%02d-%s.png", slideNum, slugify(title))
	}

	call.Report(fmt.Sprintf("storing %s", name))
	stored, err := call.Workspace.UpsertArtifact(ctx, call.WorkspaceID, name, data, "image/png")
	if err != nil {
		return Errorf(KindToolExecutionFailed, "store slide %d: %v", slideNum, err)
	}

	art, err := call.Workspace.GetArtifact(ctx, call.WorkspaceID, stored, false, true)
	if err != nil {
		return Errorf(KindToolExecutionFailed, "stat slide %d: %v", slideNum, err)
	}

	content := fmt.Sprintf("Slide %d generated: %s", slideNum, stored)
	if art.PublicURL != "" {
		content = fmt.Sprintf("Slide %d generated: %s", slideNum, art.PublicURL)
	}
	return Result{
		Content: content,
		Data: map[string]any{
			"slide_number": slideNum,
			"path":         stored,
			"url":          art.PublicURL,
			"size":         len(data),
		},
	}
}

// slugify reduces a title to a short file-name-safe fragment.
func slugify(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= 40 {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}
