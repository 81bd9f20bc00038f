// Package system assembles the assistant's system prompt from modular
// components: persona identity, workflow instructions, tool guidance, and
// dynamic environment information.
package system

import (
	"embed"
	"fmt"
	"strings"
	"time"
)

//go:embed prompts/*.txt
var promptFS embed.FS

// Config holds the dynamic inputs for system prompt generation.
type Config struct {
	Provider    string // Provider name: anthropic, openai, google
	Model       string // Model identifier
	SessionID   string
	WorkspaceID string // empty for local-only sessions
	ToolNames   []string
	Extra       []string // additional per-turn prompt sections
}

// BuildPrompt builds the complete system prompt.
// Assembly order: persona + workflow + tools + environment + extras.
func BuildPrompt(cfg Config) string {
	parts := []string{
		load("persona.txt"),
		load("workflow.txt"),
		load("tools.txt"),
		formatEnv(cfg),
	}
	parts = append(parts, cfg.Extra...)
	return join(parts)
}

// load reads a prompt file from the embedded filesystem.
func load(name string) string {
	data, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		return ""
	}
	return string(data)
}

// formatEnv generates the dynamic environment section.
func formatEnv(cfg Config) string {
	workspace := "none (degraded session: file and image tools unavailable)"
	if cfg.WorkspaceID != "" {
		workspace = cfg.WorkspaceID
	}
	tools := "none"
	if len(cfg.ToolNames) > 0 {
		tools = strings.Join(cfg.ToolNames, ", ")
	}
	return fmt.Sprintf(`<env>
Date: %s
Provider: %s
Model: %s
Session: %s
Workspace: %s
Available tools: %s
</env>`, time.Now().Format("2006-01-02"), cfg.Provider, cfg.Model,
		cfg.SessionID, workspace, tools)
}

// join concatenates non-empty parts with double newlines.
func join(parts []string) string {
	var filtered []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			filtered = append(filtered, p)
		}
	}
	return strings.Join(filtered, "\n\n")
}
