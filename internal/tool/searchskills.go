package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/pptgirl/pptgirl/internal/skill"
)

// SearchSkillsTool searches the skill catalog and returns matching skill
// instructions for the model to apply.
type SearchSkillsTool struct {
	Catalog *skill.Registry
}

func (t *SearchSkillsTool) Name() string { return "search_skills" }

func (t *SearchSkillsTool) Description() string {
	return "Search the presentation skill catalog by keyword. Matching skills are returned with their full instructions."
}

func (t *SearchSkillsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Keywords to search for (e.g. 'chart', 'color'). Empty lists the whole catalog.",
			},
		},
		"required": []string{},
	}
}

func (t *SearchSkillsTool) Execute(ctx context.Context, params map[string]any, call *Call) Result {
	if t.Catalog == nil {
		return Errorf(KindToolExecutionFailed, "skill catalog is not configured")
	}
	query, _ := stringParam(params, "query")

	matches := t.Catalog.Search(query)
	if len(matches) == 0 {
		return Textf("No skills match %q", query)
	}

	var b strings.Builder
	for i, sk := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n%s", sk.Name, sk.Description, sk.Instructions)
	}
	return Result{
		Content: b.String(),
		Data:    map[string]any{"count": len(matches)},
	}
}
