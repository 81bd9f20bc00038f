package contextedit

import "github.com/pptgirl/pptgirl/internal/message"

// charsPerToken is the estimation ratio used when trimming to a token
// target. Rough, but trimming only needs to land near the budget.
const charsPerToken = 4

// Apply rewrites a history view according to the chosen strategies.
// The input slice is never mutated; callers receive a fresh view while the
// underlying log stays intact.
func Apply(msgs []message.Message, strategies []Strategy) []message.Message {
	out := make([]message.Message, len(msgs))
	copy(out, msgs)

	for _, s := range strategies {
		switch st := s.(type) {
		case TokenLimitTrim:
			out = trimToTokens(out, st.TargetTokens)
		case DropOldToolResults:
			out = collapseToolResults(out, st.KeepRecent, st.Placeholder)
		case DropOldToolCallArguments:
			out = dropCallArguments(out, st.KeepRecent)
		}
	}
	return out
}

// EstimateTokens approximates the token cost of a message list.
func EstimateTokens(msgs []message.Message) int {
	total := 0
	for _, m := range msgs {
		total += estimateMessage(m)
	}
	return total
}

func estimateMessage(m message.Message) int {
	chars := len(m.Content)
	for _, p := range m.Parts {
		chars += len(p.Text)
		if p.Image != nil {
			// Vision inputs are billed per tile, not per byte; a flat
			// estimate keeps trimming stable across image sizes.
			chars += 1500 * charsPerToken
		}
	}
	for _, tc := range m.ToolCalls {
		chars += len(tc.Name) + len(tc.Arguments) + len(tc.Result) + len(tc.Error)
	}
	if m.ToolResult != nil {
		chars += len(m.ToolResult.Content)
	}
	return chars/charsPerToken + 4
}

// trimToTokens drops the oldest messages until the estimate fits target.
// Tool-result messages whose originating call was dropped are dropped too,
// so the model never sees an orphaned result.
func trimToTokens(msgs []message.Message, target int) []message.Message {
	total := EstimateTokens(msgs)
	i := 0
	for i < len(msgs)-1 && total > target {
		total -= estimateMessage(msgs[i])
		i++
	}
	out := msgs[i:]

	// Drop leading tool results left without their assistant call.
	for len(out) > 0 && out[0].ToolResult != nil {
		out = out[1:]
	}
	return out
}

func collapseToolResults(msgs []message.Message, keep int, placeholder string) []message.Message {
	total := 0
	for _, m := range msgs {
		if m.ToolResult != nil {
			total++
		}
	}
	toCollapse := total - keep
	if toCollapse <= 0 {
		return msgs
	}

	out := make([]message.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if toCollapse == 0 {
			break
		}
		if out[i].ToolResult == nil {
			continue
		}
		tr := *out[i].ToolResult
		tr.Content = placeholder
		out[i].ToolResult = &tr
		toCollapse--
	}
	return out
}

func dropCallArguments(msgs []message.Message, keep int) []message.Message {
	total := 0
	for _, m := range msgs {
		total += len(m.ToolCalls)
	}
	toDrop := total - keep
	if toDrop <= 0 {
		return msgs
	}

	out := make([]message.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if toDrop == 0 {
			break
		}
		if len(out[i].ToolCalls) == 0 {
			continue
		}
		calls := make([]message.ToolInvocation, len(out[i].ToolCalls))
		copy(calls, out[i].ToolCalls)
		for j := range calls {
			if toDrop == 0 {
				break
			}
			calls[j].Arguments = "{}"
			toDrop--
		}
		out[i].ToolCalls = calls
	}
	return out
}
