// Package contextedit decides and applies read-time history rewriting
// strategies that keep the model's input within a token budget without
// deleting the underlying message log.
package contextedit

import (
	"fmt"

	"github.com/pptgirl/pptgirl/internal/message"
)

// TokenUsage is a snapshot of a conversation's total token consumption.
type TokenUsage struct {
	TotalTokens int
}

// Strategy is one read-time history-rewriting rule.
type Strategy interface {
	Name() string
}

// TokenLimitTrim drops the oldest messages until the estimated token count
// is at or below TargetTokens.
type TokenLimitTrim struct {
	TargetTokens int
}

func (s TokenLimitTrim) Name() string { return fmt.Sprintf("token_limit_trim(%d)", s.TargetTokens) }

// DropOldToolResults replaces the content of all but the most recent
// KeepRecent tool-result messages with Placeholder.
type DropOldToolResults struct {
	KeepRecent  int
	Placeholder string
}

func (s DropOldToolResults) Name() string {
	return fmt.Sprintf("drop_old_tool_results(%d)", s.KeepRecent)
}

// DropOldToolCallArguments clears the arguments of all but the most recent
// KeepRecent tool calls.
type DropOldToolCallArguments struct {
	KeepRecent int
}

func (s DropOldToolCallArguments) Name() string {
	return fmt.Sprintf("drop_old_tool_call_arguments(%d)", s.KeepRecent)
}

// Default thresholds.
const (
	DefaultHighWaterMark       = 80000
	DefaultLowWaterMark        = 70000
	DefaultToolResultThreshold = 5
	DefaultToolCallThreshold   = 10
)

// Policy holds the thresholds driving strategy decisions.
type Policy struct {
	HighWaterMark       int
	LowWaterMark        int
	ToolResultThreshold int
	ToolCallThreshold   int
}

// DefaultPolicy returns a Policy with the default thresholds.
func DefaultPolicy() Policy {
	return Policy{
		HighWaterMark:       DefaultHighWaterMark,
		LowWaterMark:        DefaultLowWaterMark,
		ToolResultThreshold: DefaultToolResultThreshold,
		ToolCallThreshold:   DefaultToolCallThreshold,
	}
}

// Decide picks the strategies to apply before sending history to the model.
// Priority order, first match wins; strategies are never combined:
//
//  1. Token usage above the high-water mark trims to the low-water mark.
//     The hard budget always wins.
//  2. Too many tool-result messages collapses the old ones.
//  3. Too many tool calls drops old call arguments.
//  4. Otherwise nothing.
//
// A nil usage snapshot (provider outage) yields no strategies: never guess.
func (p Policy) Decide(usage *TokenUsage, msgs []message.Message) []Strategy {
	if usage == nil {
		return nil
	}

	if usage.TotalTokens > p.HighWaterMark {
		return []Strategy{TokenLimitTrim{TargetTokens: p.LowWaterMark}}
	}

	toolResults, toolCalls := countToolTraffic(msgs)

	if toolResults > p.ToolResultThreshold {
		return []Strategy{DropOldToolResults{
			KeepRecent:  max(3, p.ToolResultThreshold/2),
			Placeholder: "Done",
		}}
	}

	if toolCalls > p.ToolCallThreshold {
		return []Strategy{DropOldToolCallArguments{
			KeepRecent: max(3, p.ToolCallThreshold/2),
		}}
	}

	return nil
}

func countToolTraffic(msgs []message.Message) (results, calls int) {
	for _, m := range msgs {
		if m.ToolResult != nil {
			results++
		}
		calls += len(m.ToolCalls)
	}
	return results, calls
}
