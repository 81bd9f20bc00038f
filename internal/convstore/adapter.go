package convstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/pptgirl/pptgirl/internal/contextedit"
	"github.com/pptgirl/pptgirl/internal/message"
)

// Adapter is the message store adapter the orchestrator talks to. Writes
// are best-effort: a persistence failure degrades to "conversation not
// remembered", never to a failed turn.
type Adapter struct {
	store  Store
	logger *zap.Logger
}

// NewAdapter wraps a Store.
func NewAdapter(store Store, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{store: store, logger: logger}
}

// Append writes one message to the conversation log. Failures are logged
// and reported as false, never raised.
func (a *Adapter) Append(ctx context.Context, convID string, msg message.Message) bool {
	if convID == "" {
		return false // degraded local-only session
	}
	if err := a.store.AppendMessage(ctx, convID, msg); err != nil {
		a.logger.Warn("message append failed",
			zap.String("conversation", convID),
			zap.String("role", string(msg.Role)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// ReadAll returns the conversation history, rewritten at read time per the
// given strategies. The underlying log is never modified.
func (a *Adapter) ReadAll(ctx context.Context, convID string, strategies []contextedit.Strategy) ([]message.Message, error) {
	if convID == "" {
		return nil, nil
	}
	msgs, err := a.store.GetMessages(ctx, convID)
	if err != nil {
		return nil, err
	}
	if len(strategies) == 0 {
		return msgs, nil
	}
	return contextedit.Apply(msgs, strategies), nil
}

// TokenUsage returns the store's token totals, or ok=false when the store
// is unreachable or the session is local-only.
func (a *Adapter) TokenUsage(ctx context.Context, convID string) (contextedit.TokenUsage, bool) {
	if convID == "" {
		return contextedit.TokenUsage{}, false
	}
	counts, err := a.store.GetTokenCounts(ctx, convID)
	if err != nil {
		a.logger.Warn("token counts unavailable",
			zap.String("conversation", convID),
			zap.Error(err),
		)
		return contextedit.TokenUsage{}, false
	}
	return contextedit.TokenUsage{TotalTokens: counts.TotalTokens}, true
}

// RecordUsage stores the latest total. Best-effort.
func (a *Adapter) RecordUsage(ctx context.Context, convID string, totalTokens int) {
	if convID == "" {
		return
	}
	if err := a.store.RecordTokenCounts(ctx, convID, TokenCounts{TotalTokens: totalTokens}); err != nil {
		a.logger.Warn("usage record failed",
			zap.String("conversation", convID),
			zap.Error(err),
		)
	}
}
