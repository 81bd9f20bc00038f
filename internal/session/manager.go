package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pptgirl/pptgirl/internal/convstore"
	"github.com/pptgirl/pptgirl/internal/workspace"
)

// Manager resolves and deletes sessions, wiring each one to its durable
// conversation and workspace records.
type Manager struct {
	Rows          *RowStore
	Conversations convstore.Store
	Workspaces    workspace.Store
	Logger        *zap.Logger
}

// Resolve returns the session for (userID, existingID). A session owned by
// userID is returned as-is. Otherwise a new session is created: durable
// conversation and workspace records are allocated, and the mapping is
// persisted under existingID (or a fresh ID when none was given).
//
// Idempotent per existingID: the row store's uniqueness constraint catches
// concurrent creates, and the loser re-reads the winner's record.
//
// If the durable providers are unreachable the returned session is
// local-only (empty ConvID/WorkspaceID): plain conversation still works,
// workspace tools do not.
func (m *Manager) Resolve(ctx context.Context, userID, existingID string) (Session, error) {
	if existingID != "" {
		sess, err := m.Rows.Get(existingID)
		switch {
		case err == nil && sess.UserID == userID:
			return sess, nil
		case err == nil:
			// Someone else's session ID; allocate a fresh one below
			// rather than leaking another user's conversation.
			existingID = ""
		case !errors.Is(err, ErrNotFound):
			return Session{}, err
		}
	}

	id := existingID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	sess := Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	convID, err := m.Conversations.CreateSession(ctx)
	if err == nil {
		sess.ConvID = convID
		wsID, wsErr := m.Workspaces.CreateWorkspace(ctx)
		if wsErr == nil {
			sess.WorkspaceID = wsID
		} else {
			err = wsErr
		}
	}
	if err != nil {
		m.log().Warn("durable provider unreachable, session is local-only",
			zap.String("session_id", id),
			zap.Error(err))
		sess.ConvID = ""
		sess.WorkspaceID = ""
	}

	if err := m.Rows.Create(sess); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a concurrent create; the winner's record is canonical.
			m.releaseDurable(ctx, sess)
			return m.Rows.Get(id)
		}
		m.releaseDurable(ctx, sess)
		return Session{}, err
	}
	return sess, nil
}

// Touch updates the session's title (first turn only) and timestamp.
func (m *Manager) Touch(sess Session, firstUserText string) {
	if sess.Title == "" && firstUserText != "" {
		sess.Title = TitleFromMessage(firstUserText)
	}
	sess.UpdatedAt = time.Now()
	if err := m.Rows.Update(sess); err != nil {
		m.log().Warn("session update failed",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}
}

// Get returns the session if it exists and is owned by userID.
func (m *Manager) Get(userID, sessionID string) (Session, error) {
	sess, err := m.Rows.Get(sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.UserID != userID {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// List returns the user's sessions, newest first.
func (m *Manager) List(userID string) ([]Session, error) {
	return m.Rows.ListByUser(userID)
}

// Delete removes the local session mapping. Durable record release is
// best-effort; a provider failure is logged, not returned.
func (m *Manager) Delete(ctx context.Context, userID, sessionID string) error {
	sess, err := m.Get(userID, sessionID)
	if err != nil {
		return err
	}
	if err := m.Rows.Delete(sessionID); err != nil {
		return err
	}
	m.releaseDurable(ctx, sess)
	return nil
}

func (m *Manager) releaseDurable(ctx context.Context, sess Session) {
	if sess.ConvID != "" {
		if err := m.Conversations.DeleteSession(ctx, sess.ConvID); err != nil {
			m.log().Warn("conversation release failed",
				zap.String("conv_id", sess.ConvID),
				zap.Error(err))
		}
	}
	if sess.WorkspaceID != "" {
		if err := m.Workspaces.DeleteWorkspace(ctx, sess.WorkspaceID); err != nil {
			m.log().Warn("workspace release failed",
				zap.String("workspace_id", sess.WorkspaceID),
				zap.Error(err))
		}
	}
}

func (m *Manager) log() *zap.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return zap.NewNop()
}
