// Package session manages the chat session lifecycle: the local mapping of
// session IDs to their durable conversation and workspace records.
package session

import (
	"strings"
	"time"
)

// Session is the local record of one chat session.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title,omitempty"`

	// ConvID and WorkspaceID point at the durable records. Both are empty
	// in degraded local-only sessions.
	ConvID      string `json:"conv_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Durable reports whether the session has backing durable records.
// Local-only sessions can chat but cannot run workspace tools.
func (s *Session) Durable() bool {
	return s.ConvID != "" && s.WorkspaceID != ""
}

const maxTitleLen = 50

// TitleFromMessage derives a session title from the first user message.
func TitleFromMessage(content string) string {
	title := strings.TrimSpace(content)
	if idx := strings.IndexAny(title, "\r\n"); idx >= 0 {
		title = title[:idx]
	}
	runes := []rune(title)
	if len(runes) > maxTitleLen {
		title = strings.TrimSpace(string(runes[:maxTitleLen])) + "..."
	}
	return title
}
