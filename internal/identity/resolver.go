// Package identity resolves an invitation token into the caller's session
// membership. The actual account system lives elsewhere; this is its
// client-side boundary, queried once at startup.
package identity

import (
	"context"

	"github.com/scrivano/boardsync/internal/models"
)

// Session is everything a participant needs to join a board.
type Session struct {
	SessionID       string          `json:"session_id"`
	ParticipantID   string          `json:"participant_id"`
	DisplayName     string          `json:"display_name"`
	IsOwner         bool            `json:"is_owner"`
	OwnerID         string          `json:"owner_id"`
	InitialTokens   []*models.Token `json:"initial_tokens"`
	InitialViewport models.Viewport `json:"initial_viewport"`
}

// Resolver exchanges an invitation token for session membership.
type Resolver interface {
	Resolve(ctx context.Context, invitationToken string) (*Session, error)
}
