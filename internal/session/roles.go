// Package session tracks who is present in a board session and who is
// allowed to write. Exactly one participant holds control at any instant:
// the board owner by default, or whoever the owner has handed control to.
package session

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/models"
)

// ErrNotAuthorized means a locally initiated mutation was attempted
// without write rights. Callers treat it as a silent no-op.
var ErrNotAuthorized = errors.New("participant is not authorized to write")

// CanWrite reports whether a participant may originate mutations: true iff
// they own the board or currently hold control.
func CanWrite(participantID, ownerID, controllerID string) bool {
	return participantID != "" && (participantID == ownerID || participantID == controllerID)
}

// Gate is the local participant's view of the session roles plus the
// presence roster.
type Gate struct {
	mu           sync.RWMutex
	self         models.Participant
	ownerID      string
	controllerID string
	roster       []models.Participant
}

// NewGate creates a gate for the local participant. If the participant owns
// the board they start as the controller.
func NewGate(self models.Participant, ownerID string) *Gate {
	g := &Gate{self: self, ownerID: ownerID, controllerID: ownerID}
	return g
}

// Self returns the local participant.
func (g *Gate) Self() models.Participant {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.self
}

// CanWrite reports whether the local participant may originate mutations.
func (g *Gate) CanWrite() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return CanWrite(g.self.ID, g.ownerID, g.controllerID)
}

// Controller returns the participant id currently holding control.
func (g *Gate) Controller() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.controllerID
}

// GrantControl reassigns control to target. Only the board owner may do
// this; everyone else gets ErrNotAuthorized.
func (g *Gate) GrantControl(targetID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.self.ID != g.ownerID {
		return ErrNotAuthorized
	}
	g.controllerID = targetID
	log.Info().Str("controller_id", targetID).Msg("control reassigned")
	return nil
}

// ApplyControl records a control reassignment received from the channel.
// Remote reassignments bypass the owner check; the sender's gate already
// enforced it.
func (g *Gate) ApplyControl(targetID string) {
	g.mu.Lock()
	g.controllerID = targetID
	g.mu.Unlock()
}

// Roster returns the current membership in join order.
func (g *Gate) Roster() []models.Participant {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.Participant, len(g.roster))
	copy(out, g.roster)
	return out
}

// SetRoster replaces the membership from a presence snapshot.
func (g *Gate) SetRoster(members []models.Participant) {
	g.mu.Lock()
	g.roster = make([]models.Participant, len(members))
	copy(g.roster, members)
	g.mu.Unlock()
}

// MemberJoined appends a participant unless already present.
func (g *Gate) MemberJoined(p models.Participant) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.roster {
		if m.ID == p.ID {
			return
		}
	}
	g.roster = append(g.roster, p)
}

// MemberLeft removes a participant. If they held control, control reverts
// to the owner so the board never ends up writer-less.
func (g *Gate) MemberLeft(participantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, m := range g.roster {
		if m.ID == participantID {
			g.roster = append(g.roster[:i], g.roster[i+1:]...)
			break
		}
	}
	if g.controllerID == participantID && participantID != g.ownerID {
		g.controllerID = g.ownerID
		log.Info().Str("owner_id", g.ownerID).Msg("controller left, control reverted to owner")
	}
}
