package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrivano/boardsync/internal/models"
)

// EventType identifies one kind of board event on the wire.
type EventType string

const (
	EventTokenAdded        EventType = "TokenAdded"
	EventTokenMoved        EventType = "TokenMoved"
	EventTokenRotated      EventType = "TokenRotated"
	EventTokenScaled       EventType = "TokenScaled"
	EventTokenFlipped      EventType = "TokenFlipped"
	EventTokenRemoved      EventType = "TokenRemoved"
	EventViewportChanged   EventType = "ViewportChanged"
	EventControlReassigned EventType = "ControlReassigned"

	// Presence sub-protocol, emitted by the gateway.
	EventPresenceSnapshot EventType = "PresenceSnapshot"
	EventMemberJoined     EventType = "MemberJoined"
	EventMemberLeft       EventType = "MemberLeft"
)

// Event is the envelope every board event travels in. Data carries the
// kind-specific payload; deltas only, never the full token list, except for
// control-reassignment snapshots.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	SenderID  string          `json:"sender_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// TokenAddedPayload carries the full new token; it is the one delta whose
// subject does not exist on the receiver yet.
type TokenAddedPayload struct {
	Token *models.Token `json:"token"`
}

type TokenMovedPayload struct {
	TokenID string  `json:"token_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type TokenRotatedPayload struct {
	TokenID string  `json:"token_id"`
	Angle   float64 `json:"angle"`
}

type TokenScaledPayload struct {
	TokenID string  `json:"token_id"`
	Scale   float64 `json:"scale"`
}

// TokenFlippedPayload carries the target face and the back image explicitly
// so replicas converge no matter how toggles interleave in flight.
type TokenFlippedPayload struct {
	TokenID   string `json:"token_id"`
	IsFront   bool   `json:"is_front"`
	BackImage string `json:"back_image,omitempty"`
}

type TokenRemovedPayload struct {
	TokenID string `json:"token_id"`
}

type ViewportChangedPayload struct {
	Zoom   float64      `json:"zoom"`
	Offset models.Point `json:"offset"`
}

// ControlReassignedPayload names the new controller and, as the one allowed
// exception, snapshots the board so the incoming writer starts from the
// sender's authoritative state.
type ControlReassignedPayload struct {
	ControllerID string           `json:"controller_id"`
	Tokens       []*models.Token  `json:"tokens,omitempty"`
	Viewport     *models.Viewport `json:"viewport,omitempty"`
}

type PresenceSnapshotPayload struct {
	Members []models.Participant `json:"members"`
}

type MemberJoinedPayload struct {
	Member models.Participant `json:"member"`
}

type MemberLeftPayload struct {
	ParticipantID string `json:"participant_id"`
}

// NewEvent builds an envelope around a payload.
func NewEvent(sessionID string, t EventType, senderID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      t,
		SenderID:  senderID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}
