// Package desk assembles one participant's complete board client: token
// store, role gate, gesture controllers and synchronization client, wired
// together explicitly instead of through ambient globals. Front ends and
// the headless agent talk to a Desk, nothing else.
package desk

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/board"
	"github.com/scrivano/boardsync/internal/gesture"
	"github.com/scrivano/boardsync/internal/models"
	"github.com/scrivano/boardsync/internal/realtime"
	"github.com/scrivano/boardsync/internal/session"
)

// Config carries everything a Desk needs. Transport and Pool come from the
// caller; Clock and Rng default to the real ones when nil.
type Config struct {
	SessionID string
	Self      models.Participant
	OwnerID   string
	Transport realtime.Transport
	Pool      []models.TemplateCard
	Clock     clockwork.Clock
	Rng       *rand.Rand
}

// Desk is one participant's live view of a board session.
type Desk struct {
	sessionID string
	store     *board.Store
	gate      *session.Gate
	client    *realtime.Client
	pool      []models.TemplateCard

	// Gesture controllers, one per concurrently possible manual
	// operation, sharing one interaction lock.
	Rotate  *gesture.Rotate
	Scale   *gesture.Scale
	PanZoom *gesture.PanZoom
}

// New wires a Desk together. Mutations the local participant commits are
// published; inbound remote events are reconciled with remote origin so
// they never echo back out.
func New(cfg Config) (*Desk, error) {
	if cfg.SessionID == "" || cfg.Self.ID == "" {
		return nil, fmt.Errorf("desk config requires session and participant ids")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	store := board.NewStore(clock, rng)
	gate := session.NewGate(cfg.Self, cfg.OwnerID)
	client := realtime.NewClient(cfg.Transport, cfg.SessionID, cfg.Self)

	realtime.NewReconciler(store, gate).Attach(client)
	realtime.NewPublisher(client).Attach(store)

	lock := &gesture.Lock{}
	d := &Desk{
		sessionID: cfg.SessionID,
		store:     store,
		gate:      gate,
		client:    client,
		pool:      cfg.Pool,
		Rotate:    gesture.NewRotate(store, gate, lock, clock),
		Scale:     gesture.NewScale(store, gate, lock, clock),
		PanZoom:   gesture.NewPanZoom(store, gate, lock, clock),
	}
	return d, nil
}

// Connect joins the session channel.
func (d *Desk) Connect(ctx context.Context) error {
	return d.client.Connect(ctx)
}

// Disconnect leaves the channel. Idempotent.
func (d *Desk) Disconnect() {
	d.client.Disconnect()
}

// OnStatusChange registers the connection-status observer. Register before
// Connect.
func (d *Desk) OnStatusChange(fn func(realtime.Status)) {
	d.client.OnStatusChange(fn)
}

// Store exposes the token store for rendering and inspection.
func (d *Desk) Store() *board.Store { return d.store }

// Gate exposes the role gate and roster.
func (d *Desk) Gate() *session.Gate { return d.gate }

// LoadInitial seeds the board from the state the identity resolver handed
// back. Applied with remote origin so nothing is re-broadcast.
func (d *Desk) LoadInitial(state models.BoardState) {
	d.store.ReplaceAll(state.Tokens, board.OriginRemote)
	d.store.SetViewport(state.Viewport, board.OriginRemote)
}

// AddToken spawns a token from a template. Refused without write rights.
func (d *Desk) AddToken(templateID string) (*models.Token, error) {
	if !d.gate.CanWrite() {
		return nil, session.ErrNotAuthorized
	}
	m := d.store.Add(templateID, board.OriginLocal)
	return m.Token, nil
}

// MoveToken commits a position change (drag-drop release or remote-free
// move). Refused without write rights.
func (d *Desk) MoveToken(id string, x, y float64) error {
	if !d.gate.CanWrite() {
		return session.ErrNotAuthorized
	}
	_, err := d.store.Move(id, x, y, board.OriginLocal)
	return err
}

// RotateToken commits an absolute rotation outside a gesture.
func (d *Desk) RotateToken(id string, angle float64) error {
	if !d.gate.CanWrite() {
		return session.ErrNotAuthorized
	}
	_, err := d.store.Rotate(id, angle, board.OriginLocal)
	return err
}

// ScaleToken commits an absolute scale outside a gesture.
func (d *Desk) ScaleToken(id string, factor float64) error {
	if !d.gate.CanWrite() {
		return session.ErrNotAuthorized
	}
	_, err := d.store.Scale(id, factor, board.OriginLocal)
	return err
}

// FlipToken toggles a token's face, drawing its back image from the
// template pool on the first flip.
func (d *Desk) FlipToken(id string) error {
	if !d.gate.CanWrite() {
		return session.ErrNotAuthorized
	}
	_, err := d.store.Flip(id, d.pool, board.OriginLocal)
	return err
}

// RemoveToken deletes a token from the board.
func (d *Desk) RemoveToken(id string) error {
	if !d.gate.CanWrite() {
		return session.ErrNotAuthorized
	}
	_, err := d.store.Remove(id, board.OriginLocal)
	return err
}

// GrantControl hands write control to another participant. Owner only. The
// published event snapshots the board so the incoming writer starts from
// the authoritative state.
func (d *Desk) GrantControl(targetID string) error {
	if err := d.gate.GrantControl(targetID); err != nil {
		return err
	}
	snap := d.store.Snapshot(d.sessionID)
	viewport := snap.Viewport
	d.client.Publish(realtime.EventControlReassigned, realtime.ControlReassignedPayload{
		ControllerID: targetID,
		Tokens:       snap.Tokens,
		Viewport:     &viewport,
	})
	log.Info().Str("controller_id", targetID).Msg("published control reassignment")
	return nil
}
