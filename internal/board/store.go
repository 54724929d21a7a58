// Package board holds the authoritative in-memory board state for one
// session: the token list and the shared viewport. Mutations validate,
// normalize and clamp before storing, and report back everything a caller
// needs to decide whether to broadcast the change.
package board

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/geom"
	"github.com/scrivano/boardsync/internal/models"
)

// Origin records whether a mutation was initiated locally or arrived over
// the broadcast channel. Remote-origin mutations must never be re-published.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

// Kind identifies which operation produced a Mutation.
type Kind string

const (
	KindAdd      Kind = "add"
	KindMove     Kind = "move"
	KindRotate   Kind = "rotate"
	KindScale    Kind = "scale"
	KindFlip     Kind = "flip"
	KindRemove   Kind = "remove"
	KindReplace  Kind = "replace"
	KindViewport Kind = "viewport"
)

// Mutation describes one applied change. Token is a copy of the updated
// token (nil for removals and viewport changes), RemovedID the tombstone.
// Unchanged is set when the operation was absorbed by a dead-band and
// nothing should be broadcast.
type Mutation struct {
	Kind      Kind
	Origin    Origin
	Token     *models.Token
	RemovedID string
	Viewport  *models.Viewport
	Unchanged bool
}

// rotateDeadband suppresses commits that differ from the stored angle by
// less than this many degrees, so sub-pixel jitter does not hit the wire.
const rotateDeadband = 0.1

// Spawn region for newly added tokens.
const (
	spawnBase   = 100.0
	spawnSpread = 200.0
)

// Observer receives every applied mutation.
type Observer func(Mutation)

// Store is the canonical token list plus viewport for one board session.
type Store struct {
	mu       sync.RWMutex
	tokens   []*models.Token
	byID     map[string]*models.Token
	viewport models.Viewport

	clock     clockwork.Clock
	rng       *rand.Rand
	observers []Observer
}

// NewStore creates an empty store. The clock stamps new token ids; the rng
// drives spawn placement and back-image selection.
func NewStore(clock clockwork.Clock, rng *rand.Rand) *Store {
	return &Store{
		byID:     make(map[string]*models.Token),
		viewport: models.DefaultViewport(),
		clock:    clock,
		rng:      rng,
	}
}

// OnChange registers an observer invoked synchronously after every applied
// mutation. Register before concurrent use; registration is not locked.
func (s *Store) OnChange(fn Observer) {
	s.observers = append(s.observers, fn)
}

func (s *Store) notify(m Mutation) {
	for _, fn := range s.observers {
		fn(m)
	}
}

// Tokens returns a copy of the current token list in board order.
func (s *Store) Tokens() []*models.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Token, len(s.tokens))
	for i, t := range s.tokens {
		out[i] = t.Clone()
	}
	return out
}

// Get returns a copy of one token.
func (s *Store) Get(id string) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	return t.Clone(), nil
}

// Len returns the number of tokens on the board.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Viewport returns the current pan/zoom transform.
func (s *Store) Viewport() models.Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

// Add spawns a new token from a template: fresh id, random placement,
// default angle/scale, front face up, no back image yet.
func (s *Store) Add(templateID string, origin Origin) Mutation {
	s.mu.Lock()
	t := &models.Token{
		ID:         fmt.Sprintf("%s-%d", templateID, s.clock.Now().UnixMilli()),
		TemplateID: templateID,
		X:          spawnBase + s.rng.Float64()*spawnSpread,
		Y:          spawnBase + s.rng.Float64()*spawnSpread,
		Angle:      0,
		Scale:      geom.DefaultScale,
		IsFront:    true,
	}
	s.tokens = append(s.tokens, t)
	s.byID[t.ID] = t
	m := Mutation{Kind: KindAdd, Origin: origin, Token: t.Clone()}
	s.mu.Unlock()

	s.notify(m)
	return m
}

// Insert places a fully formed token (typically received from a remote
// peer) into the store, replacing any token with the same id.
func (s *Store) Insert(t *models.Token, origin Origin) (Mutation, error) {
	if t == nil || t.ID == "" {
		return Mutation{}, fmt.Errorf("insert: %w", ErrMissingID)
	}

	s.mu.Lock()
	c := t.Clone()
	c.Angle = geom.NormalizeAngle(c.Angle)
	c.Scale = geom.Clamp(c.Scale, geom.MinScale, geom.MaxScale)
	if existing, ok := s.byID[c.ID]; ok {
		*existing = *c
	} else {
		s.tokens = append(s.tokens, c)
		s.byID[c.ID] = c
	}
	m := Mutation{Kind: KindAdd, Origin: origin, Token: c.Clone()}
	s.mu.Unlock()

	s.notify(m)
	return m, nil
}

// Move replaces a token's coordinates unconditionally.
func (s *Store) Move(id string, x, y float64, origin Origin) (Mutation, error) {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return Mutation{}, fmt.Errorf("move %q: %w", id, ErrNotFound)
	}
	t.X, t.Y = x, y
	m := Mutation{Kind: KindMove, Origin: origin, Token: t.Clone()}
	s.mu.Unlock()

	s.notify(m)
	return m, nil
}

// Rotate normalizes the angle into [0,360) and stores it. Changes smaller
// than the dead-band are absorbed and reported Unchanged so callers skip
// the broadcast.
func (s *Store) Rotate(id string, angle float64, origin Origin) (Mutation, error) {
	normalized := geom.NormalizeAngle(angle)

	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return Mutation{}, fmt.Errorf("rotate %q: %w", id, ErrNotFound)
	}
	if diff := t.Angle - normalized; diff < rotateDeadband && diff > -rotateDeadband {
		m := Mutation{Kind: KindRotate, Origin: origin, Token: t.Clone(), Unchanged: true}
		s.mu.Unlock()
		return m, nil
	}
	t.Angle = normalized
	m := Mutation{Kind: KindRotate, Origin: origin, Token: t.Clone()}
	s.mu.Unlock()

	s.notify(m)
	return m, nil
}

// Scale clamps the factor into [MinScale, MaxScale] and stores it.
func (s *Store) Scale(id string, factor float64, origin Origin) (Mutation, error) {
	clamped := geom.Clamp(factor, geom.MinScale, geom.MaxScale)

	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return Mutation{}, fmt.Errorf("scale %q: %w", id, ErrNotFound)
	}
	if t.Scale == clamped {
		m := Mutation{Kind: KindScale, Origin: origin, Token: t.Clone(), Unchanged: true}
		s.mu.Unlock()
		return m, nil
	}
	t.Scale = clamped
	m := Mutation{Kind: KindScale, Origin: origin, Token: t.Clone()}
	s.mu.Unlock()

	s.notify(m)
	return m, nil
}

// Flip toggles a token's face. The first time a token leaves its front the
// back image is drawn uniformly from the pool, excluding the token's own
// template, and is immutable from then on.
func (s *Store) Flip(id string, pool []models.TemplateCard, origin Origin) (Mutation, error) {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return Mutation{}, fmt.Errorf("flip %q: %w", id, ErrNotFound)
	}

	if t.IsFront && t.BackImage == "" {
		img, err := s.pickBack(t.TemplateID, pool)
		if err != nil {
			s.mu.Unlock()
			return Mutation{}, fmt.Errorf("flip %q: %w", id, err)
		}
		t.BackImage = img
	}
	t.IsFront = !t.IsFront
	m := Mutation{Kind: KindFlip, Origin: origin, Token: t.Clone()}
	s.mu.Unlock()

	s.notify(m)
	return m, nil
}

// SetFace applies a flip received from a remote peer: the target face and
// back image are explicit so every replica converges regardless of how the
// toggles interleaved in flight.
func (s *Store) SetFace(id string, isFront bool, backImage string, origin Origin) (Mutation, error) {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return Mutation{}, fmt.Errorf("set face %q: %w", id, ErrNotFound)
	}
	t.IsFront = isFront
	if t.BackImage == "" && backImage != "" {
		t.BackImage = backImage
	}
	m := Mutation{Kind: KindFlip, Origin: origin, Token: t.Clone()}
	s.mu.Unlock()

	s.notify(m)
	return m, nil
}

func (s *Store) pickBack(ownTemplateID string, pool []models.TemplateCard) (string, error) {
	candidates := make([]models.TemplateCard, 0, len(pool))
	for _, c := range pool {
		if c.ID != ownTemplateID {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return "", ErrEmptyPool
	}
	return candidates[s.rng.Intn(len(candidates))].BackImage, nil
}

// Remove deletes a token and reports its tombstone.
func (s *Store) Remove(id string, origin Origin) (Mutation, error) {
	s.mu.Lock()
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return Mutation{}, fmt.Errorf("remove %q: %w", id, ErrNotFound)
	}
	delete(s.byID, id)
	for i, t := range s.tokens {
		if t.ID == id {
			s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
			break
		}
	}
	m := Mutation{Kind: KindRemove, Origin: origin, RemovedID: id}
	s.mu.Unlock()

	s.notify(m)
	return m, nil
}

// ReplaceAll swaps in a full snapshot, used for initial load and full-state
// reconciliation.
func (s *Store) ReplaceAll(tokens []*models.Token, origin Origin) Mutation {
	s.mu.Lock()
	s.tokens = make([]*models.Token, 0, len(tokens))
	s.byID = make(map[string]*models.Token, len(tokens))
	for _, t := range tokens {
		if t == nil || t.ID == "" {
			log.Warn().Msg("dropping snapshot token without id")
			continue
		}
		c := t.Clone()
		c.Angle = geom.NormalizeAngle(c.Angle)
		c.Scale = geom.Clamp(c.Scale, geom.MinScale, geom.MaxScale)
		s.tokens = append(s.tokens, c)
		s.byID[c.ID] = c
	}
	m := Mutation{Kind: KindReplace, Origin: origin}
	s.mu.Unlock()

	s.notify(m)
	return m
}

// SetViewport stores a new pan/zoom transform, clamping the zoom.
func (s *Store) SetViewport(v models.Viewport, origin Origin) Mutation {
	s.mu.Lock()
	v.Zoom = geom.Clamp(v.Zoom, geom.MinZoom, geom.MaxZoom)
	s.viewport = v
	m := Mutation{Kind: KindViewport, Origin: origin, Viewport: &v}
	s.mu.Unlock()

	s.notify(m)
	return m
}

// ResetViewport restores the default transform.
func (s *Store) ResetViewport(origin Origin) Mutation {
	return s.SetViewport(models.DefaultViewport(), origin)
}

// Snapshot captures the full board state for persistence or initial load.
func (s *Store) Snapshot(sessionID string) models.BoardState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := make([]*models.Token, len(s.tokens))
	for i, t := range s.tokens {
		tokens[i] = t.Clone()
	}
	return models.BoardState{SessionID: sessionID, Viewport: s.viewport, Tokens: tokens}
}
