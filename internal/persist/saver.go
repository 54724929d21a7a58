package persist

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/models"
)

// DefaultInterval is how often dirty sessions are flushed while active.
const DefaultInterval = 30 * time.Second

// SnapshotSource yields the sessions mutated since the last call.
type SnapshotSource interface {
	DirtySnapshots() []models.BoardState
}

// Sink receives flushed snapshots.
type Sink interface {
	SaveSnapshot(ctx context.Context, state models.BoardState) error
}

// Saver periodically flushes dirty board snapshots to the sink,
// fire-and-forget: a failed save is logged and retried implicitly on the
// next tick, since the session stays dirty the moment it mutates again.
type Saver struct {
	source   SnapshotSource
	sink     Sink
	clock    clockwork.Clock
	interval time.Duration
}

// NewSaver creates a saver. A zero interval means DefaultInterval.
func NewSaver(source SnapshotSource, sink Sink, clock clockwork.Clock, interval time.Duration) *Saver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Saver{source: source, sink: sink, clock: clock, interval: interval}
}

// Start flushes on every tick until the context is cancelled, then flushes
// one final time so a clean shutdown loses nothing.
func (s *Saver) Start(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("snapshot saver started")
	for {
		select {
		case <-ctx.Done():
			s.Flush(context.Background())
			log.Info().Msg("snapshot saver stopped")
			return
		case <-ticker.Chan():
			s.Flush(ctx)
		}
	}
}

// Flush saves every currently dirty session.
func (s *Saver) Flush(ctx context.Context) {
	for _, state := range s.source.DirtySnapshots() {
		if err := s.sink.SaveSnapshot(ctx, state); err != nil {
			log.Warn().
				Err(err).
				Str("session_id", state.SessionID).
				Msg("snapshot save failed, will retry on next change")
			continue
		}
		log.Debug().
			Str("session_id", state.SessionID).
			Int("tokens", len(state.Tokens)).
			Msg("snapshot saved")
	}
}
