package realtime

import (
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/board"
)

// Publisher turns applied local board mutations into published events. It
// hangs off the store's change notifications, so anything mutating the
// board broadcasts for free, while remote-origin and dead-band-absorbed
// mutations never touch the wire.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher over the client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Attach subscribes the publisher to the store. Only local-origin,
// actually-changed mutations are broadcast.
func (p *Publisher) Attach(store *board.Store) {
	store.OnChange(p.onMutation)
}

func (p *Publisher) onMutation(m board.Mutation) {
	if m.Origin != board.OriginLocal || m.Unchanged {
		return
	}

	switch m.Kind {
	case board.KindAdd:
		p.client.Publish(EventTokenAdded, TokenAddedPayload{Token: m.Token})
	case board.KindMove:
		p.client.Publish(EventTokenMoved, TokenMovedPayload{TokenID: m.Token.ID, X: m.Token.X, Y: m.Token.Y})
	case board.KindRotate:
		p.client.Publish(EventTokenRotated, TokenRotatedPayload{TokenID: m.Token.ID, Angle: m.Token.Angle})
	case board.KindScale:
		p.client.Publish(EventTokenScaled, TokenScaledPayload{TokenID: m.Token.ID, Scale: m.Token.Scale})
	case board.KindFlip:
		p.client.Publish(EventTokenFlipped, TokenFlippedPayload{
			TokenID:   m.Token.ID,
			IsFront:   m.Token.IsFront,
			BackImage: m.Token.BackImage,
		})
	case board.KindRemove:
		p.client.Publish(EventTokenRemoved, TokenRemovedPayload{TokenID: m.RemovedID})
	case board.KindViewport:
		p.client.Publish(EventViewportChanged, ViewportChangedPayload{Zoom: m.Viewport.Zoom, Offset: m.Viewport.Offset})
	case board.KindReplace:
		// Full snapshots only travel inside control reassignments.
	default:
		log.Debug().Str("kind", string(m.Kind)).Msg("mutation kind not broadcast")
	}
}
