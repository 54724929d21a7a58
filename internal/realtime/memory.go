package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/scrivano/boardsync/internal/models"
)

// MemoryBus is an in-process broadcast channel with the same delivery
// contract as the gateway: per-sender-per-kind ordering, no acks. It backs
// single-process setups and the test suites.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[*MemoryTransport]bool
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*MemoryTransport]bool)}
}

// Transport creates a new endpoint on the bus.
func (b *MemoryBus) Transport() *MemoryTransport {
	return &MemoryTransport{
		bus:  b,
		recv: make(chan Event, 256),
	}
}

func (b *MemoryBus) broadcast(from *MemoryTransport, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub == from {
			continue
		}
		select {
		case sub.recv <- ev:
		default:
			// Slow consumer; same drop policy as the gateway.
		}
	}
}

// MemoryTransport is one endpoint on a MemoryBus.
type MemoryTransport struct {
	bus  *MemoryBus
	recv chan Event

	mu        sync.Mutex
	connected bool
	closed    bool

	// RejectConnect makes the next Connect fail, simulating a refused
	// authorization handshake.
	RejectConnect bool
}

// Connect registers the endpoint on the bus.
func (t *MemoryTransport) Connect(ctx context.Context, sessionID string, self models.Participant) error {
	if t.RejectConnect {
		return fmt.Errorf("handshake rejected for %s", self.ID)
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()

	t.bus.mu.Lock()
	t.bus.subs[t] = true
	t.bus.mu.Unlock()
	return nil
}

// Send broadcasts to every other endpoint on the bus.
func (t *MemoryTransport) Send(ev Event) error {
	t.mu.Lock()
	if !t.connected || t.closed {
		t.mu.Unlock()
		return fmt.Errorf("%w: not connected", ErrTransport)
	}
	t.mu.Unlock()
	t.bus.broadcast(t, ev)
	return nil
}

// Receive yields events broadcast by other endpoints.
func (t *MemoryTransport) Receive() <-chan Event {
	return t.recv
}

// Close deregisters from the bus. Idempotent.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.mu.Unlock()

	t.bus.mu.Lock()
	delete(t.bus.subs, t)
	t.bus.mu.Unlock()
	close(t.recv)
	return nil
}
