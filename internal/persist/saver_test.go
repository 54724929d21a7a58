package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/scrivano/boardsync/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	pending []models.BoardState
}

func (f *fakeSource) push(state models.BoardState) {
	f.mu.Lock()
	f.pending = append(f.pending, state)
	f.mu.Unlock()
}

func (f *fakeSource) DirtySnapshots() []models.BoardState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

type fakeSink struct {
	mu    sync.Mutex
	saved []string
	fail  bool
}

func (f *fakeSink) SaveSnapshot(ctx context.Context, state models.BoardState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sink unavailable")
	}
	f.saved = append(f.saved, state.SessionID)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func TestSaverFlushesOnTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &fakeSource{}
	sink := &fakeSink{}
	saver := NewSaver(source, sink, clock, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		saver.Start(ctx)
		close(done)
	}()

	source.push(models.BoardState{SessionID: "s1"})
	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("saved %d snapshots, want 1", sink.count())
	}

	// clean sessions do not re-save
	clock.Advance(30 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if sink.count() != 1 {
		t.Errorf("saved %d snapshots after idle tick, want still 1", sink.count())
	}

	cancel()
	<-done
}

func TestSaverFinalFlushOnShutdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &fakeSource{}
	sink := &fakeSink{}
	saver := NewSaver(source, sink, clock, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		saver.Start(ctx)
		close(done)
	}()

	clock.BlockUntil(1)
	source.push(models.BoardState{SessionID: "s1"})
	cancel()
	<-done

	if sink.count() != 1 {
		t.Errorf("saved %d snapshots on shutdown, want 1", sink.count())
	}
}

func TestSaverKeepsGoingPastSinkErrors(t *testing.T) {
	source := &fakeSource{}
	sink := &fakeSink{fail: true}
	saver := NewSaver(source, sink, clockwork.NewFakeClock(), 0)

	source.push(models.BoardState{SessionID: "s1"})
	source.push(models.BoardState{SessionID: "s2"})
	saver.Flush(context.Background()) // must not panic or abort

	sink.fail = false
	source.push(models.BoardState{SessionID: "s3"})
	saver.Flush(context.Background())
	if sink.count() != 1 {
		t.Errorf("saved %d, want the post-recovery snapshot only", sink.count())
	}
}
