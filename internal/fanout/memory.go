package fanout

import (
	"context"
	"sync"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

// MemoryFanout is an in-process bus. It serves single-node degraded runs and
// lets tests wire multiple relay controllers to one backbone without Redis.
type MemoryFanout struct {
	mu   sync.RWMutex
	subs map[string][]chan *protocol.Envelope
}

// NewMemoryFanout creates an empty bus.
func NewMemoryFanout() *MemoryFanout {
	return &MemoryFanout{subs: make(map[string][]chan *protocol.Envelope)}
}

// Publish delivers env to every subscriber of channel.
func (f *MemoryFanout) Publish(_ context.Context, channel string, env *protocol.Envelope) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subs[channel] {
		ch <- env
	}
	return nil
}

// Subscribe consumes channel until ctx is cancelled.
func (f *MemoryFanout) Subscribe(ctx context.Context, channel string, h Handler) error {
	ch := make(chan *protocol.Envelope, 256)

	f.mu.Lock()
	f.subs[channel] = append(f.subs[channel], ch)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		subs := f.subs[channel]
		for i, c := range subs {
			if c == ch {
				f.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		f.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-ch:
			h(env)
		}
	}
}

// Close is a no-op for the in-process bus.
func (f *MemoryFanout) Close() error { return nil }
