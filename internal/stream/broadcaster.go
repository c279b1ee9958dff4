// Package stream lets the experimenter listen in on a running session from
// another room: the audio engine's tap publishes PCM frames here and every
// connected monitor receives a copy.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	inboxFrames    = 50 // ~1s of 20ms frames between the tap and Run
	listenerFrames = 50
)

// Broadcaster fans out PCM frames from the audio tap to N listeners.
type Broadcaster struct {
	in      chan []int16
	dropped atomic.Uint64

	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C    chan []int16 // buffered channel of 20ms PCM frames
	done chan struct{}
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		in:        make(chan []int16, inboxFrames),
		listeners: make(map[*Listener]struct{}),
	}
}

// Publish hands a frame to the broadcaster. It never blocks: the caller is
// the audio output, and a stalled monitor must not stall playback.
func (b *Broadcaster) Publish(frame []int16) {
	select {
	case b.in <- frame:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many published frames were discarded at the inbox.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, listenerFrames),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run delivers published frames until ctx is cancelled. Slow listeners get
// frames dropped rather than blocking the others.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-b.in:
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
				}
			}
			b.mu.RUnlock()
		}
	}
}
