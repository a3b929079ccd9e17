package events

import (
	"context"
	"sync"
	"time"
)

const defaultWriteTimeout = 5 * time.Second

// Conn is the part of a websocket connection the broadcaster writes to.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Broadcaster is a sink writing every event to all attached websocket connections.
// Connections that fail a write are dropped.
type Broadcaster struct {
	mu    sync.Mutex
	conns map[Conn]struct{}
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{conns: map[Conn]struct{}{}}
}

func (b *Broadcaster) Name() string { return "websocket" }

// Attach adds c.
func (b *Broadcaster) Attach(c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.conns[c] = struct{}{}
}

// Detach removes c.
func (b *Broadcaster) Detach(c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.conns, c)
}

// Len returns the number of attached connections.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.conns)
}

// Send writes v to a single connection, serialized with broadcasts.
func (b *Broadcaster) Send(c Conn, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return write(c, v)
}

func (b *Broadcaster) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for c := range b.conns {
		if err := write(c, ev); err != nil {
			delete(b.conns, c)
			_ = c.Close()
		}
	}

	return nil
}

func write(c Conn, v any) error {
	_ = c.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))

	return c.WriteJSON(v)
}
